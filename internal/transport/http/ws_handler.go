package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.ChatService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ChatService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type apiKeyPayload struct {
	APIKey string `json:"apiKey"`
}

type textPayload struct {
	Text string `json:"text"`
}

type joinedPayload struct {
	SessionID string             `json:"sessionId"`
	Messages  []domain.Message   `json:"messages"`
	Quiz      domain.QuizState   `json:"quiz"`
	Config    domain.ModelConfig `json:"config"`
	HasAPIKey bool               `json:"hasApiKey"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the chat use cases.
// Inputs are handled one at a time: while a completion streams, the next frame is not read.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	snap, err := h.service.Open(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	cfg, _ := h.service.Config(ctx, sessionID)
	hasKey, _ := h.service.HasAPIKey(ctx, sessionID)

	events, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 64)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// Single writer: gorilla connections do not support concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- eventEnvelope(ev):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		SessionID: snap.SessionID,
		Messages:  snap.Messages,
		Quiz:      snap.Quiz,
		Config:    cfg,
		HasAPIKey: hasKey,
	}}
	if !hasKey {
		send <- notice(domain.ErrMissingAPIKey)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if reply, ok := h.dispatch(r, sessionID, inbound); ok {
			send <- reply
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// dispatch runs one inbound frame. Transcript changes reach the client through
// the subscription; the returned envelope carries only direct replies.
func (h *WSHandler) dispatch(r *http.Request, sessionID string, inbound inboundMessage) (outboundMessage[any], bool) {
	ctx := r.Context()
	switch inbound.Type {
	case "apiKey":
		var payload apiKeyPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorEnvelope("invalid apiKey payload"), true
		}
		if err := h.service.SetAPIKey(ctx, sessionID, payload.APIKey); err != nil {
			return errorEnvelope(err.Error()), true
		}
		if ok, _ := h.service.HasAPIKey(ctx, sessionID); !ok {
			return notice(domain.ErrMissingAPIKey), true
		}
		return outboundMessage[any]{}, false
	case "configure":
		var cfg domain.ModelConfig
		if err := json.Unmarshal(inbound.Payload, &cfg); err != nil {
			return errorEnvelope("invalid configure payload"), true
		}
		if err := h.service.Configure(ctx, sessionID, cfg); err != nil {
			return errorEnvelope(err.Error()), true
		}
		return outboundMessage[any]{Type: "config", Payload: cfg}, true
	case "message":
		var payload textPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorEnvelope("invalid message payload"), true
		}
		if _, err := h.service.Submit(ctx, sessionID, payload.Text); err != nil {
			if errors.Is(err, domain.ErrMissingAPIKey) {
				return notice(err), true
			}
			return errorEnvelope(err.Error()), true
		}
		return outboundMessage[any]{}, false
	case "startQuiz":
		if _, err := h.service.StartQuiz(ctx, sessionID); err != nil {
			return errorEnvelope(err.Error()), true
		}
		return outboundMessage[any]{}, false
	case "endQuiz":
		if _, err := h.service.EndQuiz(ctx, sessionID); err != nil {
			return errorEnvelope(err.Error()), true
		}
		return outboundMessage[any]{}, false
	default:
		return errorEnvelope("unsupported message type"), true
	}
}

func eventEnvelope(ev domain.Event) outboundMessage[any] {
	switch ev.Type {
	case domain.EventDelta:
		return outboundMessage[any]{Type: "delta", Payload: textPayload{Text: ev.Delta}}
	case domain.EventQuiz:
		return outboundMessage[any]{Type: "quiz", Payload: ev.Quiz}
	default:
		return outboundMessage[any]{Type: "message", Payload: ev.Message}
	}
}

func errorEnvelope(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}

func notice(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "notice", Payload: errorPayload{Message: err.Error()}}
}
