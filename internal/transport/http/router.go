package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the health probe, the REST endpoints and the websocket.
func NewRouter(service *app.ChatService, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	api := &restHandler{service: service}
	r.Route("/api", func(ar chi.Router) {
		ar.Get("/models", api.models)
		ar.Get("/sessions/{sessionID}", api.snapshot)
		ar.Delete("/sessions/{sessionID}", api.reset)
		ar.Get("/sessions/{sessionID}/results", api.results)
	})

	r.Get("/ws", NewWSHandler(service).ServeWS)
	return r
}

type restHandler struct {
	service *app.ChatService
}

type modelsResponse struct {
	Models   []string           `json:"models"`
	Defaults domain.ModelConfig `json:"defaults"`
}

func (h *restHandler) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{
		Models:   domain.SupportedModels,
		Defaults: h.service.Defaults(),
	})
}

func (h *restHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *restHandler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *restHandler) results(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []domain.QuizResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrSessionNotFound) {
		status = http.StatusNotFound
	} else {
		log.Printf("api error: %v", err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
