package openai

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	goopenai "github.com/sashabaranov/go-openai"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Client opens streaming chat completions. The API key is supplied per call
// because every session brings its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Stream starts a completion with stream=true.
func (c *Client) Stream(ctx context.Context, apiKey string, req domain.CompletionRequest) (app.ChunkStream, error) {
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = c.httpClient
	client := goopenai.NewClientWithConfig(cfg)

	stream, err := client.CreateChatCompletionStream(ctx, toChatRequest(req))
	if err != nil {
		return nil, err
	}
	return &chunkStream{stream: stream}, nil
}

func toChatRequest(req domain.CompletionRequest) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	temperature := float32(req.Temperature)
	if temperature == 0 {
		// A zero float32 is dropped by omitempty and the API would default to 1.
		temperature = math.SmallestNonzeroFloat32
	}
	return goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}
}

// chunkStream adapts the SDK's Recv loop to Next/Content.
type chunkStream struct {
	stream  *goopenai.ChatCompletionStream
	content string
	err     error
}

func (s *chunkStream) Next() bool {
	if s.err != nil {
		return false
	}
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}
	var b strings.Builder
	for _, choice := range resp.Choices {
		b.WriteString(choice.Delta.Content)
	}
	s.content = b.String()
	return true
}

func (s *chunkStream) Content() string { return s.content }

func (s *chunkStream) Err() error { return s.err }

func (s *chunkStream) Close() error {
	return s.stream.Close()
}
