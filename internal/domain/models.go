package domain

import (
	"strings"
	"time"
)

// Role tags who authored a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single transcript entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Turn says who asks the next multiplication question.
type Turn string

const (
	TurnAssistantAsks Turn = "assistant_asks"
	TurnUserAsks      Turn = "user_asks"
)

// QuizState is the per-session quiz record.
// ExpectedAnswer is set only while the user owes an answer to a posed question.
type QuizState struct {
	Active         bool `json:"active"`
	Turn           Turn `json:"turn,omitempty"`
	ScoreUser      int  `json:"scoreUser"`
	ScoreBot       int  `json:"scoreBot"`
	QuestionCount  int  `json:"questionCount"`
	ExpectedAnswer *int `json:"expectedAnswer,omitempty"`
}

// Clone returns a copy that shares no pointers with q.
func (q QuizState) Clone() QuizState {
	if q.ExpectedAnswer != nil {
		v := *q.ExpectedAnswer
		q.ExpectedAnswer = &v
	}
	return q
}

const (
	MinTemperature = 0.0
	MaxTemperature = 1.0
	MinMaxTokens   = 64
	MaxMaxTokens   = 4096

	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 512
)

// SupportedModels lists the completion models a session may select.
var SupportedModels = []string{"gpt-4o", "gpt-4", "gpt-3.5-turbo-16k", "gpt-3.5-turbo"}

// ModelConfig carries the knobs sent with every completion call.
type ModelConfig struct {
	Model        string  `json:"model"`
	SystemPrompt string  `json:"systemPrompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
}

// DefaultModelConfig mirrors the form defaults.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Validate checks the model and the numeric ranges.
func (c ModelConfig) Validate() error {
	if !IsSupportedModel(c.Model) {
		return ErrUnsupportedModel
	}
	if c.Temperature < MinTemperature || c.Temperature > MaxTemperature {
		return ErrTemperatureRange
	}
	if c.MaxTokens < MinMaxTokens || c.MaxTokens > MaxMaxTokens {
		return ErrMaxTokensRange
	}
	return nil
}

// IsSupportedModel reports whether model is in SupportedModels.
func IsSupportedModel(model string) bool {
	for _, m := range SupportedModels {
		if m == model {
			return true
		}
	}
	return false
}

// CompletionRequest is the outbound chat-completion call.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// BuildCompletionRequest prepends the system prompt (when non-blank) to the transcript.
func BuildCompletionRequest(cfg ModelConfig, transcript []Message) CompletionRequest {
	messages := make([]Message, 0, len(transcript)+1)
	if strings.TrimSpace(cfg.SystemPrompt) != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: cfg.SystemPrompt})
	}
	messages = append(messages, transcript...)
	return CompletionRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}

// Snapshot is the transferable form of a session. It never carries the API key.
type Snapshot struct {
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
	Quiz      QuizState `json:"quiz"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// QuizResult is recorded when a quiz ends.
type QuizResult struct {
	SessionID     string    `json:"sessionId"`
	ScoreUser     int       `json:"scoreUser"`
	ScoreBot      int       `json:"scoreBot"`
	QuestionCount int       `json:"questionCount"`
	EndedAt       time.Time `json:"endedAt"`
}

// EventType discriminates session events.
type EventType string

const (
	EventMessage EventType = "message"
	EventDelta   EventType = "delta"
	EventQuiz    EventType = "quiz"
)

// Event is fanned out to session subscribers.
type Event struct {
	Type    EventType  `json:"type"`
	Message *Message   `json:"message,omitempty"`
	Delta   string     `json:"delta,omitempty"`
	Quiz    *QuizState `json:"quiz,omitempty"`
}
