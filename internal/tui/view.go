package tui

import (
	"fmt"
	"strings"

	"chat-quiz-service/internal/domain"
	"chat-quiz-service/internal/quiz"
	"github.com/rivo/tview"
)

const (
	labelChat    = "Message"
	labelAnswer  = "Answer (digits only)"
	labelAskMe   = "Ask me (e.g. 3x4)"
	streamCursor = "▌"
)

// InputLabel names the input field for the current quiz phase.
func InputLabel(q domain.QuizState) string {
	switch quiz.PhaseOf(q) {
	case quiz.AssistantAsks:
		return labelAnswer
	case quiz.UserAsks:
		return labelAskMe
	default:
		return labelChat
	}
}

// view is the UI-side copy of a session. It is only touched on the tview goroutine.
type view struct {
	messages []domain.Message
	pending  strings.Builder
	quiz     domain.QuizState
}

func newView(snap domain.Snapshot) *view {
	return &view{
		messages: append([]domain.Message(nil), snap.Messages...),
		quiz:     snap.Quiz.Clone(),
	}
}

func (v *view) apply(ev domain.Event) {
	switch ev.Type {
	case domain.EventDelta:
		v.pending.WriteString(ev.Delta)
	case domain.EventQuiz:
		if ev.Quiz != nil {
			v.quiz = ev.Quiz.Clone()
		}
	case domain.EventMessage:
		if ev.Message == nil {
			return
		}
		if ev.Message.Role == domain.RoleAssistant {
			v.pending.Reset()
		}
		v.messages = append(v.messages, *ev.Message)
	}
}

// dropPending discards a partial reply after a failed completion.
func (v *view) dropPending() {
	v.pending.Reset()
}

func (v *view) render() string {
	var b strings.Builder
	for _, msg := range v.messages {
		writeMessage(&b, msg.Role, msg.Content)
	}
	if v.pending.Len() > 0 {
		writeMessage(&b, domain.RoleAssistant, v.pending.String()+streamCursor)
	}
	return b.String()
}

func (v *view) scoreLine() string {
	if !v.quiz.Active {
		return ""
	}
	return fmt.Sprintf("Quiz: you %d, bot %d (question %d)", v.quiz.ScoreUser, v.quiz.ScoreBot, v.quiz.QuestionCount)
}

func writeMessage(b *strings.Builder, role domain.Role, content string) {
	switch role {
	case domain.RoleUser:
		b.WriteString("[cyan::b]You[-::-]\n")
	default:
		b.WriteString("[yellow::b]Assistant[-::-]\n")
	}
	b.WriteString(tview.Escape(content))
	b.WriteString("\n\n")
}
