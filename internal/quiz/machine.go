// Package quiz implements the multiplication quiz turn controller.
//
// The quiz alternates between the assistant posing a question and the user
// posing one. Phases are derived from domain.QuizState and every change goes
// through one of the transition methods on Machine.
package quiz

import (
	"fmt"
	"math/big"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"chat-quiz-service/internal/domain"
)

// Phase is the quiz state machine's tag.
type Phase int

const (
	Idle Phase = iota
	AssistantAsks
	UserAsks
)

func (p Phase) String() string {
	switch p {
	case AssistantAsks:
		return "assistant_asks"
	case UserAsks:
		return "user_asks"
	default:
		return "idle"
	}
}

// PhaseOf derives the phase from a quiz record.
func PhaseOf(q domain.QuizState) Phase {
	if !q.Active {
		return Idle
	}
	if q.Turn == domain.TurnUserAsks {
		return UserAsks
	}
	return AssistantAsks
}

const (
	msgIntro         = "Let's start the multiplication quiz! I'll ask the first question."
	msgQuestion      = "Question %d: %d x %d = ?"
	msgCorrect       = "Correct! Well done 🎉"
	msgWrong         = "Wrong. The answer is %d."
	msgBotAnswer     = "Let me answer: %s x %s = %s"
	msgNotUnderstood = "I didn't understand the question. Please enter it like '3x4'."
	msgFinal         = "Quiz over. Final score: you %d, bot %d"
)

// Operand ranges for assistant-posed questions (inclusive).
const (
	minLeft, maxLeft   = 2, 9
	minRight, maxRight = 1, 9
)

var questionPattern = regexp.MustCompile(`(\p{Nd}+)\s*[x×*]\s*(\p{Nd}+)`)

// Intn is the randomness the machine needs; *rand.Rand satisfies it.
type Intn interface {
	Intn(n int) int
}

type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.Intn(n) }

// Machine applies quiz transitions. It holds no session state and is safe to share.
type Machine struct {
	rnd Intn
}

// NewMachine builds a machine; a nil rnd uses the goroutine-safe math/rand source.
func NewMachine(rnd Intn) *Machine {
	if rnd == nil {
		rnd = globalRand{}
	}
	return &Machine{rnd: rnd}
}

// Start moves Idle -> AssistantAsks, resets the record and poses the first question.
func (m *Machine) Start(q *domain.QuizState) ([]domain.Message, error) {
	if q.Active {
		return nil, domain.ErrQuizActive
	}
	*q = domain.QuizState{Active: true, Turn: domain.TurnAssistantAsks}
	out := []domain.Message{assistant(msgIntro)}
	return append(out, m.Ask(q)...), nil
}

// Ask poses a new question when the assistant owes one; otherwise it returns nil.
func (m *Machine) Ask(q *domain.QuizState) []domain.Message {
	if PhaseOf(*q) != AssistantAsks || q.ExpectedAnswer != nil {
		return nil
	}
	a := minLeft + m.rnd.Intn(maxLeft-minLeft+1)
	b := minRight + m.rnd.Intn(maxRight-minRight+1)
	expected := a * b
	q.ExpectedAnswer = &expected
	q.QuestionCount++
	return []domain.Message{assistant(fmt.Sprintf(msgQuestion, q.QuestionCount, a, b))}
}

// Handle resolves one user input in the current phase and returns the replies.
// Malformed input is a scored miss, never an error.
func (m *Machine) Handle(q *domain.QuizState, input string) ([]domain.Message, error) {
	switch PhaseOf(*q) {
	case AssistantAsks:
		return m.answer(q, input), nil
	case UserAsks:
		return m.respond(q, input), nil
	default:
		return nil, domain.ErrQuizNotActive
	}
}

// End moves any active phase back to Idle and reports the final score.
func (m *Machine) End(q *domain.QuizState) (domain.Message, error) {
	if !q.Active {
		return domain.Message{}, domain.ErrQuizNotActive
	}
	q.Active = false
	q.ExpectedAnswer = nil
	return assistant(fmt.Sprintf(msgFinal, q.ScoreUser, q.ScoreBot)), nil
}

// answer grades the user's reply to a posed question, then hands the turn over.
func (m *Machine) answer(q *domain.QuizState, input string) []domain.Message {
	var out []domain.Message
	if q.ExpectedAnswer == nil {
		out = append(out, m.Ask(q)...)
	}
	expected := *q.ExpectedAnswer

	var feedback string
	if got, ok := ExtractNumber(input); ok && got == expected {
		q.ScoreUser++
		feedback = msgCorrect
	} else {
		feedback = fmt.Sprintf(msgWrong, expected)
	}
	q.ExpectedAnswer = nil
	q.Turn = domain.TurnUserAsks
	return append(out, assistant(feedback))
}

// respond answers the user's own question, then poses the next one.
func (m *Machine) respond(q *domain.QuizState, input string) []domain.Message {
	var reply string
	if a, b, ok := ParseQuestion(input); ok {
		product := new(big.Int).Mul(a, b)
		reply = fmt.Sprintf(msgBotAnswer, a.String(), b.String(), product.String())
		q.ScoreBot++
	} else {
		reply = msgNotUnderstood
	}
	q.Turn = domain.TurnAssistantAsks
	out := []domain.Message{assistant(reply)}
	return append(out, m.Ask(q)...)
}

// ExtractNumber concatenates every decimal digit in input, full-width and other
// scripts included, and parses the result.
// It reports false when there are no digits or the value does not fit an int.
func ExtractNumber(input string) (int, bool) {
	digits := asciiDigits(input)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// asciiDigits keeps the decimal digits of s, mapped to '0'-'9'.
func asciiDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if v, ok := digitValue(r); ok {
			b.WriteByte(byte('0' + v))
		}
	}
	return b.String()
}

// digitValue maps a Unicode decimal digit to its value. Decimal digits come in
// contiguous runs of ten starting at zero, so the offset within the run is the value.
func digitValue(r rune) (int, bool) {
	if r >= '0' && r <= '9' {
		return int(r - '0'), true
	}
	if !unicode.IsDigit(r) {
		return 0, false
	}
	for _, rg := range unicode.Nd.R16 {
		if lo, hi := rune(rg.Lo), rune(rg.Hi); r >= lo && r <= hi {
			return int(r-lo) % 10, true
		}
	}
	for _, rg := range unicode.Nd.R32 {
		if lo, hi := rune(rg.Lo), rune(rg.Hi); r >= lo && r <= hi {
			return int(r-lo) % 10, true
		}
	}
	return 0, false
}

// ParseQuestion finds "<int> x <int>" in input; x, ×, * and X are accepted.
func ParseQuestion(input string) (*big.Int, *big.Int, bool) {
	match := questionPattern.FindStringSubmatch(strings.ReplaceAll(input, "X", "x"))
	if match == nil {
		return nil, nil, false
	}
	a, okA := new(big.Int).SetString(asciiDigits(match[1]), 10)
	b, okB := new(big.Int).SetString(asciiDigits(match[2]), 10)
	if !okA || !okB {
		return nil, nil, false
	}
	return a, b, true
}

func assistant(content string) domain.Message {
	return domain.Message{Role: domain.RoleAssistant, Content: content}
}
