package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	"chat-quiz-service/internal/infra/memory"
	"chat-quiz-service/internal/quiz"
)

func TestRelayStreamsAndRecordsReply(t *testing.T) {
	ctx := context.Background()
	completions := &fakeCompletions{chunks: []string{"Hel", "", "lo", "!"}}
	service, _ := newTestService(completions, nil)

	openSession(t, service, "s1")
	if err := service.SetAPIKey(ctx, "s1", " sk-test "); err != nil {
		t.Fatalf("set key: %v", err)
	}
	cfg := domain.ModelConfig{Model: "gpt-4o", SystemPrompt: "be nice", Temperature: 0.2, MaxTokens: 128}
	if err := service.Configure(ctx, "s1", cfg); err != nil {
		t.Fatalf("configure: %v", err)
	}

	events, cancel, err := service.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	out, err := service.Submit(ctx, "s1", "hi there")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(out) != 2 || out[0].Role != domain.RoleUser || out[1].Role != domain.RoleAssistant || out[1].Content != "Hello!" {
		t.Fatalf("unexpected messages: %+v", out)
	}

	req := completions.lastRequest()
	if completions.lastKey() != "sk-test" {
		t.Fatalf("expected trimmed key, got %q", completions.lastKey())
	}
	if req.Model != "gpt-4o" || req.MaxTokens != 128 || req.Temperature != 0.2 {
		t.Fatalf("unexpected request knobs: %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != domain.RoleSystem || req.Messages[1].Content != "hi there" {
		t.Fatalf("unexpected request messages: %+v", req.Messages)
	}

	var deltas []string
	var messages int
	for len(events) > 0 {
		ev := <-events
		switch ev.Type {
		case domain.EventDelta:
			deltas = append(deltas, ev.Delta)
		case domain.EventMessage:
			messages++
		}
	}
	if strings.Join(deltas, "") != "Hello!" || len(deltas) != 3 {
		t.Fatalf("expected three non-empty deltas, got %q", deltas)
	}
	if messages != 2 {
		t.Fatalf("expected two message events, got %d", messages)
	}

	snap, _ := service.Snapshot(ctx, "s1")
	if len(snap.Messages) != 2 {
		t.Fatalf("expected transcript of 2, got %+v", snap.Messages)
	}
}

func TestRelayIncludesWholeTranscript(t *testing.T) {
	ctx := context.Background()
	completions := &fakeCompletions{chunks: []string{"ok"}}
	service, _ := newTestService(completions, nil)
	openSession(t, service, "s1")
	_ = service.SetAPIKey(ctx, "s1", "sk")

	_, _ = service.Submit(ctx, "s1", "first")
	_, _ = service.Submit(ctx, "s1", "second")

	req := completions.lastRequest()
	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 messages without system prompt, got %+v", req.Messages)
	}
	if req.Messages[0].Content != "first" || req.Messages[1].Content != "ok" || req.Messages[2].Content != "second" {
		t.Fatalf("unexpected ordering: %+v", req.Messages)
	}
}

func TestRelayRequiresAPIKey(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeCompletions{}, nil)
	openSession(t, service, "s1")

	if _, err := service.Submit(ctx, "s1", "hello"); !errors.Is(err, domain.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	snap, _ := service.Snapshot(ctx, "s1")
	if len(snap.Messages) != 0 {
		t.Fatalf("expected transcript untouched, got %+v", snap.Messages)
	}
}

func TestRelayFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("invalid api key")
	service, _ := newTestService(&fakeCompletions{openErr: boom}, nil)
	openSession(t, service, "s1")
	_ = service.SetAPIKey(ctx, "s1", "bad")

	out, err := service.Submit(ctx, "s1", "hello")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	if len(out) != 1 || out[0].Role != domain.RoleUser {
		t.Fatalf("expected user message kept, got %+v", out)
	}

	streamErr := errors.New("connection reset")
	service, _ = newTestService(&fakeCompletions{chunks: []string{"par"}, streamErr: streamErr}, nil)
	openSession(t, service, "s2")
	_ = service.SetAPIKey(ctx, "s2", "sk")
	if _, err := service.Submit(ctx, "s2", "hello"); !errors.Is(err, streamErr) {
		t.Fatalf("expected stream error, got %v", err)
	}
	snap, _ := service.Snapshot(ctx, "s2")
	if len(snap.Messages) != 1 {
		t.Fatalf("expected no partial reply recorded, got %+v", snap.Messages)
	}
}

func TestSubmitRejectsEmptyAndUnknown(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeCompletions{}, nil)

	if _, err := service.Submit(ctx, "missing", "hi"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	openSession(t, service, "s1")
	if _, err := service.Submit(ctx, "s1", "   "); !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestConfigureValidates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeCompletions{}, nil)
	openSession(t, service, "s1")

	cfg, err := service.Config(ctx, "s1")
	if err != nil || cfg != domain.DefaultModelConfig() {
		t.Fatalf("expected defaults, got %+v (%v)", cfg, err)
	}
	bad := domain.ModelConfig{Model: "gpt-4", Temperature: 2, MaxTokens: 512}
	if err := service.Configure(ctx, "s1", bad); !errors.Is(err, domain.ErrTemperatureRange) {
		t.Fatalf("expected ErrTemperatureRange, got %v", err)
	}
	cfg, _ = service.Config(ctx, "s1")
	if cfg != domain.DefaultModelConfig() {
		t.Fatalf("rejected config must not apply, got %+v", cfg)
	}
}

func TestQuizFlowThroughService(t *testing.T) {
	ctx := context.Background()
	completions := &fakeCompletions{}
	// 3 x 4 then 5 x 5
	machine := quiz.NewMachine(&scriptedRand{values: []int{1, 3, 3, 4}})
	service, results := newTestService(completions, machine)
	openSession(t, service, "s1")

	out, err := service.StartQuiz(ctx, "s1")
	if err != nil {
		t.Fatalf("start quiz: %v", err)
	}
	if len(out) != 2 || !strings.Contains(out[1].Content, "3 x 4") {
		t.Fatalf("unexpected start messages: %+v", out)
	}
	if _, err := service.StartQuiz(ctx, "s1"); !errors.Is(err, domain.ErrQuizActive) {
		t.Fatalf("expected ErrQuizActive, got %v", err)
	}

	// No API key is needed in quiz mode.
	out, err = service.Submit(ctx, "s1", "12")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(out) != 2 || out[0].Role != domain.RoleUser || out[0].Content != "12" {
		t.Fatalf("expected user answer recorded first, got %+v", out)
	}

	out, err = service.Submit(ctx, "s1", "3x4")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out[1].Content, "12") {
		t.Fatalf("expected bot answer 12, got %+v", out)
	}

	snap, _ := service.Snapshot(ctx, "s1")
	if snap.Quiz.ScoreUser != 1 || snap.Quiz.ScoreBot != 1 || snap.Quiz.QuestionCount != 2 {
		t.Fatalf("unexpected quiz record: %+v", snap.Quiz)
	}

	out, err = service.EndQuiz(ctx, "s1")
	if err != nil {
		t.Fatalf("end quiz: %v", err)
	}
	if len(out) != 1 || !strings.Contains(out[0].Content, "you 1, bot 1") {
		t.Fatalf("unexpected final message: %+v", out)
	}
	if _, err := service.EndQuiz(ctx, "s1"); !errors.Is(err, domain.ErrQuizNotActive) {
		t.Fatalf("expected ErrQuizNotActive, got %v", err)
	}
	if completions.calls() != 0 {
		t.Fatalf("quiz mode must not call the completion endpoint")
	}

	recorded, _ := results.ListResults(ctx, "s1")
	if len(recorded) != 1 || recorded[0].ScoreUser != 1 || recorded[0].ScoreBot != 1 || recorded[0].QuestionCount != 2 {
		t.Fatalf("unexpected recorded results: %+v", recorded)
	}
}

func TestBlankQuizAnswerIsMiss(t *testing.T) {
	ctx := context.Background()
	// 3 x 4
	machine := quiz.NewMachine(&scriptedRand{values: []int{1, 3}})
	service, _ := newTestService(&fakeCompletions{}, machine)
	openSession(t, service, "s1")
	if _, err := service.StartQuiz(ctx, "s1"); err != nil {
		t.Fatalf("start quiz: %v", err)
	}

	out, err := service.Submit(ctx, "s1", "   ")
	if err != nil {
		t.Fatalf("blank answer: %v", err)
	}
	if len(out) != 2 || out[1].Content != "Wrong. The answer is 12." {
		t.Fatalf("expected wrong-answer feedback, got %+v", out)
	}
	snap, _ := service.Snapshot(ctx, "s1")
	if snap.Quiz.Turn != domain.TurnUserAsks || snap.Quiz.ExpectedAnswer != nil || snap.Quiz.ScoreUser != 0 {
		t.Fatalf("expected turn handed to user, got %+v", snap.Quiz)
	}

	out, err = service.Submit(ctx, "s1", "")
	if err != nil {
		t.Fatalf("blank question: %v", err)
	}
	if len(out) < 2 || !strings.Contains(out[1].Content, "didn't understand") {
		t.Fatalf("expected not-understood reply, got %+v", out)
	}
}

func TestSubmitWhileBusy(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	completions := &fakeCompletions{chunks: []string{"slow"}, gate: release}
	service, _ := newTestService(completions, nil)
	openSession(t, service, "s1")
	_ = service.SetAPIKey(ctx, "s1", "sk")

	done := make(chan error, 1)
	go func() {
		_, err := service.Submit(ctx, "s1", "first")
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for completions.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := service.Submit(ctx, "s1", "second"); !errors.Is(err, domain.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	if _, err := service.StartQuiz(ctx, "s1"); !errors.Is(err, domain.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy for quiz start, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
}

func TestResetClearsTranscript(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeCompletions{}, nil)
	openSession(t, service, "s1")
	_, _ = service.StartQuiz(ctx, "s1")

	if err := service.Reset(ctx, "s1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := service.Snapshot(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	snap := openSession(t, service, "s1")
	if len(snap.Messages) != 0 || snap.Quiz.Active {
		t.Fatalf("expected fresh session, got %+v", snap)
	}
}

func newTestService(completions app.CompletionClient, machine *quiz.Machine) (*app.ChatService, *memory.ResultStore) {
	results := memory.NewResultStore()
	return app.NewChatService(memory.NewSessionStore(), results, completions, machine, domain.ModelConfig{}), results
}

func openSession(t *testing.T, service *app.ChatService, id string) domain.Snapshot {
	t.Helper()
	snap, err := service.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return snap
}

type scriptedRand struct {
	values []int
}

func (r *scriptedRand) Intn(n int) int {
	if len(r.values) == 0 {
		return 0
	}
	v := r.values[0]
	r.values = r.values[1:]
	return v % n
}

type fakeCompletions struct {
	chunks    []string
	openErr   error
	streamErr error
	gate      chan struct{}

	mu   sync.Mutex
	reqs []domain.CompletionRequest
	keys []string
}

func (f *fakeCompletions) Stream(_ context.Context, apiKey string, req domain.CompletionRequest) (app.ChunkStream, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.keys = append(f.keys, apiKey)
	f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeStream{chunks: f.chunks, err: f.streamErr, gate: f.gate, pos: -1}, nil
}

func (f *fakeCompletions) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeCompletions) lastRequest() domain.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

func (f *fakeCompletions) lastKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[len(f.keys)-1]
}

type fakeStream struct {
	chunks []string
	err    error
	gate   chan struct{}
	pos    int
}

func (s *fakeStream) Next() bool {
	if s.gate != nil {
		<-s.gate
	}
	s.pos++
	return s.pos < len(s.chunks)
}

func (s *fakeStream) Content() string { return s.chunks[s.pos] }
func (s *fakeStream) Err() error      { return s.err }
func (s *fakeStream) Close() error    { return nil }
