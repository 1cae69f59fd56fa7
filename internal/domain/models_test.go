package domain

import (
	"errors"
	"testing"
)

func TestModelConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  ModelConfig
		want error
	}{
		{name: "defaults", cfg: DefaultModelConfig()},
		{name: "bounds", cfg: ModelConfig{Model: "gpt-4o", Temperature: 1, MaxTokens: 4096}},
		{name: "lower bounds", cfg: ModelConfig{Model: "gpt-4", Temperature: 0, MaxTokens: 64}},
		{name: "unknown model", cfg: ModelConfig{Model: "davinci", Temperature: 0.5, MaxTokens: 512}, want: ErrUnsupportedModel},
		{name: "hot", cfg: ModelConfig{Model: "gpt-4", Temperature: 1.01, MaxTokens: 512}, want: ErrTemperatureRange},
		{name: "negative temperature", cfg: ModelConfig{Model: "gpt-4", Temperature: -0.1, MaxTokens: 512}, want: ErrTemperatureRange},
		{name: "few tokens", cfg: ModelConfig{Model: "gpt-4", Temperature: 0.5, MaxTokens: 63}, want: ErrMaxTokensRange},
		{name: "many tokens", cfg: ModelConfig{Model: "gpt-4", Temperature: 0.5, MaxTokens: 4097}, want: ErrMaxTokensRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBuildCompletionRequestSystemPrompt(t *testing.T) {
	transcript := []Message{{Role: RoleUser, Content: "hi"}}

	cfg := DefaultModelConfig()
	cfg.SystemPrompt = "be brief"
	req := BuildCompletionRequest(cfg, transcript)
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[0].Content != "be brief" {
		t.Fatalf("expected system prompt first, got %+v", req.Messages)
	}
	if req.Model != DefaultModel || req.MaxTokens != DefaultMaxTokens || req.Temperature != DefaultTemperature {
		t.Fatalf("unexpected request knobs: %+v", req)
	}

	cfg.SystemPrompt = "  \n\t"
	req = BuildCompletionRequest(cfg, transcript)
	if len(req.Messages) != 1 || req.Messages[0].Role != RoleUser {
		t.Fatalf("expected blank system prompt to be skipped, got %+v", req.Messages)
	}
}

func TestQuizStateCloneDetachesExpected(t *testing.T) {
	v := 12
	q := QuizState{Active: true, ExpectedAnswer: &v}
	c := q.Clone()
	*c.ExpectedAnswer = 99
	if *q.ExpectedAnswer != 12 {
		t.Fatalf("clone shares expected answer pointer")
	}
}
