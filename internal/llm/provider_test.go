package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestMockProvider_Script(t *testing.T) {
	mock := NewMockProvider(MockResponse{
		Content: json.RawMessage(`{"score":1}`),
		Usage:   Usage{InputTokens: 120, OutputTokens: 30, TotalTokens: 150},
	}).Then(MockResponse{Err: &ErrRateLimit{RetryAfter: time.Second}})
	ctx := context.Background()

	resp, err := mock.Generate(ctx, Request{System: "grade", Messages: []Message{{Role: RoleUser, Content: "answer one"}}})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if string(resp.Content) != `{"score":1}` || resp.Usage.TotalTokens != 150 || resp.StopReason != stopEnd || resp.Model != "mock" {
		t.Errorf("first response = %+v", resp)
	}

	_, err = mock.Generate(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "answer two"}}})
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("second call error = %v, want rate limit", err)
	}

	_, err = mock.Generate(ctx, Request{})
	var down *ErrProviderUnavailable
	if !errors.As(err, &down) {
		t.Fatalf("exhausted script error = %v, want unavailable", err)
	}

	reqs := mock.Requests()
	if len(reqs) != 3 || mock.CallCount() != 3 {
		t.Fatalf("recorded %d requests, want 3", len(reqs))
	}
	if reqs[0].System != "grade" || reqs[1].Messages[0].Content != "answer two" {
		t.Errorf("requests recorded out of order: %+v", reqs)
	}
}

func TestMockProvider_Fallback(t *testing.T) {
	mock := NewMockProvider().Otherwise(MockResponse{Content: json.RawMessage(`{}`), StopReason: stopMaxTokens})
	for i := 0; i < 3; i++ {
		resp, err := mock.Generate(context.Background(), Request{})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if resp.StopReason != stopMaxTokens {
			t.Errorf("call %d stop reason = %q", i, resp.StopReason)
		}
	}
}

func TestMockProvider_DelayHonoursCancel(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`), Delay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mock.Generate(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestCallLabels(t *testing.T) {
	ctx := context.Background()
	if got := PurposeFrom(ctx); got != "unlabeled" {
		t.Errorf("default purpose = %q", got)
	}
	if got := SubjectFrom(ctx); got != "" {
		t.Errorf("default subject = %q", got)
	}

	ctx = WithSubject(WithPurpose(ctx, "answer-review"), "att-1:essay-1")
	if got := PurposeFrom(ctx); got != "answer-review" {
		t.Errorf("purpose = %q", got)
	}
	if got := SubjectFrom(ctx); got != "att-1:essay-1" {
		t.Errorf("subject = %q", got)
	}

	// Relabeling the purpose keeps the subject.
	ctx = WithPurpose(ctx, "feedback")
	if got := SubjectFrom(ctx); got != "att-1:essay-1" {
		t.Errorf("subject after relabel = %q", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"mock", Config{Provider: ProviderMock}, false},
		{"anthropic keyed", Config{Provider: ProviderAnthropic, Anthropic: AnthropicConfig{APIKey: "sk"}}, false},
		{"anthropic keyless", Config{Provider: ProviderAnthropic}, true},
		{"openai keyed", Config{Provider: ProviderOpenAI, OpenAI: OpenAIConfig{APIKey: "sk"}}, false},
		{"openai keyless", Config{Provider: ProviderOpenAI}, true},
		{"gemini keyed", Config{Provider: ProviderGemini, Gemini: GeminiConfig{APIKey: "g"}}, false},
		{"openrouter keyless", Config{Provider: ProviderOpenRouter}, true},
		{"shrinking backoff", Config{Provider: ProviderMock, Retry: RetryConfig{MaxAttempts: 3, Multiplier: 0.5}}, true},
		{"unsupported provider", Config{Provider: "carrier-pigeon"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
