package providers

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestRateLimiterConsumesTokens(t *testing.T) {
	limiter := NewRateLimiter(10)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	status := limiter.Status()
	if status.TotalConsumed != 5 {
		t.Errorf("TotalConsumed = %d, want 5", status.TotalConsumed)
	}
	if status.TokensLimit != 10 {
		t.Errorf("TokensLimit = %d, want 10", status.TokensLimit)
	}
}

func TestRateLimiterBlocksWhenExhausted(t *testing.T) {
	limiter := NewRateLimiter(60) // 1 token per second refill

	ctx := context.Background()
	for i := 0; i < 60; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := limiter.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() with exhausted bucket error = %v, want deadline exceeded", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindFatal},
		{"canceled", context.Canceled, KindFatal},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"net timeout", &net.DNSError{IsTimeout: true}, KindTransient},
		{"tagged safety", NewError(KindSafetyBlock, "p", "blocked", nil), KindSafetyBlock},
		{"tagged fatal", NewError(KindFatal, "p", "bad key", nil), KindFatal},
		{"wrapped tagged", errors.New("outer: " + NewError(KindSafetyBlock, "p", "blocked", nil).Error()), KindTransient},
		{"unknown", errors.New("boom"), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, KindFatal},
		{402, KindFatal},
		{403, KindFatal},
		{429, KindTransient},
		{500, KindTransient},
		{503, KindTransient},
		{400, KindFatal},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestEvaluationDisqualified(t *testing.T) {
	tests := []struct {
		name string
		ev   Evaluation
		kind EvalKind
		want bool
	}{
		{"page with defect not disqualified", Evaluation{Score: 80, TextDefect: true}, EvalPage, false},
		{"cover without defect", Evaluation{Score: 80}, EvalCover, false},
		{"cover with defect", Evaluation{Score: 80, TextExpected: true, TextRendered: true, TextDefect: true}, EvalCover, true},
		{"cover garbled unexpected text", Evaluation{Score: 80, TextExpected: false, TextRendered: true, TextDefect: true}, EvalCover, true},
		{"cover no text expected none rendered", Evaluation{Score: 80, TextExpected: false, TextRendered: false, TextDefect: true}, EvalCover, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Disqualified(tt.kind); got != tt.want {
				t.Errorf("Disqualified(%q) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestTimeoutsForText(t *testing.T) {
	timeouts := DefaultTimeouts()

	if got := timeouts.ForText(0); got != 30*time.Second {
		t.Errorf("ForText(0) = %v, want 30s", got)
	}
	if got := timeouts.ForText(4000); got != 30*time.Second+4000*15*time.Millisecond {
		t.Errorf("ForText(4000) = %v, want 90s", got)
	}
}

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantScore int
		wantErr   bool
	}{
		{
			name:      "bare JSON",
			content:   `{"score": 72, "reasoning": "good likeness"}`,
			wantScore: 72,
		},
		{
			name:      "fenced JSON",
			content:   "Here is my assessment:\n```json\n{\"score\": 45, \"reasoning\": \"wrong hair color\", \"text_defect\": false}\n```",
			wantScore: 45,
		},
		{
			name:    "score out of range",
			content: `{"score": 150, "reasoning": "x"}`,
			wantErr: true,
		},
		{
			name:    "missing reasoning",
			content: `{"score": 50}`,
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			content: "the image looks fine to me",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parseEvaluation(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseEvaluation() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEvaluation() error = %v", err)
			}
			if ev.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", ev.Score, tt.wantScore)
			}
		})
	}
}

func TestMockTextGeneratorChunking(t *testing.T) {
	mock := &MockTextGenerator{
		Responses: []string{"[PAGE 1] Once upon a time. [THE END]"},
		ChunkSize: 7,
	}

	var chunks []string
	result, err := mock.StreamGenerate(context.Background(), TextRequest{Prompt: "story"}, func(delta string) error {
		chunks = append(chunks, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamGenerate() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Errorf("chunks delivered = %d, want several", len(chunks))
	}
	if joined := strings.Join(chunks, ""); joined != result.Text {
		t.Errorf("joined chunks = %q, want %q", joined, result.Text)
	}
}

func TestWithRetryStopsOnSafetyBlock(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryPolicy{Attempts: 3, Delay: time.Millisecond}, "test", func() error {
		calls++
		return NewError(KindSafetyBlock, "mock", "blocked", nil)
	})
	if !IsSafetyBlock(err) {
		t.Fatalf("WithRetry() error = %v, want safety block", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (safety blocks must not be retried)", calls)
	}
}

func TestWithRetryRetriesTransient(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryPolicy{Attempts: 3, Delay: time.Millisecond}, "test", func() error {
		calls++
		if calls < 3 {
			return NewError(KindTransient, "mock", "flaky", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
