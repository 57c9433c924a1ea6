package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockTextGenerator streams scripted responses for tests. Each call pops
// the next response and delivers it in fixed-size chunks, so page-boundary
// detection can be exercised against arbitrary chunk splits.
type MockTextGenerator struct {
	mu sync.Mutex

	// Responses are consumed in order. When exhausted, calls fail.
	Responses []string

	// ChunkSize controls how the response is split for streaming.
	// Zero means the whole response arrives as one chunk.
	ChunkSize int

	// Latency is applied once per call before streaming begins.
	Latency time.Duration

	// FailAfter fails the Nth call (1-based) with Err. Zero disables.
	FailAfter int
	Err       error

	calls   int
	prompts []string
}

// Name returns the provider identifier.
func (m *MockTextGenerator) Name() string { return "mock-text" }

// StreamGenerate delivers the next scripted response through onChunk.
func (m *MockTextGenerator) StreamGenerate(ctx context.Context, req TextRequest, onChunk ChunkHandler) (*TextResult, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.prompts = append(m.prompts, req.Prompt)
	if m.FailAfter > 0 && call >= m.FailAfter {
		err := m.Err
		m.mu.Unlock()
		if err == nil {
			err = NewError(KindTransient, m.Name(), "scripted failure", nil)
		}
		return nil, err
	}
	if len(m.Responses) == 0 {
		m.mu.Unlock()
		return nil, NewError(KindFatal, m.Name(), "no scripted responses remaining", nil)
	}
	response := m.Responses[0]
	m.Responses = m.Responses[1:]
	chunkSize := m.ChunkSize
	latency := m.Latency
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(latency):
		}
	}

	if chunkSize <= 0 {
		chunkSize = len(response)
	}
	for i := 0; i < len(response); i += chunkSize {
		end := i + chunkSize
		if end > len(response) {
			end = len(response)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := onChunk(response[i:end]); err != nil {
			return nil, err
		}
	}

	return &TextResult{
		Text:  response,
		Usage: Usage{PromptTokens: 100, CompletionTokens: len(response) / 4, TotalTokens: 100 + len(response)/4},
	}, nil
}

// Calls returns how many times StreamGenerate was invoked.
func (m *MockTextGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts received, in order.
func (m *MockTextGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// MockImageGenerator returns scripted images or errors. Errors are keyed
// by call number so safety blocks and transient failures can be placed
// precisely within a retry sequence.
type MockImageGenerator struct {
	mu sync.Mutex

	// Errs maps call number (1-based) to the error returned for that call.
	Errs map[int]error

	// Latency is applied per call.
	Latency time.Duration

	calls    int
	requests []ImageRequest
}

// Name returns the provider identifier.
func (m *MockImageGenerator) Name() string { return "mock-image" }

// Generate returns a synthetic image whose bytes encode the call number.
func (m *MockImageGenerator) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.requests = append(m.requests, req)
	err := m.Errs[call]
	latency := m.Latency
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	return &ImageResult{
		Image: []byte(fmt.Sprintf("image-%d", call)),
		Usage: Usage{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60},
	}, nil
}

// Calls returns how many times Generate was invoked.
func (m *MockImageGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns the requests received, in order.
func (m *MockImageGenerator) Requests() []ImageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ImageRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// MockEvaluator returns scripted verdicts in order. When the script runs
// out, the last verdict repeats.
type MockEvaluator struct {
	mu sync.Mutex

	// Verdicts are consumed in order; the final one repeats.
	Verdicts []Evaluation

	// Errs maps call number (1-based) to an error for that call.
	Errs map[int]error

	calls    int
	requests []EvalRequest
}

// Name returns the provider identifier.
func (m *MockEvaluator) Name() string { return "mock-eval" }

// Evaluate returns the next scripted verdict.
func (m *MockEvaluator) Evaluate(ctx context.Context, req EvalRequest) (*Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.requests = append(m.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Errs[m.calls]; err != nil {
		return nil, err
	}
	if len(m.Verdicts) == 0 {
		return &Evaluation{Score: 100, Reasoning: "default verdict"}, nil
	}
	idx := m.calls - 1
	if idx >= len(m.Verdicts) {
		idx = len(m.Verdicts) - 1
	}
	v := m.Verdicts[idx]
	return &v, nil
}

// Calls returns how many times Evaluate was invoked.
func (m *MockEvaluator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns the requests received, in order.
func (m *MockEvaluator) Requests() []EvalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EvalRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
