package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIText streams chat completions from an OpenAI-compatible endpoint.
type OpenAIText struct {
	client   openai.Client
	model    string
	limiter  *RateLimiter
	timeouts Timeouts
}

// OpenAITextConfig configures the streaming text provider.
type OpenAITextConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerMinute int
	Timeouts          Timeouts
}

// NewOpenAIText creates a streaming text generator.
func NewOpenAIText(cfg OpenAITextConfig) (*OpenAIText, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai text: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai text: model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: 10 * time.Minute}),
		option.WithMaxRetries(0), // retries are handled by WithRetry
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIText{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		limiter:  NewRateLimiter(cfg.RequestsPerMinute),
		timeouts: cfg.Timeouts.withDefaults(),
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIText) Name() string { return "openai-text" }

// StreamGenerate streams a completion, invoking onChunk for every content
// delta as it arrives. The accumulated text and token usage are returned
// once the stream ends.
func (p *OpenAIText) StreamGenerate(ctx context.Context, req TextRequest, onChunk ChunkHandler) (*TextResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, NewError(KindFatal, p.Name(), "rate limit wait interrupted", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeouts.ForText(req.MaxTokens))
	defer cancel()

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	start := time.Now()
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	var buf strings.Builder
	usage := Usage{}
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta.Content
			if delta != "" {
				buf.WriteString(delta)
				if err := onChunk(delta); err != nil {
					return nil, NewError(KindFatal, p.Name(), "chunk handler aborted stream", err)
				}
			}
		}
		if chunk.Usage.TotalTokens > 0 {
			usage.PromptTokens = int(chunk.Usage.PromptTokens)
			usage.CompletionTokens = int(chunk.Usage.CompletionTokens)
			usage.TotalTokens = int(chunk.Usage.TotalTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, p.classify(err)
	}

	slog.Debug("text stream complete",
		"provider", p.Name(),
		"request_id", req.RequestID,
		"chars", buf.Len(),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"duration", time.Since(start))

	return &TextResult{Text: buf.String(), Usage: usage}, nil
}

// classify maps SDK errors onto the provider error taxonomy.
func (p *OpenAIText) classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		kind := classifyStatus(apierr.StatusCode)
		return NewError(kind, p.Name(), fmt.Sprintf("API error (status %d)", apierr.StatusCode), err)
	}
	return NewError(KindOf(err), p.Name(), "stream failed", err)
}
