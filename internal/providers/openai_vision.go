package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// evaluationSchema constrains the JSON verdict the vision model returns.
// Responses failing validation are treated as transient and retried.
const evaluationSchema = `{
	"type": "object",
	"required": ["score", "reasoning"],
	"properties": {
		"score":         {"type": "integer", "minimum": 0, "maximum": 100},
		"reasoning":     {"type": "string"},
		"text_expected": {"type": "boolean"},
		"text_rendered": {"type": "boolean"},
		"text_defect":   {"type": "boolean"},
		"element_descriptions": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	}
}`

var compiledEvalSchema = jsonschema.MustCompileString("evaluation.json", evaluationSchema)

// OpenAIVision scores generated images with a vision-capable chat model.
type OpenAIVision struct {
	client   openai.Client
	model    string
	limiter  *RateLimiter
	timeouts Timeouts
}

// OpenAIVisionConfig configures the vision evaluator.
type OpenAIVisionConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerMinute int
	Timeouts          Timeouts
}

// NewOpenAIVision creates a vision evaluator.
func NewOpenAIVision(cfg OpenAIVisionConfig) (*OpenAIVision, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai vision: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai vision: model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIVision{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		limiter:  NewRateLimiter(cfg.RequestsPerMinute),
		timeouts: cfg.Timeouts.withDefaults(),
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIVision) Name() string { return "openai-vision" }

// Evaluate scores the candidate image against the evaluation prompt.
// Reference images are attached after the candidate so the model can
// compare character appearance.
func (p *OpenAIVision) Evaluate(ctx context.Context, req EvalRequest) (*Evaluation, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, NewError(KindFatal, p.Name(), "rate limit wait interrupted", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Evaluation)
	defer cancel()

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL(req.Image),
		}),
	}
	for _, ref := range req.References {
		parts = append(parts,
			openai.TextContentPart(fmt.Sprintf("Reference image: %s", ref.Label)),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: dataURL(ref.Data),
			}))
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(parts))

	start := time.Now()
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               p.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(1024),
	})
	if err != nil {
		return nil, p.classify(err)
	}
	if len(completion.Choices) == 0 {
		return nil, NewError(KindTransient, p.Name(), "no choices in response", nil)
	}

	ev, err := parseEvaluation(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, NewError(KindTransient, p.Name(), "unusable verdict", err)
	}
	ev.Usage = Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}

	slog.Debug("image evaluated",
		"provider", p.Name(),
		"request_id", req.RequestID,
		"kind", req.Kind,
		"score", ev.Score,
		"duration", time.Since(start))
	return ev, nil
}

// parseEvaluation extracts and validates the JSON verdict. Models often
// wrap JSON in prose or markdown fences, so the first balanced object is
// located before decoding.
func parseEvaluation(content string) (*Evaluation, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	if err := compiledEvalSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate verdict: %w", err)
	}

	var ev Evaluation
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &ev, nil
}

// extractJSONObject returns the first top-level {...} span in s.
func extractJSONObject(s string) (string, error) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in response")
}

func dataURL(image []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
}

func (p *OpenAIVision) classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		kind := classifyStatus(apierr.StatusCode)
		return NewError(kind, p.Name(), fmt.Sprintf("API error (status %d)", apierr.StatusCode), err)
	}
	return NewError(KindOf(err), p.Name(), "evaluation call failed", err)
}
