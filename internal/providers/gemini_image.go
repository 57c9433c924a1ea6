package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiImage generates illustrations via the Gemini generateContent API.
// Reference photos and the previous scene image are passed as inline data
// parts, each preceded by a text label so the model can tell them apart.
type GeminiImage struct {
	apiKey   string
	baseURL  string
	model    string
	client   *http.Client
	limiter  *RateLimiter
	timeouts Timeouts
}

// GeminiImageConfig configures the image provider.
type GeminiImageConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerMinute int
	Timeouts          Timeouts
}

// NewGeminiImage creates an image generator backed by Gemini.
func NewGeminiImage(cfg GeminiImageConfig) (*GeminiImage, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini image: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini image: model is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	timeouts := cfg.Timeouts.withDefaults()
	return &GeminiImage{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeouts.Image + 30*time.Second},
		limiter:  NewRateLimiter(cfg.RequestsPerMinute),
		timeouts: timeouts,
	}, nil
}

// Name returns the provider identifier.
func (p *GeminiImage) Name() string { return "gemini-image" }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiGenConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *geminiInlineData `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate produces a single image for the request prompt.
func (p *GeminiImage) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, NewError(KindFatal, p.Name(), "rate limit wait interrupted", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Image)
	defer cancel()

	parts := []geminiPart{{Text: req.Prompt}}
	for _, ref := range req.References {
		parts = append(parts,
			geminiPart{Text: fmt.Sprintf("Reference image: %s", ref.Label)},
			geminiPart{InlineData: &geminiInlineData{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(ref.Data),
			}})
	}
	if len(req.PreviousImage) > 0 {
		parts = append(parts,
			geminiPart{Text: "Previous scene, for style and character continuity:"},
			geminiPart{InlineData: &geminiInlineData{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(req.PreviousImage),
			}})
	}

	body, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	})
	if err != nil {
		return nil, NewError(KindFatal, p.Name(), "marshal request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindFatal, p.Name(), "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewError(KindOf(err), p.Name(), "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, NewError(KindTransient, p.Name(), "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		kind := classifyStatus(resp.StatusCode)
		return nil, NewError(kind, p.Name(),
			fmt.Sprintf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 200)), nil)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewError(KindTransient, p.Name(), "decode response", err)
	}
	if parsed.Error != nil {
		kind := classifyStatus(parsed.Error.Code)
		return nil, NewError(kind, p.Name(),
			fmt.Sprintf("API error %s: %s", parsed.Error.Status, parsed.Error.Message), nil)
	}
	if parsed.PromptFeedback.BlockReason != "" {
		return nil, NewError(KindSafetyBlock, p.Name(),
			fmt.Sprintf("prompt blocked: %s", parsed.PromptFeedback.BlockReason), nil)
	}
	if len(parsed.Candidates) == 0 {
		return nil, NewError(KindTransient, p.Name(), "no candidates in response", nil)
	}
	cand := parsed.Candidates[0]
	if reason := cand.FinishReason; reason == "SAFETY" || reason == "IMAGE_SAFETY" || reason == "PROHIBITED_CONTENT" {
		return nil, NewError(KindSafetyBlock, p.Name(),
			fmt.Sprintf("generation blocked: %s", reason), nil)
	}

	for _, part := range cand.Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, NewError(KindTransient, p.Name(), "decode image data", err)
		}
		slog.Debug("image generated",
			"provider", p.Name(),
			"request_id", req.RequestID,
			"bytes", len(data),
			"duration", time.Since(start))
		return &ImageResult{
			Image: data,
			Usage: Usage{
				PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
				CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      parsed.UsageMetadata.PromptTokenCount + parsed.UsageMetadata.CandidatesTokenCount,
			},
		}, nil
	}
	return nil, NewError(KindTransient, p.Name(), "response contained no image", nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
