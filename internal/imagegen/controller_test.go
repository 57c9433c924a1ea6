package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/fableforge/fableforge/internal/providers"
	"github.com/fableforge/fableforge/internal/storybook"
)

func newController(images *providers.MockImageGenerator, eval *providers.MockEvaluator) *Controller {
	return &Controller{
		Images: images,
		Eval:   eval,
		Cache:  NewMemoryCache(0),
		Retry:  providers.RetryPolicy{Attempts: 1, Delay: time.Millisecond},
	}
}

func TestGenerateAcceptsFirstAttempt(t *testing.T) {
	images := &providers.MockImageGenerator{}
	eval := &providers.MockEvaluator{
		Verdicts: []providers.Evaluation{{Score: 80, Reasoning: "solid"}},
	}
	ctrl := newController(images, eval)

	var ready [][]byte
	outcome, err := ctrl.Generate(context.Background(), Request{
		JobID: "job-1", Page: 1, Prompt: "a fox in a forest",
		Kind:    providers.EvalPage,
		OnReady: func(img []byte) { ready = append(ready, img) },
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !outcome.Accepted || outcome.Score != 80 {
		t.Errorf("outcome = accepted %v score %d, want accepted 80", outcome.Accepted, outcome.Score)
	}
	if outcome.Regenerated {
		t.Errorf("Regenerated = true, want false on first-attempt accept")
	}
	if len(outcome.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(outcome.Attempts))
	}
	if len(ready) != 1 {
		t.Errorf("OnReady calls = %d, want 1 (image must surface before scoring)", len(ready))
	}
	if images.Calls() != 1 || eval.Calls() != 1 {
		t.Errorf("calls = %d generate / %d evaluate, want 1/1", images.Calls(), eval.Calls())
	}
}

func TestGenerateRetriesUntilThreshold(t *testing.T) {
	images := &providers.MockImageGenerator{}
	eval := &providers.MockEvaluator{
		Verdicts: []providers.Evaluation{
			{Score: 30, Reasoning: "wrong character"},
			{Score: 30, Reasoning: "extra limb"},
			{Score: 60, Reasoning: "acceptable"},
		},
	}
	ctrl := newController(images, eval)

	outcome, err := ctrl.Generate(context.Background(), Request{
		JobID: "job-1", Page: 4, Prompt: "a fox", Kind: providers.EvalPage,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if outcome.Score != 60 || !outcome.Accepted {
		t.Errorf("kept score = %d accepted %v, want 60 accepted", outcome.Score, outcome.Accepted)
	}
	if !outcome.Regenerated {
		t.Errorf("Regenerated = false, want true")
	}
	if len(outcome.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(outcome.Attempts))
	}
	for i, want := range []int{30, 30, 60} {
		if outcome.Attempts[i].Score != want {
			t.Errorf("attempt %d score = %d, want %d", i+1, outcome.Attempts[i].Score, want)
		}
	}
	if outcome.Attempts[0].Accepted || outcome.Attempts[1].Accepted || !outcome.Attempts[2].Accepted {
		t.Errorf("acceptance flags = %v %v %v, want false false true",
			outcome.Attempts[0].Accepted, outcome.Attempts[1].Accepted, outcome.Attempts[2].Accepted)
	}
}

func TestGenerateKeepsBestWhenAllBelowThreshold(t *testing.T) {
	images := &providers.MockImageGenerator{}
	eval := &providers.MockEvaluator{
		Verdicts: []providers.Evaluation{
			{Score: 20, Reasoning: "bad"},
			{Score: 45, Reasoning: "closer"},
			{Score: 35, Reasoning: "regressed"},
		},
	}
	ctrl := newController(images, eval)

	outcome, err := ctrl.Generate(context.Background(), Request{
		JobID: "job-1", Page: 2, Prompt: "a fox", Kind: providers.EvalPage,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if outcome.Accepted {
		t.Errorf("Accepted = true, want false when nothing clears the threshold")
	}
	if outcome.Score != 45 {
		t.Errorf("kept score = %d, want best-of-attempts 45", outcome.Score)
	}
	if want := []byte("image-2"); !bytes.Equal(outcome.Image, want) {
		t.Errorf("kept image = %q, want the second candidate %q", outcome.Image, want)
	}
	if len(outcome.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3 (budget exhausted)", len(outcome.Attempts))
	}
}

func TestGenerateSafetyRewriteDoesNotConsumeAttempt(t *testing.T) {
	images := &providers.MockImageGenerator{
		Errs: map[int]error{
			1: providers.NewError(providers.KindSafetyBlock, "mock-image", "prompt blocked", nil),
		},
	}
	eval := &providers.MockEvaluator{
		Verdicts: []providers.Evaluation{{Score: 75, Reasoning: "fine"}},
	}
	text := &providers.MockTextGenerator{Responses: []string{"a fox playfully pouncing"}}
	ctrl := newController(images, eval)
	ctrl.Rewriter = &TextRewriter{Text: text}

	outcome, err := ctrl.Generate(context.Background(), Request{
		JobID: "job-1", Page: 5, Prompt: "a fox attacking", Kind: providers.EvalPage,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !outcome.Rewritten {
		t.Errorf("Rewritten = false, want true")
	}
	if outcome.PromptUsed != "a fox playfully pouncing" {
		t.Errorf("PromptUsed = %q, want the rewritten prompt", outcome.PromptUsed)
	}
	if len(outcome.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1 (refused call must not consume the budget)", len(outcome.Attempts))
	}
	if !outcome.Accepted || outcome.Score != 75 {
		t.Errorf("outcome = accepted %v score %d, want accepted 75", outcome.Accepted, outcome.Score)
	}
	if req := images.Requests(); len(req) != 2 || req[1].Prompt != "a fox playfully pouncing" {
		t.Errorf("second generate call must use the rewritten prompt, got %+v", req)
	}
}

func TestGenerateCoverTextDefectForcesRetry(t *testing.T) {
	images := &providers.MockImageGenerator{}
	eval := &providers.MockEvaluator{
		Verdicts: []providers.Evaluation{
			{Score: 90, Reasoning: "pretty but title garbled", TextExpected: true, TextRendered: true, TextDefect: true},
			{Score: 70, Reasoning: "title correct", TextExpected: true, TextRendered: true},
		},
	}
	ctrl := newController(images, eval)

	outcome, err := ctrl.Generate(context.Background(), Request{
		JobID: "job-1", Page: 0, Prompt: "front cover", Kind: providers.EvalCover,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(outcome.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2 (defective text must not pass on score alone)", len(outcome.Attempts))
	}
	if outcome.Attempts[0].Score != 0 {
		t.Errorf("first attempt effective score = %d, want 0", outcome.Attempts[0].Score)
	}
	if outcome.Score != 70 || !outcome.Accepted {
		t.Errorf("kept score = %d accepted %v, want 70 accepted", outcome.Score, outcome.Accepted)
	}
}

func TestGenerateServesFromCache(t *testing.T) {
	images := &providers.MockImageGenerator{}
	eval := &providers.MockEvaluator{}
	ctrl := newController(images, eval)

	stored, err := json.Marshal(cachedOutcome{
		Image:     []byte("cached"),
		Score:     85,
		Reasoning: "crisp likeness",
		Accepted:  true,
		Attempts: []storybook.RetryAttempt{
			{Attempt: 1, Score: 85, Reasoning: "crisp likeness", Accepted: true},
		},
		PromptUsed: "a fox",
	})
	if err != nil {
		t.Fatalf("marshal cached outcome: %v", err)
	}
	if err := ctrl.Cache.Set(context.Background(), CacheKey("a fox", nil, false), stored); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	outcome, err := ctrl.Generate(context.Background(), Request{
		JobID: "job-1", Page: 3, Prompt: "a fox", Kind: providers.EvalPage,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !outcome.FromCache || !bytes.Equal(outcome.Image, []byte("cached")) {
		t.Errorf("outcome = fromCache %v image %q, want cached image", outcome.FromCache, outcome.Image)
	}
	if outcome.Score != 85 || outcome.Reasoning != "crisp likeness" || !outcome.Accepted {
		t.Errorf("hit lost verdict: score %d reasoning %q accepted %v", outcome.Score, outcome.Reasoning, outcome.Accepted)
	}
	if len(outcome.Attempts) != 1 || outcome.Attempts[0].Score != 85 {
		t.Errorf("hit lost attempt history: %+v", outcome.Attempts)
	}
	if images.Calls() != 0 || eval.Calls() != 0 {
		t.Errorf("provider calls = %d/%d, want none on cache hit", images.Calls(), eval.Calls())
	}
}

func TestGenerateCacheRoundTripsVerdict(t *testing.T) {
	images := &providers.MockImageGenerator{}
	eval := &providers.MockEvaluator{
		Verdicts: []providers.Evaluation{
			{Score: 30, Reasoning: "stiff pose"},
			{Score: 75, Reasoning: "much better"},
		},
	}
	ctrl := newController(images, eval)

	req := Request{JobID: "job-1", Page: 2, Prompt: "a fox", Kind: providers.EvalPage}
	first, err := ctrl.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if first.Score != 75 || len(first.Attempts) != 2 {
		t.Fatalf("first run score = %d attempts = %d, want 75 after 2", first.Score, len(first.Attempts))
	}

	second, err := ctrl.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !second.FromCache {
		t.Fatalf("second run FromCache = false, want hit")
	}
	if second.Score != first.Score || second.Reasoning != first.Reasoning {
		t.Errorf("cached verdict = %d %q, want %d %q", second.Score, second.Reasoning, first.Score, first.Reasoning)
	}
	if len(second.Attempts) != len(first.Attempts) || !second.Regenerated {
		t.Errorf("cached history = %d attempts regenerated %v, want %d true", len(second.Attempts), second.Regenerated, len(first.Attempts))
	}
	if images.Calls() != 2 {
		t.Errorf("image calls = %d, want 2 (none for the hit)", images.Calls())
	}
}

func TestGenerateCacheEntryUnreadableRegenerates(t *testing.T) {
	images := &providers.MockImageGenerator{}
	eval := &providers.MockEvaluator{}
	ctrl := newController(images, eval)

	if err := ctrl.Cache.Set(context.Background(), CacheKey("a fox", nil, false), []byte("not json")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	outcome, err := ctrl.Generate(context.Background(), Request{
		JobID: "job-1", Page: 3, Prompt: "a fox", Kind: providers.EvalPage,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if outcome.FromCache {
		t.Error("unreadable entry served as a hit")
	}
	if images.Calls() != 1 {
		t.Errorf("image calls = %d, want 1 regeneration", images.Calls())
	}
}

func TestCacheKeyInputs(t *testing.T) {
	base := CacheKey("a fox", nil, false)
	if CacheKey("a fox", nil, false) != base {
		t.Errorf("identical inputs produced different keys")
	}
	if CacheKey("a fox", nil, true) == base {
		t.Errorf("sequential marker did not change the key")
	}
	refs := []providers.ReferenceImage{{Label: "Luna", Data: []byte("photo")}}
	if CacheKey("a fox", refs, false) == base {
		t.Errorf("reference images did not change the key")
	}
}

func TestGenerateFatalErrorSurfaces(t *testing.T) {
	images := &providers.MockImageGenerator{
		Errs: map[int]error{
			1: providers.NewError(providers.KindFatal, "mock-image", "invalid API key", nil),
		},
	}
	ctrl := newController(images, &providers.MockEvaluator{})

	_, err := ctrl.Generate(context.Background(), Request{
		JobID: "job-1", Page: 1, Prompt: "a fox", Kind: providers.EvalPage,
	})
	if !providers.IsFatal(err) {
		t.Fatalf("Generate() error = %v, want fatal", err)
	}
	if images.Calls() != 1 {
		t.Errorf("generate calls = %d, want 1 (fatal errors must not retry)", images.Calls())
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	if err := cache.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "k"); !ok {
		t.Fatalf("Get() miss immediately after Set")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "k"); ok {
		t.Errorf("Get() hit after TTL expiry, want miss")
	}
}

func TestCropForContinuity(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}

	cropped, err := CropForContinuity(buf.Bytes())
	if err != nil {
		t.Fatalf("CropForContinuity() error = %v", err)
	}

	out, _, err := image.Decode(bytes.NewReader(cropped))
	if err != nil {
		t.Fatalf("decode cropped: %v", err)
	}
	if got := out.Bounds().Dy(); got != 70 {
		t.Errorf("cropped height = %d, want 70 (15%% off top and bottom)", got)
	}
	if got := out.Bounds().Dx(); got != 100 {
		t.Errorf("cropped width = %d, want unchanged 100", got)
	}
}
