package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/slopescout/brain/internal/category"
	"github.com/slopescout/brain/internal/scoring"
	"github.com/slopescout/brain/internal/settings"
	"github.com/slopescout/brain/internal/similarity"
)

func demoConfig() *settings.Config {
	cfg := settings.Default()
	cfg.Keywords = map[string]float64{"organizer": 0.9}
	return cfg
}

func newEngine(t *testing.T, cfg *settings.Config, opts Options) *Engine {
	t.Helper()
	e, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func process(t *testing.T, e *Engine, posts ...Post) []ResultEntry {
	t.Helper()
	res, err := e.Process(context.Background(), Request{Posts: posts})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res) != len(posts) {
		t.Fatalf("got %d results for %d posts", len(res), len(posts))
	}
	return res
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatalf("expected error for nil config")
	}
	cfg := settings.Default()
	cfg.LinkToken = ""
	if _, err := New(cfg, Options{}); err == nil {
		t.Fatalf("expected validation error")
	}

	cfg = settings.Default()
	cfg.Thresholds = []category.Threshold{{Category: "Product", Min: 0.5}}
	if _, err := New(cfg, Options{}); err == nil {
		t.Fatalf("non-canonical threshold category must be rejected")
	}
}

func TestEmptyBatch(t *testing.T) {
	e := newEngine(t, settings.Default(), Options{})
	res, err := e.Process(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res == nil || len(res) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", res)
	}
	b, _ := json.Marshal(res)
	if string(b) != "[]" {
		t.Fatalf("empty batch should encode as [], got %s", b)
	}
}

func TestEmptyTextIsSkip(t *testing.T) {
	e := newEngine(t, settings.Default(), Options{})
	res := process(t, e, Post{ID: "t3_empty", Title: "   "})
	got := res[0]
	if got.Score != 0 || got.Category != category.Skip || got.Rationale != "no signal" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Draft != nil || got.RiskNotes != nil {
		t.Fatalf("skip must carry no draft or note: %+v", got)
	}
}

func TestDemoPostIsProduct(t *testing.T) {
	cfg := demoConfig()
	e := newEngine(t, cfg, Options{})
	res := process(t, e, Post{ID: "t3_demo", Title: "Need a better organizer"})
	got := res[0]

	if got.ID != "t3_demo" || got.Category != category.Product {
		t.Fatalf("expected product for t3_demo, got %+v", got)
	}
	if got.Draft == nil || !got.Draft.IncludeLink || got.Draft.LinkToken == nil || *got.Draft.LinkToken == "" {
		t.Fatalf("product draft must include a link token: %+v", got.Draft)
	}
	lower := strings.ToLower(got.Draft.Text)
	for _, phrase := range cfg.Denylist {
		if strings.Contains(lower, phrase) {
			t.Fatalf("draft contains disclosure phrase %q: %q", phrase, got.Draft.Text)
		}
	}
	if got.Rationale != "organizer" {
		t.Fatalf("rationale = %q", got.Rationale)
	}

	b, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "score", "rationale", "category", "draft", "risk_notes"} {
		if _, ok := wire[key]; !ok {
			t.Fatalf("wire entry missing %q: %s", key, b)
		}
	}
	if _, ok := wire["signals"]; ok {
		t.Fatalf("signals must only appear in debug mode: %s", b)
	}
}

func TestLinkBannedSubredditKeepsLink(t *testing.T) {
	cfg := demoConfig()
	banned := false
	cfg.Subreddits = map[string]settings.SubredditRule{
		"homeorganizing": {LinksAllowed: &banned},
	}
	e := newEngine(t, cfg, Options{})
	res := process(t, e, Post{ID: "t3_demo", Title: "Need a better organizer", Subreddit: "r/HomeOrganizing"})
	got := res[0]
	if got.RiskNotes == nil || !strings.Contains(*got.RiskNotes, "bans links") {
		t.Fatalf("expected link-ban risk note, got %v", got.RiskNotes)
	}
	if got.Draft == nil || !got.Draft.IncludeLink || got.Draft.LinkToken == nil {
		t.Fatalf("annotator must not strip the link: %+v", got.Draft)
	}
}

func TestOrderPreserved(t *testing.T) {
	e := newEngine(t, settings.Default(), Options{Workers: 8})
	rng := rand.New(rand.NewSource(3))
	words := []string{"ski rack", "roof rack", "tailgate", "any tips", "", "weather", "skis falling", "magnet"}

	posts := make([]Post, 200)
	for i := range posts {
		posts[i] = Post{
			ID:    fmt.Sprintf("t3_%03d", i),
			Title: words[rng.Intn(len(words))] + " " + words[rng.Intn(len(words))],
			Body:  words[rng.Intn(len(words))],
		}
	}
	res := process(t, e, posts...)
	for i := range posts {
		if res[i].ID != posts[i].ID {
			t.Fatalf("result %d has id %s, want %s", i, res[i].ID, posts[i].ID)
		}
	}

	again := process(t, e, posts...)
	for i := range res {
		if res[i].Score != again[i].Score || res[i].Category != again[i].Category {
			t.Fatalf("non-deterministic result for %s", posts[i].ID)
		}
	}
}

func TestEntryInvariants(t *testing.T) {
	cfg := settings.Default()
	e := newEngine(t, cfg, Options{})
	posts := []Post{
		{ID: "a", Title: "ski rack roof rack skis falling"},
		{ID: "b", Title: "any tips for winter prep"},
		{ID: "c", Title: "weather"},
		{ID: "d", Title: "roof rack dings", Subreddit: "skiing"},
	}
	for _, got := range process(t, e, posts...) {
		if got.Category != category.Skip {
			lo, hi, ok := category.Band(got.Category, cfg.Thresholds)
			if !ok || got.Score < lo || got.Score >= hi {
				t.Fatalf("%s: score %v outside %s band [%v,%v)", got.ID, got.Score, got.Category, lo, hi)
			}
		}
		switch got.Category {
		case category.Skip:
			if got.Draft != nil {
				t.Fatalf("%s: skip with draft", got.ID)
			}
		case category.Goodwill:
			if got.Draft == nil || got.Draft.IncludeLink || got.Draft.LinkToken != nil {
				t.Fatalf("%s: goodwill must not link: %+v", got.ID, got.Draft)
			}
		case category.Product:
			if got.Draft == nil || !got.Draft.IncludeLink || got.Draft.LinkToken == nil || *got.Draft.LinkToken == "" {
				t.Fatalf("%s: product must link: %+v", got.ID, got.Draft)
			}
		}
	}
}

func TestMissingIDIsIsolated(t *testing.T) {
	e := newEngine(t, demoConfig(), Options{})
	res := process(t, e,
		Post{ID: "t3_ok1", Title: "organizer"},
		Post{Title: "organizer without id"},
		Post{ID: "t3_ok2", Title: "organizer"},
	)
	if res[1].Category != category.Skip || !strings.HasPrefix(res[1].Rationale, RationaleInvalidInput) {
		t.Fatalf("missing id should be a placeholder skip, got %+v", res[1])
	}
	if res[0].Category != category.Product || res[2].Category != category.Product {
		t.Fatalf("neighbors must be unaffected: %+v / %+v", res[0], res[2])
	}
}

func TestInputError(t *testing.T) {
	err := validatePost(4, Post{})
	if !errors.Is(err, ErrInput) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
	var ie *InputError
	if !errors.As(err, &ie) || ie.Index != 4 {
		t.Fatalf("expected *InputError at index 4, got %#v", err)
	}
}

func TestDisclosureDemotesToSkip(t *testing.T) {
	e := newEngine(t, settings.Default(), Options{})
	res := process(t, e, Post{ID: "t3_disc", Title: "I work for a shop, roof rack advice"})
	got := res[0]
	if got.Category != category.Skip || got.Draft != nil {
		t.Fatalf("expected demotion to skip, got %+v", got)
	}
	if !strings.Contains(got.Rationale, RationalePolicyDemotion) {
		t.Fatalf("demotion must be recorded in rationale: %q", got.Rationale)
	}
	if got.RiskNotes != nil {
		t.Fatalf("demoted entry must carry no note")
	}
}

func TestPanicIsIsolated(t *testing.T) {
	e := newEngine(t, settings.Default(), Options{})
	e.heuristic = nil
	res := process(t, e, Post{ID: "t3_boom", Title: "ski rack"})
	if res[0].Category != category.Skip || res[0].Rationale != RationaleInternalError {
		t.Fatalf("expected internal-error skip, got %+v", res[0])
	}
}

func TestCancelledContext(t *testing.T) {
	e := newEngine(t, settings.Default(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Process(ctx, Request{Posts: []Post{{ID: "a", Title: "ski rack"}}})
	if !errors.Is(err, context.Canceled) || res != nil {
		t.Fatalf("expected context.Canceled and no results, got %v / %v", res, err)
	}
}

func TestDebugSignals(t *testing.T) {
	e := newEngine(t, demoConfig(), Options{})
	res, err := e.Process(context.Background(), Request{Posts: []Post{{ID: "a", Title: "organizer"}}, Debug: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res[0].Signals) != 1 || res[0].Signals[0].Name != "organizer" {
		t.Fatalf("expected organizer signal, got %+v", res[0].Signals)
	}
}

// axisBackend embeds "organizer" text on one axis and everything else on
// the other.
type axisBackend struct {
	delay time.Duration
}

func (axisBackend) Name() string    { return "axis-test" }
func (axisBackend) Available() bool { return true }

func (b axisBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if strings.Contains(strings.ToLower(text), "organizer") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func similarityConfig() *settings.Config {
	cfg := settings.Default()
	cfg.Keywords = map[string]float64{"organizer": 0.5}
	cfg.Similarity.Exemplars = map[category.Category][]settings.Exemplar{
		category.Product: {{Vector: []float32{1, 0}}},
	}
	return cfg
}

func TestSimilarityBlend(t *testing.T) {
	cfg := similarityConfig()
	sim := similarity.NewScorer(context.Background(), axisBackend{}, cfg.Similarity.Exemplars, time.Second)
	e := newEngine(t, cfg, Options{Similarity: sim})
	if e.SimilarityBackend() != "axis-test" {
		t.Fatalf("backend = %q", e.SimilarityBackend())
	}

	got := process(t, e, Post{ID: "a", Title: "organizer"})[0]
	if math.Abs(got.Score-0.65) > 1e-9 {
		t.Fatalf("blended score = %v, want 0.65", got.Score)
	}
	if !strings.Contains(got.Rationale, "similar to product") {
		t.Fatalf("rationale should mention similarity: %q", got.Rationale)
	}
}

// vectorBackend returns a fixed embedding per text.
type vectorBackend map[string][]float32

func (vectorBackend) Name() string    { return "vector-test" }
func (vectorBackend) Available() bool { return true }

func (b vectorBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := b[text]; ok {
		return v, nil
	}
	return nil, errors.New("no vector for " + text)
}

func TestSimilarityBlendsUnrelatedPosts(t *testing.T) {
	cfg := similarityConfig()
	backend := vectorBackend{
		"organizer bin":  {0, 1},
		"organizer tray": {0.02, 1},
	}
	sim := similarity.NewScorer(context.Background(), backend, cfg.Similarity.Exemplars, time.Second)
	e := newEngine(t, cfg, Options{Similarity: sim})

	got := process(t, e, Post{ID: "orthogonal", Title: "organizer bin"}, Post{ID: "faint", Title: "organizer tray"})
	if math.Abs(got[0].Score-0.35) > 1e-9 {
		t.Fatalf("orthogonal post score = %v, want 0.7*0.5", got[0].Score)
	}
	if got[0].Category != category.Goodwill {
		t.Fatalf("orthogonal post category = %s", got[0].Category)
	}
	if got[0].Score > got[1].Score {
		t.Fatalf("unrelated post scored above a faint match: %v > %v", got[0].Score, got[1].Score)
	}
	if got[1].Category != category.Goodwill {
		t.Fatalf("faint match category = %s", got[1].Category)
	}
}

func TestSimilaritySkippedForEmptyText(t *testing.T) {
	cfg := similarityConfig()
	sim := similarity.NewScorer(context.Background(), vectorBackend{}, cfg.Similarity.Exemplars, time.Second)
	e := newEngine(t, cfg, Options{Similarity: sim})

	got := process(t, e, Post{ID: "empty", Title: "  "})[0]
	if got.Score != 0 || got.Category != category.Skip || got.Rationale != scoring.NoSignal {
		t.Fatalf("empty post should keep the heuristic result, got %+v", got)
	}
}

func TestSimilarityTimeoutFallsBack(t *testing.T) {
	cfg := similarityConfig()
	sim := similarity.NewScorer(context.Background(), axisBackend{delay: 200 * time.Millisecond}, cfg.Similarity.Exemplars, 10*time.Millisecond)
	e := newEngine(t, cfg, Options{Similarity: sim})

	got := process(t, e, Post{ID: "a", Title: "organizer"}, Post{ID: "b", Title: "organizer"})
	for _, r := range got {
		if r.Score != 0.5 || r.Category != category.Product || r.Rationale != "organizer" {
			t.Fatalf("expected heuristic-only fallback, got %+v", r)
		}
	}
}

func TestSimilarityDisabledByDefault(t *testing.T) {
	e := newEngine(t, settings.Default(), Options{})
	if e.SimilarityBackend() != "none" {
		t.Fatalf("backend = %q", e.SimilarityBackend())
	}
}

func TestPostUnmarshalSelftextAlias(t *testing.T) {
	var p Post
	if err := json.Unmarshal([]byte(`{"id":"t3_demo","title":"Ski rack worry","selftext":"bungee slipped","body":null}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Body != "bungee slipped" {
		t.Fatalf("selftext alias not applied: %+v", p)
	}
	if err := json.Unmarshal([]byte(`{"id":"x","body":"b","selftext":"s"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Body != "b" {
		t.Fatalf("body wins over selftext: %+v", p)
	}
}
