// Package engine runs the per-post pipeline (score, categorize, draft,
// annotate) over a batch of posts. Posts are processed independently and in
// parallel; results come back in input order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slopescout/brain/internal/category"
	"github.com/slopescout/brain/internal/draft"
	"github.com/slopescout/brain/internal/redact"
	"github.com/slopescout/brain/internal/risk"
	"github.com/slopescout/brain/internal/scoring"
	"github.com/slopescout/brain/internal/settings"
	"github.com/slopescout/brain/internal/similarity"
	"github.com/slopescout/brain/internal/telemetry"
	"github.com/slopescout/brain/internal/textnorm"
)

// Rationale suffixes recorded when an entry is forced to skip.
const (
	RationalePolicyDemotion = "policy: disclosure phrase"
	RationaleDraftFailed    = "draft unavailable"
	RationaleInvalidInput   = "invalid input"
	RationaleInternalError  = "internal error"
)

// Options configures an Engine. Zero values are usable.
type Options struct {
	// Workers bounds concurrent posts per batch; 0 means GOMAXPROCS.
	Workers    int
	Similarity *similarity.Scorer
	Telemetry  *telemetry.Provider
}

// Engine is safe for concurrent use. It never mutates the Config it was
// built from.
type Engine struct {
	cfg        *settings.Config
	heuristic  *scoring.Heuristic
	similarity *similarity.Scorer
	generator  *draft.Generator
	annotator  *risk.Annotator
	tel        *telemetry.Provider
	workers    int
}

// New builds an engine over an already validated Config.
func New(cfg *settings.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: nil config")
	}
	if err := settings.Validate(cfg); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}
	return &Engine{
		cfg:        cfg,
		heuristic:  scoring.NewHeuristic(cfg),
		similarity: opts.Similarity,
		generator:  draft.NewGenerator(cfg),
		annotator:  risk.NewAnnotator(cfg),
		tel:        tel,
		workers:    workers,
	}, nil
}

// Config returns the settings the engine was built with.
func (e *Engine) Config() *settings.Config { return e.cfg }

// SimilarityBackend names the similarity backend, "none" when disabled.
func (e *Engine) SimilarityBackend() string {
	if !e.similarity.Enabled() {
		return similarity.Unavailable().Name()
	}
	return e.similarity.Backend()
}

// batch carries per-request state shared by the posts of one batch.
type batch struct {
	debug        bool
	degradedOnce sync.Once
}

// Process scores and drafts every post. The result has one entry per post
// in input order. A post that fails yields a skip entry; only cancellation
// of ctx fails the batch, in which case partial results are discarded.
func (e *Engine) Process(ctx context.Context, req Request) ([]ResultEntry, error) {
	results := make([]ResultEntry, len(req.Posts))
	if len(req.Posts) == 0 {
		return results, nil
	}

	start := time.Now()
	ctx, span := e.tel.StartBatch(ctx, len(req.Posts), e.SimilarityBackend())
	defer span.End()

	b := &batch{debug: req.Debug}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, post := range req.Posts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.processOne(gctx, b, i, post)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.tel.RecordBatch(ctx, len(req.Posts), float64(time.Since(start).Microseconds())/1000)
	return results, nil
}

// processOne runs the pipeline for a single post. It never panics and
// never returns an error; failures become skip entries.
func (e *Engine) processOne(ctx context.Context, b *batch, i int, post Post) (entry ResultEntry) {
	defer func() {
		if r := recover(); r != nil {
			redact.Logf("engine: post %d (%s) panicked: %v", i, post.ID, r)
			entry = skipEntry(post.ID, RationaleInternalError)
			e.tel.RecordPost(ctx, string(category.Skip), false)
		}
	}()

	if err := validatePost(i, post); err != nil {
		log.Printf("engine: %v", err)
		e.tel.RecordInputError(ctx)
		e.tel.RecordPost(ctx, string(category.Skip), false)
		var ie *InputError
		if errors.As(err, &ie) {
			return skipEntry(post.ID, RationaleInvalidInput+": "+ie.Reason)
		}
		return skipEntry(post.ID, RationaleInvalidInput)
	}

	scored := e.score(ctx, b, post)
	score := scoring.Round2(scored.Score)
	cat := category.Categorize(score, e.cfg.Thresholds)
	rationale := scored.Rationale

	d, err := e.generator.Generate(cat, draft.Post{Title: post.Title, Subreddit: post.Subreddit})
	demoted := false
	if err != nil {
		var pv *draft.PolicyViolation
		if errors.As(err, &pv) {
			redact.Logf("engine: post %s demoted %s -> skip: disclosure phrase %q", post.ID, cat, pv.Phrase)
			rationale = appendRationale(rationale, RationalePolicyDemotion)
			demoted = true
		} else {
			redact.Logf("engine: post %s draft failed: %v", post.ID, err)
			rationale = appendRationale(rationale, RationaleDraftFailed)
		}
		cat, d = category.Skip, nil
	}

	entry = ResultEntry{
		ID:        post.ID,
		Score:     score,
		Rationale: rationale,
		Category:  cat,
		Draft:     d,
		RiskNotes: e.annotator.Annotate(post.Subreddit, cat, d).String(),
	}
	if b.debug {
		entry.Signals = scored.Signals
	}
	e.tel.RecordPost(ctx, string(cat), demoted)
	return entry
}

// score returns the heuristic result, blended with similarity whenever the
// backend is enabled, the post has text and the backend answers in time.
func (e *Engine) score(ctx context.Context, b *batch, post Post) scoring.Result {
	res := e.heuristic.Score(post.Title, post.Body)
	if !e.similarity.Enabled() {
		return res
	}

	text := textnorm.Join(post.Title, post.Body)
	if strings.TrimSpace(text) == "" {
		return res
	}
	sims, err := e.similarity.Score(ctx, text)
	if err != nil {
		e.tel.RecordSimilarityFallback(ctx, e.similarity.Backend())
		b.degradedOnce.Do(func() {
			log.Printf("engine: similarity backend %s degraded, using heuristic scores: %v", e.similarity.Backend(), err)
		})
		return res
	}
	// A post unlike every exemplar still blends with 0.
	res.Score = similarity.Blend(res.Score, sims.Best, e.cfg.Similarity.BlendWeight)
	if sims.BestCategory == "" {
		return res
	}
	res.Signals = append(res.Signals, scoring.Signal{
		Name:   "similarity:" + string(sims.BestCategory),
		Weight: sims.Best,
		Source: "similarity",
	})
	res.Rationale = appendRationale(res.Rationale, fmt.Sprintf("similar to %s (%.2f)", sims.BestCategory, sims.Best))
	return res
}

func appendRationale(base, extra string) string {
	if base == "" || base == scoring.NoSignal {
		return extra
	}
	return base + "; " + extra
}
