// Package app assembles the engine and its optional similarity backend from
// service configuration. Both binaries start here.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/slopescout/brain/internal/config"
	"github.com/slopescout/brain/internal/embedding"
	"github.com/slopescout/brain/internal/engine"
	"github.com/slopescout/brain/internal/settings"
	"github.com/slopescout/brain/internal/similarity"
	"github.com/slopescout/brain/internal/telemetry"
)

// Version is overridden at build time with -ldflags "-X ...app.Version=...".
var Version = "0.1.0"

// Engine is a built engine plus the resources it holds.
type Engine struct {
	*engine.Engine
	closeFn func()
}

// Close releases the embedding session, if any.
func (e *Engine) Close() {
	if e != nil && e.closeFn != nil {
		e.closeFn()
	}
}

// Build loads the settings files named by cfg, loads the embedding model
// when similarity is enabled, and returns a ready engine. A model that
// fails to load is logged and the engine runs heuristic-only.
func Build(ctx context.Context, cfg *config.Config, tel *telemetry.Provider) (*Engine, error) {
	sc, err := settings.Load(cfg.Settings.Paths())
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	backend := similarity.Unavailable()
	closeFn := func() {}
	if cfg.Similarity.Enabled {
		emb, err := embedding.Load(embedding.Options{
			Dir:          cfg.Similarity.ModelDir,
			SeqLen:       cfg.Similarity.SeqLen,
			Dims:         cfg.Similarity.Dims,
			TokenTypeIDs: cfg.Similarity.TokenTypeIDs,
		})
		if err != nil {
			log.Printf("similarity: model unavailable, falling back to heuristic scoring: %v", err)
		} else {
			backend = emb
			closeFn = emb.Close
		}
	}

	scorer := similarity.NewScorer(ctx, backend, sc.Similarity.Exemplars, cfg.Similarity.Timeout)
	eng, err := engine.New(sc, engine.Options{
		Workers:    cfg.Engine.Workers,
		Similarity: scorer,
		Telemetry:  tel,
	})
	if err != nil {
		closeFn()
		return nil, err
	}

	log.Printf("engine ready: %d keywords, %d subreddit rules, similarity=%s", len(sc.Keywords), len(sc.Subreddits), eng.SimilarityBackend())
	return &Engine{Engine: eng, closeFn: closeFn}, nil
}
