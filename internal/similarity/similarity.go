// Package similarity computes a secondary relevance score from the semantic
// closeness of a post to labeled exemplar phrases. The embedding model sits
// behind the Backend capability interface; when no model is available the
// scorer reports ErrDegraded and callers fall back to heuristic-only scores.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/slopescout/brain/internal/category"
	"github.com/slopescout/brain/internal/settings"
)

// DefaultTimeout bounds a single embedding call.
const DefaultTimeout = 750 * time.Millisecond

var (
	// ErrUnavailable is returned by backends with no model behind them.
	ErrUnavailable = errors.New("embedding backend unavailable")
	// ErrDegraded marks any similarity failure that callers should absorb
	// by falling back to heuristic scoring.
	ErrDegraded = errors.New("similarity degraded")
)

// Backend produces embedding vectors for text.
type Backend interface {
	Name() string
	Available() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

type unavailableBackend struct{}

// Unavailable returns the no-op backend used when no model is configured.
func Unavailable() Backend {
	return unavailableBackend{}
}

func (unavailableBackend) Name() string    { return "none" }
func (unavailableBackend) Available() bool { return false }

func (unavailableBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrUnavailable
}

// Scores holds per-category similarity clamped to [0,1].
type Scores struct {
	PerCategory  map[category.Category]float64
	Best         float64
	BestCategory category.Category
}

type exemplarVector struct {
	category category.Category
	text     string
	vector   []float32
}

// Scorer compares post embeddings against a precomputed exemplar index.
// It is safe for concurrent use when the backend is.
type Scorer struct {
	backend Backend
	timeout time.Duration
	index   []exemplarVector
	dims    int
}

// NewScorer builds the exemplar index. Exemplars with a configured vector
// are used as-is; the rest are embedded once here. Exemplars that cannot be
// embedded are dropped and logged. With an unavailable backend or an empty
// index the scorer is disabled.
func NewScorer(ctx context.Context, backend Backend, exemplars map[category.Category][]settings.Exemplar, timeout time.Duration) *Scorer {
	if backend == nil {
		backend = Unavailable()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Scorer{backend: backend, timeout: timeout}
	if !backend.Available() {
		return s
	}

	for _, cat := range category.All {
		for _, ex := range exemplars[cat] {
			vec := ex.Vector
			if len(vec) == 0 {
				var err error
				vec, err = s.embed(ctx, ex.Text)
				if err != nil {
					log.Printf("similarity: dropping %s exemplar %q: %v", cat, ex.Text, err)
					continue
				}
			}
			if s.dims == 0 {
				s.dims = len(vec)
			}
			if len(vec) != s.dims || len(vec) == 0 {
				log.Printf("similarity: dropping %s exemplar %q: %d dims, want %d", cat, ex.Text, len(vec), s.dims)
				continue
			}
			s.index = append(s.index, exemplarVector{category: cat, text: ex.Text, vector: vec})
		}
	}
	if len(s.index) == 0 {
		log.Printf("similarity: backend %s available but no exemplars indexed; similarity disabled", backend.Name())
	}
	return s
}

// Enabled reports whether Score can return real similarity.
func (s *Scorer) Enabled() bool {
	return s != nil && s.backend.Available() && len(s.index) > 0
}

// Backend returns the name of the backing model.
func (s *Scorer) Backend() string {
	if s == nil {
		return Unavailable().Name()
	}
	return s.backend.Name()
}

// Score embeds text and returns its similarity to each exemplar category.
// Every failure is reported wrapped in ErrDegraded.
func (s *Scorer) Score(ctx context.Context, text string) (Scores, error) {
	if !s.Enabled() {
		return Scores{}, fmt.Errorf("%w: %v", ErrDegraded, ErrUnavailable)
	}
	if strings.TrimSpace(text) == "" {
		return Scores{PerCategory: map[category.Category]float64{}}, nil
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return Scores{}, fmt.Errorf("%w: %v", ErrDegraded, err)
	}
	if len(vec) != s.dims {
		return Scores{}, fmt.Errorf("%w: embedding has %d dims, index has %d", ErrDegraded, len(vec), s.dims)
	}

	out := Scores{PerCategory: make(map[category.Category]float64, 2)}
	for _, ex := range s.index {
		sim := clamp01(Cosine(vec, ex.vector))
		if sim > out.PerCategory[ex.category] {
			out.PerCategory[ex.category] = sim
		}
		if sim > out.Best {
			out.Best = sim
			out.BestCategory = ex.category
		}
	}
	return out, nil
}

type embedResult struct {
	vec []float32
	err error
}

// embed runs one backend call bounded by the scorer timeout. A backend that
// ignores ctx is abandoned at the deadline; its result is discarded.
func (s *Scorer) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan embedResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- embedResult{err: fmt.Errorf("backend %s panicked: %v", s.backend.Name(), r)}
			}
		}()
		vec, err := s.backend.Embed(ctx, text)
		done <- embedResult{vec: vec, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.vec, res.err
	}
}

// Cosine returns the cosine similarity of a and b in [-1,1], or 0 when the
// vectors differ in length or either has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Blend combines the heuristic score with the best similarity. weight is
// the similarity share; the result stays within [0,1].
func Blend(heuristic, sim, weight float64) float64 {
	weight = clamp01(weight)
	return clamp01((1-weight)*heuristic + weight*clamp01(sim))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 1
	default:
		return v
	}
}
