// Package scoring computes the keyword-based heuristic relevance score of a
// post and the human-readable rationale behind it.
package scoring

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/slopescout/brain/internal/settings"
	"github.com/slopescout/brain/internal/textnorm"
)

// NoSignal is the rationale of a post that matched nothing.
const NoSignal = "no signal"

// Signal is one contribution to a score.
type Signal struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Source string  `json:"source"`
}

// Result is a bounded score in [0,1] with its justification.
type Result struct {
	Score     float64  `json:"score"`
	Rationale string   `json:"rationale"`
	Signals   []Signal `json:"signals,omitempty"`
}

type matcher struct {
	keyword string
	weight  float64
	tokenRe *regexp.Regexp
}

// Heuristic scores text against the configured keyword weights. It is
// safe for concurrent use.
type Heuristic struct {
	matchers     []matcher
	norm         float64
	rationaleTop int
}

// NewHeuristic compiles the keyword table of cfg.
func NewHeuristic(cfg *settings.Config) *Heuristic {
	h := &Heuristic{
		norm:         cfg.Normalization,
		rationaleTop: cfg.RationaleTop,
	}
	if !(h.norm > 0) {
		h.norm = settings.DefaultNormalization
	}
	if h.rationaleTop < 1 {
		h.rationaleTop = settings.DefaultRationaleTop
	}

	keywords := make([]string, 0, len(cfg.Keywords))
	for kw := range cfg.Keywords {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)

	for _, kw := range keywords {
		folded := textnorm.Fold(kw)
		if folded == "" {
			continue
		}
		m := matcher{keyword: folded, weight: cfg.Keywords[kw]}
		if cfg.ModeFor(kw) == settings.MatchToken {
			m.tokenRe = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(folded) + `(?:$|[^\p{L}\p{N}])`)
		}
		h.matchers = append(h.matchers, m)
	}
	return h
}

// Score scores the title and body of a post. Absent fields are empty
// strings; empty text yields 0 and NoSignal.
func (h *Heuristic) Score(title, body string) Result {
	text := textnorm.Fold(textnorm.Join(title, body))
	if text == "" {
		return Result{Score: 0, Rationale: NoSignal}
	}

	var (
		signals []Signal
		raw     float64
	)
	for _, m := range h.matchers {
		if !m.match(text) {
			continue
		}
		raw += m.weight
		signals = append(signals, Signal{Name: m.keyword, Weight: m.weight, Source: "keyword"})
	}

	return Result{
		Score:     Saturate(raw, h.norm),
		Rationale: Rationale(signals, h.rationaleTop),
		Signals:   signals,
	}
}

func (m matcher) match(text string) bool {
	if m.tokenRe != nil {
		return m.tokenRe.MatchString(text)
	}
	return strings.Contains(text, m.keyword)
}

// Saturate maps a raw weight sum into [0,1] as min(1, max(0, raw/norm)).
func Saturate(raw, norm float64) float64 {
	if !(norm > 0) || math.IsNaN(raw) {
		return 0
	}
	s := raw / norm
	switch {
	case s <= 0:
		return 0
	case s >= 1:
		return 1
	default:
		return s
	}
}

// Rationale names up to top positive signals in descending weight order,
// ties broken by name.
func Rationale(signals []Signal, top int) string {
	ranked := make([]Signal, 0, len(signals))
	for _, s := range signals {
		if s.Weight > 0 {
			ranked = append(ranked, s)
		}
	}
	if len(ranked) == 0 {
		return NoSignal
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Weight != ranked[j].Weight {
			return ranked[i].Weight > ranked[j].Weight
		}
		return ranked[i].Name < ranked[j].Name
	})
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}
	names := make([]string, len(ranked))
	for i, s := range ranked {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}

// Round2 rounds a score to two decimals, the precision reported to callers.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
