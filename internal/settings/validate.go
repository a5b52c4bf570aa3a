package settings

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/slopescout/brain/internal/category"
)

// Placeholders that templates may reference.
const (
	PlaceholderTopic     = "{topic}"
	PlaceholderSubreddit = "{subreddit}"
	PlaceholderTone      = "{tone}"
	PlaceholderSignOff   = "{signoff}"
	PlaceholderLink      = "{link}"
)

var (
	placeholderRe     = regexp.MustCompile(`\{[a-z_]+\}`)
	knownPlaceholders = map[string]struct{}{
		PlaceholderTopic:     {},
		PlaceholderSubreddit: {},
		PlaceholderTone:      {},
		PlaceholderSignOff:   {},
		PlaceholderLink:      {},
	}
)

// Validate checks the config for safe, consistent values. The engine assumes
// a validated config and never re-checks these conditions.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("settings config is nil")
	}

	if err := category.Validate(cfg.Thresholds); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	for kw, w := range cfg.Keywords {
		if strings.TrimSpace(kw) == "" {
			return errors.New("keywords: empty keyword")
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("keywords: weight for %q must be finite", kw)
		}
	}
	if err := validateMode("keyword_match", cfg.KeywordMatch); err != nil {
		return err
	}
	for kw, m := range cfg.KeywordModes {
		if _, ok := cfg.Keywords[kw]; !ok {
			return fmt.Errorf("keyword mode set for unknown keyword %q", kw)
		}
		if err := validateMode("mode for "+kw, m); err != nil {
			return err
		}
	}
	if !(cfg.Normalization > 0) || math.IsInf(cfg.Normalization, 0) {
		return fmt.Errorf("normalization must be a positive number, got %v", cfg.Normalization)
	}
	if cfg.RationaleTop < 1 {
		return fmt.Errorf("rationale_top must be at least 1, got %d", cfg.RationaleTop)
	}

	if err := validateLinkToken(cfg.LinkToken); err != nil {
		return err
	}
	if err := validateTemplates(cfg); err != nil {
		return err
	}
	for i, phrase := range cfg.Denylist {
		if strings.TrimSpace(phrase) == "" {
			return fmt.Errorf("denylist entry %d is empty", i)
		}
	}

	for name, r := range cfg.Subreddits {
		if name == "" || name != NormalizeSubreddit(name) {
			return fmt.Errorf("subreddit key %q is not normalized", name)
		}
		if r.MaxCommentsPerDay < 0 || r.LinkCooldownHours < 0 {
			return fmt.Errorf("subreddit %q has negative limits", name)
		}
	}
	if cfg.Limits.MaxCommentsPerSubPerDay < 0 || cfg.Limits.LinkCooldownHours < 0 {
		return errors.New("limits must not be negative")
	}

	return validateSimilarity(cfg.Similarity)
}

func validateMode(field string, m MatchMode) error {
	switch m {
	case "", MatchSubstring, MatchToken:
		return nil
	default:
		return fmt.Errorf("%s must be substring or token, got %q", field, m)
	}
}

func validateLinkToken(token string) error {
	t := strings.TrimSpace(token)
	if t == "" {
		return errors.New("link_token must be set")
	}
	lower := strings.ToLower(t)
	if strings.Contains(lower, "://") || strings.HasPrefix(lower, "www.") {
		return fmt.Errorf("link_token %q looks like a real URL; it must be a placeholder", token)
	}
	return nil
}

func validateTemplates(cfg *Config) error {
	for cat, tpl := range cfg.Templates {
		if cat == category.Skip {
			return errors.New("templates: skip cannot have a template")
		}
		if _, err := category.Parse(string(cat)); err != nil {
			return fmt.Errorf("templates: %w", err)
		}
		for _, ph := range placeholderRe.FindAllString(tpl, -1) {
			if _, ok := knownPlaceholders[ph]; !ok {
				return fmt.Errorf("templates: %s uses unknown placeholder %s", cat, ph)
			}
		}
		if strings.Contains(tpl, cfg.LinkToken) {
			return fmt.Errorf("templates: %s must use %s instead of the literal link token", cat, PlaceholderLink)
		}
	}
	for _, th := range cfg.Thresholds {
		if _, ok := cfg.Template(th.Category); !ok {
			return fmt.Errorf("templates: category %s has a threshold but no template", th.Category)
		}
	}
	if tpl, ok := cfg.Template(category.Product); ok && !strings.Contains(tpl, PlaceholderLink) {
		return fmt.Errorf("templates: product template must contain %s", PlaceholderLink)
	}
	return nil
}

func validateSimilarity(s SimilarityConfig) error {
	if math.IsNaN(s.BlendWeight) || s.BlendWeight < 0 || s.BlendWeight > 1 {
		return fmt.Errorf("similarity.blend_weight must be within [0,1], got %v", s.BlendWeight)
	}
	dim := 0
	for cat, exs := range s.Exemplars {
		if cat == category.Skip {
			return errors.New("similarity: skip cannot have exemplars")
		}
		if _, err := category.Parse(string(cat)); err != nil {
			return fmt.Errorf("similarity: %w", err)
		}
		for i, ex := range exs {
			if strings.TrimSpace(ex.Text) == "" && len(ex.Vector) == 0 {
				return fmt.Errorf("similarity: %s exemplar %d has neither text nor vector", cat, i)
			}
			if len(ex.Vector) == 0 {
				continue
			}
			if dim == 0 {
				dim = len(ex.Vector)
			} else if len(ex.Vector) != dim {
				return fmt.Errorf("similarity: %s exemplar %d has %d dims, want %d", cat, i, len(ex.Vector), dim)
			}
		}
	}
	return nil
}
