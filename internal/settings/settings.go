// Package settings holds the engine configuration: thresholds, keyword
// weights, subreddit rules, persona, draft templates and the disclosure
// denylist. A Config is built once by the loader and treated as read-only
// by every engine component.
package settings

import (
	"sort"
	"strings"

	"github.com/slopescout/brain/internal/category"
)

// MatchMode controls how a keyword is found in post text.
type MatchMode string

const (
	// MatchSubstring matches the keyword anywhere in the folded text.
	MatchSubstring MatchMode = "substring"
	// MatchToken matches the keyword only on word boundaries.
	MatchToken MatchMode = "token"
)

// Config is the structured engine configuration.
type Config struct {
	Thresholds []category.Threshold

	Keywords     map[string]float64
	KeywordMatch MatchMode
	KeywordModes map[string]MatchMode

	// Normalization is the saturation constant: score = min(1, sum/Normalization).
	Normalization float64
	// RationaleTop caps how many matched signals are named in the rationale.
	RationaleTop int

	// Subreddits is keyed by NormalizeSubreddit(name).
	Subreddits map[string]SubredditRule
	Limits     Limits

	Persona   Persona
	Templates map[category.Category]string
	LinkToken string
	Denylist  []string

	Similarity SimilarityConfig
}

// SubredditRule describes posting restrictions for one subreddit.
type SubredditRule struct {
	// LinksAllowed is nil when the rule set says nothing about links.
	LinksAllowed      *bool  `yaml:"links_allowed" json:"links_allowed"`
	MaxCommentsPerDay int    `yaml:"max_comments_per_day" json:"max_comments_per_day"`
	LinkCooldownHours int    `yaml:"link_cooldown_hours" json:"link_cooldown_hours"`
	Notes             string `yaml:"notes" json:"notes"`
}

// LinksBanned reports whether the rule explicitly forbids links.
func (r SubredditRule) LinksBanned() bool {
	return r.LinksAllowed != nil && !*r.LinksAllowed
}

// Limits are the global posting defaults used when a subreddit rule leaves
// them unset.
type Limits struct {
	MaxCommentsPerSubPerDay int `yaml:"max_comments_per_sub_per_day" json:"max_comments_per_sub_per_day"`
	LinkCooldownHours       int `yaml:"link_cooldown_hours" json:"link_cooldown_hours"`
}

// Persona is the tone descriptor substituted into templates.
type Persona struct {
	Name    string `yaml:"name" json:"name"`
	Tone    string `yaml:"tone" json:"tone"`
	SignOff string `yaml:"sign_off" json:"sign_off"`
}

// SimilarityConfig configures the optional embedding blend.
type SimilarityConfig struct {
	// BlendWeight is the share of the final score taken from similarity.
	BlendWeight float64
	Exemplars   map[category.Category][]Exemplar
}

// Exemplar is a labeled reference phrase. Vector may be precomputed; when
// empty the similarity index embeds Text once at build time.
type Exemplar struct {
	Text   string    `yaml:"text" json:"text"`
	Vector []float32 `yaml:"vector" json:"vector"`
}

// Rule looks up the rule for a subreddit name in any common spelling.
func (c *Config) Rule(subreddit string) (SubredditRule, bool) {
	if c == nil {
		return SubredditRule{}, false
	}
	key := NormalizeSubreddit(subreddit)
	if key == "" {
		return SubredditRule{}, false
	}
	r, ok := c.Subreddits[key]
	return r, ok
}

// ModeFor returns the match mode of a keyword.
func (c *Config) ModeFor(keyword string) MatchMode {
	if m, ok := c.KeywordModes[keyword]; ok && m != "" {
		return m
	}
	if c.KeywordMatch == "" {
		return MatchSubstring
	}
	return c.KeywordMatch
}

// Template returns the template configured for a category.
func (c *Config) Template(cat category.Category) (string, bool) {
	t, ok := c.Templates[cat]
	return t, ok && strings.TrimSpace(t) != ""
}

// NormalizeSubreddit lowercases a subreddit name and strips "r/" prefixes.
func NormalizeSubreddit(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "/")
	n = strings.TrimPrefix(n, "r/")
	return strings.Trim(n, "/ ")
}

// SubredditNames returns the configured subreddit keys in sorted order.
func (c *Config) SubredditNames() []string {
	out := make([]string, 0, len(c.Subreddits))
	for k := range c.Subreddits {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
