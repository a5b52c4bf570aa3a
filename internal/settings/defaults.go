package settings

import "github.com/slopescout/brain/internal/category"

const (
	DefaultLinkToken     = "[[LINK]]"
	DefaultNormalization = 1.0
	DefaultRationaleTop  = 3
	DefaultBlendWeight   = 0.3

	DefaultMaxCommentsPerSubPerDay = 3
	DefaultLinkCooldownHours       = 96
)

// Default returns the built-in configuration used when no settings files are
// present. The returned value is freshly allocated on every call.
func Default() *Config {
	return &Config{
		Thresholds: []category.Threshold{
			{Category: category.Product, Min: 0.5},
			{Category: category.Goodwill, Min: 0.2},
		},
		Keywords:      defaultKeywords(),
		KeywordMatch:  MatchSubstring,
		KeywordModes:  map[string]MatchMode{},
		Normalization: DefaultNormalization,
		RationaleTop:  DefaultRationaleTop,
		Subreddits:    map[string]SubredditRule{},
		Limits: Limits{
			MaxCommentsPerSubPerDay: DefaultMaxCommentsPerSubPerDay,
			LinkCooldownHours:       DefaultLinkCooldownHours,
		},
		Persona: Persona{
			Name: "slopeScout",
			Tone: "friendly, practical",
		},
		Templates: map[category.Category]string{
			category.Goodwill: "If you're dialing {topic}, wiping the rack pads before loading keeps edges happy on the drive back down.",
			category.Product:  "For {topic}: a compact clamp-style holder that leans skis at a steady angle kept ours from chattering on the drive last winter. {link}",
		},
		LinkToken: DefaultLinkToken,
		Denylist:  defaultDenylist(),
		Similarity: SimilarityConfig{
			BlendWeight: DefaultBlendWeight,
			Exemplars:   defaultExemplars(),
		},
	}
}

func defaultKeywords() map[string]float64 {
	return map[string]float64{
		// relevance
		"ski rack":       0.35,
		"roof rack":      0.25,
		"skis falling":   0.3,
		"skis slipping":  0.3,
		"parking lot":    0.15,
		"tailgate":       0.15,
		"dings":          0.2,
		"strap":          0.15,
		"bungee":         0.15,
		"magnet":         0.2,
		"protect edges":  0.25,
		// goodwill
		"first season": 0.1,
		"any tips":     0.1,
		"car setup":    0.1,
		"winter prep":  0.1,
		"newbie":       0.1,
	}
}

func defaultDenylist() []string {
	return []string{
		"i work for",
		"i work at",
		"our company",
		"our product",
		"my company",
		"my product",
		"affiliated with",
		"full disclosure",
		"disclosure:",
		"i'm the founder",
		"i am the founder",
		"sponsored",
		"affiliate link",
		"paid partnership",
		"as an ai",
		"i am a bot",
		"i'm a bot",
	}
}

func defaultExemplars() map[category.Category][]Exemplar {
	return map[category.Category][]Exemplar{
		category.Product: {
			{Text: "my skis keep sliding off the roof rack"},
			{Text: "how do I stop skis falling over in the parking lot"},
			{Text: "looking for a better way to carry skis on my car"},
		},
		category.Goodwill: {
			{Text: "any tips for my first season skiing"},
			{Text: "winter prep checklist for my car"},
		},
	}
}
