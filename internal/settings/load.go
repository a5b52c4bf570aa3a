package settings

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/slopescout/brain/internal/category"
	"github.com/slopescout/brain/internal/textnorm"
)

// Paths names the four persisted settings files. Any of them may be empty or
// missing; the matching piece then keeps its built-in default. JSON files
// are read through the YAML decoder.
type Paths struct {
	Defaults string
	Persona  string
	Subs     string
	Keywords string
}

type defaultsFile struct {
	Thresholds    map[string]float64 `yaml:"thresholds"`
	Normalization *float64           `yaml:"normalization"`
	RationaleTop  *int               `yaml:"rationale_top"`
	LinkToken     string             `yaml:"link_token"`
	Denylist      []string           `yaml:"denylist"`
	Templates     map[string]string  `yaml:"templates"`
	Limits        *Limits            `yaml:"limits"`
	Similarity    *struct {
		BlendWeight *float64              `yaml:"blend_weight"`
		Exemplars   map[string][]Exemplar `yaml:"exemplars"`
	} `yaml:"similarity"`
}

type subsFile struct {
	Subreddits map[string]SubredditRule `yaml:"subreddits"`
}

type keywordsFile struct {
	Match    MatchMode            `yaml:"match"`
	Keywords map[string]float64   `yaml:"keywords"`
	Modes    map[string]MatchMode `yaml:"modes"`
	// Groups merge into Keywords in name order; Keywords entries win.
	Groups map[string]map[string]float64 `yaml:"groups"`
}

// Load builds a Config from the settings files, starting from Default and
// overlaying each file that exists, then validates the result.
func Load(p Paths) (*Config, error) {
	cfg := Default()

	if data, ok, err := readOptional(p.Defaults); err != nil {
		return nil, err
	} else if ok {
		if err := applyDefaultsFile(cfg, data); err != nil {
			return nil, fmt.Errorf("defaults %s: %w", p.Defaults, err)
		}
	}

	if data, ok, err := readOptional(p.Persona); err != nil {
		return nil, err
	} else if ok {
		var persona Persona
		if err := decodeStrict(data, &persona); err != nil {
			return nil, fmt.Errorf("persona %s: %w", p.Persona, err)
		}
		cfg.Persona = persona
	}

	if data, ok, err := readOptional(p.Subs); err != nil {
		return nil, err
	} else if ok {
		subs, err := decodeSubs(data)
		if err != nil {
			return nil, fmt.Errorf("subs %s: %w", p.Subs, err)
		}
		cfg.Subreddits = subs
	}

	if data, ok, err := readOptional(p.Keywords); err != nil {
		return nil, err
	} else if ok {
		if err := applyKeywordsFile(cfg, data); err != nil {
			return nil, fmt.Errorf("keywords %s: %w", p.Keywords, err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readOptional returns ok=false for an empty path or a missing file.
func readOptional(path string) ([]byte, bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("settings: %s not found; using built-in defaults for it", path)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read settings %s: %w", path, err)
	}
	return data, true, nil
}

func decodeStrict(data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

func applyDefaultsFile(cfg *Config, data []byte) error {
	var f defaultsFile
	if err := decodeStrict(data, &f); err != nil {
		return err
	}

	if f.Thresholds != nil {
		ths := make([]category.Threshold, 0, len(f.Thresholds))
		for name, lo := range f.Thresholds {
			cat, err := category.Parse(name)
			if err != nil {
				return fmt.Errorf("thresholds: %w", err)
			}
			ths = append(ths, category.Threshold{Category: cat, Min: lo})
		}
		cfg.Thresholds = category.Sorted(ths)
	}
	if f.Normalization != nil {
		cfg.Normalization = *f.Normalization
	}
	if f.RationaleTop != nil {
		cfg.RationaleTop = *f.RationaleTop
	}
	if strings.TrimSpace(f.LinkToken) != "" {
		cfg.LinkToken = strings.TrimSpace(f.LinkToken)
	}
	if f.Denylist != nil {
		cfg.Denylist = normalizePhrases(f.Denylist)
	}
	if f.Templates != nil {
		tpls := make(map[category.Category]string, len(f.Templates))
		for name, tpl := range f.Templates {
			cat, err := category.Parse(name)
			if err != nil {
				return fmt.Errorf("templates: %w", err)
			}
			tpls[cat] = tpl
		}
		cfg.Templates = tpls
	}
	if f.Limits != nil {
		cfg.Limits = *f.Limits
	}
	if f.Similarity != nil {
		if f.Similarity.BlendWeight != nil {
			cfg.Similarity.BlendWeight = *f.Similarity.BlendWeight
		}
		if f.Similarity.Exemplars != nil {
			exs := make(map[category.Category][]Exemplar, len(f.Similarity.Exemplars))
			for name, list := range f.Similarity.Exemplars {
				cat, err := category.Parse(name)
				if err != nil {
					return fmt.Errorf("similarity.exemplars: %w", err)
				}
				exs[cat] = list
			}
			cfg.Similarity.Exemplars = exs
		}
	}
	return nil
}

// decodeSubs accepts either {"subreddits": {...}} or a bare name → rule map.
func decodeSubs(data []byte) (map[string]SubredditRule, error) {
	var wrapped subsFile
	if err := decodeStrict(data, &wrapped); err == nil && wrapped.Subreddits != nil {
		return normalizeSubs(wrapped.Subreddits)
	}
	var bare map[string]SubredditRule
	if err := decodeStrict(data, &bare); err != nil {
		return nil, err
	}
	return normalizeSubs(bare)
}

func normalizeSubs(in map[string]SubredditRule) (map[string]SubredditRule, error) {
	out := make(map[string]SubredditRule, len(in))
	for name, rule := range in {
		key := NormalizeSubreddit(name)
		if key == "" {
			return nil, fmt.Errorf("empty subreddit name %q", name)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("subreddit %q configured twice", key)
		}
		out[key] = rule
	}
	return out, nil
}

func applyKeywordsFile(cfg *Config, data []byte) error {
	var f keywordsFile
	if err := decodeStrict(data, &f); err != nil {
		return err
	}
	if f.Match != "" {
		cfg.KeywordMatch = f.Match
	}
	if f.Modes != nil {
		cfg.KeywordModes = make(map[string]MatchMode, len(f.Modes))
		for kw, m := range f.Modes {
			cfg.KeywordModes[normalizeKeyword(kw)] = m
		}
	}
	if f.Keywords == nil && f.Groups == nil {
		return nil
	}

	kws := make(map[string]float64, len(f.Keywords))
	for _, name := range sortedKeys(f.Groups) {
		for kw, w := range f.Groups[name] {
			kws[normalizeKeyword(kw)] = w
		}
	}
	for kw, w := range f.Keywords {
		kws[normalizeKeyword(kw)] = w
	}
	cfg.Keywords = kws
	return nil
}

func normalizeKeyword(kw string) string {
	return textnorm.Fold(kw)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizePhrases(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		n := normalizeKeyword(p)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
