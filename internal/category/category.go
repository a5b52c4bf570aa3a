// Package category maps a final score onto the closed set of intent
// categories using configured thresholds.
package category

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Category is the intent classification driving draft behavior.
type Category string

const (
	Product  Category = "product"
	Goodwill Category = "goodwill"
	Skip     Category = "skip"
)

// All lists the categories in descending priority.
var All = []Category{Product, Goodwill, Skip}

// Parse converts a config string into a Category.
func Parse(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case Product:
		return Product, nil
	case Goodwill:
		return Goodwill, nil
	case Skip:
		return Skip, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// Threshold is the inclusive lower boundary of a category's score band.
type Threshold struct {
	Category Category `yaml:"category" json:"category"`
	Min      float64  `yaml:"min" json:"min"`
}

// Categorize returns the category of the highest threshold the score meets
// or exceeds. A score equal to a boundary belongs to the category above it.
// Scores below every boundary, and NaN, are Skip.
func Categorize(score float64, thresholds []Threshold) Category {
	if math.IsNaN(score) {
		return Skip
	}
	for _, th := range Sorted(thresholds) {
		if score >= th.Min {
			return th.Category
		}
	}
	return Skip
}

// Sorted returns a copy of thresholds ordered from highest to lowest Min.
// Equal boundaries keep their configured order.
func Sorted(thresholds []Threshold) []Threshold {
	out := append([]Threshold(nil), thresholds...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Min > out[j].Min })
	return out
}

// Band returns the half-open score range [lo, hi) that maps to c. Skip's
// band starts at negative infinity; the top band ends at positive infinity.
// ok is false when c has no band under thresholds.
func Band(c Category, thresholds []Threshold) (lo, hi float64, ok bool) {
	sorted := Sorted(thresholds)
	hi = math.Inf(1)
	for _, th := range sorted {
		if th.Category == c {
			return th.Min, hi, true
		}
		hi = th.Min
	}
	if c == Skip {
		return math.Inf(-1), hi, true
	}
	return 0, 0, false
}

// Validate checks that thresholds are usable: known non-skip categories in
// canonical form, no duplicates, finite distinct boundaries.
func Validate(thresholds []Threshold) error {
	seenCat := make(map[Category]struct{}, len(thresholds))
	seenMin := make(map[float64]Category, len(thresholds))
	for _, th := range thresholds {
		c, err := Parse(string(th.Category))
		if err != nil {
			return err
		}
		if c != th.Category {
			return fmt.Errorf("category %q must be written as %q", th.Category, c)
		}
		if th.Category == Skip {
			return fmt.Errorf("category %q cannot have a threshold; it is the fallback", Skip)
		}
		if math.IsNaN(th.Min) || math.IsInf(th.Min, 0) {
			return fmt.Errorf("threshold for %q must be a finite number", th.Category)
		}
		if _, dup := seenCat[th.Category]; dup {
			return fmt.Errorf("duplicate threshold for %q", th.Category)
		}
		if other, dup := seenMin[th.Min]; dup {
			return fmt.Errorf("thresholds for %q and %q overlap at %v", other, th.Category, th.Min)
		}
		seenCat[th.Category] = struct{}{}
		seenMin[th.Min] = th.Category
	}
	return nil
}
