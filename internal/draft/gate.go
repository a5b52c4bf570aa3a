package draft

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/slopescout/brain/internal/category"
	"github.com/slopescout/brain/internal/textnorm"
)

// ErrPolicyViolation marks a draft rejected by the disclosure gate.
var ErrPolicyViolation = errors.New("draft violates disclosure policy")

// PolicyViolation names the denylisted phrase a draft contained.
type PolicyViolation struct {
	Category category.Category
	Phrase   string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("%s draft contains disclosure phrase %q", e.Category, e.Phrase)
}

func (e *PolicyViolation) Unwrap() error { return ErrPolicyViolation }

type phraseMatcher struct {
	phrase string
	re     *regexp.Regexp
}

// Gate rejects text containing any denylisted disclosure phrase. Matching
// runs on case-folded, NFKC-normalized text and respects word edges, so
// "sponsored" matches "Sponsored!" but not "unsponsoredness".
type Gate struct {
	matchers []phraseMatcher
}

// NewGate compiles the denylist. Blank and duplicate phrases are ignored.
func NewGate(denylist []string) *Gate {
	seen := make(map[string]struct{}, len(denylist))
	g := &Gate{}
	for _, p := range denylist {
		folded := foldForGate(p)
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		g.matchers = append(g.matchers, phraseMatcher{phrase: folded, re: phraseRegexp(folded)})
	}
	return g
}

// Check returns the first denylisted phrase found in text.
func (g *Gate) Check(text string) (string, bool) {
	if g == nil || len(g.matchers) == 0 {
		return "", false
	}
	folded := foldForGate(text)
	if folded == "" {
		return "", false
	}
	for _, m := range g.matchers {
		if m.re.MatchString(folded) {
			return m.phrase, true
		}
	}
	return "", false
}

// Len reports how many phrases the gate enforces.
func (g *Gate) Len() int {
	if g == nil {
		return 0
	}
	return len(g.matchers)
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

func foldForGate(s string) string {
	return textnorm.Fold(apostrophes.Replace(s))
}

func phraseRegexp(phrase string) *regexp.Regexp {
	var b strings.Builder
	runes := []rune(phrase)
	if isWordRune(runes[0]) {
		b.WriteString(`(?:^|[^\p{L}\p{N}])`)
	}
	for i, part := range strings.Fields(phrase) {
		if i > 0 {
			b.WriteString(`\s+`)
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	if isWordRune(runes[len(runes)-1]) {
		b.WriteString(`(?:$|[^\p{L}\p{N}])`)
	}
	return regexp.MustCompile(b.String())
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
