package draft

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/slopescout/brain/internal/category"
	"github.com/slopescout/brain/internal/settings"
)

func TestGenerateSkipIsNil(t *testing.T) {
	g := NewGenerator(settings.Default())
	d, err := g.Generate(category.Skip, Post{Title: "ski rack help"})
	if err != nil || d != nil {
		t.Fatalf("skip: draft=%+v err=%v", d, err)
	}
}

func TestGenerateProduct(t *testing.T) {
	cfg := settings.Default()
	g := NewGenerator(cfg)
	d, err := g.Generate(category.Product, Post{Title: "Skis falling off my rack? Help", Subreddit: "r/Skiing"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !d.IncludeLink || d.LinkToken == nil || *d.LinkToken != cfg.LinkToken {
		t.Fatalf("product draft must carry the link token: %+v", d)
	}
	if !strings.Contains(d.Text, cfg.LinkToken) {
		t.Fatalf("product text should contain the token: %q", d.Text)
	}
	if !strings.Contains(d.Text, "Skis falling off my rack") {
		t.Fatalf("topic hint missing: %q", d.Text)
	}
	if strings.Contains(d.Text, "http") {
		t.Fatalf("generator must never emit a URL: %q", d.Text)
	}
}

func TestGenerateGoodwillNeverLinks(t *testing.T) {
	cfg := settings.Default()
	cfg.Templates[category.Goodwill] = "Re {topic} in {subreddit}: keep it simple, {tone}. {link}"
	g := NewGenerator(cfg)

	titles := []string{
		"winter prep",
		"check [[LINK]] out",
		"see https://shop.example.com/rack for details",
		"",
	}
	for _, title := range titles {
		d, err := g.Generate(category.Goodwill, Post{Title: title, Subreddit: "skiing"})
		if err != nil {
			t.Fatalf("Generate(%q): %v", title, err)
		}
		if d.IncludeLink || d.LinkToken != nil {
			t.Fatalf("goodwill draft must not link: %+v", d)
		}
		if strings.Contains(d.Text, cfg.LinkToken) || strings.Contains(d.Text, "http") || strings.Contains(d.Text, "example.com") {
			t.Fatalf("goodwill text leaked a link: %q", d.Text)
		}
		if strings.HasSuffix(d.Text, " ") || strings.Contains(d.Text, "  ") {
			t.Fatalf("whitespace not collapsed: %q", d.Text)
		}
	}
}

func TestTemplateInjectionIsInert(t *testing.T) {
	cfg := settings.Default()
	g := NewGenerator(cfg)
	d, err := g.Generate(category.Goodwill, Post{Title: "{link} {tone} {signoff}"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(d.Text, "{link} {tone} {signoff}") {
		t.Fatalf("post text placeholders must be copied literally: %q", d.Text)
	}
	if strings.Contains(d.Text, cfg.LinkToken) {
		t.Fatalf("post text must not expand into the link token: %q", d.Text)
	}
}

func TestDisclosureDemotes(t *testing.T) {
	g := NewGenerator(settings.Default())
	_, err := g.Generate(category.Product, Post{Title: "Full disclosure, I work for a rack brand?"})
	if !errors.Is(err, ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
	var pv *PolicyViolation
	if !errors.As(err, &pv) || pv.Category != category.Product || pv.Phrase == "" {
		t.Fatalf("expected *PolicyViolation with details, got %#v", err)
	}
}

func TestDisclosureInTemplateBlocksEveryCategory(t *testing.T) {
	cfg := settings.Default()
	cfg.Templates[category.Goodwill] = "Sponsored tip about {topic}."
	cfg.Templates[category.Product] = "Our product fixes {topic}. {link}"
	g := NewGenerator(cfg)
	for _, cat := range []category.Category{category.Goodwill, category.Product} {
		if _, err := g.Generate(cat, Post{Title: "ski rack"}); !errors.Is(err, ErrPolicyViolation) {
			t.Fatalf("%s: expected violation, got %v", cat, err)
		}
	}
}

// Fuzz-style check: random disclosure phrases spliced into titles at random
// spots, with random casing and spacing, never survive the gate.
func TestDisclosurePhrasesNeverEmitted(t *testing.T) {
	cfg := settings.Default()
	g := NewGenerator(cfg)
	rng := rand.New(rand.NewSource(7))
	fillers := []string{"ski", "rack", "help", "tips", "parking lot", "!!", "-", "2024"}

	for i := 0; i < 500; i++ {
		phrase := cfg.Denylist[rng.Intn(len(cfg.Denylist))]
		phrase = mangleCase(rng, phrase)
		if rng.Intn(2) == 0 {
			phrase = strings.ReplaceAll(phrase, " ", "   ")
		}
		if rng.Intn(3) == 0 {
			phrase = insertInvisible(rng, phrase)
		}
		pre := fillers[rng.Intn(len(fillers))]
		post := fillers[rng.Intn(len(fillers))]
		title := fmt.Sprintf("%s %s %s", pre, phrase, post)

		for _, cat := range []category.Category{category.Goodwill, category.Product} {
			d, err := g.Generate(cat, Post{Title: title})
			if err == nil {
				t.Fatalf("title %q produced %s draft %q", title, cat, d.Text)
			}
			if !errors.Is(err, ErrPolicyViolation) {
				t.Fatalf("title %q: unexpected error %v", title, err)
			}
		}
	}
}

var invisibles = []string{"\u200b", "\u00ad", "\u2060", "\u200d", "\ufeff"}

func insertInvisible(rng *rand.Rand, s string) string {
	runes := []rune(s)
	at := rng.Intn(len(runes) + 1)
	return string(runes[:at]) + invisibles[rng.Intn(len(invisibles))] + string(runes[at:])
}

func TestInvisibleCharactersDoNotHideDisclosure(t *testing.T) {
	g := NewGenerator(settings.Default())
	for _, title := range []string{
		"I work\u200b for Acme racks",
		"I w\u00adork for Acme racks",
		"our\u2060 product rocks",
	} {
		for _, cat := range []category.Category{category.Goodwill, category.Product} {
			d, err := g.Generate(cat, Post{Title: title})
			if !errors.Is(err, ErrPolicyViolation) {
				t.Fatalf("%s draft for %q: err=%v draft=%+v", cat, title, err, d)
			}
		}
	}
}

func TestDraftTextHasNoFormatCharacters(t *testing.T) {
	g := NewGenerator(settings.Default())
	d, err := g.Generate(category.Goodwill, Post{Title: "roof\u200b rack\u00ad pads"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.ContainsAny(d.Text, "\u200b\u00ad") {
		t.Fatalf("draft kept format characters: %q", d.Text)
	}
}

func mangleCase(rng *rand.Rand, s string) string {
	var b strings.Builder
	for _, r := range s {
		if rng.Intn(2) == 0 {
			b.WriteString(strings.ToUpper(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func TestLinkInvariant(t *testing.T) {
	g := NewGenerator(settings.Default())
	for _, cat := range category.All {
		d, err := g.Generate(cat, Post{Title: "roof rack"})
		if err != nil {
			t.Fatalf("%s: %v", cat, err)
		}
		if d == nil {
			continue
		}
		hasToken := d.LinkToken != nil && *d.LinkToken != ""
		if d.IncludeLink != hasToken {
			t.Fatalf("%s: include_link=%v token=%v", cat, d.IncludeLink, d.LinkToken)
		}
	}
}

func TestUnknownCategory(t *testing.T) {
	g := NewGenerator(settings.Default())
	if _, err := g.Generate(category.Category("promo"), Post{}); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}

func TestTopicHint(t *testing.T) {
	long := strings.Repeat("a", 80)
	cases := []struct {
		title, sub, want string
	}{
		{title: "Ski rack worry? anyone", want: "Ski rack worry"},
		{title: "  spaced  ", want: "spaced"},
		{title: long, want: strings.Repeat("a", TopicMaxLen)},
		{title: "?", want: "your setup"},
		{title: "", sub: "r/Skiing", want: "the crew in r/skiing"},
		{title: "", want: "your setup"},
		{title: "rack from https://x.example.com/p?q=1", want: "rack from"},
	}
	for _, tc := range cases {
		if got := TopicHint(tc.title, tc.sub); got != tc.want {
			t.Fatalf("TopicHint(%q,%q) = %q, want %q", tc.title, tc.sub, got, tc.want)
		}
	}
}

func TestGate(t *testing.T) {
	g := NewGate([]string{"sponsored", "i'm a bot", "disclosure:", "  ", "SPONSORED"})
	if g.Len() != 3 {
		t.Fatalf("gate Len = %d, want 3", g.Len())
	}
	cases := []struct {
		text string
		hit  bool
	}{
		{"This is Sponsored!", true},
		{"unsponsoredness", false},
		{"I’m a bot, beep", true},
		{"Disclosure: none", true},
		{"no disclosure here", false},
		{"", false},
	}
	for _, tc := range cases {
		if _, hit := g.Check(tc.text); hit != tc.hit {
			t.Fatalf("Check(%q) = %v, want %v", tc.text, hit, tc.hit)
		}
	}
}
