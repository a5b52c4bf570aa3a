// Package draft fills per-category reply templates and passes every result
// through the disclosure gate before it leaves the package.
package draft

import (
	"fmt"
	"strings"

	"github.com/slopescout/brain/internal/category"
	"github.com/slopescout/brain/internal/redact"
	"github.com/slopescout/brain/internal/settings"
	"github.com/slopescout/brain/internal/textnorm"
)

// TopicMaxLen caps the title-derived topic hint, in grapheme clusters.
const TopicMaxLen = 60

// Draft is a proposed reply. LinkToken is non-nil iff IncludeLink.
type Draft struct {
	Text        string  `json:"text"`
	IncludeLink bool    `json:"include_link"`
	LinkToken   *string `json:"link_token"`
}

// Post is the part of a post the generator reads.
type Post struct {
	Title     string
	Subreddit string
}

// Generator renders drafts from templates. It is safe for concurrent use.
type Generator struct {
	templates map[category.Category]string
	linkToken string
	persona   settings.Persona
	gate      *Gate
}

// NewGenerator snapshots the templates, persona, link token and denylist
// of cfg.
func NewGenerator(cfg *settings.Config) *Generator {
	g := &Generator{
		templates: make(map[category.Category]string, len(cfg.Templates)),
		linkToken: cfg.LinkToken,
		persona:   cfg.Persona,
		gate:      NewGate(cfg.Denylist),
	}
	if g.linkToken == "" {
		g.linkToken = settings.DefaultLinkToken
	}
	for cat, tpl := range cfg.Templates {
		g.templates[cat] = tpl
	}
	return g
}

// Generate returns the draft for cat, nil for skip. A draft that contains a
// disclosure phrase is discarded and reported as a *PolicyViolation; the
// caller demotes the entry to skip.
func (g *Generator) Generate(cat category.Category, post Post) (*Draft, error) {
	var d *Draft
	switch cat {
	case category.Skip:
		return nil, nil
	case category.Goodwill:
		d = &Draft{Text: g.fill(cat, post, "")}
	case category.Product:
		token := g.linkToken
		d = &Draft{Text: g.fill(cat, post, token), IncludeLink: true, LinkToken: &token}
	default:
		return nil, fmt.Errorf("draft: unknown category %q", cat)
	}
	return g.finalize(cat, d)
}

// finalize is the single exit for every drafted category.
func (g *Generator) finalize(cat category.Category, d *Draft) (*Draft, error) {
	if strings.TrimSpace(d.Text) == "" {
		return nil, fmt.Errorf("draft: %s template rendered empty", cat)
	}
	if !d.IncludeLink {
		d.LinkToken = nil
	}
	if d.IncludeLink && (d.LinkToken == nil || *d.LinkToken == "") {
		return nil, fmt.Errorf("draft: %s draft has a link but no token", cat)
	}
	if phrase, hit := g.gate.Check(d.Text); hit {
		return nil, &PolicyViolation{Category: cat, Phrase: phrase}
	}
	return d, nil
}

func (g *Generator) fill(cat category.Category, post Post, link string) string {
	tpl, ok := g.templates[cat]
	if !ok {
		return ""
	}
	r := strings.NewReplacer(
		settings.PlaceholderTopic, g.scrub(TopicHint(post.Title, post.Subreddit)),
		settings.PlaceholderSubreddit, g.scrub(subredditLabel(post.Subreddit)),
		settings.PlaceholderTone, g.persona.Tone,
		settings.PlaceholderSignOff, g.persona.SignOff,
		settings.PlaceholderLink, link,
	)
	return textnorm.Collapse(r.Replace(tpl))
}

// scrub keeps post-derived text from carrying the link token, a link or
// invisible format characters.
func (g *Generator) scrub(s string) string {
	s = strings.ReplaceAll(textnorm.StripFormat(s), g.linkToken, "")
	return textnorm.Collapse(redact.StripLinks(s))
}

// TopicHint derives a short contextual reference from the title: the text
// before the first question mark, clipped. Without a usable title it names
// the subreddit, then falls back to "your setup".
func TopicHint(title, subreddit string) string {
	if t := strings.TrimSpace(title); t != "" {
		head, _, _ := strings.Cut(t, "?")
		head = textnorm.Clip(strings.TrimSpace(redact.StripLinks(head)), TopicMaxLen)
		if head = strings.TrimSpace(head); head != "" {
			return head
		}
		return "your setup"
	}
	if sub := subredditLabel(subreddit); sub != "" {
		return "the crew in " + sub
	}
	return "your setup"
}

func subredditLabel(sub string) string {
	n := settings.NormalizeSubreddit(sub)
	if n == "" {
		return ""
	}
	return "r/" + n
}
