// Package risk annotates drafts with advisory notes derived from subreddit
// posting rules. Notes never block a draft and never change it.
package risk

import (
	"fmt"
	"strings"

	"github.com/slopescout/brain/internal/category"
	"github.com/slopescout/brain/internal/draft"
	"github.com/slopescout/brain/internal/settings"
)

// Rule IDs attached to notes.
const (
	RuleLinksBanned    = "links_banned"
	RuleRulesUnknown   = "rules_unknown"
	RuleLinkCooldown   = "link_cooldown"
	RuleSubredditNotes = "subreddit_notes"
)

// Note is one advisory finding.
type Note struct {
	RuleID string `json:"rule_id"`
	Text   string `json:"text"`
}

// Result collects the notes for one entry.
type Result struct {
	Notes []Note `json:"notes,omitempty"`
}

// String joins the notes with "; ". It returns nil when there are none.
func (r Result) String() *string {
	if len(r.Notes) == 0 {
		return nil
	}
	parts := make([]string, 0, len(r.Notes))
	for _, n := range r.Notes {
		parts = append(parts, n.Text)
	}
	s := strings.Join(parts, "; ")
	return &s
}

// Has reports whether a note with ruleID was produced.
func (r Result) Has(ruleID string) bool {
	for _, n := range r.Notes {
		if n.RuleID == ruleID {
			return true
		}
	}
	return false
}

// Annotator looks up subreddit rules. It holds no mutable state.
type Annotator struct {
	cfg *settings.Config
}

func NewAnnotator(cfg *settings.Config) *Annotator {
	return &Annotator{cfg: cfg}
}

// Annotate evaluates the rules of subreddit against a draft. Skip entries
// and nil drafts get no notes.
func (a *Annotator) Annotate(subreddit string, cat category.Category, d *draft.Draft) Result {
	if cat == category.Skip || d == nil {
		return Result{}
	}

	var res Result
	label := "this subreddit"
	if n := settings.NormalizeSubreddit(subreddit); n != "" {
		label = "r/" + n
	}

	rule, known := a.cfg.Rule(subreddit)
	if !known {
		if cat == category.Product {
			res.Notes = append(res.Notes, Note{
				RuleID: RuleRulesUnknown,
				Text:   fmt.Sprintf("rules unknown for %s; check its link and self-promotion policy before posting", label),
			})
		}
		return res
	}

	switch {
	case rule.LinksBanned() && d.IncludeLink:
		res.Notes = append(res.Notes, Note{
			RuleID: RuleLinksBanned,
			Text:   fmt.Sprintf("%s bans links; drop the link token or skip this reply", label),
		})
	case d.IncludeLink && hasLimits(rule):
		res.Notes = append(res.Notes, a.cooldownNote(label, rule))
	}
	if notes := strings.TrimSpace(rule.Notes); notes != "" {
		res.Notes = append(res.Notes, Note{RuleID: RuleSubredditNotes, Text: notes})
	}
	return res
}

// hasLimits reports whether the rule sets its own posting limits. Global
// defaults alone never produce a note.
func hasLimits(rule settings.SubredditRule) bool {
	return rule.LinkCooldownHours > 0 || rule.MaxCommentsPerDay > 0
}

// cooldownNote names the rule's limits, filling the one it leaves unset
// from the global defaults.
func (a *Annotator) cooldownNote(label string, rule settings.SubredditRule) Note {
	cooldown := rule.LinkCooldownHours
	if cooldown <= 0 {
		cooldown = a.cfg.Limits.LinkCooldownHours
	}
	perDay := rule.MaxCommentsPerDay
	if perDay <= 0 {
		perDay = a.cfg.Limits.MaxCommentsPerSubPerDay
	}
	return Note{
		RuleID: RuleLinkCooldown,
		Text:   fmt.Sprintf("link cooldown %dh and at most %d comments/day in %s", cooldown, perDay, label),
	}
}
