package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/slopescout/brain/internal/category"
	"github.com/slopescout/brain/internal/draft"
	"github.com/slopescout/brain/internal/scoring"
)

// Post is one candidate post. Absent fields are empty strings.
type Post struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	Subreddit string `json:"subreddit,omitempty"`
	URL       string `json:"url,omitempty"`

	// malformed is set when the post decoded with wrongly typed fields.
	malformed string
}

type postJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Selftext  string `json:"selftext"`
	Subreddit string `json:"subreddit"`
	URL       string `json:"url"`
}

var postFields = []string{"id", "title", "body", "selftext", "subreddit", "url"}

// UnmarshalJSON accepts "selftext" as an alias of "body" and treats null
// fields as empty. A post with wrongly typed fields still decodes, so one
// bad element does not fail its batch; the engine turns it into a skip
// entry.
func (p *Post) UnmarshalJSON(b []byte) error {
	var raw postJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		*p = salvagePost(b)
		return nil
	}
	*p = Post{
		ID:        raw.ID,
		Title:     raw.Title,
		Body:      raw.Body,
		Subreddit: raw.Subreddit,
		URL:       raw.URL,
	}
	if strings.TrimSpace(p.Body) == "" {
		p.Body = raw.Selftext
	}
	return nil
}

// salvagePost keeps what it can of a malformed element: a string or
// numeric id for correlation, and the names of the offending fields.
func salvagePost(b []byte) Post {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return Post{malformed: "post is not a JSON object"}
	}

	var p Post
	var bad []string
	for _, name := range postFields {
		v, ok := fields[name]
		if !ok {
			continue
		}
		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			bad = append(bad, name)
			continue
		}
		if name == "id" && s != nil {
			p.ID = *s
		}
	}
	if p.ID == "" {
		var n json.Number
		if err := json.Unmarshal(fields["id"], &n); err == nil {
			p.ID = n.String()
		}
	}
	p.malformed = "malformed post"
	if len(bad) > 0 {
		p.malformed += ": " + strings.Join(bad, ", ") + " not a string"
	}
	return p
}

// Request is one batch of posts.
type Request struct {
	Posts []Post `json:"posts"`
	Debug bool   `json:"debug,omitempty"`
}

// ResultEntry is the scored, categorized and drafted outcome for one post.
type ResultEntry struct {
	ID        string            `json:"id"`
	Score     float64           `json:"score"`
	Rationale string            `json:"rationale"`
	Category  category.Category `json:"category"`
	Draft     *draft.Draft      `json:"draft"`
	RiskNotes *string           `json:"risk_notes"`
	Signals   []scoring.Signal  `json:"signals,omitempty"`
}

// ErrInput marks a malformed post.
var ErrInput = errors.New("invalid post")

// InputError describes why the post at Index was rejected.
type InputError struct {
	Index  int
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("post %d: %s", e.Index, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInput }

func validatePost(i int, p Post) error {
	if p.malformed != "" {
		return &InputError{Index: i, Reason: p.malformed}
	}
	if strings.TrimSpace(p.ID) == "" {
		return &InputError{Index: i, Reason: "missing id"}
	}
	return nil
}

// skipEntry is the placeholder emitted for a post that could not be
// processed.
func skipEntry(id, rationale string) ResultEntry {
	return ResultEntry{
		ID:        id,
		Score:     0,
		Rationale: rationale,
		Category:  category.Skip,
	}
}
