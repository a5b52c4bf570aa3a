package ingest

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/slopescout/brain/internal/config"
	"github.com/slopescout/brain/internal/engine"
	"github.com/slopescout/brain/internal/settings"
	"github.com/slopescout/brain/internal/textnorm"
)

var (
	subredditPathRe = regexp.MustCompile(`(?i)/r/([A-Za-z0-9_]+)`)
	commentsPathRe  = regexp.MustCompile(`(?i)/comments/([a-z0-9]+)`)
)

// FeedSource reads posts from RSS/Atom feeds such as a subreddit's
// /new/.rss listing.
type FeedSource struct {
	client       *http.Client
	parser       *gofeed.Parser
	userAgent    string
	maxItems     int
	allowPrivate bool
}

func NewFeedSource(cfg config.FeedConfig) *FeedSource {
	return &FeedSource{
		client:       &http.Client{Timeout: cfg.Timeout},
		parser:       gofeed.NewParser(),
		userAgent:    cfg.UserAgent,
		maxItems:     cfg.MaxItems,
		allowPrivate: cfg.AllowPrivateNetworks,
	}
}

// Fetch loads a feed from an http(s) URL or a local file path.
func (f *FeedSource) Fetch(ctx context.Context, location string) ([]engine.Post, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		fh, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open feed: %w", err)
		}
		defer fh.Close()
		return f.Parse(fh)
	}

	if err := config.ValidateFeedURL(location, f.allowPrivate); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed HTTP %d", resp.StatusCode)
	}
	return f.Parse(resp.Body)
}

// Parse converts a feed document into posts, newest first as listed.
func (f *FeedSource) Parse(r io.Reader) ([]engine.Post, error) {
	feed, err := f.parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := feed.Items
	if f.maxItems > 0 && len(items) > f.maxItems {
		items = items[:f.maxItems]
	}

	posts := make([]engine.Post, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		body := item.Content
		if strings.TrimSpace(body) == "" {
			body = item.Description
		}
		posts = append(posts, engine.Post{
			ID:        postID(item),
			Title:     strings.TrimSpace(item.Title),
			Body:      HTMLToText(body),
			Subreddit: subredditOf(item),
			URL:       item.Link,
		})
	}
	return posts, nil
}

// HTMLToText extracts readable text from an HTML fragment.
func HTMLToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	if !strings.Contains(fragment, "<") {
		return textnorm.Collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return textnorm.Collapse(fragment)
	}
	doc.Find("script, style").Remove()
	doc.Find("br, p, div, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return textnorm.Collapse(doc.Text())
}

// postID prefers the reddit fullname (t3_...) so results line up with
// downstream tooling.
func postID(item *gofeed.Item) string {
	guid := strings.TrimSpace(item.GUID)
	if strings.HasPrefix(guid, "t3_") {
		return guid
	}
	if m := commentsPathRe.FindStringSubmatch(item.Link); m != nil {
		return "t3_" + strings.ToLower(m[1])
	}
	if guid != "" {
		return guid
	}
	if item.Link != "" {
		hash := md5.Sum([]byte(item.Link))
		return fmt.Sprintf("%x", hash)[:12]
	}
	return ""
}

func subredditOf(item *gofeed.Item) string {
	for _, c := range item.Categories {
		if n := settings.NormalizeSubreddit(c); n != "" && !strings.Contains(n, " ") {
			return n
		}
	}
	if m := subredditPathRe.FindStringSubmatch(item.Link); m != nil {
		return settings.NormalizeSubreddit(m[1])
	}
	return ""
}
