// scout-score scores a batch of posts once and prints the results as JSON.
//
//	scout-score -posts posts.json
//	scout-score -feed https://www.reddit.com/r/skiing/new/.rss
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/slopescout/brain/internal/app"
	"github.com/slopescout/brain/internal/config"
	"github.com/slopescout/brain/internal/engine"
	"github.com/slopescout/brain/internal/ingest"
	"github.com/slopescout/brain/internal/redact"
)

func main() {
	configPath := flag.String("config", "scout.yaml", "Path to scout-brain config file")
	postsPath := flag.String("posts", "", "JSON file with {\"posts\":[...]} or a bare array (- for stdin)")
	feed := flag.String("feed", "", "RSS/Atom feed URL or file to score")
	debug := flag.Bool("debug", false, "Include per-signal breakdown in the output")
	defaultsPath := flag.String("settings-defaults", "", "Override settings defaults file")
	personaPath := flag.String("settings-persona", "", "Override persona file")
	subsPath := flag.String("settings-subs", "", "Override subreddit rules file")
	keywordsPath := flag.String("settings-keywords", "", "Override keywords file")
	flag.Parse()

	if (*postsPath == "") == (*feed == "") {
		log.Fatalf("exactly one of -posts or -feed is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	overrideString(&cfg.Settings.Defaults, *defaultsPath)
	overrideString(&cfg.Settings.Persona, *personaPath)
	overrideString(&cfg.Settings.Subs, *subsPath)
	overrideString(&cfg.Settings.Keywords, *keywordsPath)
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var req engine.Request
	if *postsPath != "" {
		req, err = readPosts(*postsPath)
		if err != nil {
			log.Fatalf("failed to read posts: %v", err)
		}
	} else {
		posts, err := ingest.NewFeedSource(cfg.Feed).Fetch(ctx, *feed)
		if err != nil {
			redact.Fatalf("failed to fetch feed %s: %v", *feed, err)
		}
		req.Posts = posts
	}
	req.Debug = req.Debug || *debug

	eng, err := app.Build(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	defer eng.Close()

	results, err := eng.Process(ctx, req)
	if err != nil {
		log.Fatalf("scoring aborted: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Results []engine.ResultEntry `json:"results"`
	}{Results: results}); err != nil {
		log.Fatalf("failed to write results: %v", err)
	}
}

func readPosts(path string) (engine.Request, error) {
	if path == "-" {
		return ingest.DecodeRequest(os.Stdin, 0)
	}
	f, err := os.Open(path)
	if err != nil {
		return engine.Request{}, err
	}
	defer f.Close()
	return ingest.DecodeRequest(f, 0)
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
