package telemetry

import (
	"context"
	"strings"
	"testing"
)

func TestAttrsDropsPostTextAndSecrets(t *testing.T) {
	attrs := Attrs(
		"post.title", "skis falling off my rack",
		"post.body", "drop",
		"draft_text", "drop",
		"openai_api_key", "sk-123",
		"discord_webhook", "https://discord.com/api/webhooks/1/x",
		"scout.category", "product",
		"scout.long", strings.Repeat("x", 600),
		"scout.posts", 3,
		"scout.subreddits", []string{"skiing"},
		"scout.demoted", true,
		"scout.score", 0.5,
		"scout.unknown", struct{}{},
		42, "non-string key",
		"dangling",
	)

	got := map[string]bool{}
	for _, a := range attrs {
		got[string(a.Key)] = true
	}
	want := []string{"scout.category", "scout.posts", "scout.subreddits", "scout.demoted", "scout.score"}
	if len(got) != len(want) {
		t.Fatalf("kept %v, want exactly %v", got, want)
	}
	for _, k := range want {
		if !got[k] {
			t.Fatalf("expected attribute %s to be kept", k)
		}
	}
}

func TestNoopProviderIsSafe(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Enabled {
		t.Fatalf("disabled config must yield a no-op provider")
	}
	ctx, span := p.StartBatch(context.Background(), 2, "none")
	p.RecordPost(ctx, "product", false)
	p.RecordPost(ctx, "skip", true)
	p.RecordInputError(ctx)
	p.RecordSimilarityFallback(ctx, "none")
	p.RecordBatch(ctx, 2, 1.5)
	span.End()
	p.Shutdown(context.Background())

	var nilProvider *Provider
	nilProvider.RecordPost(ctx, "skip", false)
	nilProvider.Shutdown(context.Background())
	if nilProvider.Tracer() == nil || nilProvider.Meter() == nil {
		t.Fatalf("nil provider must hand out no-op tracer and meter")
	}
}

func TestUnsupportedProtocol(t *testing.T) {
	if _, err := NewProvider(context.Background(), Config{Enabled: true, Protocol: "udp"}); err == nil {
		t.Fatalf("expected error for unsupported protocol")
	}
}
