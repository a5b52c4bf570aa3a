// Package redact scrubs credentials and post URLs out of log lines, and
// strips links from post text that is quoted back into drafts.
package redact

import (
	"fmt"
	"log"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const mark = "[REDACTED]"

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Applied in order; later rules see the output of earlier ones.
var rules = []rule{
	{regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)[A-Za-z0-9._\-+/=]+`), "${1}" + mark},
	{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-+/=]+`), "${1}" + mark},
	{regexp.MustCompile(`(?i)(api[_-]?keys?\s*[:=]\s*)[A-Za-z0-9._\-+/=]+`), "${1}" + mark},
	{regexp.MustCompile(`(?i)((?:client_secret|password|reddit_password|openai_api_key)\s*[:=]\s*)\S+`), "${1}" + mark},
	{regexp.MustCompile(`(?i)https?://(?:[a-z0-9-]+\.)?discord(?:app)?\.com/api/webhooks/\S+`), "[REDACTED_WEBHOOK]"},
	{regexp.MustCompile(`(?i)\b(key|token|secret)\s*[:=]\s*[A-Za-z0-9._\-+/=]{6,}`), "${1}=" + mark},
}

var (
	urlRe      = regexp.MustCompile(`https?://[^\s"'<>]+`)
	bareLinkRe = regexp.MustCompile(`(?i)\b(?:www\.[^\s"'<>]+|[a-z0-9-]+\.(?:com|net|org|io|co|shop|store|ly)\b(?:/[^\s"'<>]*)?)`)
)

// String redacts credentials and reduces every URL to scheme, host and
// last path segment.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	s = urlRe.ReplaceAllStringFunc(s, shortenURL)
	return strings.ReplaceAll(s, mark+mark, mark)
}

// StripLinks removes URLs and bare domain links from post-derived text so
// it can be quoted in a draft without carrying a link of its own.
func StripLinks(s string) string {
	if s == "" {
		return s
	}
	s = urlRe.ReplaceAllString(s, "")
	s = bareLinkRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Logf prints a redacted log line.
func Logf(format string, args ...any) {
	log.Print(String(fmt.Sprintf(format, args...)))
}

// Fatalf prints a redacted log line and exits.
func Fatalf(format string, args ...any) {
	log.Fatal(String(fmt.Sprintf(format, args...)))
}

func shortenURL(raw string) string {
	if strings.Contains(raw, "[REDACTED") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[REDACTED_URL]"
	}
	last := ""
	if !strings.HasSuffix(u.Path, "/") {
		last = path.Base(u.Path)
	}
	if last == "" || last == "." || last == "/" {
		last = "[REDACTED_PATH]"
	}
	return u.Scheme + "://" + u.Host + "/" + last
}
