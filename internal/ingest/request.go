// Package ingest turns external input into engine posts: JSON request
// bodies and RSS/Atom feeds.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/slopescout/brain/internal/engine"
)

var (
	// ErrTooManyPosts is returned when a request exceeds the batch limit.
	ErrTooManyPosts = errors.New("too many posts")
	// ErrEmptyBody is returned for a body with no JSON value.
	ErrEmptyBody = errors.New("empty request body")
)

// DecodeRequest reads a scoring request. Both {"posts":[...],"debug":b}
// and a bare array of posts are accepted. maxPosts <= 0 disables the limit.
func DecodeRequest(r io.Reader, maxPosts int) (engine.Request, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return engine.Request{}, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return engine.Request{}, ErrEmptyBody
	}

	var req engine.Request
	if data[0] == '[' {
		if err := json.Unmarshal(data, &req.Posts); err != nil {
			return engine.Request{}, fmt.Errorf("invalid posts array: %w", err)
		}
	} else if err := json.Unmarshal(data, &req); err != nil {
		return engine.Request{}, fmt.Errorf("invalid request: %w", err)
	}

	if maxPosts > 0 && len(req.Posts) > maxPosts {
		return engine.Request{}, fmt.Errorf("%w: %d posts, limit %d", ErrTooManyPosts, len(req.Posts), maxPosts)
	}
	if req.Posts == nil {
		req.Posts = []engine.Post{}
	}
	return req, nil
}
