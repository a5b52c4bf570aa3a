package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if cfg.Server.MaxPosts <= 0 {
		return errors.New("server.max_posts must be positive")
	}
	if cfg.Engine.Workers < 0 {
		return errors.New("engine.workers must not be negative")
	}

	if err := validateSimilarityConfig(cfg.Similarity); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateSimilarityConfig(s SimilarityConfig) error {
	if !s.Enabled {
		return nil
	}
	if strings.TrimSpace(s.ModelDir) == "" {
		return errors.New("similarity enabled but model_dir is empty")
	}
	if s.SeqLen < 2 {
		return fmt.Errorf("similarity.seq_len must be at least 2, got %d", s.SeqLen)
	}
	if s.Dims <= 0 {
		return fmt.Errorf("similarity.dims must be positive, got %d", s.Dims)
	}
	if s.Timeout <= 0 {
		return errors.New("similarity.timeout must be positive")
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	if t.Protocol != "" {
		switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
		}
	}
	return nil
}

// ValidateFeedURL checks that a feed location is an http(s) URL and, unless
// allowPrivate is set, that it does not point at a private network.
func ValidateFeedURL(raw string, allowPrivate bool) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("feed url %q is invalid", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("feed url must be http or https, got %q", u.Scheme)
	}
	if err := blockPrivateHost(u.Host, allowPrivate); err != nil {
		return fmt.Errorf("feed url blocked: %w", err)
	}
	return nil
}

// blockPrivateHost rejects localhost and literal loopback, private and
// link-local addresses. Hostnames are not resolved.
func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.Trim(strings.ToLower(strings.TrimSpace(host)), "[]")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("host %s is on a private network", host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && isPrivateAddr(addr) {
		return fmt.Errorf("address %s is on a private network", addr)
	}
	return nil
}

func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}
