package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/slopescout/brain/internal/settings"
)

// EnvPrefix marks environment overrides. Nested keys use a double
// underscore: SCOUT_SERVER__ADDR sets server.addr.
const EnvPrefix = "SCOUT_"

// Config holds the scout-brain service configuration. Engine tuning
// (keywords, thresholds, templates) lives in the settings files it points to.
type Config struct {
	Env        string           `koanf:"env"`
	Server     ServerConfig     `koanf:"server"`
	Engine     EngineConfig     `koanf:"engine"`
	Settings   SettingsConfig   `koanf:"settings"`
	Similarity SimilarityConfig `koanf:"similarity"`
	Feed       FeedConfig       `koanf:"feed"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Addr         string        `koanf:"addr"` // HTTP listen address, e.g. ":8000"
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	MaxBodyBytes int64         `koanf:"max_body_bytes"`
	MaxPosts     int           `koanf:"max_posts"`
}

type EngineConfig struct {
	Workers int `koanf:"workers"` // 0 = GOMAXPROCS
}

// SettingsConfig points at the engine settings files. Missing files fall
// back to the built-in defaults.
type SettingsConfig struct {
	Defaults string `koanf:"defaults"`
	Persona  string `koanf:"persona"`
	Subs     string `koanf:"subs"`
	Keywords string `koanf:"keywords"`
}

type SimilarityConfig struct {
	Enabled      bool          `koanf:"enabled"`
	ModelDir     string        `koanf:"model_dir"`
	SeqLen       int           `koanf:"seq_len"`
	Dims         int           `koanf:"dims"`
	TokenTypeIDs bool          `koanf:"token_type_ids"`
	Timeout      time.Duration `koanf:"timeout"`
}

type FeedConfig struct {
	Timeout              time.Duration `koanf:"timeout"`
	UserAgent            string        `koanf:"user_agent"`
	MaxItems             int           `koanf:"max_items"`
	AllowPrivateNetworks bool          `koanf:"allow_private_networks"`
}

type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Protocol string `koanf:"protocol"` // grpc | http
}

// Load reads configuration from a YAML file and SCOUT_* environment
// variables, environment winning. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func defaultConfig() *Config {
	return &Config{
		Env: "dev",
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxBodyBytes: 1 << 20,
			MaxPosts:     100,
		},
		Settings: SettingsConfig{
			Defaults: "config/defaults.yaml",
			Persona:  "config/persona.json",
			Subs:     "config/subs.json",
			Keywords: "config/keywords.yaml",
		},
		Similarity: SimilarityConfig{
			SeqLen:  128,
			Dims:    384,
			Timeout: 750 * time.Millisecond,
		},
		Feed: FeedConfig{
			Timeout:   15 * time.Second,
			UserAgent: "scout-brain/0.1",
			MaxItems:  50,
		},
		Telemetry: TelemetryConfig{
			Protocol: "grpc",
		},
	}
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()

	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = def.Env
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = def.Server.MaxBodyBytes
	}
	if cfg.Server.MaxPosts <= 0 {
		cfg.Server.MaxPosts = def.Server.MaxPosts
	}

	if cfg.Settings.Defaults == "" {
		cfg.Settings.Defaults = def.Settings.Defaults
	}
	if cfg.Settings.Persona == "" {
		cfg.Settings.Persona = def.Settings.Persona
	}
	if cfg.Settings.Subs == "" {
		cfg.Settings.Subs = def.Settings.Subs
	}
	if cfg.Settings.Keywords == "" {
		cfg.Settings.Keywords = def.Settings.Keywords
	}

	if cfg.Similarity.SeqLen <= 0 {
		cfg.Similarity.SeqLen = def.Similarity.SeqLen
	}
	if cfg.Similarity.Dims <= 0 {
		cfg.Similarity.Dims = def.Similarity.Dims
	}
	if cfg.Similarity.Timeout <= 0 {
		cfg.Similarity.Timeout = def.Similarity.Timeout
	}

	if cfg.Feed.Timeout <= 0 {
		cfg.Feed.Timeout = def.Feed.Timeout
	}
	if strings.TrimSpace(cfg.Feed.UserAgent) == "" {
		cfg.Feed.UserAgent = def.Feed.UserAgent
	}
	if cfg.Feed.MaxItems <= 0 {
		cfg.Feed.MaxItems = def.Feed.MaxItems
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = def.Telemetry.Protocol
	}
}

// Paths returns the settings file locations for settings.Load.
func (s SettingsConfig) Paths() settings.Paths {
	return settings.Paths{
		Defaults: s.Defaults,
		Persona:  s.Persona,
		Subs:     s.Subs,
		Keywords: s.Keywords,
	}
}
