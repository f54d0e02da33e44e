// Package config loads daemon configuration from a YAML file with
// PEERGLOBE_* environment overrides for deployment-sensitive values.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/peerglobe/core"
	"github.com/signalsfoundry/peerglobe/model"
)

// Feed modes.
const (
	FeedModePoll      = "poll"
	FeedModeWebsocket = "websocket"
	FeedModeNone      = "none"
)

// Duration wraps time.Duration so YAML values like "30s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Listen    string `yaml:"listen"`
	StaticDir string `yaml:"static_dir"`
}

// FeedConfig selects and parameterizes the upstream snapshot source.
type FeedConfig struct {
	Mode     string   `yaml:"mode"` // poll | websocket | none
	URL      string   `yaml:"url"`
	APIKey   string   `yaml:"api_key"`
	Interval Duration `yaml:"interval"`

	FallbackLat       float64 `yaml:"fallback_lat"`
	FallbackLon       float64 `yaml:"fallback_lon"`
	FallbackElevation float64 `yaml:"fallback_elevation"`
}

// SpreadConfig tunes the cluster spreader.
type SpreadConfig struct {
	RadiusDeg float64 `yaml:"radius_deg"`
}

// ArcConfig tunes the arc builder.
type ArcConfig struct {
	Color model.Color `yaml:"color"`
}

// CacheConfig controls the snapshot cache. An empty path disables caching.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full daemon configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Feed   FeedConfig   `yaml:"feed"`
	Spread SpreadConfig `yaml:"spread"`
	Arcs   ArcConfig    `yaml:"arcs"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{Listen: ":8080"},
		Feed: FeedConfig{
			Mode:              FeedModeNone,
			Interval:          Duration(30 * time.Second),
			FallbackLat:       34.0549,
			FallbackLon:       -118.2426,
			FallbackElevation: 10000,
		},
		Spread: SpreadConfig{RadiusDeg: core.DefaultSpreadRadiusDeg},
		Arcs:   ArcConfig{Color: model.DefaultArcColor},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the config file at path, falling back to defaults when path is
// empty or the file does not exist, then applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %q: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// Defaults + env only.
		default:
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	switch c.Feed.Mode {
	case FeedModePoll, FeedModeWebsocket:
		if c.Feed.URL == "" {
			return fmt.Errorf("feed mode %q requires feed.url", c.Feed.Mode)
		}
	case FeedModeNone:
	default:
		return fmt.Errorf("unknown feed mode %q", c.Feed.Mode)
	}

	if c.Feed.Interval.Std() <= 0 {
		return errors.New("feed.interval must be positive")
	}
	if c.Spread.RadiusDeg <= 0 {
		return errors.New("spread.radius_deg must be positive")
	}
	if c.Server.Listen == "" {
		return errors.New("server.listen must be set")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PEERGLOBE_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("PEERGLOBE_FEED_MODE"); v != "" {
		cfg.Feed.Mode = v
	}
	if v := os.Getenv("PEERGLOBE_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("PEERGLOBE_FEED_API_KEY"); v != "" {
		cfg.Feed.APIKey = v
	}
	if v := os.Getenv("PEERGLOBE_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("PEERGLOBE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PEERGLOBE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
