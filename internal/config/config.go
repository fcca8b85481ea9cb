package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile        = "sitefetch.yaml"
	DefaultEnvFile           = ".env"
	DefaultStoragePath       = ".sitefetch/sitefetch.db"
	DefaultRetainDays        = 30
	DefaultMaxPosts          = 10
	DefaultPageSizeLimit     = 100
	DefaultMaxRequests       = 10
	DefaultMaxEmbedDepth     = 3
	DefaultFilter            = "posts_no_replies"
	DefaultPDS               = "https://bsky.social"
	DefaultBlueskyOutput     = "data/bluesky.json"
	DefaultTimeout           = 30 * time.Second
	DefaultUsernameEnv       = "BLUESKY_USERNAME"
	DefaultAppPasswordEnv    = "BLUESKY_APP_PASSWORD"
	DefaultYouTubeAPIKeyEnv  = "YOUTUBE_API_KEY"
	DefaultYouTubeMaxResults = 50
	DefaultStaleUpcomingDays = 7

	// PlaceholderHandle is the handle written by `sitefetch init`.
	PlaceholderHandle = "your-handle.bsky.social"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Bluesky BlueskyConfig `yaml:"bluesky"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Storage StorageConfig `yaml:"storage"`
	Privacy PrivacyConfig `yaml:"privacy"`
}

type BlueskyConfig struct {
	Handle           string   `yaml:"handle"`
	MaxPosts         int      `yaml:"max_posts"`
	EnablePagination *bool    `yaml:"enable_pagination"`
	PageSizeLimit    int      `yaml:"page_size_limit"`
	MaxRequests      int      `yaml:"max_requests"`
	MaxEmbedDepth    int      `yaml:"max_embed_depth"`
	Filter           string   `yaml:"filter"`
	PDS              string   `yaml:"pds"`
	Timeout          Duration `yaml:"timeout"`
	UsernameEnv      string   `yaml:"username_env"`
	AppPasswordEnv   string   `yaml:"app_password_env"`
	Output           string   `yaml:"output"`

	// Resolved from env vars at load time.
	Username    string `yaml:"-"`
	AppPassword string `yaml:"-"`
}

// Configured reports whether a handle is set.
func (b BlueskyConfig) Configured() bool {
	return strings.TrimSpace(b.Handle) != ""
}

// Paginate reports whether multi-page fetching is on. It defaults to true.
func (b BlueskyConfig) Paginate() bool {
	return b.EnablePagination == nil || *b.EnablePagination
}

type YouTubeConfig struct {
	APIKeyEnv         string          `yaml:"api_key_env"`
	MaxResults        int             `yaml:"max_results"`
	StaleUpcomingDays int             `yaml:"stale_upcoming_days"`
	Channels          []ChannelConfig `yaml:"channels"`

	// Resolved from env var at load time. Empty means the keyless feed is used.
	APIKey string `yaml:"-"`
}

// Configured reports whether any channel is listed.
func (y YouTubeConfig) Configured() bool {
	return len(y.Channels) > 0
}

type ChannelConfig struct {
	ChannelID string `yaml:"channel_id"`
	Name      string `yaml:"name"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

// Load reads sitefetch.yaml from dir, applies defaults, resolves env vars, and
// validates. A .env file in dir or the working directory is loaded first;
// variables already set in the environment win.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	if err := loadEnvFiles(filepath.Join(dir, DefaultEnvFile), DefaultEnvFile); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func loadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	b := &cfg.Bluesky
	if b.MaxPosts == 0 {
		b.MaxPosts = DefaultMaxPosts
	}
	if b.PageSizeLimit == 0 {
		b.PageSizeLimit = DefaultPageSizeLimit
	}
	if b.MaxRequests == 0 {
		b.MaxRequests = DefaultMaxRequests
	}
	if b.MaxEmbedDepth == 0 {
		b.MaxEmbedDepth = DefaultMaxEmbedDepth
	}
	if b.Filter == "" {
		b.Filter = DefaultFilter
	}
	if b.PDS == "" {
		b.PDS = DefaultPDS
	}
	if b.Timeout.Duration == 0 {
		b.Timeout.Duration = DefaultTimeout
	}
	if b.UsernameEnv == "" {
		b.UsernameEnv = DefaultUsernameEnv
	}
	if b.AppPasswordEnv == "" {
		b.AppPasswordEnv = DefaultAppPasswordEnv
	}
	if b.Output == "" {
		b.Output = DefaultBlueskyOutput
	}

	y := &cfg.YouTube
	if y.APIKeyEnv == "" {
		y.APIKeyEnv = DefaultYouTubeAPIKeyEnv
	}
	if y.MaxResults == 0 {
		y.MaxResults = DefaultYouTubeMaxResults
	}
	if y.StaleUpcomingDays == 0 {
		y.StaleUpcomingDays = DefaultStaleUpcomingDays
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}
}

func resolveEnv(cfg *Config) {
	cfg.Bluesky.Username = os.Getenv(cfg.Bluesky.UsernameEnv)
	cfg.Bluesky.AppPassword = os.Getenv(cfg.Bluesky.AppPasswordEnv)
	cfg.YouTube.APIKey = os.Getenv(cfg.YouTube.APIKeyEnv)
}

func validate(cfg *Config) error {
	if !cfg.Bluesky.Configured() && !cfg.YouTube.Configured() {
		return errors.New("at least one of bluesky.handle or youtube.channels must be configured")
	}

	if cfg.Bluesky.Configured() {
		b := cfg.Bluesky
		if strings.EqualFold(strings.TrimSpace(b.Handle), PlaceholderHandle) {
			return fmt.Errorf("bluesky.handle: replace the placeholder %q with your handle", PlaceholderHandle)
		}
		if b.MaxPosts < 0 {
			return fmt.Errorf("bluesky.max_posts: must be positive, got %d", b.MaxPosts)
		}
		if b.PageSizeLimit < 0 || b.PageSizeLimit > DefaultPageSizeLimit {
			return fmt.Errorf("bluesky.page_size_limit: must be between 1 and %d, got %d", DefaultPageSizeLimit, b.PageSizeLimit)
		}
		if b.MaxRequests < 0 {
			return fmt.Errorf("bluesky.max_requests: must be positive, got %d", b.MaxRequests)
		}
		if b.MaxEmbedDepth < 0 {
			return fmt.Errorf("bluesky.max_embed_depth: must be positive, got %d", b.MaxEmbedDepth)
		}
	}

	seen := make(map[string]bool, len(cfg.YouTube.Channels))
	for i, ch := range cfg.YouTube.Channels {
		id := strings.TrimSpace(ch.ChannelID)
		if id == "" {
			return fmt.Errorf("youtube.channels[%d]: channel_id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("youtube.channels[%d]: duplicate channel_id %q", i, id)
		}
		seen[id] = true
	}
	if cfg.YouTube.MaxResults < 0 {
		return fmt.Errorf("youtube.max_results: must be positive, got %d", cfg.YouTube.MaxResults)
	}
	if cfg.YouTube.StaleUpcomingDays < 0 {
		return fmt.Errorf("youtube.stale_upcoming_days: must be positive, got %d", cfg.YouTube.StaleUpcomingDays)
	}

	if cfg.Storage.RetainDays < 0 {
		return fmt.Errorf("storage.retain_days: must be positive, got %d", cfg.Storage.RetainDays)
	}

	return nil
}
