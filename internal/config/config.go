package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/sydlexius/crawler/internal/logging"
	"github.com/sydlexius/crawler/internal/provider"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	Resolver ResolverConfig `yaml:"resolver" toml:"resolver"`
	// Sources is ordered: the order is the resolution order.
	Sources  []SourceConfig  `yaml:"sources" toml:"sources"`
	Webhooks []WebhookConfig `yaml:"webhooks" toml:"webhooks"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"` // json, text or pretty
	FilePath   string `yaml:"file_path" toml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxFiles   int    `yaml:"max_files" toml:"max_files"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// CacheConfig controls the HTTP response cache.
type CacheConfig struct {
	Enabled bool     `yaml:"enabled" toml:"enabled"`
	TTL     Duration `yaml:"ttl" toml:"ttl"`
}

// ResolverConfig tunes the resolution pass.
type ResolverConfig struct {
	Workers int      `yaml:"workers" toml:"workers"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

// SourceConfig configures one metadata source.
type SourceConfig struct {
	Name         string  `yaml:"name" toml:"name"`
	Enabled      bool    `yaml:"enabled" toml:"enabled"`
	RateLimit    float64 `yaml:"rate_limit" toml:"rate_limit"`
	Burst        int     `yaml:"burst" toml:"burst"`
	Threshold    int     `yaml:"threshold" toml:"threshold"`
	PageSize     int     `yaml:"page_size" toml:"page_size"`
	MaxPages     int     `yaml:"max_pages" toml:"max_pages"`
	APIKey       string  `yaml:"api_key" toml:"api_key"`
	ClientID     string  `yaml:"client_id" toml:"client_id"`
	ClientSecret string  `yaml:"client_secret" toml:"client_secret"`
	BaseURL      string  `yaml:"base_url" toml:"base_url"`
}

// WebhookConfig is an endpoint notified of resolution events.
type WebhookConfig struct {
	Name    string   `yaml:"name" toml:"name"`
	URL     string   `yaml:"url" toml:"url"`
	Type    string   `yaml:"type" toml:"type"` // generic, discord, slack or gotify
	Events  []string `yaml:"events" toml:"events"`
	Enabled bool     `yaml:"enabled" toml:"enabled"`
}

// Duration is a time.Duration written as "90s" or "24h" in config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a Config with sensible defaults.
func Default() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			Path: "data/crawler.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxFiles:   3,
			MaxAgeDays: 28,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     Duration(24 * time.Hour),
		},
		Resolver: ResolverConfig{
			Workers: 4,
			Timeout: Duration(2 * time.Minute),
		},
	}
	for _, name := range provider.AllProviderNames() {
		cfg.Sources = append(cfg.Sources, SourceConfig{
			Name:      string(name),
			Enabled:   true,
			RateLimit: provider.DefaultRateLimit(name),
			Burst:     1,
		})
	}
	return cfg
}

// Load reads config from a YAML or TOML file (if it exists) and overrides
// with environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("CRAWLER_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CRAWLER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CRAWLER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CRAWLER_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("CRAWLER_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cache.Enabled = b
		}
	}
	if v := os.Getenv("CRAWLER_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.TTL = Duration(d)
		}
	}
	if v := os.Getenv("CRAWLER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resolver.Workers = n
		}
	}
	if v := os.Getenv("CRAWLER_SOURCES"); v != "" {
		c.reorder(strings.Split(v, ","))
	}

	// Credentials per source, e.g. CRAWLER_LASTFM_API_KEY.
	for i := range c.Sources {
		prefix := "CRAWLER_" + strings.ToUpper(c.Sources[i].Name) + "_"
		if v := os.Getenv(prefix + "API_KEY"); v != "" {
			c.Sources[i].APIKey = v
		}
		if v := os.Getenv(prefix + "CLIENT_ID"); v != "" {
			c.Sources[i].ClientID = v
		}
		if v := os.Getenv(prefix + "CLIENT_SECRET"); v != "" {
			c.Sources[i].ClientSecret = v
		}
	}
}

// reorder enables exactly the named sources, in the given order, and
// disables the rest.
func (c *Config) reorder(names []string) {
	byName := make(map[string]SourceConfig, len(c.Sources))
	for _, s := range c.Sources {
		byName[s.Name] = s
	}
	var out []SourceConfig
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		s, ok := byName[n]
		if !ok {
			if n == "" {
				continue
			}
			s = SourceConfig{Name: n}
		}
		s.Enabled = true
		out = append(out, s)
		delete(byName, n)
	}
	for _, s := range c.Sources {
		if rest, ok := byName[s.Name]; ok {
			rest.Enabled = false
			out = append(out, rest)
		}
	}
	c.Sources = out
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	switch c.Logging.Format {
	case logging.FormatJSON, logging.FormatText, logging.FormatPretty:
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if c.Resolver.Workers < 1 {
		c.Resolver.Workers = 1
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}

	known := provider.AllProviderNames()
	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Name = strings.ToLower(strings.TrimSpace(s.Name))
		if !slices.Contains(known, provider.ProviderName(s.Name)) {
			return fmt.Errorf("unknown source: %q", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("source %q listed twice", s.Name)
		}
		seen[s.Name] = true
		if s.RateLimit < 0 {
			return fmt.Errorf("source %q: rate limit must not be negative", s.Name)
		}
		if s.RateLimit == 0 {
			s.RateLimit = provider.DefaultRateLimit(provider.ProviderName(s.Name))
		}
		if s.Burst < 1 {
			s.Burst = 1
		}
	}

	for i := range c.Webhooks {
		w := &c.Webhooks[i]
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
		if w.Name == "" {
			w.Name = w.URL
		}
		switch w.Type {
		case "":
			w.Type = "generic"
		case "generic", "discord", "slack", "gotify":
		default:
			return fmt.Errorf("webhook %q: invalid type %q", w.Name, w.Type)
		}
	}
	return nil
}

// Active returns the enabled sources in resolution order.
func (c *Config) Active() []provider.ProviderName {
	var out []provider.ProviderName
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, provider.ProviderName(s.Name))
		}
	}
	return out
}

// Source returns the configuration of name, or false.
func (c *Config) Source(name provider.ProviderName) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == string(name) {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// ProviderSettings converts the source list into adapter settings.
func (c *Config) ProviderSettings() map[provider.ProviderName]provider.SourceSettings {
	out := make(map[provider.ProviderName]provider.SourceSettings, len(c.Sources))
	for _, s := range c.Sources {
		out[provider.ProviderName(s.Name)] = provider.SourceSettings{
			APIKey:       s.APIKey,
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			BaseURL:      s.BaseURL,
			Threshold:    s.Threshold,
			PageSize:     s.PageSize,
			MaxPages:     s.MaxPages,
		}
	}
	return out
}

// RateLimiters builds limiters from the configured rates.
func (c *Config) RateLimiters() *provider.RateLimiterMap {
	m := provider.NewRateLimiterMap()
	for _, s := range c.Sources {
		m.Set(provider.ProviderName(s.Name), s.RateLimit, s.Burst)
	}
	return m
}
