// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Hatena    HatenaConfig    `mapstructure:"hatena"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Selection SelectionConfig `mapstructure:"selection"`
	Qiita     QiitaConfig     `mapstructure:"qiita"`
	Zenn      ZennConfig      `mapstructure:"zenn"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HTTPConfig configures outbound HTTP clients.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// HatenaConfig governs the archive crawl and bookmark lookups.
type HatenaConfig struct {
	Selector         string        `mapstructure:"selector"`
	BookmarkEndpoint string        `mapstructure:"bookmark_endpoint"`
	StartYear        int           `mapstructure:"start_year"`
	PaceEvery        int           `mapstructure:"pace_every"`
	PaceDelay        time.Duration `mapstructure:"pace_delay"`
	ProgressEvery    int           `mapstructure:"progress_every"`
}

// EnrichConfig sizes the bookmark lookup worker pool.
type EnrichConfig struct {
	Workers       int     `mapstructure:"workers"`
	ProgressEvery int     `mapstructure:"progress_every"`
	LookupRPS     float64 `mapstructure:"lookup_rps"`
	LookupBurst   int     `mapstructure:"lookup_burst"`
}

// CacheConfig locates snapshot files and sets their lifetime.
type CacheConfig struct {
	Dir       string        `mapstructure:"dir"`
	Freshness time.Duration `mapstructure:"freshness"`
}

// SelectionConfig tunes the random pickers.
type SelectionConfig struct {
	BookmarkedProbability float64 `mapstructure:"bookmarked_probability"`
	TopN                  int     `mapstructure:"top_n"`
}

// QiitaConfig points at the Qiita API.
type QiitaConfig struct {
	APIBase     string `mapstructure:"api_base"`
	PerPage     int    `mapstructure:"per_page"`
	MaxArticles int    `mapstructure:"max_articles"`
}

// ZennConfig points at the Zenn API.
type ZennConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	PerPage     int    `mapstructure:"per_page"`
	MaxArticles int    `mapstructure:"max_articles"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. With an empty path it looks
// for an optional config.{yaml,json,toml} in the working directory and then
// in $HOME/.articlepicker.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARTICLEPICKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.articlepicker")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 15*time.Minute)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	v.SetDefault("hatena.selector", "a.entry-title-link")
	v.SetDefault("hatena.bookmark_endpoint", "https://b.hatena.ne.jp/entry/jsonlite/")
	v.SetDefault("hatena.start_year", 2014)
	v.SetDefault("hatena.pace_every", 10)
	v.SetDefault("hatena.pace_delay", time.Second)
	v.SetDefault("hatena.progress_every", 50)
	v.SetDefault("enrich.workers", 20)
	v.SetDefault("enrich.progress_every", 50)
	v.SetDefault("enrich.lookup_rps", 0)
	v.SetDefault("enrich.lookup_burst", 1)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.freshness", 24*time.Hour)
	v.SetDefault("selection.bookmarked_probability", 0.7)
	v.SetDefault("selection.top_n", 100)
	v.SetDefault("qiita.api_base", "https://qiita.com/api/v2")
	v.SetDefault("qiita.per_page", 100)
	v.SetDefault("qiita.max_articles", 200)
	v.SetDefault("zenn.base_url", "https://zenn.dev")
	v.SetDefault("zenn.per_page", 50)
	v.SetDefault("zenn.max_articles", 200)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Hatena.StartYear <= 0 {
		return fmt.Errorf("hatena.start_year must be > 0")
	}
	if c.Hatena.PaceEvery <= 0 {
		return fmt.Errorf("hatena.pace_every must be > 0")
	}
	if c.Hatena.PaceDelay < 0 {
		return fmt.Errorf("hatena.pace_delay must be >= 0")
	}
	if c.Enrich.Workers <= 0 {
		return fmt.Errorf("enrich.workers must be > 0")
	}
	if c.Enrich.LookupRPS < 0 {
		return fmt.Errorf("enrich.lookup_rps must be >= 0")
	}
	if c.Cache.Freshness <= 0 {
		return fmt.Errorf("cache.freshness must be > 0")
	}
	if p := c.Selection.BookmarkedProbability; p < 0 || p > 1 {
		return fmt.Errorf("selection.bookmarked_probability must be within [0, 1]")
	}
	if c.Selection.TopN <= 0 {
		return fmt.Errorf("selection.top_n must be > 0")
	}
	if c.Qiita.PerPage <= 0 || c.Qiita.PerPage > 100 {
		return fmt.Errorf("qiita.per_page must be within [1, 100]")
	}
	if c.Zenn.PerPage <= 0 {
		return fmt.Errorf("zenn.per_page must be > 0")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
