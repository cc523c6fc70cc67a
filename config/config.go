// Package config holds linkrot's run configuration: defaults, an optional
// config file, and validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lukemcguire/linkrot/urlutil"
)

// Discovery sources for post URLs.
const (
	SourceArchive = "archive"
	SourceSitemap = "sitemap"
	SourceAuto    = "auto"
)

// Output formats for the result list.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// DefaultUserAgent is sent on every request.
const DefaultUserAgent = "Mozilla/5.0 (compatible; linkrot/1.0; +https://github.com/lukemcguire/linkrot)"

// DefaultAccept is sent on every request.
const DefaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Config stores all configuration for a run.
type Config struct {
	BaseURL string `mapstructure:"base_url"`
	Year    int    `mapstructure:"year"`
	Source  string `mapstructure:"source"`
	URLFile string `mapstructure:"url_file"`

	Concurrency    int           `mapstructure:"concurrency"`
	Timeout        int           `mapstructure:"timeout"` // per-attempt deadline, seconds
	ArchiveTimeout int           `mapstructure:"archive_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay  time.Duration `mapstructure:"max_retry_delay"`
	Verbose        bool          `mapstructure:"verbose"`
	UserAgent      string        `mapstructure:"user_agent"`
	Accept         string        `mapstructure:"accept"`

	IncludeInternal bool `mapstructure:"include_internal"`
	CheckPostsOnly  bool `mapstructure:"check_posts_only"`

	Output      string `mapstructure:"output"`
	Format      string `mapstructure:"format"`
	WriteURLs   bool   `mapstructure:"write_urls"`
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Source:         SourceAuto,
		Concurrency:    5,
		Timeout:        10,
		ArchiveTimeout: 30,
		MaxAttempts:    3,
		RetryDelay:     time.Second,
		MaxRetryDelay:  30 * time.Second,
		UserAgent:      DefaultUserAgent,
		Accept:         DefaultAccept,
		Format:         FormatText,
		LogLevel:       "info",
	}
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("source", def.Source)
	v.SetDefault("concurrency", def.Concurrency)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("archive_timeout", def.ArchiveTimeout)
	v.SetDefault("max_attempts", def.MaxAttempts)
	v.SetDefault("retry_delay", def.RetryDelay)
	v.SetDefault("max_retry_delay", def.MaxRetryDelay)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("accept", def.Accept)
	v.SetDefault("format", def.Format)
	v.SetDefault("log_level", def.LogLevel)
}

// Load reads configuration from the file at path (yaml, toml or json by
// extension) on top of the defaults. An empty path returns the defaults.
// The result is not validated; callers apply flag overrides first.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	return cfg, nil
}

func (c *Config) normalise() {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.URLFile = strings.TrimSpace(c.URLFile)
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	c.UserAgent = strings.TrimSpace(c.UserAgent)
}

// PerAttemptTimeout returns Timeout as a duration.
func (c Config) PerAttemptTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// ArchiveFetchTimeout returns ArchiveTimeout as a duration.
func (c Config) ArchiveFetchTimeout() time.Duration {
	return time.Duration(c.ArchiveTimeout) * time.Second
}

// Validate enforces the invariants a run depends on. Errors here are fatal
// configuration errors reported before any network activity.
func (c Config) Validate() error {
	var errs []error

	if _, err := urlutil.ValidateBase(c.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if c.Year != 0 && (c.Year < 1000 || c.Year > 9999) {
		errs = append(errs, fmt.Errorf("year must have 4 digits (got %d)", c.Year))
	}
	switch c.Source {
	case SourceArchive, SourceSitemap, SourceAuto:
	default:
		errs = append(errs, fmt.Errorf("source must be one of archive, sitemap, auto (got %q)", c.Source))
	}
	switch c.Format {
	case FormatText, FormatJSON, FormatCSV:
	default:
		errs = append(errs, fmt.Errorf("format must be one of text, json, csv (got %q)", c.Format))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be > 0 (got %d)", c.Concurrency))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be > 0 (got %d)", c.Timeout))
	}
	if c.ArchiveTimeout <= 0 {
		errs = append(errs, fmt.Errorf("archive_timeout must be > 0 (got %d)", c.ArchiveTimeout))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be >= 1 (got %d)", c.MaxAttempts))
	}
	if c.RetryDelay < 0 || c.MaxRetryDelay < c.RetryDelay {
		errs = append(errs, fmt.Errorf("retry delays must satisfy 0 <= retry_delay <= max_retry_delay (got %s, %s)", c.RetryDelay, c.MaxRetryDelay))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("user_agent must be set"))
	}

	return errors.Join(errs...)
}
