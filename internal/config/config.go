// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. IRCCRAWLER_OUTPUT_DIR.
const EnvPrefix = "IRCCRAWLER"

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig      `mapstructure:"site"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Navigator NavigatorConfig `mapstructure:"navigator"`
	Output    OutputConfig    `mapstructure:"output"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Status    StatusConfig    `mapstructure:"status"`
	GCS       GCSConfig       `mapstructure:"gcs"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
}

// SiteConfig identifies the origin being crawled.
type SiteConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	TOCURL     string `mapstructure:"toc_url"`
	PathPrefix string `mapstructure:"path_prefix"`
	UserAgent  string `mapstructure:"user_agent"`
}

// HTTPConfig configures request timeouts, spacing, and retries.
type HTTPConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Delay       time.Duration `mapstructure:"delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// NavigatorConfig tunes link filtering.
type NavigatorConfig struct {
	DenyList       []string `mapstructure:"deny_list"`
	Fragments      []string `mapstructure:"fragments"`
	MinTitleLength int      `mapstructure:"min_title_length"`
}

// OutputConfig sets where sections and checkpoints land.
type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	FlushEvery int    `mapstructure:"flush_every"`
}

// ExtractConfig drives the default content extractor.
type ExtractConfig struct {
	CitationFormat  string `mapstructure:"citation_format"`
	ContentSelector string `mapstructure:"content_selector"`
}

// LoggingConfig toggles zap development features and the log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	Level       string `mapstructure:"level"`
}

// StatusConfig enables the status HTTP server when Addr is set.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// GCSConfig enables mirroring written files to a bucket.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for section notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// CatalogConfig controls the optional Postgres section catalog.
type CatalogConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
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
	v.SetDefault("site.base_url", "https://irc.bloombergtax.com")
	v.SetDefault("site.toc_url", "https://irc.bloombergtax.com/public/uscode/toc/irc")
	v.SetDefault("site.path_prefix", "/public/uscode/")
	v.SetDefault("site.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.delay", time.Second)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_base", time.Second)
	v.SetDefault("navigator.deny_list",
		[]string{"Bloomberg", "Log In", "About Us", "Contact", "Copyright", "Terms", "Privacy", "Request"})
	v.SetDefault("navigator.fragments", []string{"subtitle-", "chapter-", "subchapter-", "part-", "section_"})
	v.SetDefault("navigator.min_title_length", 5)
	v.SetDefault("output.dir", "irc_data")
	v.SetDefault("output.flush_every", 1)
	v.SetDefault("extract.citation_format", "26 U.S.C. § %s")
	v.SetDefault("extract.content_selector", "p")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "irc_scraper.log")
	v.SetDefault("logging.level", "info")
	v.SetDefault("catalog.table", "irc_sections")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	toc, err := url.Parse(c.Site.TOCURL)
	if err != nil || toc.Scheme == "" || toc.Host == "" {
		return fmt.Errorf("site.toc_url must be an absolute URL")
	}
	if c.Site.PathPrefix == "" {
		return fmt.Errorf("site.path_prefix is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.Delay < 0 {
		return fmt.Errorf("http.delay must be >= 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffBase < 0 {
		return fmt.Errorf("http.backoff_base must be >= 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Output.FlushEvery <= 0 {
		return fmt.Errorf("output.flush_every must be > 0")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.Catalog.DSN != "" && c.Catalog.Table == "" {
		return fmt.Errorf("catalog.table must be set when catalog.dsn is set")
	}
	return nil
}
