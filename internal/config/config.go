// Package config loads runtime configuration from command-line flags and
// ROSACAMS_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/rosakhutor-webcams/pkg/hostlimit"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/logging"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/scraper"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/transport"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. ROSACAMS_CONN_LIMIT.
const EnvPrefix = "ROSACAMS"

// Config keys. The matching flag uses dashes instead of underscores.
const (
	KeySiteURL         = "site_url"
	KeyWidgetURL       = "widget_url"
	KeyConnLimit       = "conn_limit"
	KeyTimeout         = "timeout"
	KeyUserAgent       = "user_agent"
	KeyDetailUserAgent = "detail_user_agent"
	KeyStreamPort      = "stream_port"
	KeyStreamToken     = "stream_token"
	KeyRedisAddr       = "redis_addr"
	KeyCacheTTL        = "cache_ttl"
	KeyLogLevel        = "log_level"
	KeyLogPretty       = "log_pretty"
	KeyMetricsAddr     = "metrics_addr"
)

// Config is the resolved runtime configuration.
type Config struct {
	SiteURL         string
	WidgetURL       string
	ConnLimit       int
	Timeout         time.Duration
	UserAgent       string
	DetailUserAgent string
	StreamPort      int
	StreamToken     string

	// RedisAddr enables the response cache when set
	RedisAddr string
	CacheTTL  time.Duration

	LogLevel  logging.LogLevel
	LogPretty bool

	// MetricsAddr enables the /metrics endpoint when set
	MetricsAddr string
}

// FlagName returns the command-line flag name for a config key.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags defines one flag per config key on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagName(KeySiteURL), scraper.DefaultSiteURL, "base URL of the resort site")
	fs.String(FlagName(KeyWidgetURL), scraper.DefaultWidgetURL, "base URL of the camera widget host")
	fs.Int(FlagName(KeyConnLimit), hostlimit.DefaultLimit, "concurrent connections per host")
	fs.Duration(FlagName(KeyTimeout), 30*time.Second, "timeout for a single request")
	fs.String(FlagName(KeyUserAgent), scraper.DefaultUserAgent, "User-Agent for listing and item requests")
	fs.String(FlagName(KeyDetailUserAgent), scraper.DefaultDetailUserAgent, "User-Agent for widget JSON requests")
	fs.Int(FlagName(KeyStreamPort), scraper.DefaultStreamPort, "HLS port on the widget host")
	fs.String(FlagName(KeyStreamToken), scraper.DefaultStreamToken, "access token appended to stream URLs")
	fs.String(FlagName(KeyRedisAddr), "", "Redis address for the response cache (disabled when empty)")
	fs.Duration(FlagName(KeyCacheTTL), 5*time.Minute, "cache TTL for responses without Expires")
	fs.String(FlagName(KeyLogLevel), string(logging.LevelInfo), "log level (debug, info, warn, error)")
	fs.Bool(FlagName(KeyLogPretty), false, "human-readable log output")
	fs.String(FlagName(KeyMetricsAddr), "", "serve Prometheus metrics on this address (disabled when empty)")
}

// Load resolves the configuration. Explicitly set flags win over
// environment variables, which win over flag defaults.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for _, key := range []string{
		KeySiteURL, KeyWidgetURL, KeyConnLimit, KeyTimeout, KeyUserAgent,
		KeyDetailUserAgent, KeyStreamPort, KeyStreamToken, KeyRedisAddr,
		KeyCacheTTL, KeyLogLevel, KeyLogPretty, KeyMetricsAddr,
	} {
		flag := fs.Lookup(FlagName(key))
		if flag == nil {
			return Config{}, fmt.Errorf("flag --%s not registered", FlagName(key))
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	level, err := logging.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		SiteURL:         v.GetString(KeySiteURL),
		WidgetURL:       v.GetString(KeyWidgetURL),
		ConnLimit:       v.GetInt(KeyConnLimit),
		Timeout:         v.GetDuration(KeyTimeout),
		UserAgent:       v.GetString(KeyUserAgent),
		DetailUserAgent: v.GetString(KeyDetailUserAgent),
		StreamPort:      v.GetInt(KeyStreamPort),
		StreamToken:     v.GetString(KeyStreamToken),
		RedisAddr:       v.GetString(KeyRedisAddr),
		CacheTTL:        v.GetDuration(KeyCacheTTL),
		LogLevel:        level,
		LogPretty:       v.GetBool(KeyLogPretty),
		MetricsAddr:     v.GetString(KeyMetricsAddr),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that the components would otherwise reject later.
func (c Config) Validate() error {
	if c.ConnLimit < 1 {
		return fmt.Errorf("%s: %w (got %d)", KeyConnLimit, hostlimit.ErrInvalidLimit, c.ConnLimit)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be positive (got %s)", KeyTimeout, c.Timeout)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%s must be positive (got %s)", KeyCacheTTL, c.CacheTTL)
	}
	if c.StreamPort < 1 || c.StreamPort > 65535 {
		return fmt.Errorf("%s out of range (got %d)", KeyStreamPort, c.StreamPort)
	}
	if c.SiteURL == "" || c.WidgetURL == "" {
		return fmt.Errorf("%s and %s are required", KeySiteURL, KeyWidgetURL)
	}
	return nil
}

// Scraper returns the scraper configuration starting at startPage.
func (c Config) Scraper(startPage int) scraper.Config {
	return scraper.Config{
		SiteURL:         c.SiteURL,
		WidgetURL:       c.WidgetURL,
		StreamPort:      c.StreamPort,
		StreamToken:     c.StreamToken,
		UserAgent:       c.UserAgent,
		DetailUserAgent: c.DetailUserAgent,
		StartPage:       startPage,
	}
}

// Transport returns the transport configuration without a cache; the
// caller attaches one when RedisAddr is set.
func (c Config) Transport() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.Timeout = c.Timeout
	cfg.ConnLimit = c.ConnLimit
	cfg.CacheTTL = c.CacheTTL
	return cfg
}

// Logging returns the logger configuration writing to stderr.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Pretty = c.LogPretty
	return cfg
}
