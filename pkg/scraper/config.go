package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/rosakhutor-webcams/pkg/transport"
)

// Site defaults.
const (
	DefaultSiteURL     = "https://rosakhutor.com"
	DefaultWidgetURL   = "https://sochi.camera"
	DefaultStreamPort  = 8081
	DefaultStreamToken = "bisv_dgZK"

	DefaultUserAgent       = "Mozilla/5.0 (X11; CrOS x86_64 8172.45.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/51.0.2704.64 Safari/537.36"
	DefaultDetailUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/92.0.4515.159 Safari/537.36 Edg/92.0.902.84"
)

// Header profile names.
const (
	ProfileDefault = "default"
	ProfileDetail  = "detail"
)

// Config holds the scraper configuration.
type Config struct {
	// SiteURL is the base of the resort site serving listing and item stubs
	SiteURL string

	// WidgetURL is the base of the camera widget host
	WidgetURL string

	// StreamPort is the HLS port on the widget host
	StreamPort int

	// StreamToken is the fixed access token appended to every stream URL
	StreamToken string

	// UserAgent is sent with listing and item requests
	UserAgent string

	// DetailUserAgent is sent with widget JSON requests
	DetailUserAgent string

	// StartPage is the first page Next fetches (>= 1)
	StartPage int
}

// DefaultConfig returns the configuration for the live sites.
func DefaultConfig() Config {
	return Config{
		SiteURL:         DefaultSiteURL,
		WidgetURL:       DefaultWidgetURL,
		StreamPort:      DefaultStreamPort,
		StreamToken:     DefaultStreamToken,
		UserAgent:       DefaultUserAgent,
		DetailUserAgent: DefaultDetailUserAgent,
		StartPage:       1,
	}
}

func (c Config) validate() error {
	for name, raw := range map[string]string{"site url": c.SiteURL, "widget url": c.WidgetURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be absolute (got %q)", name, raw)
		}
	}
	if c.StreamPort < 1 || c.StreamPort > 65535 {
		return fmt.Errorf("stream port out of range (got %d)", c.StreamPort)
	}
	if c.UserAgent == "" || c.DetailUserAgent == "" {
		return fmt.Errorf("user-agent is required")
	}
	if c.StartPage < 1 {
		return fmt.Errorf("%w (got %d)", ErrPageOutOfRange, c.StartPage)
	}
	return nil
}

// DefaultProfile returns the header profile for listing and item requests.
func DefaultProfile(cfg Config) transport.Profile {
	return transport.NewProfile(ProfileDefault, map[string]string{
		"User-Agent": cfg.UserAgent,
	})
}

// DetailProfile returns the header profile for widget JSON requests. The
// widget host only answers requests that look like a cross-site fetch from
// the resort site.
func DetailProfile(cfg Config) transport.Profile {
	site := strings.TrimRight(cfg.SiteURL, "/")
	widget := strings.TrimRight(cfg.WidgetURL, "/")

	host := widget
	if u, err := url.Parse(widget); err == nil {
		host = u.Host
	}

	return transport.NewProfile(ProfileDetail, map[string]string{
		"Accept":         "*/*",
		"Connection":     "keep-alive",
		"Host":           host,
		"Origin":         site,
		"Referer":        widget,
		"Sec-Fetch-Dest": "empty",
		"Sec-Fetch-Mode": "cors",
		"Sec-Fetch-Site": "cross-site",
		"User-Agent":     cfg.DetailUserAgent,
	})
}
