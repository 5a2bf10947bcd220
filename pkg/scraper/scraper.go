package scraper

import (
	"context"
	"fmt"
	"iter"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/rosakhutor-webcams/pkg/extract"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/logging"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fetcher is the transport the scraper needs. *transport.Client implements it.
type Fetcher interface {
	FetchText(ctx context.Context, url string, profile transport.Profile) (string, error)
}

// Camera is one webcam from the listing.
type Camera struct {
	Name      string `json:"name"`
	StreamURL string `json:"stream_url"`

	// DetailJSON is the raw widget JSON, empty unless details were requested.
	DetailJSON string `json:"detail_json,omitempty"`
}

// Scraper walks the webcam listing page by page.
// Next and Reset are serialized; concurrent callers get successive pages.
type Scraper struct {
	fetcher   Fetcher
	extractor *extract.Extractor
	config    Config
	logger    zerolog.Logger

	siteURL      string
	widgetURL    string
	streamPrefix string

	defaultProfile transport.Profile
	detailProfile  transport.Profile

	mu     sync.Mutex
	cursor Cursor
}

// New creates a scraper positioned at cfg.StartPage.
func New(fetcher Fetcher, cfg Config) (*Scraper, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cursor, err := NewCursor(cfg.StartPage)
	if err != nil {
		return nil, err
	}

	widget, err := url.Parse(strings.TrimRight(cfg.WidgetURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("widget url: %w", err)
	}

	return &Scraper{
		fetcher:        fetcher,
		extractor:      extract.New(),
		config:         cfg,
		logger:         logging.NewLogger("scraper"),
		siteURL:        strings.TrimRight(cfg.SiteURL, "/"),
		widgetURL:      widget.String(),
		streamPrefix:   widget.Scheme + "://" + net.JoinHostPort(widget.Hostname(), strconv.Itoa(cfg.StreamPort)),
		defaultProfile: DefaultProfile(cfg),
		detailProfile:  DetailProfile(cfg),
		cursor:         cursor,
	}, nil
}

// Next fetches the next listing page and enriches every camera on it.
//
// It returns no cameras once the listing runs out and keeps doing so
// until Reset. The page number moves forward before the listing is fetched,
// so a failed call skips that page on the next call.
func (s *Scraper) Next(ctx context.Context, includeDetails bool) ([]Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor.Exhausted() {
		advancesTotal.WithLabelValues("exhausted").Inc()
		return nil, nil
	}

	page := s.cursor.take()
	logger := s.logger.With().
		Str("advance_id", uuid.NewString()).
		Int("page", page).
		Bool("details", includeDetails).
		Logger()

	start := time.Now()
	cameras, err := s.scrapePage(ctx, logger, page, includeDetails)
	advanceDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		advancesTotal.WithLabelValues("error").Inc()
		logger.Warn().Err(err).Msg("Page advance failed")
		return nil, fmt.Errorf("page %d: %w", page, err)
	}

	if len(cameras) == 0 {
		s.cursor.exhaust()
		advancesTotal.WithLabelValues("empty").Inc()
		logger.Info().Msg("Listing exhausted")
		return nil, nil
	}

	advancesTotal.WithLabelValues("ok").Inc()
	camerasTotal.Add(float64(len(cameras)))
	logger.Info().
		Int("cameras", len(cameras)).
		Dur("duration", time.Since(start)).
		Msg("Page advanced")

	return cameras, nil
}

func (s *Scraper) scrapePage(ctx context.Context, logger zerolog.Logger, page int, includeDetails bool) ([]Camera, error) {
	listing, err := s.fetcher.FetchText(ctx, s.listURL(page), s.defaultProfile)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	names := s.extractor.All(listing, extract.FieldCameraName)
	if len(names) == 0 {
		return nil, nil
	}

	ids := s.extractor.All(listing, extract.FieldCameraID)
	if len(ids) != len(names) {
		return nil, fmt.Errorf("%w: %d names, %d ids", ErrCountMismatch, len(names), len(ids))
	}

	itemURLs := make([]string, len(ids))
	for i, id := range ids {
		itemURLs[i] = s.itemURL(id)
	}
	stubs, err := fetchWave(ctx, s.fetcher, logger, waveWidget, itemURLs, s.defaultProfile)
	if err != nil {
		return nil, err
	}

	tokens := make([]string, len(stubs))
	for i, stub := range stubs {
		tokens[i] = s.extractor.First(stub, extract.FieldWidgetToken)
		if tokens[i] == "" {
			logger.Warn().
				Str("camera_id", ids[i]).
				Str("camera", names[i]).
				Msg("No widget token in camera stub")
		}
	}

	var details []string
	if includeDetails {
		widgetURLs := make([]string, len(tokens))
		for i, token := range tokens {
			widgetURLs[i] = s.widgetJSONURL(token)
		}
		details, err = fetchWave(ctx, s.fetcher, logger, waveDetail, widgetURLs, s.detailProfile)
		if err != nil {
			return nil, err
		}
	}

	cameras := make([]Camera, len(names))
	for i := range names {
		cameras[i] = Camera{
			Name:      names[i],
			StreamURL: s.StreamURL(tokens[i]),
		}
		if details != nil {
			cameras[i].DetailJSON = details[i]
		}
	}
	return cameras, nil
}

// Reset moves the cursor to page and clears the exhausted flag.
// It waits for an in-flight Next to finish.
func (s *Scraper) Reset(page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cursor.Reset(page); err != nil {
		return err
	}
	s.logger.Debug().Int("page", page).Msg("Cursor reset")
	return nil
}

// Exhausted reports whether the listing has run out.
func (s *Scraper) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.Exhausted()
}

// NextPage returns the page the next call to Next will fetch.
func (s *Scraper) NextPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.NextPage()
}

// Pages yields one non-empty page at a time from the current cursor until
// the listing is exhausted. It stops after yielding the first error.
func (s *Scraper) Pages(ctx context.Context, includeDetails bool) iter.Seq2[[]Camera, error] {
	return func(yield func([]Camera, error) bool) {
		for {
			cameras, err := s.Next(ctx, includeDetails)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(cameras) == 0 {
				return
			}
			if !yield(cameras, nil) {
				return
			}
		}
	}
}

// StreamURL builds the HLS URL for a widget token. No request is made.
func (s *Scraper) StreamURL(token string) string {
	return fmt.Sprintf("%s/cam_%s/video.m3u8?token=%s", s.streamPrefix, token, s.config.StreamToken)
}

func (s *Scraper) listURL(page int) string {
	return fmt.Sprintf("%s/api/internal/component/about:camera.list?p=%d", s.siteURL, page)
}

func (s *Scraper) itemURL(id string) string {
	return fmt.Sprintf("%s/api/internal/component/about:camera.item/ajax?params[CAMERA_ID]=%s", s.siteURL, id)
}

func (s *Scraper) widgetJSONURL(token string) string {
	return fmt.Sprintf("%s/widget/widget.json?%s", s.widgetURL, token)
}
