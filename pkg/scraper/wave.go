package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/rosakhutor-webcams/pkg/transport"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Wave names used in logs and metrics.
const (
	waveWidget = "widget"
	waveDetail = "detail"
)

// fetchWave issues one request per URL at once and returns the bodies in
// input order. Any failure cancels the remaining requests and fails the
// whole wave; partial results are dropped. The transport decides how many
// requests actually run in parallel per host.
func fetchWave(ctx context.Context, fetcher Fetcher, logger zerolog.Logger, wave string, urls []string, profile transport.Profile) ([]string, error) {
	start := time.Now()
	bodies := make([]string, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			body, err := fetcher.FetchText(gctx, u, profile)
			if err != nil {
				return fmt.Errorf("%s wave item %d: %w", wave, i, err)
			}
			bodies[i] = body
			return nil
		})
	}
	waveRequestsTotal.WithLabelValues(wave).Add(float64(len(urls)))

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug().
		Str("wave", wave).
		Int("requests", len(urls)).
		Dur("duration", time.Since(start)).
		Msg("Wave complete")

	return bodies, nil
}
