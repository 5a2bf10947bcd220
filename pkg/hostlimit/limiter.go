// Package hostlimit caps the number of concurrent in-flight requests per
// destination host. Requests beyond the cap queue until a slot frees up.
package hostlimit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the per-host cap applied to hosts without an explicit limit.
const DefaultLimit = 5

// ErrInvalidLimit is returned for limits below 1.
var ErrInvalidLimit = errors.New("connection limit must be >= 1")

// Prometheus metrics for per-host concurrency.
var (
	hostInflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rosacams_host_inflight_requests",
		Help: "Requests currently holding a connection slot, by host",
	}, []string{"host"})

	hostQueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosacams_host_queued_total",
		Help: "Requests that had to wait for a free connection slot, by host",
	}, []string{"host"})
)

type hostSlots struct {
	limit int64
	sem   *semaphore.Weighted
}

// Limiter hands out connection slots per host.
type Limiter struct {
	mu           sync.Mutex
	defaultLimit int64
	hosts        map[string]*hostSlots
	logger       zerolog.Logger
}

// New creates a Limiter. A defaultLimit below 1 falls back to DefaultLimit.
func New(defaultLimit int, logger zerolog.Logger) *Limiter {
	if defaultLimit < 1 {
		defaultLimit = DefaultLimit
	}
	return &Limiter{
		defaultLimit: int64(defaultLimit),
		hosts:        make(map[string]*hostSlots),
		logger:       logger,
	}
}

// SetLimit sets the cap for a host. hostOrURL may be a bare host[:port] or a
// base URL such as "https://sochi.camera". Requests already holding a slot
// keep it; new requests see the new cap.
func (l *Limiter) SetLimit(hostOrURL string, n int) error {
	if n < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidLimit, n)
	}
	host, err := HostKey(hostOrURL)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.hosts[host] = &hostSlots{limit: int64(n), sem: semaphore.NewWeighted(int64(n))}
	l.mu.Unlock()

	l.logger.Debug().Str("host", host).Int("limit", n).Msg("Connection limit set")
	return nil
}

// Limit returns the cap in effect for a host.
func (l *Limiter) Limit(hostOrURL string) int {
	host, err := HostKey(hostOrURL)
	if err != nil {
		return int(l.defaultLimit)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if slots, ok := l.hosts[host]; ok {
		return int(slots.limit)
	}
	return int(l.defaultLimit)
}

// Acquire blocks until a slot for host is free or ctx is done.
// The returned release func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context, host string) (func(), error) {
	slots := l.slots(host)

	if !slots.sem.TryAcquire(1) {
		hostQueuedTotal.WithLabelValues(host).Inc()
		l.logger.Debug().
			Str("host", host).
			Int64("limit", slots.limit).
			Msg("Connection limit reached, queueing request")

		if err := slots.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("wait for %s connection slot: %w", host, err)
		}
	}

	hostInflight.WithLabelValues(host).Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			hostInflight.WithLabelValues(host).Dec()
			slots.sem.Release(1)
		})
	}, nil
}

func (l *Limiter) slots(host string) *hostSlots {
	l.mu.Lock()
	defer l.mu.Unlock()

	slots, ok := l.hosts[host]
	if !ok {
		slots = &hostSlots{limit: l.defaultLimit, sem: semaphore.NewWeighted(l.defaultLimit)}
		l.hosts[host] = slots
	}
	return slots
}

// HostKey normalizes a host or URL to the lower-cased host[:port] used as
// the limiter key.
func HostKey(hostOrURL string) (string, error) {
	s := strings.TrimSpace(hostOrURL)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("parse %q: %w", hostOrURL, err)
		}
		s = u.Host
	}
	if s == "" {
		return "", fmt.Errorf("no host in %q", hostOrURL)
	}
	return strings.ToLower(s), nil
}
