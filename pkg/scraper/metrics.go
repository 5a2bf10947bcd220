package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	advancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosacams_advances_total",
		Help: "Page advances by result",
	}, []string{"result"}) // "ok", "empty", "error", "exhausted"

	camerasTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rosacams_cameras_total",
		Help: "Camera records produced",
	})

	advanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rosacams_advance_duration_seconds",
		Help:    "Duration of one page advance including both waves",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
	})

	waveRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosacams_wave_requests_total",
		Help: "Per-camera requests issued by wave",
	}, []string{"wave"}) // "widget", "detail"
)
