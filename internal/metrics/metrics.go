// Package metrics holds the dispatcher's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_ticks_total",
		Help: "Dispatch ticks by result (idle, processed, error).",
	}, []string{"result"})

	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "postflow_tick_duration_seconds",
		Help:    "Wall time of non-idle dispatch ticks.",
		Buckets: []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
	})

	PublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_publish_total",
		Help: "Per-platform publish outcomes (published, failed, skipped).",
	}, []string{"platform", "outcome"})

	PublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postflow_publish_duration_seconds",
		Help:    "Duration of one platform publish task.",
		Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"platform"})

	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_token_refresh_total",
		Help: "Credential refresh attempts by result (refreshed, revoked, error).",
	}, []string{"platform", "result"})

	CredentialsRevoked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_credentials_revoked_total",
		Help: "Credentials deleted after an unrecoverable auth failure.",
	}, []string{"platform"})
)

func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		TicksTotal,
		TickDuration,
		PublishTotal,
		PublishDuration,
		RefreshTotal,
		CredentialsRevoked,
	)
}

func ObserveTick(result string, start time.Time) {
	TicksTotal.WithLabelValues(result).Inc()
	if result != "idle" {
		TickDuration.Observe(time.Since(start).Seconds())
	}
}

func ObservePublish(platform, outcome string, d time.Duration) {
	PublishTotal.WithLabelValues(platform, outcome).Inc()
	if outcome != "skipped" {
		PublishDuration.WithLabelValues(platform).Observe(d.Seconds())
	}
}

func ObserveRefresh(platform, result string) {
	RefreshTotal.WithLabelValues(platform, result).Inc()
	if result == "revoked" {
		CredentialsRevoked.WithLabelValues(platform).Inc()
	}
}
