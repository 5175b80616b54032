// Package metrics holds the Prometheus collectors of the service. It sits on
// its own so that the HTTP layer and the provider adapters can both record
// without importing each other.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInflight *prometheus.GaugeVec

	ProfileFetches       *prometheus.CounterVec
	ProfileFetchDuration *prometheus.HistogramVec
	SocialLogins         *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg means a
// fresh registry, which is what tests want.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests processed",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests in flight by method and route",
		}, []string{"method", "path"}),
		ProfileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exact_profile_fetch_total",
			Help: "Exact Online profile fetches by representation and result",
		}, []string{"format", "result"}),
		ProfileFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exact_profile_fetch_duration_seconds",
			Help:    "Latency of the /api/v1/current/Me call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"format"}),
		SocialLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_logins_total",
			Help: "Completed social login callbacks by provider and result",
		}, []string{"provider", "result"}),
	}

	for _, c := range []prometheus.Collector{
		m.HTTPRequests, m.HTTPDuration, m.HTTPInflight,
		m.ProfileFetches, m.ProfileFetchDuration, m.SocialLogins,
	} {
		if err := Register(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register registers c, ignoring duplicates.
func Register(reg prometheus.Registerer, c prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// Handler serves /metrics for the registry the collectors live in.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveProfileFetch records one profile call.
func (m *Metrics) ObserveProfileFetch(format string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.ProfileFetches.WithLabelValues(format, result(err)).Inc()
	m.ProfileFetchDuration.WithLabelValues(format).Observe(d.Seconds())
}

// RecordLogin records the outcome of a callback.
func (m *Metrics) RecordLogin(provider string, err error) {
	if m == nil {
		return
	}
	m.SocialLogins.WithLabelValues(provider, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
