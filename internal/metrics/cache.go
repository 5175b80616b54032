package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/exactauth/internal/cache"
)

// CacheCollector exposes the session cache counters.
type CacheCollector struct {
	stats func(ctx context.Context) (cache.Stats, error)

	keysDesc   *prometheus.Desc
	hitsDesc   *prometheus.Desc
	missesDesc *prometheus.Desc
}

func NewCacheCollector(c cache.Client) *CacheCollector {
	labels := []string{"driver"}
	return &CacheCollector{
		stats:      c.Stats,
		keysDesc:   prometheus.NewDesc("session_cache_keys", "Keys held by the session cache", labels, nil),
		hitsDesc:   prometheus.NewDesc("session_cache_hits_total", "Session cache hits", labels, nil),
		missesDesc: prometheus.NewDesc("session_cache_misses_total", "Session cache misses", labels, nil),
	}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keysDesc
	ch <- c.hitsDesc
	ch <- c.missesDesc
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := c.stats(ctx)
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.keysDesc, prometheus.GaugeValue, float64(st.Keys), st.Driver)
	ch <- prometheus.MustNewConstMetric(c.hitsDesc, prometheus.CounterValue, float64(st.Hits), st.Driver)
	ch <- prometheus.MustNewConstMetric(c.missesDesc, prometheus.CounterValue, float64(st.Misses), st.Driver)
}

// RegisterCache registers a CacheCollector for c.
func (m *Metrics) RegisterCache(c cache.Client) error {
	if m == nil || c == nil {
		return nil
	}
	reg, ok := m.gatherer.(prometheus.Registerer)
	if !ok {
		return nil
	}
	return Register(reg, NewCacheCollector(c))
}
