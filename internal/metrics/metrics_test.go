package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/exactauth/internal/cache"
)

func TestMetrics_RecordAndServe(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.ObserveProfileFetch("json", nil, 120*time.Millisecond)
	m.ObserveProfileFetch("xml", errors.New("boom"), time.Second)
	m.RecordLogin("exact", nil)
	m.RecordLogin("exact", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfileFetches.WithLabelValues("json", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfileFetches.WithLabelValues("xml", ResultError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SocialLogins.WithLabelValues("exact", ResultOK)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "exact_profile_fetch_total")
	assert.Contains(t, string(body), "social_logins_total")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveProfileFetch("json", nil, time.Millisecond)
	m.RecordLogin("exact", errors.New("x"))
	require.NoError(t, m.RegisterPool(nil))
	assert.NotNil(t, m.Handler())
}

func TestRegister_IgnoresDuplicates(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "x"})
	require.NoError(t, Register(reg, c))
	require.NoError(t, Register(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "x"})))
}

func TestRegisterCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	c := cache.NewMemory("")
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "session:a", "{}", time.Minute))
	_, _ = c.Get(ctx, "session:a")
	_, _ = c.Get(ctx, "session:missing")

	require.NoError(t, m.RegisterCache(c))
	require.NoError(t, m.RegisterCache(c))

	assert.Equal(t, 3, testutil.CollectAndCount(NewCacheCollector(c)))
	mfs, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				got[mf.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				got[mf.GetName()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, got["session_cache_keys"])
	assert.Equal(t, 1.0, got["session_cache_hits_total"])
	assert.Equal(t, 1.0, got["session_cache_misses_total"])
}
