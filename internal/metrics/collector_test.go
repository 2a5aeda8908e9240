package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.CacheHit("workflow_result", "exact")
	c.CacheHit("workflow_result", "semantic")
	c.CacheMiss("workflow_result")
	c.FlightStarted()
	c.FlightShared()
	c.EmbedFailure()

	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheHits.WithLabelValues("workflow_result", "exact")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheHits.WithLabelValues("workflow_result", "semantic")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheMisses.WithLabelValues("workflow_result")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.flightsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.flightsShared))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.embedFailures))
}

func TestCollector_InFlightGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SubmitStarted()
	c.SubmitStarted()
	c.SubmitFinished()

	assert.Equal(t, float64(1), testutil.ToFloat64(c.requestsInFlight))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.CacheHit("workflow_result", "exact")
		c.CacheMiss("workflow_result")
		c.FlightStarted()
		c.FlightShared()
		c.StepDuration("reply_generation", "completed", 0.2)
		c.SubmitStarted()
		c.SubmitFinished()
		c.EmbedFailure()
	})
}
