package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.LedgerOp("spend", "ok")
		m.CacheLookup(true)
		m.PublishFailed("chat")
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.LedgerOp("spend", "insufficient_funds")
	m.LedgerOp("spend", "insufficient_funds")
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ledgerOps.WithLabelValues("spend", "insufficient_funds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
}
