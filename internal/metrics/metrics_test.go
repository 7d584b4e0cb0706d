package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BroadcastPublished()
		m.BroadcastApplied()
		m.BroadcastDropped(DropTyping)
		m.SaveFinished(SaveOK, time.Second)
		m.ChangeEvent("insert", true)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BroadcastPublished()
	m.BroadcastPublished()
	m.BroadcastDropped(DropTyping)
	m.BroadcastDropped(DropSelf)
	m.BroadcastDropped(DropTyping)
	m.SaveFinished(SaveOK, 20*time.Millisecond)
	m.SaveFinished(SaveInvalid, 0)
	m.ChangeEvent("update", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.broadcastsPublished))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.broadcastsDropped.WithLabelValues(DropTyping)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues(SaveInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changeEvents.WithLabelValues("update", "false")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.saveDuration))
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
