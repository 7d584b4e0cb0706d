// Package metrics exposes Prometheus instruments for the edit mirroring and
// save paths. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons for incoming broadcasts.
const (
	DropSelf       = "self"
	DropOtherField = "other_field"
	DropStale      = "stale"
	DropTyping     = "typing"
	DropClosed     = "closed"
)

// Save outcomes.
const (
	SaveOK      = "ok"
	SaveInvalid = "invalid"
	SaveTimeout = "timeout"
	SaveStale   = "stale"
	SaveFailed  = "failed"
)

// Metrics groups the instruments registered by New.
type Metrics struct {
	broadcastsPublished prometheus.Counter
	broadcastsApplied   prometheus.Counter
	broadcastsDropped   *prometheus.CounterVec
	saves               *prometheus.CounterVec
	saveDuration        prometheus.Histogram
	changeEvents        *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
// Panics if they are already registered, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		broadcastsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tally_broadcasts_published_total",
			Help: "Edit snapshots published to collaboration topics",
		}),
		broadcastsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tally_broadcasts_applied_total",
			Help: "Incoming edit snapshots applied to a local editor",
		}),
		broadcastsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_broadcasts_dropped_total",
				Help: "Incoming edit snapshots discarded, by reason",
			},
			[]string{"reason"},
		),
		saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_saves_total",
				Help: "Save attempts, by outcome",
			},
			[]string{"outcome"},
		),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_save_duration_seconds",
			Help:    "Time from save request to store acknowledgment",
			Buckets: prometheus.DefBuckets,
		}),
		changeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_change_events_total",
				Help: "Count change events received, by type and whether they altered the index",
			},
			[]string{"type", "applied"},
		),
	}

	reg.MustRegister(
		m.broadcastsPublished,
		m.broadcastsApplied,
		m.broadcastsDropped,
		m.saves,
		m.saveDuration,
		m.changeEvents,
	)
	return m
}

func (m *Metrics) BroadcastPublished() {
	if m == nil {
		return
	}
	m.broadcastsPublished.Inc()
}

func (m *Metrics) BroadcastApplied() {
	if m == nil {
		return
	}
	m.broadcastsApplied.Inc()
}

func (m *Metrics) BroadcastDropped(reason string) {
	if m == nil {
		return
	}
	m.broadcastsDropped.WithLabelValues(reason).Inc()
}

// SaveFinished records one save attempt. Duration is only observed for
// attempts that reached the store.
func (m *Metrics) SaveFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.saveDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ChangeEvent(eventType string, applied bool) {
	if m == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.changeEvents.WithLabelValues(eventType, label).Inc()
}
