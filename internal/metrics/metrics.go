// Package metrics holds the engine's in-process atomic counters. Counters are
// cheap enough to leave always-on in production; when disabled every operation
// is a no-op.
package metrics

import "sync/atomic"

// MetricID identifies one counter.
type MetricID uint8

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricPasswordLockout
	MetricTOTPLockout
	MetricTOTPReplayRejected
	MetricTokenIssued
	MetricTokenRedeemed
	MetricTokenExpired
	MetricTokenRevoked
	MetricRegistrationSuccess
	MetricRegistrationDuplicate
	MetricRegistrationContended
	MetricAccountUpdateStale
	MetricTreeBuilt

	MetricIDCount
)

// Config controls metric collection.
type Config struct {
	Enabled bool
}

// Metrics is a fixed array of atomic counters.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]atomic.Uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: make(map[MetricID]uint64, MetricIDCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
