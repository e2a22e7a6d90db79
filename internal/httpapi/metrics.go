package httpapi

import "sync/atomic"

// Metrics captures lightweight in-process counters for observability.
type Metrics struct {
	Requests     atomic.Uint64
	Sends        atomic.Uint64
	Backups      atomic.Uint64
	Restores     atomic.Uint64
	HealthChecks atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Requests     uint64 `json:"requests"`
	Sends        uint64 `json:"sends"`
	Backups      uint64 `json:"backups"`
	Restores     uint64 `json:"restores"`
	HealthChecks uint64 `json:"health_checks"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:     m.Requests.Load(),
		Sends:        m.Sends.Load(),
		Backups:      m.Backups.Load(),
		Restores:     m.Restores.Load(),
		HealthChecks: m.HealthChecks.Load(),
	}
}
