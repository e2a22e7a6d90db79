package delivery

import (
	"fmt"
	"sync/atomic"
)

// Metrics captures lightweight in-process delivery counters.
type Metrics struct {
	Sent       atomic.Uint64
	Queued     atomic.Uint64
	Failed     atomic.Uint64
	SyncPasses atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Sent       uint64 `json:"sent"`
	Queued     uint64 `json:"queued"`
	Failed     uint64 `json:"failed"`
	SyncPasses uint64 `json:"sync_passes"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Sent:       m.Sent.Load(),
		Queued:     m.Queued.Load(),
		Failed:     m.Failed.Load(),
		SyncPasses: m.SyncPasses.Load(),
	}
}

func (s MetricsSnapshot) String() string {
	return fmt.Sprintf("sent=%d queued=%d failed=%d sync_passes=%d", s.Sent, s.Queued, s.Failed, s.SyncPasses)
}
