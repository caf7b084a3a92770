package ingestion_engine

import "sync/atomic"

// WorkerStats counts job outcomes since the worker started.
type WorkerStats struct {
	claimed   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
	requeued  atomic.Int64
}

type StatsSnapshot struct {
	Claimed   int64 `json:"claimed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
	Requeued  int64 `json:"requeued"`
}

func (s *WorkerStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Claimed:   s.claimed.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Panics:    s.panics.Load(),
		Requeued:  s.requeued.Load(),
	}
}
