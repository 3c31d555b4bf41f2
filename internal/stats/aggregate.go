package stats

import (
	"time"

	"github.com/itoreflect/reflector/internal/classify"
)

// Aggregate is the supervisor's summed snapshot across all workers,
// returned by get_stats. Every field is a relaxed point-in-time copy;
// the supervisor never holds a lock while reading worker blocks.
type Aggregate struct {
	PacketsReceived  uint64
	PacketsReflected uint64
	BytesReceived    uint64
	BytesReflected   uint64
	ErrTxFailed      uint64

	BySignature [classify.NumSigTypes]uint64
	ByReject    [classify.NumRejectReasons]uint64

	LatencyCount uint64
	LatencySumNs uint64
	LatencyMinNs uint64
	LatencyMaxNs uint64
}

// Aggregated sums every worker's shared stats block into a single
// Aggregate. Min/max are reduced with the usual semantics (zero-value
// minimums from idle workers are skipped).
func Aggregated(blocks []*WorkerBlock) Aggregate {
	var a Aggregate
	for _, w := range blocks {
		a.PacketsReceived += w.PacketsReceived.Load()
		a.PacketsReflected += w.PacketsReflected.Load()
		a.BytesReceived += w.BytesReceived.Load()
		a.BytesReflected += w.BytesReflected.Load()
		a.ErrTxFailed += w.ErrTxFailed.Load()
		for i := range a.BySignature {
			a.BySignature[i] += w.BySignature[i].Load()
		}
		for i := range a.ByReject {
			a.ByReject[i] += w.ByReject[i].Load()
		}
		a.LatencyCount += w.LatencyCount.Load()
		a.LatencySumNs += w.LatencySumNs.Load()
		if mn := w.LatencyMinNs.Load(); mn != 0 && (a.LatencyMinNs == 0 || mn < a.LatencyMinNs) {
			a.LatencyMinNs = mn
		}
		if mx := w.LatencyMaxNs.Load(); mx > a.LatencyMaxNs {
			a.LatencyMaxNs = mx
		}
	}
	return a
}

// LatencyAvgNs returns sum_ns / count, or 0 if no samples were recorded.
func (a Aggregate) LatencyAvgNs() uint64 {
	if a.LatencyCount == 0 {
		return 0
	}
	return a.LatencySumNs / a.LatencyCount
}

// Snapshot is the derived, caller-facing view: raw counters plus pps/mbps
// computed from wall-clock elapsed time since Start. The core itself only
// ever exposes raw counters (§6); this is a convenience projection a
// caller would otherwise compute itself from the same counters.
type Snapshot struct {
	Aggregate
	Elapsed        time.Duration
	PacketsPerSec  float64
	MbitsPerSec    float64
	ErrorRate      float64
}

// Snapshot computes the derived view of a as of elapsed time since Start.
func (a Aggregate) Snapshot(elapsed time.Duration) Snapshot {
	s := Snapshot{Aggregate: a, Elapsed: elapsed}
	secs := elapsed.Seconds()
	if secs > 0 {
		s.PacketsPerSec = float64(a.PacketsReflected) / secs
		s.MbitsPerSec = float64(a.BytesReflected) * 8 / secs / 1e6
	}

	var totalReject uint64
	for _, v := range a.ByReject {
		totalReject += v
	}
	totalErrors := totalReject + a.ErrTxFailed
	if a.PacketsReceived > 0 {
		s.ErrorRate = float64(totalErrors) / float64(a.PacketsReceived) * 100.0
	}
	return s
}
