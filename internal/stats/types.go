// Package stats implements the per-worker statistics batcher and the
// supervisor-side aggregation described by the worker statistics and
// reflector context sections of the data model: a thread-local batcher
// coalesces per-packet counter updates and flushes them into a
// cache-line-aligned shared block at a fixed cadence, so the supervisor's
// cross-thread reads stay off the hot path's cache lines.
package stats

import (
	"sync/atomic"

	"github.com/itoreflect/reflector/internal/classify"
)

// cachePad absorbs the tail of a WorkerBlock so adjacent blocks in a
// worker-indexed slice don't share a cache line.
const cachePad = 64

// WorkerBlock is one worker's shared statistics, written only by its
// owning worker and read by the supervisor via relaxed atomic loads.
// Torn reads of individual counters are acceptable (§3).
type WorkerBlock struct {
	PacketsReceived  atomic.Uint64
	PacketsReflected atomic.Uint64
	BytesReceived    atomic.Uint64
	BytesReflected   atomic.Uint64
	ErrTxFailed      atomic.Uint64

	BySignature [classify.NumSigTypes]atomic.Uint64
	ByReject    [classify.NumRejectReasons]atomic.Uint64

	LatencyCount  atomic.Uint64
	LatencySumNs  atomic.Uint64
	LatencyMinNs  atomic.Uint64
	LatencyMaxNs  atomic.Uint64

	_ [cachePad]byte
}

func (w *WorkerBlock) add(b *batch) {
	if b.packetsReceived != 0 {
		w.PacketsReceived.Add(b.packetsReceived)
	}
	if b.packetsReflected != 0 {
		w.PacketsReflected.Add(b.packetsReflected)
	}
	if b.bytesReceived != 0 {
		w.BytesReceived.Add(b.bytesReceived)
	}
	if b.bytesReflected != 0 {
		w.BytesReflected.Add(b.bytesReflected)
	}
	if b.errTxFailed != 0 {
		w.ErrTxFailed.Add(b.errTxFailed)
	}
	for i, v := range b.bySignature {
		if v != 0 {
			w.BySignature[i].Add(v)
		}
	}
	for i, v := range b.byReject {
		if v != 0 {
			w.ByReject[i].Add(v)
		}
	}
	if b.latencyCount != 0 {
		w.LatencyCount.Add(b.latencyCount)
		w.LatencySumNs.Add(b.latencySumNs)
		mergeMin(&w.LatencyMinNs, b.latencyMinNs)
		mergeMax(&w.LatencyMaxNs, b.latencyMaxNs)
	}
}

// Reset zeroes every counter; used by reset_stats between runs.
func (w *WorkerBlock) Reset() {
	w.PacketsReceived.Store(0)
	w.PacketsReflected.Store(0)
	w.BytesReceived.Store(0)
	w.BytesReflected.Store(0)
	w.ErrTxFailed.Store(0)
	for i := range w.BySignature {
		w.BySignature[i].Store(0)
	}
	for i := range w.ByReject {
		w.ByReject[i].Store(0)
	}
	w.LatencyCount.Store(0)
	w.LatencySumNs.Store(0)
	w.LatencyMinNs.Store(0)
	w.LatencyMaxNs.Store(0)
}

func mergeMin(dst *atomic.Uint64, v uint64) {
	for {
		cur := dst.Load()
		if cur != 0 && cur <= v {
			return
		}
		if dst.CompareAndSwap(cur, v) {
			return
		}
	}
}

func mergeMax(dst *atomic.Uint64, v uint64) {
	for {
		cur := dst.Load()
		if cur >= v {
			return
		}
		if dst.CompareAndSwap(cur, v) {
			return
		}
	}
}
