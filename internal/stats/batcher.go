package stats

import "github.com/itoreflect/reflector/internal/classify"

// batch is the plain (non-atomic) accumulator shape shared by Batcher and
// the add() helper that flushes it into a WorkerBlock.
type batch struct {
	packetsReceived  uint64
	packetsReflected uint64
	bytesReceived    uint64
	bytesReflected   uint64
	errTxFailed      uint64

	bySignature [classify.NumSigTypes]uint64
	byReject    [classify.NumRejectReasons]uint64

	latencyCount uint64
	latencySumNs uint64
	latencyMinNs uint64
	latencyMaxNs uint64
}

// Batcher is a stack-allocated, thread-local accumulator. One lives on
// each worker's goroutine stack; it is never shared and needs no atomics.
type Batcher struct {
	batch
	burstCount int
}

// FlushThreshold is the number of receive bursts after which Flush should
// be called (STATS_FLUSH_BATCHES = 8, ≈512 packets at batch size 64).
const FlushThreshold = 8

// RecordBurst accounts one receive burst of n packets totalling
// bytesReceived bytes, and increments the burst counter. It returns true
// once the burst counter has reached FlushThreshold, signalling the
// worker loop to call Flush.
func (b *Batcher) RecordBurst(n int, bytesReceived uint64) bool {
	b.packetsReceived += uint64(n)
	b.bytesReceived += bytesReceived
	b.burstCount++
	return b.burstCount >= FlushThreshold
}

// RecordAccept accounts one accepted, reflected packet.
func (b *Batcher) RecordAccept(sig classify.SigType, bytes uint64) {
	b.packetsReflected++
	b.bytesReflected += bytes
	b.bySignature[sig]++
}

// RecordReject accounts one rejected packet.
func (b *Batcher) RecordReject(reason classify.RejectReason) {
	b.byReject[reason]++
}

// RecordTxFailed accounts n packets send_batch refused.
func (b *Batcher) RecordTxFailed(n int) {
	b.errTxFailed += uint64(n)
}

// MergeLatency folds one observed latency sample into the running
// aggregate (count, sum, min, max).
func (b *Batcher) MergeLatency(latencyNs uint64) {
	b.latencyCount++
	b.latencySumNs += latencyNs
	if b.latencyMinNs == 0 || latencyNs < b.latencyMinNs {
		b.latencyMinNs = latencyNs
	}
	if latencyNs > b.latencyMaxNs {
		b.latencyMaxNs = latencyNs
	}
}

// Flush adds the batcher's accumulated counters into the shared
// WorkerBlock and resets the batcher, including the burst counter. A
// final Flush MUST run on clean worker exit so no packet goes uncounted.
func (b *Batcher) Flush(block *WorkerBlock) {
	block.add(&b.batch)
	b.batch = batch{}
	b.burstCount = 0
}
