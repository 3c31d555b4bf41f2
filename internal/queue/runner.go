// Package queue implements the per-worker pinned I/O loop: one Runner
// per receive queue, driving a backend.Backend through the classify and
// reflect stages and flushing batched statistics.
package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/itoreflect/reflector/internal/backend"
	"github.com/itoreflect/reflector/internal/classify"
	"github.com/itoreflect/reflector/internal/logging"
	"github.com/itoreflect/reflector/internal/reflect"
	"github.com/itoreflect/reflector/internal/stats"
)

// Config is everything one worker needs for its whole lifetime. It is
// never mutated after NewRunner; the reflector supervisor derives one
// per queue from its own top-level Config.
type Config struct {
	QueueID   int
	Backend   backend.Backend
	BatchSize int

	ClassifyCfg classify.Config
	ReflectCfg  reflect.Config

	MeasureLatency bool

	// CPUPin is the CPU to pin this worker's OS thread to, or -1 to fall
	// back to the IRQ-affinity heuristic.
	CPUPin int

	Stats  *stats.WorkerBlock
	Logger *logging.Logger

	// StopFlag is shared across every worker in the reflector; the
	// supervisor sets it once at Stop and every worker observes it at
	// batch boundaries.
	StopFlag *atomic.Bool
}

// Runner drives one backend through the worker loop on its own pinned
// OS thread.
type Runner struct {
	cfg Config

	rxBuf      []backend.Descriptor
	txBuf      []backend.Descriptor
	releaseBuf []backend.Descriptor

	batcher stats.Batcher

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	fatalErr atomic.Value // error, set if the loop exited due to a fatal backend failure
}

// NewRunner constructs a Runner. The caller is responsible for calling
// backend.Init before Start and backend.Cleanup after Close.
func NewRunner(ctx context.Context, cfg Config) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	n := cfg.BatchSize
	if n <= 0 {
		n = 64
	}
	return &Runner{
		cfg:        cfg,
		rxBuf:      make([]backend.Descriptor, n),
		txBuf:      make([]backend.Descriptor, 0, n),
		releaseBuf: make([]backend.Descriptor, 0, n),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start spawns the pinned worker goroutine and returns immediately;
// unlike a device handshake there is nothing to prime, so Start never
// blocks on the loop body.
func (r *Runner) Start() error {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Printf("queue %d: starting worker loop", r.cfg.QueueID)
	}
	go r.ioLoop()
	return nil
}

// Stop requests the loop to exit at its next batch boundary. It does
// not wait for the loop to actually exit; call Close for that.
func (r *Runner) Stop() error {
	r.cancel()
	return nil
}

// Close stops the runner if it has not already been asked to, and
// blocks until the loop goroutine has exited. Idempotent.
func (r *Runner) Close() error {
	r.cancel()
	return r.Wait()
}

// Wait blocks until the loop goroutine has exited, without requesting a
// stop itself. The supervisor uses this to join a worker that is
// expected to keep running until something else (the shared stop flag,
// a context cancellation, or a fatal backend error) ends its loop.
func (r *Runner) Wait() error {
	<-r.done
	if v := r.fatalErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Backend returns the backend this runner drives, so the supervisor can
// call Cleanup on it after every worker has exited.
func (r *Runner) Backend() backend.Backend {
	return r.cfg.Backend
}

// ioLoop is the pinned per-queue loop implementing the six-step
// receive/classify/reflect/send/flush/check cycle.
func (r *Runner) ioLoop() {
	defer close(r.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pin := r.cfg.CPUPin
	if pin < 0 {
		pin = irqAffinityHeuristic(r.cfg.QueueID)
	}
	if pin >= 0 {
		var mask unix.CPUSet
		mask.Set(pin)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			if r.cfg.Logger != nil {
				r.cfg.Logger.Warnf("queue %d: failed to pin to CPU %d: %v", r.cfg.QueueID, pin, err)
			}
		} else if r.cfg.Logger != nil {
			r.cfg.Logger.Debugf("queue %d: pinned to CPU %d", r.cfg.QueueID, pin)
		}
	}

	for {
		if r.cfg.StopFlag != nil && r.cfg.StopFlag.Load() {
			r.flushStats()
			return
		}
		select {
		case <-r.ctx.Done():
			r.flushStats()
			return
		default:
		}

		if err := r.runBatch(); err != nil {
			r.fatalErr.Store(err)
			if r.cfg.Logger != nil {
				r.cfg.Logger.Errorf("queue %d: fatal backend error, stopping this worker: %v", r.cfg.QueueID, err)
			}
			r.flushStats()
			return
		}
	}
}

// runBatch performs one pass of steps 1-5 of the worker loop; the stop
// check (step 6) lives in the caller.
func (r *Runner) runBatch() error {
	// 1. recv_batch
	n, err := r.cfg.Backend.RecvBatch(r.rxBuf)
	if err != nil {
		return fmt.Errorf("recv_batch: %w", err)
	}
	if n == 0 {
		return nil
	}

	// 2. update received counters
	var bytesReceived int
	for i := 0; i < n; i++ {
		bytesReceived += len(r.rxBuf[i].Bytes)
	}
	flush := r.batcher.RecordBurst(n, uint64(bytesReceived))

	// 3. classify + reflect
	r.txBuf = r.txBuf[:0]
	r.releaseBuf = r.releaseBuf[:0]
	for i := 0; i < n; i++ {
		d := r.rxBuf[i]
		verdict := classify.Classify(d.Bytes, r.cfg.ClassifyCfg)
		if verdict.Accepted {
			r.batcher.RecordAccept(verdict.Sig, uint64(len(d.Bytes)))
			reflect.Reflect(d.Bytes, verdict.Layout, r.cfg.ReflectCfg)
			if r.cfg.MeasureLatency && !d.ReceivedAt.IsZero() {
				r.batcher.MergeLatency(uint64(time.Since(d.ReceivedAt).Nanoseconds()))
			}
			r.txBuf = append(r.txBuf, d)
		} else {
			r.batcher.RecordReject(verdict.Reason)
			r.releaseBuf = append(r.releaseBuf, d)
		}
	}

	// 4. send_batch / release_batch
	sent, err := r.cfg.Backend.SendBatch(r.txBuf)
	if err != nil {
		return fmt.Errorf("send_batch: %w", err)
	}
	if sent < len(r.txBuf) {
		r.batcher.RecordTxFailed(len(r.txBuf) - sent)
		r.cfg.Backend.ReleaseBatch(r.txBuf[sent:])
	}
	if len(r.releaseBuf) > 0 {
		r.cfg.Backend.ReleaseBatch(r.releaseBuf)
	}

	// 5. conditional stats flush
	if flush {
		r.flushStats()
	}
	return nil
}

func (r *Runner) flushStats() {
	if r.cfg.Stats != nil {
		r.batcher.Flush(r.cfg.Stats)
	}
}
