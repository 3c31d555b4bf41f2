// Package reflector implements the supervisor side of the ITO packet
// reflector: interface resolution, per-worker backend selection, and the
// lifecycle state machine (Uninitialized -> Ready -> Running -> Ready ->
// Destroyed) wrapping internal/queue's pinned worker loops.
package reflector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/itoreflect/reflector/internal/backend"
	"github.com/itoreflect/reflector/internal/backend/bpfdev"
	"github.com/itoreflect/reflector/internal/backend/mmapring"
	"github.com/itoreflect/reflector/internal/backend/xdp"
	"github.com/itoreflect/reflector/internal/iface"
	"github.com/itoreflect/reflector/internal/logging"
	"github.com/itoreflect/reflector/internal/queue"
	"github.com/itoreflect/reflector/internal/stats"
)

// State is one node of the reflector's lifecycle state machine.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateRunning       State = "running"
	StateDestroyed     State = "destroyed"
)

// AggregateStats is the supervisor-side summed view across every
// worker, returned by GetStats.
type AggregateStats = stats.Aggregate

// candidates is the backend precedence order every worker tries,
// xdp -> mmapring -> bpfdev, per internal/backend/select.go.
func candidates() []backend.Candidate {
	return []backend.Candidate{
		{Name: backend.NameXDP, Constructor: func(c backend.Config) backend.Backend { return xdp.New(c) }},
		{Name: backend.NameMMapRing, Constructor: func(c backend.Config) backend.Backend { return mmapring.New(c) }},
		{Name: backend.NameBPFDev, Constructor: func(c backend.Config) backend.Backend { return bpfdev.New(c) }},
	}
}

func constructNamed(cands []backend.Candidate, name backend.Name, cfg backend.Config) backend.Backend {
	for _, c := range cands {
		if c.Name == name {
			return c.Constructor(cfg)
		}
	}
	return nil
}

// Reflector is the top-level handle a caller holds across its whole
// lifetime: one Init, any number of Start/Stop cycles, one Cleanup.
type Reflector struct {
	mu    sync.Mutex
	state State

	cfg       Config
	ifaceInfo iface.Info

	runners      []*queue.Runner
	workerBlocks []*stats.WorkerBlock
	stopFlag     *atomic.Bool
	collector    *stats.Collector

	group  *errgroup.Group
	cancel context.CancelFunc

	startedAt time.Time
	logger    *logging.Logger
}

// Init waits for ifname to appear, resolves its index, MAC, and queue
// count, and returns a Reflector in the Ready state. It does not touch
// the wire.
func Init(ifname string) (*Reflector, error) {
	cfg := DefaultConfig()
	cfg.IfName = ifname

	if err := iface.WaitReady(context.Background(), ifname); err != nil {
		return nil, NewInterfaceError("Init", 0, ErrCodeInterfaceNotFound, err.Error())
	}

	info, err := iface.Resolve(ifname)
	if err != nil {
		return nil, NewInterfaceError("Init", 0, ErrCodeInterfaceNotFound, err.Error())
	}
	cfg.LocalMAC = info.MAC
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = info.Queues
	}

	return &Reflector{
		state:     StateReady,
		cfg:       cfg,
		ifaceInfo: info,
		logger:    cfg.Logger,
	}, nil
}

// Start picks a backend for worker 0 (falling back through the
// precedence order in internal/backend/select.go), reuses that same
// backend for every other worker per spec.md §4.5, and spawns one
// pinned Runner per worker. A failure partway through rolls back every
// already-initialized worker before returning.
func (r *Reflector) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateReady {
		return NewError("Start", ErrCodeAlreadyRunning, fmt.Sprintf("cannot start from state %s", r.state))
	}

	if err := iface.BringUp(r.cfg.IfName); err != nil {
		return WrapError("Start", err)
	}

	n := r.cfg.NumWorkers
	if n <= 0 {
		n = r.ifaceInfo.Queues
	}
	if n <= 0 {
		n = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Plain errgroup.Group, not WithContext: per spec.md §4.5 a fatal
	// error in one worker must not cancel the others; it ends only that
	// worker's loop, leaving the shared stop flag unset. WithContext would cancel a
	// shared derived context on the first error and take every worker
	// down with it, so each Runner gets ctx directly instead.
	group := &errgroup.Group{}
	stopFlag := &atomic.Bool{}
	cands := candidates()

	backends := make([]backend.Backend, 0, n)
	runners := make([]*queue.Runner, 0, n)
	blocks := make([]*stats.WorkerBlock, 0, n)

	var chosen backend.Name
	rollback := func(err error) error {
		for _, b := range backends {
			_ = b.Cleanup()
		}
		cancel()
		return WrapError("Start", err)
	}

	for i := 0; i < n; i++ {
		bcfg := r.cfg.backendConfig(r.ifaceInfo.Index, i)

		var b backend.Backend
		if i == 0 {
			var name backend.Name
			var err error
			b, name, err = backend.Select(bcfg, cands, r.logger)
			if err != nil {
				return rollback(err)
			}
			chosen = name
		} else {
			b = constructNamed(cands, chosen, bcfg)
			if err := b.Init(); err != nil {
				return rollback(err)
			}
		}
		backends = append(backends, b)
		blocks = append(blocks, &stats.WorkerBlock{})

		runners = append(runners, queue.NewRunner(ctx, queue.Config{
			QueueID:        i,
			Backend:        b,
			BatchSize:      r.cfg.BatchSize,
			ClassifyCfg:    r.cfg.classifyConfig(),
			ReflectCfg:     r.cfg.reflectConfig(),
			MeasureLatency: r.cfg.TimestampPackets,
			CPUPin:         r.cfg.cpuPin(i),
			Stats:          blocks[i],
			Logger:         r.logger,
			StopFlag:       stopFlag,
		}))
	}

	for i, runner := range runners {
		if err := runner.Start(); err != nil {
			for j := 0; j <= i; j++ {
				_ = runners[j].Close()
			}
			return rollback(err)
		}
		runner := runner
		group.Go(func() error { return runner.Wait() })
	}

	r.runners = runners
	r.workerBlocks = blocks
	r.stopFlag = stopFlag
	r.group = group
	r.cancel = cancel
	r.startedAt = r.cfg.Clock.Now()
	r.state = StateRunning

	if r.logger != nil {
		r.logger.Info("reflector started", "workers", n, "backend", string(chosen))
	}
	return nil
}

// Stop sets the shared stop flag, joins every worker, and cleans up
// every backend. Idempotent: calling Stop from Ready is a no-op.
func (r *Reflector) Stop() error {
	r.mu.Lock()
	if r.state == StateReady {
		r.mu.Unlock()
		return nil
	}
	if r.state != StateRunning {
		r.mu.Unlock()
		return NewError("Stop", ErrCodeNotRunning, fmt.Sprintf("cannot stop from state %s", r.state))
	}
	stopFlag := r.stopFlag
	group := r.group
	cancel := r.cancel
	runners := r.runners
	r.mu.Unlock()

	stopFlag.Store(true)
	err := group.Wait()
	cancel()

	for _, runner := range runners {
		if cerr := runner.Backend().Cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}

	r.mu.Lock()
	r.runners = nil
	r.group = nil
	r.cancel = nil
	r.state = StateReady
	r.mu.Unlock()

	if err != nil {
		return WrapError("Stop", err)
	}
	return nil
}

// Cleanup releases every resource Init acquired and moves the reflector
// to the Destroyed state. It fails if the reflector is still running.
func (r *Reflector) Cleanup() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRunning {
		return NewError("Cleanup", ErrCodeAlreadyRunning, "cannot cleanup while running, call Stop first")
	}
	r.workerBlocks = nil
	r.state = StateDestroyed
	return nil
}

// SetConfig replaces the reflector's configuration. Legal only in the
// Ready state; the interface name and local MAC learned by Init are
// preserved regardless of what cfg carries for them.
func (r *Reflector) SetConfig(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRunning {
		return NewError("SetConfig", ErrCodeInvalidConfig, "cannot set config while running")
	}
	cfg.IfName = r.cfg.IfName
	if cfg.LocalMAC == ([6]byte{}) {
		cfg.LocalMAC = r.ifaceInfo.MAC
	}
	if cfg.Clock == nil {
		cfg.Clock = r.cfg.Clock
	}
	if cfg.Logger == nil {
		cfg.Logger = r.cfg.Logger
	}
	r.cfg = cfg
	r.logger = cfg.Logger
	return nil
}

// GetConfig returns the reflector's current configuration.
func (r *Reflector) GetConfig() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// GetStats sums every worker's shared stats block into one Aggregate,
// legal in both the Ready and Running states (§3).
func (r *Reflector) GetStats() AggregateStats {
	r.mu.Lock()
	blocks := r.workerBlocks
	r.mu.Unlock()
	return stats.Aggregated(blocks)
}

// GetSnapshot is GetStats plus the caller-facing pps/mbps/error-rate
// projection, computed from wall-clock time elapsed since Start.
func (r *Reflector) GetSnapshot() stats.Snapshot {
	r.mu.Lock()
	blocks := r.workerBlocks
	startedAt := r.startedAt
	clock := r.cfg.Clock
	r.mu.Unlock()

	agg := stats.Aggregated(blocks)
	if startedAt.IsZero() {
		return agg.Snapshot(0)
	}
	return agg.Snapshot(clock.Now().Sub(startedAt))
}

// ResetStats zeroes every worker's shared stats block in place.
func (r *Reflector) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.workerBlocks {
		b.Reset()
	}
}

// CurrentState reports the reflector's position in the lifecycle state
// machine, mainly useful for tests and diagnostics.
func (r *Reflector) CurrentState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Collector returns the reflector's Prometheus gauge set, creating and
// registering it against cfg.Registerer on first use. A caller hands
// the result to an external scrape endpoint; the reflector itself never
// serves it.
func (r *Reflector) Collector() *stats.Collector {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.collector == nil {
		r.collector = stats.NewCollector(r.cfg.Registerer)
	}
	return r.collector
}

// ReportMetrics refreshes every worker's gauges in the Collector from
// their current shared stats blocks. A caller on a periodic tick drives
// this so an external scrape sees up-to-date values between scrapes.
func (r *Reflector) ReportMetrics() {
	c := r.Collector()
	r.mu.Lock()
	blocks := r.workerBlocks
	r.mu.Unlock()
	c.ReportAll(blocks)
}
