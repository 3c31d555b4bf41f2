package reflector

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/itoreflect/reflector/internal/stats"
)

func TestInitRejectsUnknownInterface(t *testing.T) {
	if _, err := Init("does-not-exist-0"); err == nil {
		t.Fatal("expected Init to fail for a nonexistent interface")
	} else if !IsCode(err, ErrCodeInterfaceNotFound) {
		t.Errorf("err code = %v, want ErrCodeInterfaceNotFound", err)
	}
}

func newReadyReflector() *Reflector {
	cfg := DefaultConfig()
	cfg.IfName = "lo"
	return &Reflector{state: StateReady, cfg: cfg, logger: cfg.Logger}
}

func TestStopFromReadyIsNoop(t *testing.T) {
	r := newReadyReflector()
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop from Ready: %v", err)
	}
	if r.CurrentState() != StateReady {
		t.Errorf("state = %s, want ready", r.CurrentState())
	}
}

func TestSetConfigRejectedWhileRunning(t *testing.T) {
	r := newReadyReflector()
	r.state = StateRunning
	if err := r.SetConfig(DefaultConfig()); err == nil {
		t.Fatal("expected SetConfig to fail while running")
	} else if !IsCode(err, ErrCodeInvalidConfig) {
		t.Errorf("err code = %v, want ErrCodeInvalidConfig", err)
	}
}

func TestCleanupRejectedWhileRunning(t *testing.T) {
	r := newReadyReflector()
	r.state = StateRunning
	if err := r.Cleanup(); err == nil {
		t.Fatal("expected Cleanup to fail while running")
	}
	if r.CurrentState() != StateRunning {
		t.Errorf("state changed despite rejected Cleanup: %s", r.CurrentState())
	}
}

func TestCleanupMovesToDestroyed(t *testing.T) {
	r := newReadyReflector()
	if err := r.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if r.CurrentState() != StateDestroyed {
		t.Errorf("state = %s, want destroyed", r.CurrentState())
	}
}

func TestGetStatsAggregatesAcrossWorkers(t *testing.T) {
	r := newReadyReflector()
	r.workerBlocks = []*stats.WorkerBlock{{}, {}}
	r.workerBlocks[0].PacketsReceived.Store(10)
	r.workerBlocks[1].PacketsReceived.Store(5)

	agg := r.GetStats()
	if agg.PacketsReceived != 15 {
		t.Errorf("PacketsReceived = %d, want 15", agg.PacketsReceived)
	}
}

func TestResetStatsZeroesEveryBlock(t *testing.T) {
	r := newReadyReflector()
	block := &stats.WorkerBlock{}
	block.PacketsReceived.Store(42)
	r.workerBlocks = []*stats.WorkerBlock{block}

	r.ResetStats()

	if block.PacketsReceived.Load() != 0 {
		t.Error("expected ResetStats to zero PacketsReceived")
	}
}

func TestSetConfigPreservesIfNameAndMAC(t *testing.T) {
	r := newReadyReflector()
	r.ifaceInfo.MAC = [6]byte{1, 2, 3, 4, 5, 6}

	next := DefaultConfig()
	next.IfName = "wrong-name"
	if err := r.SetConfig(next); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if r.cfg.IfName != "lo" {
		t.Errorf("IfName = %q, want preserved %q", r.cfg.IfName, "lo")
	}
	if r.cfg.LocalMAC != r.ifaceInfo.MAC {
		t.Errorf("LocalMAC = %v, want %v", r.cfg.LocalMAC, r.ifaceInfo.MAC)
	}
}

func TestReportMetricsRefreshesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newReadyReflector()
	r.cfg.Registerer = reg
	r.workerBlocks = []*stats.WorkerBlock{{}}
	r.workerBlocks[0].PacketsReceived.Store(7)

	r.ReportMetrics()

	got := testutil.ToFloat64(r.Collector().PacketsReceived.WithLabelValues("0"))
	if got != 7 {
		t.Errorf("packets_received_total{queue=0} = %v, want 7", got)
	}
}
