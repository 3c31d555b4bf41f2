package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itoreflect/reflector/internal/backend"
	"github.com/itoreflect/reflector/internal/classify"
	"github.com/itoreflect/reflector/internal/reflect"
	"github.com/itoreflect/reflector/internal/stats"
)

var testLocalMAC = [6]byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}

// mockBackend hands out pre-scripted batches of descriptors and records
// what the runner does with them, playing the role a real backend.Backend
// would in the worker loop's recv/send/release cycle.
type mockBackend struct {
	mu      sync.Mutex
	batches [][][]byte
	idx     int

	recvErr      error
	recvErrAfter int

	sendErr error
	sendCap int // max accepted per SendBatch, 0 = unlimited

	sent     [][]byte
	released int
}

func (m *mockBackend) Init() error    { return nil }
func (m *mockBackend) Cleanup() error { return nil }

func (m *mockBackend) RecvBatch(out []backend.Descriptor) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recvErr != nil && m.idx >= m.recvErrAfter {
		return 0, m.recvErr
	}
	if m.idx >= len(m.batches) {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	frames := m.batches[m.idx]
	m.idx++
	n := 0
	for _, f := range frames {
		if n >= len(out) {
			break
		}
		out[n] = backend.Descriptor{Bytes: f}
		n++
	}
	return n, nil
}

func (m *mockBackend) SendBatch(pkts []backend.Descriptor) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return 0, m.sendErr
	}
	n := len(pkts)
	if m.sendCap > 0 && n > m.sendCap {
		n = m.sendCap
	}
	for _, p := range pkts[:n] {
		m.sent = append(m.sent, p.Bytes)
	}
	return n, nil
}

func (m *mockBackend) ReleaseBatch(pkts []backend.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released += len(pkts)
}

func (m *mockBackend) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockBackend) releasedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// buildITOFrame constructs a minimal valid untagged IPv4/UDP ITO frame
// carrying the PROBEOT signature, addressed to dstMAC.
func buildITOFrame(dstMAC [6]byte) []byte {
	buf := make([]byte, 54)
	copy(buf[0:6], dstMAC[:])
	copy(buf[6:12], []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
	buf[12], buf[13] = 0x08, 0x00 // IPv4
	buf[14] = 0x45                // version 4, IHL 5
	buf[14+9] = 17                // UDP
	copy(buf[47:54], []byte("PROBEOT"))
	return buf
}

// buildUnacceptableFrame returns a frame that fails the destination MAC
// check, so Classify rejects it before looking at anything else.
func buildUnacceptableFrame() []byte {
	return buildITOFrame([6]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
}

func testClassifyConfig() classify.Config {
	return classify.Config{
		LocalMAC:  testLocalMAC,
		SigFilter: classify.SigFilterAll,
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestRunnerReflectsAndSendsAcceptedFrame(t *testing.T) {
	mb := &mockBackend{batches: [][][]byte{{buildITOFrame(testLocalMAC)}}}
	block := &stats.WorkerBlock{}
	stop := &atomic.Bool{}

	r := NewRunner(context.Background(), Config{
		QueueID:     0,
		Backend:     mb,
		BatchSize:   8,
		ClassifyCfg: testClassifyConfig(),
		ReflectCfg:  reflect.Config{Mode: classify.ModeMACIPAndPorts},
		Stats:       block,
		StopFlag:    stop,
	})
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForCondition(t, time.Second, func() bool { return mb.sentCount() == 1 })
	stop.Store(true)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if mb.releasedCount() != 0 {
		t.Errorf("released = %d, want 0 for an accepted frame", mb.releasedCount())
	}
	if block.PacketsReceived.Load() == 0 {
		t.Error("expected PacketsReceived to be nonzero")
	}
	if block.PacketsReflected.Load() != 1 {
		t.Errorf("PacketsReflected = %d, want 1", block.PacketsReflected.Load())
	}
	if block.BySignature[classify.SigProbeOT].Load() != 1 {
		t.Error("expected one PROBEOT accept recorded")
	}
}

func TestRunnerReleasesRejectedFrame(t *testing.T) {
	mb := &mockBackend{batches: [][][]byte{{buildUnacceptableFrame()}}}
	block := &stats.WorkerBlock{}
	stop := &atomic.Bool{}

	r := NewRunner(context.Background(), Config{
		QueueID:     0,
		Backend:     mb,
		ClassifyCfg: testClassifyConfig(),
		ReflectCfg:  reflect.Config{Mode: classify.ModeMACIPAndPorts},
		Stats:       block,
		StopFlag:    stop,
	})
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForCondition(t, time.Second, func() bool { return mb.releasedCount() == 1 })
	stop.Store(true)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if mb.sentCount() != 0 {
		t.Errorf("sent = %d, want 0 for a rejected frame", mb.sentCount())
	}
	if block.ByReject[classify.RejectInvalidMac].Load() != 1 {
		t.Error("expected one invalid_mac rejection recorded")
	}
}

func TestRunnerStopViaContext(t *testing.T) {
	mb := &mockBackend{}
	r := NewRunner(context.Background(), Config{
		QueueID:     0,
		Backend:     mb,
		ClassifyCfg: testClassifyConfig(),
	})
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRunnerClosePropagatesFatalBackendError(t *testing.T) {
	wantErr := errors.New("device gone")
	mb := &mockBackend{recvErr: wantErr, recvErrAfter: 0}

	r := NewRunner(context.Background(), Config{
		QueueID:     0,
		Backend:     mb,
		ClassifyCfg: testClassifyConfig(),
	})
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := r.Close()
	if err == nil {
		t.Fatal("expected Close to propagate the fatal backend error")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("Close err = %v, want wrapping %v", err, wantErr)
	}
}

func TestRunnerFlushesPartialBurstOnExit(t *testing.T) {
	mb := &mockBackend{batches: [][][]byte{{buildITOFrame(testLocalMAC)}}}
	block := &stats.WorkerBlock{}
	stop := &atomic.Bool{}

	r := NewRunner(context.Background(), Config{
		QueueID:     0,
		Backend:     mb,
		ClassifyCfg: testClassifyConfig(),
		ReflectCfg:  reflect.Config{Mode: classify.ModeMACIPAndPorts},
		Stats:       block,
		StopFlag:    stop,
	})
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A single burst never reaches stats.FlushThreshold on its own; the
	// exit-time flush in ioLoop must account it anyway.
	waitForCondition(t, time.Second, func() bool { return mb.sentCount() == 1 })
	stop.Store(true)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if block.PacketsReceived.Load() != 1 {
		t.Errorf("PacketsReceived = %d, want 1 after exit flush", block.PacketsReceived.Load())
	}
}

func TestRunnerReleasesUnsentTailOnPartialSend(t *testing.T) {
	mb := &mockBackend{
		batches: [][][]byte{{buildITOFrame(testLocalMAC), buildITOFrame(testLocalMAC)}},
		sendCap: 1,
	}
	block := &stats.WorkerBlock{}
	stop := &atomic.Bool{}

	r := NewRunner(context.Background(), Config{
		QueueID:     0,
		Backend:     mb,
		ClassifyCfg: testClassifyConfig(),
		ReflectCfg:  reflect.Config{Mode: classify.ModeMACIPAndPorts},
		Stats:       block,
		StopFlag:    stop,
	})
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForCondition(t, time.Second, func() bool { return mb.sentCount() == 1 })
	stop.Store(true)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	waitForCondition(t, time.Second, func() bool { return mb.releasedCount() == 1 })
	if block.ErrTxFailed.Load() != 1 {
		t.Errorf("ErrTxFailed = %d, want 1", block.ErrTxFailed.Load())
	}
}
