package reflector

import (
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/itoreflect/reflector/internal/backend"
	"github.com/itoreflect/reflector/internal/classify"
	"github.com/itoreflect/reflector/internal/constants"
	"github.com/itoreflect/reflector/internal/logging"
	"github.com/itoreflect/reflector/internal/reflect"
)

// Config is the immutable snapshot every worker holds for its lifetime.
// set_config is legal only while the reflector is in the Ready state
// (§3); a running reflector rejects SetConfig.
type Config struct {
	IfName string

	NumWorkers int // 0 = probe the interface's queue count
	CPUPins    []int // per-worker CPU pin, or empty to use the IRQ-affinity heuristic

	BatchSize  int
	FrameSize  int
	FrameCount int

	TimestampPackets bool
	SoftwareChecksum bool

	LocalMAC  [6]byte
	ITOPort   uint16
	FilterOUI bool
	OUI       [3]byte

	ReflectMode classify.ReflectMode
	SigFilter   classify.SigFilter
	AcceptIPv6  bool
	AcceptVLAN  bool

	PollTimeoutMs int

	// Clock is the time source for Start's timestamp and GetSnapshot's
	// elapsed-time arithmetic, so tests can inject a fake clock; production
	// code defaults to clockwork.NewRealClock(). internal/iface's backoff
	// waits do not use it.
	Clock clockwork.Clock

	Logger *logging.Logger

	// Registerer is where the reflector's Prometheus gauges are
	// registered; nil uses prometheus.DefaultRegisterer. The reflector
	// never serves the registry itself, an external scrape process owns
	// that.
	Registerer prometheus.Registerer
}

// DefaultConfig returns the configuration a reflector starts with before
// a caller overrides anything via SetConfig.
func DefaultConfig() Config {
	return Config{
		NumWorkers:    0,
		BatchSize:     constants.DefaultBatchSize,
		FrameSize:     constants.DefaultFrameSize,
		FrameCount:    constants.DefaultFrameCount,
		SigFilter:     classify.SigFilterAll,
		ReflectMode:   classify.ModeMACIPAndPorts,
		PollTimeoutMs: int(constants.DefaultPollTimeout.Milliseconds()),
		Clock:         clockwork.NewRealClock(),
		Logger:        logging.Default(),
	}
}

// classifyConfig projects the subset internal/classify needs.
func (c Config) classifyConfig() classify.Config {
	return classify.Config{
		LocalMAC:   c.LocalMAC,
		FilterOUI:  c.FilterOUI,
		OUI:        c.OUI,
		ITOPort:    c.ITOPort,
		SigFilter:  c.SigFilter,
		AcceptIPv6: c.AcceptIPv6,
		AcceptVLAN: c.AcceptVLAN,
	}
}

// reflectConfig projects the subset internal/reflect needs.
func (c Config) reflectConfig() reflect.Config {
	return reflect.Config{
		Mode:             c.ReflectMode,
		SoftwareChecksum: c.SoftwareChecksum,
	}
}

// backendConfig projects the subset internal/backend constructors need
// for one worker's queue.
func (c Config) backendConfig(ifIndex uint32, queueID int) backend.Config {
	return backend.Config{
		IfName:         c.IfName,
		IfIndex:        ifIndex,
		QueueID:        queueID,
		FrameSize:      c.FrameSize,
		FrameCount:     c.FrameCount,
		BatchSize:      c.BatchSize,
		PollTimeoutMs:  c.PollTimeoutMs,
		LocalMAC:       c.LocalMAC,
		MeasureLatency: c.TimestampPackets,
		AcceptIPv6:     c.AcceptIPv6,
		AcceptVLAN:     c.AcceptVLAN,
	}
}

func (c Config) cpuPin(queueID int) int {
	if queueID < len(c.CPUPins) {
		return c.CPUPins[queueID]
	}
	return -1
}
