package backend

// Config is the per-worker configuration every backend constructor
// accepts. It carries only what a backend needs to bind its queue and
// size its pool — the reflector's full Config lives in the root package.
type Config struct {
	IfName    string
	IfIndex   uint32
	QueueID   int
	FrameSize int
	FrameCount int
	BatchSize int

	// PollTimeoutMs bounds how long RecvBatch may block waiting for RX
	// readiness when there is no traffic.
	PollTimeoutMs int

	// LocalMAC is needed by backends that attach an in-kernel classifying
	// filter program, so the filter can match on destination MAC without
	// consulting the full reflector configuration.
	LocalMAC [6]byte

	// MeasureLatency gates the time.Now() call on the receive path. When
	// false, RecvBatch must not touch the clock at all (§4.4): a backend
	// leaves Descriptor.ReceivedAt zero instead.
	MeasureLatency bool

	// AcceptIPv6 and AcceptVLAN mirror the reflector's classify config.
	// bpfdev's in-kernel filter only matches untagged IPv4/UDP frames, so
	// its Init rejects these when set rather than silently dropping every
	// IPv6 or VLAN-tagged frame a caller asked it to accept.
	AcceptIPv6 bool
	AcceptVLAN bool
}
