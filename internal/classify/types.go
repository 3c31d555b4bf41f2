// Package classify implements the ITO packet classification contract: a
// pure, reentrant function deciding whether a raw Ethernet frame is an
// acceptable ITO probe, and if so, where its interesting fields live.
package classify

// SigType identifies which ITO signature a frame carried.
type SigType int

const (
	SigUnknown SigType = iota
	SigProbeOT
	SigDataOT
	SigLatency
	SigRFC2544
	SigY1564

	NumSigTypes
)

func (s SigType) String() string {
	switch s {
	case SigProbeOT:
		return "PROBEOT"
	case SigDataOT:
		return "DATA:OT"
	case SigLatency:
		return "LATENCY"
	case SigRFC2544:
		return "RFC2544"
	case SigY1564:
		return "Y.1564"
	default:
		return "unknown"
	}
}

// signatures is the fixed, space-padded 7-byte wire form of each signature,
// indexed by SigType (SigUnknown has no wire form and is skipped).
var signatures = [NumSigTypes][7]byte{
	SigProbeOT: [7]byte{'P', 'R', 'O', 'B', 'E', 'O', 'T'},
	SigDataOT:  [7]byte{'D', 'A', 'T', 'A', ':', 'O', 'T'},
	SigLatency: [7]byte{'L', 'A', 'T', 'E', 'N', 'C', 'Y'},
	SigRFC2544: [7]byte{'R', 'F', 'C', '2', '5', '4', '4'},
	SigY1564:   [7]byte{'Y', '.', '1', '5', '6', '4', ' '},
}

// SigFilter is a bitset selection over recognized signatures.
type SigFilter uint8

const (
	SigFilterProbeOT SigFilter = 1 << iota
	SigFilterDataOT
	SigFilterLatency
	SigFilterRFC2544
	SigFilterY1564

	SigFilterAll = SigFilterProbeOT | SigFilterDataOT | SigFilterLatency | SigFilterRFC2544 | SigFilterY1564
)

func sigFilterBit(s SigType) SigFilter {
	switch s {
	case SigProbeOT:
		return SigFilterProbeOT
	case SigDataOT:
		return SigFilterDataOT
	case SigLatency:
		return SigFilterLatency
	case SigRFC2544:
		return SigFilterRFC2544
	case SigY1564:
		return SigFilterY1564
	default:
		return 0
	}
}

// Allows reports whether f permits sig to be accepted.
func (f SigFilter) Allows(sig SigType) bool {
	return f&sigFilterBit(sig) != 0
}

// RejectReason enumerates why a frame failed classification, in the order
// the checks run (§4.1 of the wire contract requires first-failure-wins).
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectTooShort
	RejectInvalidMac
	RejectInvalidEtherType
	RejectInvalidProtocol
	RejectInvalidSignature

	NumRejectReasons
)

func (r RejectReason) String() string {
	switch r {
	case RejectTooShort:
		return "too_short"
	case RejectInvalidMac:
		return "invalid_mac"
	case RejectInvalidEtherType:
		return "invalid_ethertype"
	case RejectInvalidProtocol:
		return "invalid_protocol"
	case RejectInvalidSignature:
		return "invalid_signature"
	default:
		return "none"
	}
}

// ReflectMode selects how much of the packet gets its addressing swapped.
type ReflectMode int

const (
	ModeMACOnly ReflectMode = iota
	ModeMACAndIP
	ModeMACIPAndPorts
)

// Layout records where a frame's fields live so the reflector does not
// have to re-parse the buffer after classification accepted it.
type Layout struct {
	EthHdrLen   int  // 14, or 18 if a VLAN tag was peeled
	IPStart     int  // offset of the IP header
	IPProtoIsV6 bool // true for IPv6, false for IPv4
	UDPStart    int  // offset of the UDP header
	IsVLANTagged bool
}

// Verdict is the result of Classify: either an accepted frame tagged with
// its signature and layout, or a rejection reason.
type Verdict struct {
	Accepted bool
	Sig      SigType
	Layout   Layout
	Reason   RejectReason
}
