package classify

import "github.com/itoreflect/reflector/internal/constants"

// Config is the subset of the reflector's configuration the classifier
// needs. It is a plain value so Classify stays a pure function with no
// dependency on the root package (which imports classify, not vice versa).
type Config struct {
	LocalMAC     [6]byte
	FilterOUI    bool
	OUI          [3]byte
	ITOPort      uint16 // 0 = any
	SigFilter    SigFilter
	AcceptIPv6   bool
	AcceptVLAN   bool
}

// Classify implements is_acceptable(buf, L, cfg). Checks run in the fixed
// order the wire contract specifies; the first failing check wins.
func Classify(buf []byte, cfg Config) Verdict {
	l := len(buf)

	if l < constants.MinFrameIPv4 {
		return Verdict{Reason: RejectTooShort}
	}

	if !macEqual(buf[0:6], cfg.LocalMAC[:]) {
		return Verdict{Reason: RejectInvalidMac}
	}

	if cfg.FilterOUI && !macEqual(buf[6:9], cfg.OUI[:]) {
		return Verdict{Reason: RejectInvalidMac}
	}

	ethHdrLen := constants.EthHeaderLen
	etherType := be16(buf[12:14])
	vlanTagged := false

	if etherType == constants.EtherType8021Q {
		if !cfg.AcceptVLAN {
			return Verdict{Reason: RejectInvalidEtherType}
		}
		if l < ethHdrLen+constants.VLANTagLen+2 {
			return Verdict{Reason: RejectTooShort}
		}
		vlanTagged = true
		ethHdrLen += constants.VLANTagLen
		etherType = be16(buf[16:18])
	} else if etherType == constants.EtherType8021AD {
		return Verdict{Reason: RejectInvalidEtherType}
	}

	var isV6 bool
	switch etherType {
	case constants.EtherTypeIPv4:
		isV6 = false
	case constants.EtherTypeIPv6:
		if !cfg.AcceptIPv6 {
			return Verdict{Reason: RejectInvalidEtherType}
		}
		isV6 = true
	default:
		return Verdict{Reason: RejectInvalidEtherType}
	}

	minLen := ethHdrLen + constants.UDPHeaderLen + constants.OpaqueHeaderLen + constants.SignatureLen
	if isV6 {
		minLen += constants.IPv6HeaderLen
	} else {
		minLen += constants.IPv4HeaderMinLen
	}
	if l < minLen {
		return Verdict{Reason: RejectTooShort}
	}

	ipStart := ethHdrLen
	var udpStart int

	if isV6 {
		nextHeader := buf[ipStart+6]
		if nextHeader != constants.ProtoUDP {
			return Verdict{Reason: RejectInvalidProtocol}
		}
		udpStart = ipStart + constants.IPv6HeaderLen
	} else {
		verIHL := buf[ipStart]
		version := verIHL >> 4
		ihl := int(verIHL & 0x0F)
		if version != 4 || ihl < 5 || ihl > 15 {
			return Verdict{Reason: RejectInvalidProtocol}
		}
		proto := buf[ipStart+9]
		if proto != constants.ProtoUDP {
			return Verdict{Reason: RejectInvalidProtocol}
		}
		udpStart = ipStart + ihl*4
		if l < udpStart+constants.UDPHeaderLen+constants.OpaqueHeaderLen+constants.SignatureLen {
			return Verdict{Reason: RejectTooShort}
		}
	}

	if cfg.ITOPort != 0 {
		dstPort := be16(buf[udpStart+2 : udpStart+4])
		if dstPort != cfg.ITOPort {
			return Verdict{Reason: RejectInvalidProtocol}
		}
	}

	sigOffset := udpStart + constants.UDPHeaderLen + constants.OpaqueHeaderLen
	sig := matchSignature(buf[sigOffset : sigOffset+constants.SignatureLen])
	if sig == SigUnknown || !cfg.SigFilter.Allows(sig) {
		return Verdict{Reason: RejectInvalidSignature}
	}

	return Verdict{
		Accepted: true,
		Sig:      sig,
		Layout: Layout{
			EthHdrLen:    ethHdrLen,
			IPStart:      ipStart,
			IPProtoIsV6:  isV6,
			UDPStart:     udpStart,
			IsVLANTagged: vlanTagged,
		},
	}
}

func macEqual(a, b []byte) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func matchSignature(b []byte) SigType {
	for st := SigType(1); st < NumSigTypes; st++ {
		if bytesEqual(b, signatures[st][:]) {
			return st
		}
	}
	return SigUnknown
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
