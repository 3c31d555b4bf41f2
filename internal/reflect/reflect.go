// Package reflect rewrites an accepted ITO frame's addressing in place so
// it travels back toward its sender, per the wire contract's reflection
// rules. Reflect is pure, reentrant, and never reallocates or changes the
// buffer's length.
package reflect

import "github.com/itoreflect/reflector/internal/classify"

// Config is the subset of the reflector's configuration Reflect needs.
type Config struct {
	Mode              classify.ReflectMode
	SoftwareChecksum  bool
}

// Reflect mutates buf according to layout and cfg. Callers must only
// invoke this on a buffer they exclusively own (the descriptor contract
// guarantees this between recv_batch and send_batch/release_batch).
func Reflect(buf []byte, layout classify.Layout, cfg Config) {
	swapMAC(buf)

	if cfg.Mode == classify.ModeMACOnly {
		return
	}

	if layout.IPProtoIsV6 {
		swapBytes(buf[layout.IPStart+8:layout.IPStart+24], buf[layout.IPStart+24:layout.IPStart+40])
	} else {
		swapBytes(buf[layout.IPStart+12:layout.IPStart+16], buf[layout.IPStart+16:layout.IPStart+20])
	}

	if cfg.Mode == classify.ModeMACIPAndPorts {
		swapPorts(buf[layout.UDPStart : layout.UDPStart+4])
	}

	if cfg.SoftwareChecksum {
		recomputeChecksums(buf, layout)
	}
}

// swapMAC exchanges the 6-byte destination and source MAC fields.
func swapMAC(buf []byte) {
	var tmp [6]byte
	copy(tmp[:], buf[0:6])
	copy(buf[0:6], buf[6:12])
	copy(buf[6:12], tmp[:])
}

// swapBytes exchanges two equal-length, non-overlapping byte ranges.
func swapBytes(a, b []byte) {
	for i := range a {
		a[i], b[i] = b[i], a[i]
	}
}

// swapPorts exchanges the 2-byte source and destination UDP ports.
func swapPorts(udp []byte) {
	udp[0], udp[2] = udp[2], udp[0]
	udp[1], udp[3] = udp[3], udp[1]
}
