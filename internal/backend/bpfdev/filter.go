package bpfdev

import (
	"encoding/binary"

	"golang.org/x/net/bpf"
)

// buildClassifierFilter builds a classic BPF program that accepts only
// frames addressed to localMAC carrying IPv4/UDP, leaving exact ITO
// signature matching to userspace. A udpPort of 0 skips the port check.
// It is pure computation over golang.org/x/net/bpf's typed instruction
// builders, grounded on the dst-MAC/port filter shapes classic BPF
// programs commonly chain, adapted here to an IPv4/UDP/dst-MAC match
// instead of a TCP port match.
func buildClassifierFilter(localMAC [6]byte, udpPort uint16) (bpf.Instructions, error) {
	macHi := uint32(localMAC[0])<<8 | uint32(localMAC[1])
	macLow := binary.BigEndian.Uint32(localMAC[2:6])

	const (
		ethTypeOff = 12
		ipProtoOff = 14 + 9
		ihlOff     = 14
	)

	// tail holds the UDP-port check (if any) plus the final accept/reject
	// pair; its length determines where the header's early-out jumps
	// must land, so it is built first.
	var tail bpf.Instructions
	if udpPort != 0 {
		tail = append(tail,
			bpf.LoadIndirect{Off: 14 + 2, Size: 2},
			bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(udpPort), SkipFalse: 1},
		)
	}
	tail = append(tail,
		bpf.RetConstant{Val: 0xffff}, // accept, keep the whole frame
		bpf.RetConstant{Val: 0},      // reject
	)

	const headerLen = 9 // instructions 0..8 below, before tail starts at index 9
	rejectIdx := uint32(headerLen + len(tail) - 1)

	insns := bpf.Instructions{
		bpf.LoadAbsolute{Off: 0, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: macHi, SkipFalse: rejectIdx - 2},
		bpf.LoadAbsolute{Off: 2, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: macLow, SkipFalse: rejectIdx - 4},
		bpf.LoadAbsolute{Off: ethTypeOff, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipFalse: rejectIdx - 6},
		bpf.LoadAbsolute{Off: ipProtoOff, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 17, SkipFalse: rejectIdx - 8},
		bpf.LoadMemShift{Off: ihlOff},
	}
	insns = append(insns, tail...)
	return insns, nil
}
