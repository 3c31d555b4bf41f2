// Package abi holds hand-marshaled Linux kernel UAPI definitions for the
// network I/O paths the backends drive directly: AF_XDP and PACKET_MMAP
// socket options and ring descriptors, neither of which this module's
// pinned golang.org/x/sys/unix release exposes as typed Go structs.
package abi

// AF_XDP / PF_XDP are not yet assigned stable constants in every
// distribution's <sys/socket.h>; the kernel has used 44 since their
// introduction in Linux 4.18.
const (
	AFXDP = 44
	PFXDP = 44
)

// SOL_XDP socket option level, and the XDP_* setsockopt/getsockopt names,
// from linux/if_xdp.h.
const (
	SolXDP = 283

	XDPMmapOffsets        = 1
	XDPRxRing             = 2
	XDPTxRing             = 3
	XDPUmemReg            = 4
	XDPUmemFillRing       = 5
	XDPUmemCompletionRing = 6
	XDPStatistics         = 7
	XDPOptions            = 8
)

// XDP_PGOFF_* ring mmap page offsets, from linux/if_xdp.h.
const (
	XDPPgoffRxRing             = 0
	XDPPgoffTxRing             = 0x80000000
	XDPUmemPgoffFillRing       = 0x100000000
	XDPUmemPgoffCompletionRing = 0x180000000
)

// XDP_ZEROCOPY / XDP_COPY bind flags, from linux/if_xdp.h.
const (
	XDPShared     = 1 << 0
	XDPCopy       = 1 << 1
	XDPZeroCopy   = 1 << 2
	XDPUseNeedWakeup = 1 << 3
)

// SockaddrXDP mirrors struct sockaddr_xdp.
type SockaddrXDP struct {
	Family      uint16
	Flags       uint16
	IfIndex     uint32
	QueueID     uint32
	SharedUmemFD uint32
}

// UmemReg mirrors struct xdp_umem_reg.
type UmemReg struct {
	Addr     uint64
	Len      uint64
	ChunkSize uint32
	Headroom uint32
	Flags    uint32
	_        uint32 // pad to 8-byte alignment
}

// RingOffset mirrors struct xdp_ring_offset.
type RingOffset struct {
	Producer uint64
	Consumer uint64
	Desc     uint64
	Flags    uint64
}

// MmapOffsets mirrors struct xdp_mmap_offsets, returned by getsockopt
// XDP_MMAP_OFFSETS and used to locate each ring's producer/consumer/desc
// fields within its mmap'd region.
type MmapOffsets struct {
	Rx   RingOffset
	Tx   RingOffset
	Fr   RingOffset // fill ring
	Cr   RingOffset // completion ring
}

// Desc mirrors struct xdp_desc: one UMEM-relative frame descriptor as
// carried on the RX, TX, fill and completion rings.
type Desc struct {
	Addr    uint64
	Len     uint32
	Options uint32
}
