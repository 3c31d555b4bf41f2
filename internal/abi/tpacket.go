package abi

// PACKET_* socket options and TPACKET_V2 ring layout, from
// linux/if_packet.h. golang.org/x/sys/unix exposes the SOL_PACKET
// constant but not the ring-specific ones this backend needs.
const (
	PacketRxRing     = 5
	PacketTxRing     = 13
	PacketVersion    = 10
	PacketLoss       = 14
	PacketQdiscBypass = 20

	TpacketV1 = 0
	TpacketV2 = 1
	TpacketV3 = 2
)

// TpacketReq mirrors struct tpacket_req, the PACKET_RX_RING/PACKET_TX_RING
// setsockopt argument that sizes and shapes the mmap'd ring.
type TpacketReq struct {
	BlockSize uint32
	BlockNr   uint32
	FrameSize uint32
	FrameNr   uint32
}

// Tpacket2Hdr mirrors struct tpacket2_hdr, the per-frame status header
// TPACKET_V2 places at the start of every ring slot.
type Tpacket2Hdr struct {
	Status   uint32
	Len      uint32
	SnapLen  uint32
	MacStart uint16
	NetStart uint16
	Sec      uint32
	Nsec     uint32
	VlanTCI  uint16
	VlanTPID uint16
	_        [4]byte
}

// TPACKET2_HDRLEN: header size rounded up to the platform's TPACKET
// alignment (16 bytes on every architecture this module targets).
const Tpacket2HdrLen = 32

// TP_STATUS_* frame ownership bits.
const (
	TpStatusKernel     = 0
	TpStatusUser       = 1 << 0
	TpStatusCopy       = 1 << 1
	TpStatusLosing     = 1 << 2
	TpStatusCsumNotReady = 1 << 3
	TpStatusSendRequest = 1 << 0 // TX ring: frame ready for kernel to send
	TpStatusSending     = 1 << 1
	TpStatusWrongFormat = 1 << 2
)
