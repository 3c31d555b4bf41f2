//go:build linux

package mmapring

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/itoreflect/reflector/internal/abi"
	"github.com/itoreflect/reflector/internal/backend"
)

// frameDataOffset is TPACKET_ALIGN(TPACKET2_HDRLEN) + TPACKET_ALIGN(sizeof
// struct sockaddr_ll), the standard TPACKET_V2 offset from the start of a
// frame to its packet data, with every architecture this module targets
// using 16-byte TPACKET alignment.
const frameDataOffset = 64

const (
	defaultBlockSize = 1 << 20 // 1 MiB per ring block
	defaultBlockNr   = 8
)

type frameRing struct {
	mem       []byte
	frameSize uint32
	frameNr   uint32
	cursor    uint32 // next frame index this side of the ring expects to touch
}

func (r *frameRing) header(idx uint32) *abi.Tpacket2Hdr {
	off := (idx % r.frameNr) * r.frameSize
	return (*abi.Tpacket2Hdr)(unsafe.Pointer(&r.mem[off]))
}

func (r *frameRing) data(idx uint32) []byte {
	off := (idx%r.frameNr)*r.frameSize + frameDataOffset
	return r.mem[off : off+r.frameSize-frameDataOffset]
}

// Backend implements backend.Backend over a PACKET_MMAP RX/TX ring pair.
type Backend struct {
	cfg backend.Config

	fd  int
	mem []byte
	rx  frameRing
	tx  frameRing
}

func New(cfg backend.Config) *Backend {
	return &Backend{cfg: cfg, fd: -1}
}

func (b *Backend) Init() error {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, htons(unix.ETH_P_ALL))
	if err != nil {
		return fmt.Errorf("mmapring: socket: %w", err)
	}
	b.fd = fd

	if err := unix.SetsockoptInt(fd, unix.SOL_PACKET, abi.PacketVersion, abi.TpacketV2); err != nil {
		b.Cleanup()
		return fmt.Errorf("mmapring: PACKET_VERSION: %w", err)
	}

	frameSize := uint32(b.cfg.FrameSize)
	if frameSize == 0 {
		frameSize = 2048
	}
	framesPerBlock := defaultBlockSize / frameSize
	req := abi.TpacketReq{
		BlockSize: defaultBlockSize,
		BlockNr:   defaultBlockNr,
		FrameSize: frameSize,
		FrameNr:   framesPerBlock * defaultBlockNr,
	}

	if err := setsockoptReq(fd, abi.PacketRxRing, &req); err != nil {
		b.Cleanup()
		return fmt.Errorf("mmapring: PACKET_RX_RING: %w", err)
	}
	if err := setsockoptReq(fd, abi.PacketTxRing, &req); err != nil {
		b.Cleanup()
		return fmt.Errorf("mmapring: PACKET_TX_RING: %w", err)
	}

	ringBytes := uint64(req.BlockSize) * uint64(req.BlockNr)
	total := ringBytes * 2 // RX ring followed immediately by TX ring

	mem, _, errno := syscall.Syscall6(
		syscall.SYS_MMAP, 0, uintptr(total),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED|syscall.MAP_POPULATE,
		uintptr(fd), 0,
	)
	if errno != 0 {
		b.Cleanup()
		return fmt.Errorf("mmapring: mmap: %w", errno)
	}
	b.mem = unsafe.Slice((*byte)(pointerFromMmap(mem)), total)

	b.rx = frameRing{mem: b.mem[:ringBytes], frameSize: req.FrameSize, frameNr: req.FrameNr}
	b.tx = frameRing{mem: b.mem[ringBytes:], frameSize: req.FrameSize, frameNr: req.FrameNr}

	sa := &unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_ALL), Ifindex: int(b.cfg.IfIndex)}
	if err := unix.Bind(fd, sa); err != nil {
		b.Cleanup()
		return fmt.Errorf("mmapring: bind: %w", err)
	}

	// Latency options, each best effort: bypass the qdisc on transmit,
	// busy-poll briefly before sleeping in poll(2), and join a hash fanout
	// group keyed by interface index so the workers bound to this
	// interface each receive a disjoint share of its frames.
	_ = unix.SetsockoptInt(fd, unix.SOL_PACKET, abi.PacketQdiscBypass, 1)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BUSY_POLL, 50)
	_ = unix.SetsockoptInt(fd, unix.SOL_PACKET, unix.PACKET_FANOUT, int(b.cfg.IfIndex&0xffff)|unix.PACKET_FANOUT_HASH<<16)

	return nil
}

func (b *Backend) Cleanup() error {
	if b.mem != nil {
		_, _, _ = syscall.Syscall(syscall.SYS_MUNMAP, uintptr(unsafe.Pointer(&b.mem[0])), uintptr(len(b.mem)), 0)
		b.mem = nil
	}
	if b.fd >= 0 {
		unix.Close(b.fd)
		b.fd = -1
	}
	return nil
}

// RecvBatch walks the RX ring from its cursor, collecting every
// TP_STATUS_USER frame it finds (each returned to the kernel as
// TP_STATUS_KERNEL by ReleaseBatch, or by SendBatch once it has copied the
// frame into the TX ring), polling once if nothing is ready yet.
func (b *Backend) RecvBatch(out []backend.Descriptor) (int, error) {
	var now time.Time
	if b.cfg.MeasureLatency {
		now = time.Now()
	}
	n := 0
	for n < len(out) {
		hdr := b.rx.header(b.rx.cursor)
		if hdr.Status&abi.TpStatusUser == 0 {
			break
		}
		out[n] = backend.Descriptor{
			Bytes:      b.rx.data(b.rx.cursor)[:hdr.SnapLen],
			BufferID:   uint64(b.rx.cursor),
			ReceivedAt: now,
		}
		b.rx.cursor++
		n++
	}
	if n == 0 {
		if err := b.poll(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// ReleaseBatch returns RX frames to the kernel by resetting their status.
// It covers frames the worker did not send; SendBatch returns the RX
// frames it accepted itself.
func (b *Backend) ReleaseBatch(pkts []backend.Descriptor) {
	for _, p := range pkts {
		b.rx.header(uint32(p.BufferID)).Status = abi.TpStatusKernel
	}
}

// SendBatch copies each descriptor's bytes into the next free TX frame
// and marks it TP_STATUS_SEND_REQUEST, then kicks the kernel once via
// send(2) to drain the whole ring in one syscall.
func (b *Backend) SendBatch(pkts []backend.Descriptor) (int, error) {
	n := 0
	for _, p := range pkts {
		hdr := b.tx.header(b.tx.cursor)
		if hdr.Status != abi.TpStatusKernel {
			break
		}
		dst := b.tx.data(b.tx.cursor)
		copy(dst, p.Bytes)
		hdr.Len = uint32(len(p.Bytes))
		hdr.SnapLen = hdr.Len
		hdr.Status = abi.TpStatusSendRequest
		b.rx.header(uint32(p.BufferID)).Status = abi.TpStatusKernel
		b.tx.cursor++
		n++
	}
	if n > 0 {
		if _, err := unix.Send(b.fd, nil, unix.MSG_DONTWAIT); err != nil && err != unix.EAGAIN {
			return n, fmt.Errorf("mmapring: kick send: %w", err)
		}
	}
	return n, nil
}

func (b *Backend) poll() error {
	fds := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}}
	_, err := unix.Poll(fds, b.cfg.PollTimeoutMs)
	return err
}

func setsockoptReq(fd, opt int, req *abi.TpacketReq) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(unix.SOL_PACKET), uintptr(opt), uintptr(unsafe.Pointer(req)), unsafe.Sizeof(*req), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func htons(v int) int {
	return int(uint16(v)<<8 | uint16(v)>>8)
}

//go:noinline
func pointerFromMmap(addr uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}
