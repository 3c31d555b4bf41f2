//go:build linux

package bpfdev

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/itoreflect/reflector/internal/backend"
)

// Backend implements backend.Backend over a raw packet socket with a
// kernel-resident classic BPF classifier. Unlike the ring backends it
// has no shared memory with the kernel: every frame is copied in on
// read(2) and copied out on write(2), staged through a pooled buffer.
type Backend struct {
	cfg backend.Config

	fd     int
	epfd   int
	frames [][]byte // fixed ring of per-slot receive buffers, reused every RecvBatch
	maxBuf int
}

func New(cfg backend.Config) *Backend {
	return &Backend{fd: -1, epfd: -1, cfg: cfg}
}

func (b *Backend) Init() error {
	if b.cfg.AcceptIPv6 || b.cfg.AcceptVLAN {
		return fmt.Errorf("bpfdev: scoped to untagged IPv4/UDP, cannot honor accept_ipv6=%v accept_vlan=%v", b.cfg.AcceptIPv6, b.cfg.AcceptVLAN)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, htons(unix.ETH_P_IP))
	if err != nil {
		return fmt.Errorf("bpfdev: socket: %w", err)
	}
	b.fd = fd

	b.maxBuf = probeMaxBufSize(func(want int) (int, error) {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, want); err != nil {
			return 0, err
		}
		got, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
		return got, err
	})

	if err := attachFilter(fd, b.cfg.LocalMAC, udpPortOrDefault(b.cfg)); err != nil {
		b.Cleanup()
		return fmt.Errorf("bpfdev: attach filter: %w", err)
	}

	sa := &unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_IP), Ifindex: int(b.cfg.IfIndex)}
	if err := unix.Bind(fd, sa); err != nil {
		b.Cleanup()
		return fmt.Errorf("bpfdev: bind: %w", err)
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		b.Cleanup()
		return fmt.Errorf("bpfdev: epoll_create1: %w", err)
	}
	b.epfd = epfd
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		b.Cleanup()
		return fmt.Errorf("bpfdev: epoll_ctl: %w", err)
	}

	frameSize := b.cfg.FrameSize
	if frameSize == 0 {
		frameSize = 2048
	}
	n := b.cfg.BatchSize
	if n == 0 {
		n = 64
	}
	b.frames = make([][]byte, n)
	for i := range b.frames {
		b.frames[i] = make([]byte, frameSize)
	}

	return nil
}

func (b *Backend) Cleanup() error {
	if b.epfd >= 0 {
		unix.Close(b.epfd)
		b.epfd = -1
	}
	if b.fd >= 0 {
		unix.Close(b.fd)
		b.fd = -1
	}
	return nil
}

// RecvBatch reads frames one at a time (the kernel hands back exactly
// one Ethernet frame per read(2) on a raw packet socket) until len(out)
// is filled or the socket has nothing more immediately available. It
// waits on epoll only when the very first read would otherwise block,
// so a burst already queued in the kernel drains in one call.
func (b *Backend) RecvBatch(out []backend.Descriptor) (int, error) {
	n := 0
	waited := false
	var now time.Time
	if b.cfg.MeasureLatency {
		now = time.Now()
	}
	for n < len(out) && n < len(b.frames) {
		sz, _, err := unix.Recvfrom(b.fd, b.frames[n], unix.MSG_DONTWAIT)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				if n > 0 || waited {
					break
				}
				if err := b.waitReadable(); err != nil {
					return 0, err
				}
				waited = true
				continue
			}
			return n, fmt.Errorf("bpfdev: recvfrom: %w", err)
		}
		out[n] = backend.Descriptor{
			Bytes:      b.frames[n][:sz],
			BufferID:   uint64(n),
			ReceivedAt: now,
		}
		n++
	}
	return n, nil
}

func (b *Backend) waitReadable() error {
	events := make([]unix.EpollEvent, 1)
	_, err := unix.EpollWait(b.epfd, events, b.cfg.PollTimeoutMs)
	return err
}

// SendBatch stages each descriptor through a pooled buffer and issues
// one write(2) per frame: AF_PACKET raw sockets accept exactly one
// frame per write, so coalescing here means reusing a single staging
// buffer across the whole batch rather than batching the syscall itself.
func (b *Backend) SendBatch(pkts []backend.Descriptor) (int, error) {
	if len(pkts) == 0 {
		return 0, nil
	}
	stage := getStagingBuffer(b.maxBuf)
	defer putStagingBuffer(stage)

	sa := &unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_IP), Ifindex: int(b.cfg.IfIndex)}
	n := 0
	for _, p := range pkts {
		if len(p.Bytes) > len(stage) {
			break
		}
		copy(stage, p.Bytes)
		if err := unix.Sendto(b.fd, stage[:len(p.Bytes)], 0, sa); err != nil {
			if err == unix.EAGAIN {
				break
			}
			return n, fmt.Errorf("bpfdev: sendto: %w", err)
		}
		n++
	}
	return n, nil
}

// ReleaseBatch is a no-op: this backend always copies on receive, so
// there is no kernel-owned buffer to hand back.
func (b *Backend) ReleaseBatch(pkts []backend.Descriptor) {}

func htons(v int) int {
	return int(uint16(v)<<8 | uint16(v)>>8)
}

func udpPortOrDefault(cfg backend.Config) uint16 {
	// The worker's classify.Config carries the authoritative UDP
	// destination port; the kernel filter only needs a coarse match, so
	// a zero value disables the port check and leaves the full decision
	// to classify.Classify.
	return 0
}

// attachFilter builds and installs a classic BPF program that accepts
// only frames addressed to localMAC carrying IPv4/UDP, leaving exact
// ITO signature matching to userspace. A udpPort of 0 skips the port
// check.
func attachFilter(fd int, localMAC [6]byte, udpPort uint16) error {
	insns, err := buildClassifierFilter(localMAC, udpPort)
	if err != nil {
		return err
	}
	raw, err := insns.Assemble()
	if err != nil {
		return fmt.Errorf("assemble bpf program: %w", err)
	}

	sockFilters := make([]unix.SockFilter, len(raw))
	for i, r := range raw {
		sockFilters[i] = unix.SockFilter{Code: r.Op, Jt: r.Jt, Jf: r.Jf, K: r.K}
	}
	prog := unix.SockFprog{
		Len:    uint16(len(sockFilters)),
		Filter: &sockFilters[0],
	}
	return unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog)
}
