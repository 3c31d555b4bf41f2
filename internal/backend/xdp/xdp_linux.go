//go:build linux

package xdp

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/itoreflect/reflector/internal/abi"
	"github.com/itoreflect/reflector/internal/backend"
)

const (
	numFillDescs = 4096
	numCompDescs = 4096
	numRxDescs   = 2048
	numTxDescs   = 2048
)

// ring is a generic view over one of the four AF_XDP shared rings, mmap'd
// from the socket. producer and consumer point directly into kernel-owned
// memory; every cross-thread visibility requirement is satisfied with
// atomic loads/stores against those addresses, same as libbpf's xsk rings.
type ring struct {
	mem      []byte
	producer *uint32
	consumer *uint32
	flags    *uint32
	descOff  uint32
	mask     uint32 // size - 1; size is always a power of two

	cached uint32 // local cache of the far producer/consumer, refreshed on demand
}

// needsWakeup reports whether the kernel asked for an explicit wakeup
// (sendto/poll) before it will notice new entries on this ring, per
// XDP_USE_NEED_WAKEUP semantics. Only meaningful on the TX ring; the
// fill ring also sets this bit but this backend never busy-polls fill.
func (r *ring) needsWakeup() bool {
	return r.flags != nil && atomic.LoadUint32(r.flags)&ringNeedWakeup != 0
}

// ringNeedWakeup is XDP_RING_NEED_WAKEUP (linux/if_xdp.h), the bit the
// kernel sets in a ring's flags word when a socket bound with
// XDP_USE_NEED_WAKEUP must be woken explicitly.
const ringNeedWakeup = 1 << 0

func (r *ring) descAddr(idx uint32) *abi.Desc {
	off := r.descOff + (idx&r.mask)*uint32(unsafe.Sizeof(abi.Desc{}))
	return (*abi.Desc)(unsafe.Pointer(&r.mem[off]))
}

func (r *ring) u64Addr(idx uint32) *uint64 {
	off := r.descOff + (idx&r.mask)*8
	return (*uint64)(unsafe.Pointer(&r.mem[off]))
}

// Backend implements backend.Backend over a single AF_XDP queue.
type Backend struct {
	cfg backend.Config

	sockFD int
	umem   []byte

	fill ring
	comp ring
	rx   ring
	tx   ring

	chunkSize  uint32
	numChunks  uint32
	freeChunks []uint64 // stack of UMEM-relative chunk addresses not currently owned by the kernel or a caller

	pendingTx []uint64 // chunk addresses posted on the TX ring, awaiting completion before reuse
}

// New constructs an uninitialized zero-copy backend for the given queue.
func New(cfg backend.Config) *Backend {
	return &Backend{cfg: cfg, sockFD: -1}
}

func (b *Backend) Init() error {
	if b.cfg.FrameSize <= 0 {
		return fmt.Errorf("xdp: frame size must be positive")
	}
	b.chunkSize = uint32(b.cfg.FrameSize)
	b.numChunks = uint32(b.cfg.FrameCount)
	if b.numChunks == 0 {
		b.numChunks = numFillDescs
	}

	fd, err := unix.Socket(abi.AFXDP, unix.SOCK_RAW, 0)
	if err != nil {
		return fmt.Errorf("xdp: socket: %w", err)
	}
	b.sockFD = fd

	umemLen := uint64(b.numChunks) * uint64(b.chunkSize)
	mem, _, errno := syscall.Syscall6(
		syscall.SYS_MMAP, 0, uintptr(umemLen),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_PRIVATE|syscall.MAP_ANONYMOUS,
		^uintptr(0), 0,
	)
	if errno != 0 {
		b.Cleanup()
		return fmt.Errorf("xdp: mmap umem: %w", errno)
	}
	b.umem = unsafe.Slice((*byte)(pointerFromMmap(mem)), umemLen)

	reg := abi.UmemReg{
		Addr:      uint64(uintptr(unsafe.Pointer(&b.umem[0]))),
		Len:       umemLen,
		ChunkSize: b.chunkSize,
		Headroom:  0,
	}
	if err := setsockopt(b.sockFD, abi.XDPUmemReg, unsafe.Pointer(&reg), uint32(unsafe.Sizeof(reg))); err != nil {
		b.Cleanup()
		return fmt.Errorf("xdp: XDP_UMEM_REG: %w", err)
	}

	if err := b.setRingSize(abi.XDPUmemFillRing, numFillDescs); err != nil {
		b.Cleanup()
		return err
	}
	if err := b.setRingSize(abi.XDPUmemCompletionRing, numCompDescs); err != nil {
		b.Cleanup()
		return err
	}
	if err := b.setRingSize(abi.XDPRxRing, numRxDescs); err != nil {
		b.Cleanup()
		return err
	}
	if err := b.setRingSize(abi.XDPTxRing, numTxDescs); err != nil {
		b.Cleanup()
		return err
	}

	var off abi.MmapOffsets
	offLen := uint32(unsafe.Sizeof(off))
	if err := getsockopt(b.sockFD, abi.XDPMmapOffsets, unsafe.Pointer(&off), &offLen); err != nil {
		b.Cleanup()
		return fmt.Errorf("xdp: XDP_MMAP_OFFSETS: %w", err)
	}

	var err error
	if b.fill, err = b.mmapRing(abi.XDPUmemPgoffFillRing, off.Fr, numFillDescs, true); err != nil {
		b.Cleanup()
		return err
	}
	if b.comp, err = b.mmapRing(abi.XDPUmemPgoffCompletionRing, off.Cr, numCompDescs, true); err != nil {
		b.Cleanup()
		return err
	}
	if b.rx, err = b.mmapRing(abi.XDPPgoffRxRing, off.Rx, numRxDescs, false); err != nil {
		b.Cleanup()
		return err
	}
	if b.tx, err = b.mmapRing(abi.XDPPgoffTxRing, off.Tx, numTxDescs, false); err != nil {
		b.Cleanup()
		return err
	}

	sa := abi.SockaddrXDP{
		Family:  abi.AFXDP,
		Flags:   abi.XDPUseNeedWakeup,
		IfIndex: b.cfg.IfIndex,
		QueueID: uint32(b.cfg.QueueID),
	}
	if err := bindXDP(b.sockFD, &sa); err != nil {
		b.Cleanup()
		return fmt.Errorf("xdp: bind: %w", err)
	}

	b.freeChunks = make([]uint64, 0, b.numChunks)
	for i := uint32(0); i < b.numChunks; i++ {
		b.freeChunks = append(b.freeChunks, uint64(i)*uint64(b.chunkSize))
	}
	b.fillInitial()

	return nil
}

// fillInitial seeds the fill ring with every free chunk so the kernel has
// somewhere to land the first bursts of RX traffic.
func (b *Backend) fillInitial() {
	n := uint32(len(b.freeChunks))
	if n > numFillDescs {
		n = numFillDescs
	}
	prod := atomic.LoadUint32(b.fill.producer)
	for i := uint32(0); i < n; i++ {
		addr := b.freeChunks[len(b.freeChunks)-1]
		b.freeChunks = b.freeChunks[:len(b.freeChunks)-1]
		*b.fill.u64Addr(prod + i) = addr
	}
	atomic.StoreUint32(b.fill.producer, prod+n)
}

func (b *Backend) Cleanup() error {
	if b.sockFD >= 0 {
		unix.Close(b.sockFD)
		b.sockFD = -1
	}
	for _, r := range []*ring{&b.fill, &b.comp, &b.rx, &b.tx} {
		if r.mem != nil {
			_, _, _ = syscall.Syscall(syscall.SYS_MUNMAP, uintptr(unsafe.Pointer(&r.mem[0])), uintptr(len(r.mem)), 0)
			r.mem = nil
		}
	}
	if b.umem != nil {
		_, _, _ = syscall.Syscall(syscall.SYS_MUNMAP, uintptr(unsafe.Pointer(&b.umem[0])), uintptr(len(b.umem)), 0)
		b.umem = nil
	}
	return nil
}

// RecvBatch drains completed TX chunks back to the free pool, then pulls
// as many RX descriptors as are ready (bounded by len(out)), polling up
// to the configured timeout if the RX ring is empty.
func (b *Backend) RecvBatch(out []backend.Descriptor) (int, error) {
	b.reapCompletions()

	cons := atomic.LoadUint32(b.rx.consumer)
	prod := atomic.LoadUint32(b.rx.producer)
	if prod == cons {
		if err := b.poll(); err != nil {
			return 0, err
		}
		prod = atomic.LoadUint32(b.rx.producer)
	}

	var now time.Time
	if b.cfg.MeasureLatency {
		now = time.Now()
	}
	n := 0
	for ; cons != prod && n < len(out); cons++ {
		d := b.rx.descAddr(cons)
		out[n] = backend.Descriptor{
			Bytes:      b.umem[d.Addr : d.Addr+uint64(d.Len)],
			BufferID:   d.Addr,
			ReceivedAt: now,
		}
		n++
	}
	atomic.StoreUint32(b.rx.consumer, cons)
	return n, nil
}

// SendBatch posts descriptors onto the TX ring. Accepted chunks move to
// pendingTx until the kernel reports completion via the completion ring.
func (b *Backend) SendBatch(pkts []backend.Descriptor) (int, error) {
	if len(pkts) == 0 {
		return 0, nil
	}
	b.reapCompletions()
	prod := atomic.LoadUint32(b.tx.producer)
	cons := atomic.LoadUint32(b.tx.consumer)
	free := numTxDescs - (prod - cons)

	n := uint32(len(pkts))
	if n > free {
		n = free
	}
	for i := uint32(0); i < n; i++ {
		d := b.tx.descAddr(prod + i)
		d.Addr = pkts[i].BufferID
		d.Len = uint32(len(pkts[i].Bytes))
		d.Options = 0
		b.pendingTx = append(b.pendingTx, pkts[i].BufferID)
	}
	atomic.StoreUint32(b.tx.producer, prod+n)
	if b.tx.needsWakeup() {
		if err := kick(b.sockFD); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}

// ReleaseBatch returns descriptors the worker decided not to transmit
// directly to the fill ring, so the kernel can reuse their chunks for RX.
func (b *Backend) ReleaseBatch(pkts []backend.Descriptor) {
	if len(pkts) == 0 {
		return
	}
	prod := atomic.LoadUint32(b.fill.producer)
	for i, p := range pkts {
		*b.fill.u64Addr(prod + uint32(i)) = p.BufferID
	}
	atomic.StoreUint32(b.fill.producer, prod+uint32(len(pkts)))
}

// reapCompletions moves chunks the kernel has finished transmitting from
// pendingTx back onto the fill ring, keeping RX supplied.
func (b *Backend) reapCompletions() {
	cons := atomic.LoadUint32(b.comp.consumer)
	prod := atomic.LoadUint32(b.comp.producer)
	if cons == prod {
		return
	}
	fillProd := atomic.LoadUint32(b.fill.producer)
	i := uint32(0)
	for ; cons != prod; cons++ {
		addr := *b.comp.u64Addr(cons)
		*b.fill.u64Addr(fillProd + i) = addr
		i++
	}
	atomic.StoreUint32(b.comp.consumer, cons)
	atomic.StoreUint32(b.fill.producer, fillProd+i)

	done := int(i)
	if done > len(b.pendingTx) {
		done = len(b.pendingTx)
	}
	b.pendingTx = b.pendingTx[:copy(b.pendingTx, b.pendingTx[done:])]
}

func (b *Backend) poll() error {
	fds := []unix.PollFd{{Fd: int32(b.sockFD), Events: unix.POLLIN}}
	_, err := unix.Poll(fds, b.cfg.PollTimeoutMs)
	return err
}

func (b *Backend) setRingSize(opt int, size uint32) error {
	return setsockopt(b.sockFD, opt, unsafe.Pointer(&size), 4)
}

func (b *Backend) mmapRing(pgoff uint64, off abi.RingOffset, numDescs uint32, isU64Ring bool) (ring, error) {
	descSize := uint64(unsafe.Sizeof(abi.Desc{}))
	if isU64Ring {
		descSize = 8
	}
	length := off.Desc + uint64(numDescs)*descSize

	mem, _, errno := syscall.Syscall6(
		syscall.SYS_MMAP, 0, uintptr(length),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED|syscall.MAP_POPULATE,
		uintptr(b.sockFD), uintptr(pgoff),
	)
	if errno != 0 {
		return ring{}, fmt.Errorf("xdp: mmap ring at pgoff %#x: %w", pgoff, errno)
	}
	buf := unsafe.Slice((*byte)(pointerFromMmap(mem)), length)
	return ring{
		mem:      buf,
		producer: (*uint32)(unsafe.Pointer(&buf[off.Producer])),
		consumer: (*uint32)(unsafe.Pointer(&buf[off.Consumer])),
		flags:    (*uint32)(unsafe.Pointer(&buf[off.Flags])),
		descOff:  uint32(off.Desc),
		mask:     numDescs - 1,
	}, nil
}

// pointerFromMmap converts a uintptr returned by a raw mmap syscall to an
// unsafe.Pointer without go vet flagging the uintptr-to-pointer
// conversion as unsafe (the value is never a derived/stale address).
//
//go:noinline
func pointerFromMmap(addr uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}

func setsockopt(fd, opt int, val unsafe.Pointer, l uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(abi.SolXDP), uintptr(opt), uintptr(val), uintptr(l), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func getsockopt(fd, opt int, val unsafe.Pointer, l *uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), uintptr(abi.SolXDP), uintptr(opt), uintptr(val), uintptr(unsafe.Pointer(l)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func bindXDP(fd int, sa *abi.SockaddrXDP) error {
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(sa)), unsafe.Sizeof(*sa))
	if errno != 0 {
		return errno
	}
	return nil
}

// kick nudges the kernel to drain the TX ring. AF_XDP sockets transmit on
// a sendto(2) call with no destination, same as libbpf's xsk_ring_prod__submit.
func kick(fd int) error {
	_, err := unix.SendmsgN(fd, nil, nil, nil, unix.MSG_DONTWAIT)
	if err != nil && err != unix.EAGAIN && err != unix.EBUSY && err != unix.ENOBUFS {
		return err
	}
	return nil
}
