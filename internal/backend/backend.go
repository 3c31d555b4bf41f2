// Package backend defines the platform I/O abstraction every concrete
// backend (zero-copy, memory-mapped ring, filter-device) implements.
// The worker loop is written once against this interface; selection of
// which concrete backend to run is a supervisor-time decision.
package backend

import (
	"fmt"
	"time"
)

// Descriptor is an opaque, worker-owned reference to one frame currently
// held in a backend's buffer pool. Between RecvBatch returning it and
// either SendBatch or ReleaseBatch consuming it, exclusive ownership
// belongs to the caller — the backend must not write the underlying
// bytes.
type Descriptor struct {
	// Bytes is the frame's content. The slice aliases backend-owned
	// memory; it stays valid only until the descriptor is consumed.
	Bytes []byte

	// BufferID identifies the frame within the backend's pool, needed to
	// return ownership via ReleaseBatch or after SendBatch consumes it.
	BufferID uint64

	// ReceivedAt is the monotonic receive timestamp, populated only when
	// the worker's configuration enables latency measurement (the clock
	// read is a measurable cost at multi-Mpps rates otherwise).
	ReceivedAt time.Time
}

// Backend is the narrow contract a worker's pinned loop drives once per
// batch. Every method must be safe to call from the single goroutine
// that owns this Backend instance; none of them take a lock.
type Backend interface {
	// Init creates and binds the backend's sockets/descriptors, allocates
	// its buffer pool, and populates the fill ring (for zero-copy
	// backends). It is called once, before the worker loop starts.
	Init() error

	// Cleanup returns all resources. Safe to call on a context in any
	// internal state, including a partially-initialized one.
	Cleanup() error

	// RecvBatch is non-blocking; it may sleep inside the kernel waiting
	// for RX readiness up to a bounded poll timeout, but must not block
	// indefinitely and must not allocate. It returns 0..len(out)
	// descriptors, each now owned by the caller.
	RecvBatch(out []Descriptor) (int, error)

	// SendBatch enqueues up to len(pkts) descriptors for transmission and
	// returns how many were accepted. The caller retains ownership of
	// pkts[accepted:] and must release them. Must not block.
	SendBatch(pkts []Descriptor) (int, error)

	// ReleaseBatch returns buffers to the backend (to the fill ring for
	// zero-copy backends; a no-op for copy-in backends). After this call
	// the caller must not touch pkts again.
	ReleaseBatch(pkts []Descriptor)
}

// Name identifies a concrete backend implementation for logging and
// precedence ordering.
type Name string

const (
	NameXDP      Name = "xdp"
	NameMMapRing Name = "mmapring"
	NameBPFDev   Name = "bpfdev"
)

// ErrUnsupported reports that a backend has no implementation on the
// current build target (a non-Linux platform, or a kernel too old for
// the syscalls the backend needs).
func ErrUnsupported(name Name) error {
	return fmt.Errorf("backend %s: not supported on this platform", name)
}
