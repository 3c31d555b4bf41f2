package bpfdev

import "sync"

// Staging buffers for the write path are bucketed by size, same pattern
// as the teacher's per-tag I/O buffer pool: a size-bucketed set of
// sync.Pools using the *[]byte trick to avoid sync.Pool's interface
// allocation on every Get/Put.
const (
	size256k = 256 * 1024
	size512k = 512 * 1024
	size1m   = 1024 * 1024
)

var stagingPool = struct {
	p256k sync.Pool
	p512k sync.Pool
	p1m   sync.Pool
}{
	p256k: sync.Pool{New: func() any { b := make([]byte, size256k); return &b }},
	p512k: sync.Pool{New: func() any { b := make([]byte, size512k); return &b }},
	p1m:   sync.Pool{New: func() any { b := make([]byte, size1m); return &b }},
}

// getStagingBuffer returns a pooled buffer of at least size bytes,
// rounded up to the smallest bucket that fits. Callers must return it
// with putStagingBuffer.
func getStagingBuffer(size int) []byte {
	switch {
	case size <= size256k:
		return (*stagingPool.p256k.Get().(*[]byte))[:size]
	case size <= size512k:
		return (*stagingPool.p512k.Get().(*[]byte))[:size]
	default:
		return (*stagingPool.p1m.Get().(*[]byte))[:size]
	}
}

func putStagingBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size256k:
		stagingPool.p256k.Put(&buf)
	case size512k:
		stagingPool.p512k.Put(&buf)
	case size1m:
		stagingPool.p1m.Put(&buf)
	}
}

// probeMaxBufSize finds the largest socket send buffer the kernel will
// grant for fd, trying a descending schedule and keeping whichever
// setsockopt call first succeeds without being silently clamped below
// half of what was requested (the kernel doubles SO_SNDBUF internally,
// so getsockopt reports roughly 2x the requested value on success).
func probeMaxBufSize(setSockopt func(want int) (got int, err error)) int {
	for _, want := range []int{size1m, size512k, size256k} {
		got, err := setSockopt(want)
		if err == nil && got >= want {
			return want
		}
	}
	return size256k
}
