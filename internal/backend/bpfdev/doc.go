// Package bpfdev implements the filter-device backend: a raw packet
// socket with a kernel-resident classic BPF program attached so the
// kernel itself discards everything but candidate ITO frames before they
// ever reach userspace. It is the fallback of last resort — no ring
// setup, no UMEM, just read(2)/write(2) against one file descriptor — and
// is driven by single-FD epoll readiness rather than ring indices.
package bpfdev
