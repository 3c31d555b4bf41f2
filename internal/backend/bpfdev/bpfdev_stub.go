//go:build !linux

package bpfdev

import "github.com/itoreflect/reflector/internal/backend"

// Backend is a non-functional placeholder on platforms without classic
// BPF socket filters.
type Backend struct{}

func New(cfg backend.Config) *Backend { return &Backend{} }

func (b *Backend) Init() error { return backend.ErrUnsupported(backend.NameBPFDev) }

func (b *Backend) Cleanup() error { return nil }

func (b *Backend) RecvBatch(out []backend.Descriptor) (int, error) {
	return 0, backend.ErrUnsupported(backend.NameBPFDev)
}

func (b *Backend) SendBatch(pkts []backend.Descriptor) (int, error) {
	return 0, backend.ErrUnsupported(backend.NameBPFDev)
}

func (b *Backend) ReleaseBatch(pkts []backend.Descriptor) {}
