//go:build !linux

package mmapring

import "github.com/itoreflect/reflector/internal/backend"

// Backend is a non-functional placeholder on platforms without PACKET_MMAP.
type Backend struct{}

func New(cfg backend.Config) *Backend { return &Backend{} }

func (b *Backend) Init() error { return backend.ErrUnsupported(backend.NameMMapRing) }

func (b *Backend) Cleanup() error { return nil }

func (b *Backend) RecvBatch(out []backend.Descriptor) (int, error) {
	return 0, backend.ErrUnsupported(backend.NameMMapRing)
}

func (b *Backend) SendBatch(pkts []backend.Descriptor) (int, error) {
	return 0, backend.ErrUnsupported(backend.NameMMapRing)
}

func (b *Backend) ReleaseBatch(pkts []backend.Descriptor) {}
