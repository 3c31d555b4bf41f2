//go:build linux

package bpfdev

import (
	"testing"

	"github.com/itoreflect/reflector/internal/backend"
)

func TestInitRejectsIPv6AndVLANConfigs(t *testing.T) {
	for _, cfg := range []backend.Config{
		{AcceptIPv6: true},
		{AcceptVLAN: true},
		{AcceptIPv6: true, AcceptVLAN: true},
	} {
		b := New(cfg)
		if err := b.Init(); err == nil {
			t.Errorf("Init(%+v): expected rejection, got nil error", cfg)
		}
	}
}
