package iface

import (
	"context"
	"testing"
	"time"
)

func TestWaitReadyReturnsOnceInterfaceExists(t *testing.T) {
	// "lo" exists on every Linux host and CI runner; this exercises the
	// success path without needing a purpose-built test interface.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := WaitReady(ctx, "lo"); err != nil {
		t.Fatalf("WaitReady(lo): %v", err)
	}
}

func TestWaitReadyGivesUpOnUnknownInterface(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := WaitReady(ctx, "does-not-exist-0"); err == nil {
		t.Fatal("expected WaitReady to fail for a nonexistent interface")
	}
}
