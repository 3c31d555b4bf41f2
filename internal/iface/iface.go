package iface

import (
	"context"
	"os"

	"github.com/cenkalti/backoff/v4"

	"github.com/itoreflect/reflector/internal/constants"
)

// Info is everything the reflector needs about its bound network
// interface before constructing each worker's backend.Config.
type Info struct {
	Name   string
	Index  uint32
	MAC    [6]byte
	Queues int
}

// WaitReady polls for ifname to appear under /sys/class/net, retrying
// with a capped exponential backoff; grounded on the teacher's own
// fixed-delay device-ready retry loop in queue.NewRunner, upgraded to
// cenkalti/backoff per the rest of the retrieval pack's convention.
func WaitReady(ctx context.Context, ifname string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = constants.InterfaceReadyInitialBackoff
	bo.MaxElapsedTime = constants.InterfaceReadyMaxElapsed
	return backoff.Retry(func() error {
		_, err := os.Stat("/sys/class/net/" + ifname)
		return err
	}, backoff.WithContext(bo, ctx))
}
