//go:build linux

package iface

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/itoreflect/reflector/internal/abi"
)

// Resolve opens a throwaway datagram socket and issues the ioctls needed
// to learn ifname's index, hardware address, and RX queue count.
func Resolve(ifname string) (Info, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return Info{}, fmt.Errorf("iface: socket: %w", err)
	}
	defer unix.Close(fd)

	idx, err := ioctlIndex(fd, ifname)
	if err != nil {
		return Info{}, err
	}
	mac, err := ioctlHWAddr(fd, ifname)
	if err != nil {
		return Info{}, err
	}

	return Info{
		Name:   ifname,
		Index:  idx,
		MAC:    mac,
		Queues: queueCount(fd, ifname),
	}, nil
}

// BringUp sets IFF_UP on ifname if it is not already set.
func BringUp(ifname string) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("iface: socket: %w", err)
	}
	defer unix.Close(fd)

	var req abi.Ifreq
	req.SetName(ifname)
	if err := ioctl(fd, unix.SIOCGIFFLAGS, &req); err != nil {
		return fmt.Errorf("iface: SIOCGIFFLAGS %s: %w", ifname, err)
	}
	if req.Flags()&unix.IFF_UP != 0 {
		return nil
	}
	req.SetFlags(req.Flags() | unix.IFF_UP)
	if err := ioctl(fd, unix.SIOCSIFFLAGS, &req); err != nil {
		return fmt.Errorf("iface: SIOCSIFFLAGS %s: %w", ifname, err)
	}
	return nil
}

// queueCount asks the driver for its configured combined channel count
// via SIOCETHTOOL/ETHTOOL_GCHANNELS. Not every driver implements
// channels (virtual interfaces, older drivers); on any failure this
// falls back to the host's CPU count, same spirit as the IRQ-affinity
// heuristic in internal/queue/affinity.go.
func queueCount(fd int, ifname string) int {
	var req abi.Ifreq
	req.SetName(ifname)

	var ch abi.EthtoolChannels
	ch.Cmd = abi.EthtoolGChannels
	req.SetDataPtr(unsafe.Pointer(&ch))

	if err := ioctl(fd, unix.SIOCETHTOOL, &req); err != nil {
		return runtime.NumCPU()
	}
	n := int(ch.CombinedCount)
	if n == 0 {
		n = int(ch.RxCount)
	}
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

func ioctlIndex(fd int, ifname string) (uint32, error) {
	var req abi.Ifreq
	req.SetName(ifname)
	if err := ioctl(fd, unix.SIOCGIFINDEX, &req); err != nil {
		return 0, fmt.Errorf("iface: SIOCGIFINDEX %s: %w", ifname, err)
	}
	return req.Index(), nil
}

func ioctlHWAddr(fd int, ifname string) ([6]byte, error) {
	var req abi.Ifreq
	req.SetName(ifname)
	if err := ioctl(fd, unix.SIOCGIFHWADDR, &req); err != nil {
		return [6]byte{}, fmt.Errorf("iface: SIOCGIFHWADDR %s: %w", ifname, err)
	}
	return req.HWAddr(), nil
}

func ioctl(fd int, req uint, ifr *abi.Ifreq) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(ifr)))
	if errno != 0 {
		return errno
	}
	return nil
}
