//go:build !linux

package iface

import "fmt"

// Resolve is unimplemented outside Linux; the ioctls it needs
// (SIOCGIFINDEX, SIOCGIFHWADDR, SIOCETHTOOL) are Linux-specific.
func Resolve(ifname string) (Info, error) {
	return Info{}, fmt.Errorf("iface: %s: not supported on this platform", ifname)
}

// BringUp is unimplemented outside Linux.
func BringUp(ifname string) error {
	return fmt.Errorf("iface: %s: not supported on this platform", ifname)
}
