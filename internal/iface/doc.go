// Package iface resolves a network interface name to the index,
// hardware address, and RX queue count a reflector worker pool needs,
// brings the interface up if necessary, and waits for it to appear
// under /sys/class/net with a bounded retry.
package iface
