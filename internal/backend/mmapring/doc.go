// Package mmapring implements the memory-mapped ring backend: a
// PACKET_MMAP (TPACKET_V2) raw socket bound to one interface, with its RX
// and TX rings mmap'd directly into the process. It costs one copy per
// direction (kernel socket buffer to/from the mmap'd ring) instead of
// AF_XDP's true zero copy, but needs no NIC/driver support beyond a
// standard AF_PACKET socket, so it is the fallback when zero-copy is
// unavailable.
package mmapring
