package abi

import "unsafe"

// IFNAMSIZ is the kernel's fixed interface-name buffer size (net/if.h).
const IFNAMSIZ = 16

// Ifreq mirrors struct ifreq (net/if.h): a fixed interface name followed
// by a union big enough to carry a sockaddr, an index, a flags word, an
// MTU, or a data pointer, depending which ioctl request is issued.
type Ifreq struct {
	Name  [IFNAMSIZ]byte
	Union [16]byte
}

var _ [32]byte = [unsafe.Sizeof(Ifreq{})]byte{}

// SetName copies name into the fixed Name field, truncating to
// IFNAMSIZ-1 bytes plus a trailing NUL the way the kernel expects.
func (r *Ifreq) SetName(name string) {
	for i := range r.Name {
		r.Name[i] = 0
	}
	n := len(name)
	if n > IFNAMSIZ-1 {
		n = IFNAMSIZ - 1
	}
	copy(r.Name[:n], name)
}

// Index interprets the union as an interface index, the SIOCGIFINDEX result.
func (r *Ifreq) Index() uint32 {
	return *(*uint32)(unsafe.Pointer(&r.Union[0]))
}

// HWAddr interprets the union as a sockaddr and returns its 6-byte MAC,
// the SIOCGIFHWADDR result; sa_family occupies the leading 2 bytes.
func (r *Ifreq) HWAddr() [6]byte {
	var mac [6]byte
	copy(mac[:], r.Union[2:8])
	return mac
}

// Flags interprets the union as the short ifr_flags field (SIOCGIFFLAGS).
func (r *Ifreq) Flags() uint16 {
	return *(*uint16)(unsafe.Pointer(&r.Union[0]))
}

// SetFlags writes ifr_flags ahead of a SIOCSIFFLAGS.
func (r *Ifreq) SetFlags(flags uint16) {
	*(*uint16)(unsafe.Pointer(&r.Union[0])) = flags
}

// SetDataPtr writes ifr_data, the pointer ioctls like SIOCETHTOOL use to
// pass a larger request structure than the union can hold inline.
func (r *Ifreq) SetDataPtr(p unsafe.Pointer) {
	*(*unsafe.Pointer)(unsafe.Pointer(&r.Union[0])) = p
}

// EthtoolGChannels is the ethtool sub-command for reading a NIC's
// configured channel (queue) counts.
const EthtoolGChannels = 0x0000003c

// EthtoolChannels mirrors struct ethtool_channels (linux/ethtool.h), used
// via SIOCETHTOOL to discover a NIC's RX queue count.
type EthtoolChannels struct {
	Cmd           uint32
	MaxRx         uint32
	MaxTx         uint32
	MaxOther      uint32
	MaxCombined   uint32
	RxCount       uint32
	TxCount       uint32
	OtherCount    uint32
	CombinedCount uint32
}

var _ [36]byte = [unsafe.Sizeof(EthtoolChannels{})]byte{}
