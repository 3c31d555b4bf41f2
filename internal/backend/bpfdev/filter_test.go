package bpfdev

import (
	"testing"

	"golang.org/x/net/bpf"
)

var testMAC = [6]byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}

func buildFrame(t *testing.T, dstMAC [6]byte, etherType uint16, ipProto byte, udpDstPort uint16) []byte {
	t.Helper()
	frame := make([]byte, 64)
	copy(frame[0:6], dstMAC[:])
	frame[12] = byte(etherType >> 8)
	frame[13] = byte(etherType)
	frame[14] = 0x45 // version 4, IHL 5 (20-byte header)
	frame[23] = ipProto
	frame[14+20+2] = byte(udpDstPort >> 8)
	frame[14+20+3] = byte(udpDstPort)
	return frame
}

func runFilter(t *testing.T, insns bpf.Instructions, frame []byte) int {
	t.Helper()
	vm, err := bpf.NewVM(insns)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	n, err := vm.Run(frame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return n
}

func TestClassifierFilterAcceptsMatchingUDP(t *testing.T) {
	insns, err := buildClassifierFilter(testMAC, 0)
	if err != nil {
		t.Fatalf("buildClassifierFilter: %v", err)
	}
	frame := buildFrame(t, testMAC, 0x0800, 17, 50000)
	if n := runFilter(t, insns, frame); n == 0 {
		t.Error("expected accept for matching dst MAC, IPv4, UDP")
	}
}

func TestClassifierFilterRejectsWrongMAC(t *testing.T) {
	insns, err := buildClassifierFilter(testMAC, 0)
	if err != nil {
		t.Fatalf("buildClassifierFilter: %v", err)
	}
	other := [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	frame := buildFrame(t, other, 0x0800, 17, 50000)
	if n := runFilter(t, insns, frame); n != 0 {
		t.Error("expected reject for mismatched dst MAC")
	}
}

func TestClassifierFilterRejectsNonUDP(t *testing.T) {
	insns, err := buildClassifierFilter(testMAC, 0)
	if err != nil {
		t.Fatalf("buildClassifierFilter: %v", err)
	}
	frame := buildFrame(t, testMAC, 0x0800, 6, 50000) // TCP
	if n := runFilter(t, insns, frame); n != 0 {
		t.Error("expected reject for non-UDP protocol")
	}
}

func TestClassifierFilterRejectsWrongEtherType(t *testing.T) {
	insns, err := buildClassifierFilter(testMAC, 0)
	if err != nil {
		t.Fatalf("buildClassifierFilter: %v", err)
	}
	frame := buildFrame(t, testMAC, 0x86dd, 17, 50000) // IPv6
	if n := runFilter(t, insns, frame); n != 0 {
		t.Error("expected reject for non-IPv4 EtherType")
	}
}

func TestClassifierFilterWithPortCheck(t *testing.T) {
	insns, err := buildClassifierFilter(testMAC, 5001)
	if err != nil {
		t.Fatalf("buildClassifierFilter: %v", err)
	}
	match := buildFrame(t, testMAC, 0x0800, 17, 5001)
	if n := runFilter(t, insns, match); n == 0 {
		t.Error("expected accept for matching UDP dst port")
	}
	mismatch := buildFrame(t, testMAC, 0x0800, 17, 5002)
	if n := runFilter(t, insns, mismatch); n != 0 {
		t.Error("expected reject for mismatched UDP dst port")
	}
}
