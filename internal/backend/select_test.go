package backend

import (
	"errors"
	"testing"
)

type fakeBackend struct {
	initErr error
}

func (f *fakeBackend) Init() error                                   { return f.initErr }
func (f *fakeBackend) Cleanup() error                                { return nil }
func (f *fakeBackend) RecvBatch(out []Descriptor) (int, error)       { return 0, nil }
func (f *fakeBackend) SendBatch(pkts []Descriptor) (int, error)      { return 0, nil }
func (f *fakeBackend) ReleaseBatch(pkts []Descriptor)                {}

func TestSelectPicksFirstWorking(t *testing.T) {
	candidates := []Candidate{
		{Name: NameXDP, Constructor: func(Config) Backend { return &fakeBackend{} }},
		{Name: NameMMapRing, Constructor: func(Config) Backend { return &fakeBackend{} }},
	}
	b, name, err := Select(Config{}, candidates, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if name != NameXDP {
		t.Errorf("name = %s, want xdp", name)
	}
	if b == nil {
		t.Fatal("expected non-nil backend")
	}
}

func TestSelectFallsBackOnFailure(t *testing.T) {
	candidates := []Candidate{
		{Name: NameXDP, Constructor: func(Config) Backend { return &fakeBackend{initErr: errors.New("no xdp")} }},
		{Name: NameMMapRing, Constructor: func(Config) Backend { return &fakeBackend{} }},
		{Name: NameBPFDev, Constructor: func(Config) Backend { return &fakeBackend{} }},
	}
	_, name, err := Select(Config{}, candidates, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if name != NameMMapRing {
		t.Errorf("name = %s, want mmapring", name)
	}
}

func TestSelectReturnsErrorWhenAllFail(t *testing.T) {
	candidates := []Candidate{
		{Name: NameXDP, Constructor: func(Config) Backend { return &fakeBackend{initErr: errors.New("no xdp")} }},
		{Name: NameBPFDev, Constructor: func(Config) Backend { return &fakeBackend{initErr: errors.New("no bpfdev")} }},
	}
	_, _, err := Select(Config{}, candidates, nil)
	if err == nil {
		t.Fatal("expected error when every candidate fails")
	}
}
