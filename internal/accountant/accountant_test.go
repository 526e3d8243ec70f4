package accountant

import (
	"testing"

	"github.com/jqs-project/jqs/internal/jobstore"
)

func newTestAccountant(t *testing.T) *Accountant {
	t.Helper()
	layout := jobstore.NewLayout(t.TempDir())
	if err := layout.EnsureTree(); err != nil {
		t.Fatalf("ensure tree: %v", err)
	}
	a := New(layout, nil)
	if err := a.EnsureDefaults(8, 16384); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	return a
}

func TestTryReserveExactFit(t *testing.T) {
	a := newTestAccountant(t)
	ok, err := a.TryReserve(Request{Cores: 8, MemMB: 16384})
	if err != nil || !ok {
		t.Fatalf("expected exact fit to be admitted: ok=%v err=%v", ok, err)
	}
	ok, err = a.TryReserve(Request{Cores: 1, MemMB: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected one core more than free to be rejected")
	}
}

func TestTryReserveAndRelease(t *testing.T) {
	a := newTestAccountant(t)
	ok, err := a.TryReserve(Request{Cores: 4, MemMB: 1024})
	if err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	usage, err := a.Usage()
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.CoresUsed != 4 || usage.MemMBUsed != 1024 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if err := a.Release(Request{Cores: 4, MemMB: 1024}); err != nil {
		t.Fatalf("release: %v", err)
	}
	usage, err = a.Usage()
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.CoresUsed != 0 || usage.MemMBUsed != 0 {
		t.Fatalf("expected usage back to zero, got %+v", usage)
	}
}

func TestReleaseSaturatesAtZero(t *testing.T) {
	a := newTestAccountant(t)
	if err := a.Release(Request{Cores: 3, MemMB: 100}); err != nil {
		t.Fatalf("release: %v", err)
	}
	usage, err := a.Usage()
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.CoresUsed != 0 || usage.MemMBUsed != 0 {
		t.Fatalf("expected saturation at zero, got %+v", usage)
	}
}

func TestIsOversized(t *testing.T) {
	a := newTestAccountant(t)
	limits, err := a.Limits()
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	if !a.IsOversized(Request{Cores: 100, MemMB: 1}, limits) {
		t.Fatalf("expected oversized cores request to be flagged")
	}
	if a.IsOversized(Request{Cores: 1, MemMB: 1}, limits) {
		t.Fatalf("did not expect a trivially small request to be oversized")
	}
}

func TestBackfillSmallerJobFitsWhenLargerDoesNot(t *testing.T) {
	a := newTestAccountant(t)
	if ok, err := a.TryReserve(Request{Cores: 6, MemMB: 1024}); err != nil || !ok {
		t.Fatalf("reserve big: ok=%v err=%v", ok, err)
	}
	if ok, err := a.TryReserve(Request{Cores: 4, MemMB: 1024}); err != nil || ok {
		t.Fatalf("expected head-of-queue job to not fit: ok=%v err=%v", ok, err)
	}
	if ok, err := a.TryReserve(Request{Cores: 1, MemMB: 512}); err != nil || !ok {
		t.Fatalf("expected smaller backfilled job to fit: ok=%v err=%v", ok, err)
	}
}
