package agnuscore

import "testing"

func TestHigherPriorityPreemptsLowerOwner(t *testing.T) {
	a := NewArbiter()
	if got := a.Request(10, BusCPU); got != BusCPU {
		t.Fatalf("first request got %v, want BusCPU", got)
	}
	if got := a.Request(10, BusCopper); got != BusCopper {
		t.Fatalf("copper should preempt CPU, got %v", got)
	}
	if a.Owner(10) != BusCopper {
		t.Fatalf("owner = %v, want BusCopper", a.Owner(10))
	}
}

func TestLowerPriorityCannotPreempt(t *testing.T) {
	a := NewArbiter()
	a.Request(20, BusCopper)
	if got := a.Request(20, BusCPU); got != BusCopper {
		t.Fatalf("CPU should not preempt copper, got %v", got)
	}
}

func TestBLSRaisedAfterTwoDeniedBlitterRequests(t *testing.T) {
	a := NewArbiter()
	a.Request(1, BusCopper)
	a.Request(1, BusBlitter)
	if a.BLS() {
		t.Fatalf("BLS raised after only one denial")
	}
	a.Request(2, BusCopper)
	a.Request(2, BusBlitter)
	if !a.BLS() {
		t.Fatalf("BLS not raised after two denials")
	}
}

func TestBLSClearedOnGrant(t *testing.T) {
	a := NewArbiter()
	a.Request(1, BusCopper)
	a.Request(1, BusBlitter)
	a.Request(2, BusCopper)
	a.Request(2, BusBlitter)
	if !a.BLS() {
		t.Fatalf("setup failed to raise BLS")
	}
	a.Request(3, BusBlitter)
	if a.BLS() {
		t.Fatalf("BLS should clear once the blitter is granted the bus")
	}
}

func TestNextFreeSkipsOwnedCycles(t *testing.T) {
	a := NewArbiter()
	for h := 0x40; h < 0xE0; h++ {
		a.Request(h, BusBitplane)
	}
	a.owner[0x50] = BusNone // a single gap inside the otherwise-owned run

	if got := a.NextFree(0x40); got != 0x50 {
		t.Fatalf("NextFree(0x40) = %#x, want 0x50", got)
	}
}

func TestNextFreeReturnsMinusOneWhenLineFullyOwned(t *testing.T) {
	a := NewArbiter()
	for h := 0; h < CyclesPerLine; h++ {
		a.Request(h, BusBitplane)
	}
	if got := a.NextFree(0); got != -1 {
		t.Fatalf("NextFree on a fully-owned line = %d, want -1", got)
	}
}

func TestClearLineResetsOwnershipNotBLS(t *testing.T) {
	a := NewArbiter()
	a.Request(1, BusCopper)
	a.Request(1, BusBlitter)
	a.Request(2, BusCopper)
	a.Request(2, BusBlitter)
	a.Request(5, BusCPU)
	a.ClearLine()
	if a.Owner(5) != BusNone {
		t.Fatalf("owner after ClearLine = %v, want BusNone", a.Owner(5))
	}
	if !a.BLS() {
		t.Fatalf("BLS should survive ClearLine")
	}
}
