package heap

import "testing"

// Exhaustion is intentionally not exercised here: Alloc reports it via
// kfmt.Panic, which powers the machine off through an SBI shutdown call
// rather than returning or unwinding through a recoverable Go panic, so
// there is no way to observe it from a test process.

func reset(size uintptr) {
	Init(0x1000)
	if size != uintptr(Size) {
		freeList.size = size
	}
}

func TestAllocReturnsDistinctNonOverlappingRegions(t *testing.T) {
	reset(uintptr(Size))

	a := Alloc(64, 8)
	b := Alloc(128, 8)

	if a == b {
		t.Fatal("expected distinct allocations")
	}
	if a+64 > b {
		t.Fatalf("expected non-overlapping regions, got a=0x%x (+64) b=0x%x", a, b)
	}
}

func TestAllocHonoursAlignment(t *testing.T) {
	reset(uintptr(Size))

	// Force an odd cursor before requesting a 64-byte aligned block.
	_ = Alloc(3, 1)
	p := Alloc(16, 64)

	if p%64 != 0 {
		t.Fatalf("expected 64-byte aligned address, got 0x%x", p)
	}
}

func TestFreeThenAllocReusesSpace(t *testing.T) {
	reset(uintptr(Size))

	p := Alloc(256, 8)
	Free(p, 256)

	q := Alloc(256, 8)
	if q != p {
		t.Fatalf("expected Free'd block to be reused at 0x%x, got 0x%x", p, q)
	}
}

func TestFreeCoalescesAdjacentBlocks(t *testing.T) {
	reset(uintptr(Size))

	a := Alloc(64, 8)
	b := Alloc(64, 8)
	c := Alloc(64, 8)

	Free(a, 64)
	Free(c, 64)
	Free(b, 64)

	if freeList == nil || freeList.next != nil {
		t.Fatalf("expected freeing all three allocations to coalesce into one block, got chain: %v", dumpChain())
	}
	if freeList.size != uintptr(Size) {
		t.Fatalf("expected coalesced block to span the whole arena, got size %d", freeList.size)
	}
}

func TestAllocSplitsBlockLeavingRemainderFree(t *testing.T) {
	reset(uintptr(Size))

	Alloc(64, 8)

	if freeList == nil {
		t.Fatal("expected a remainder block after a partial allocation")
	}
	if got := freeList.size; got != uintptr(Size)-64 {
		t.Fatalf("expected remainder of %d bytes, got %d", uintptr(Size)-64, got)
	}
}

func dumpChain() []uintptr {
	var sizes []uintptr
	for b := freeList; b != nil; b = b.next {
		sizes = append(sizes, b.size)
	}
	return sizes
}
