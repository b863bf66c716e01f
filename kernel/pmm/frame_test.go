package pmm

import (
	"chronos/kernel/mem"
	"testing"
)

func TestAllocFrameZeroFillsAndTracksFree(t *testing.T) {
	Init(0, mem.PhysAddr(16*mem.PageSize))

	before := FreeFrames()

	f1, err := AllocFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f1.Valid() {
		t.Fatal("expected freshly allocated tracker to be valid")
	}
	if got := FreeFrames(); got != before-1 {
		t.Fatalf("expected free count %d; got %d", before-1, got)
	}

	f1.Release()
	if f1.Valid() {
		t.Fatal("expected tracker to be invalid after Release")
	}
	if got := FreeFrames(); got != before {
		t.Fatalf("expected free count to return to %d after release; got %d", before, got)
	}
}

func TestAllocFrameReusesFreedFrames(t *testing.T) {
	Init(0, mem.PhysAddr(2*mem.PageSize))

	f1, err := AllocFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f2, err := AllocFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := AllocFrame(); err == nil {
		t.Fatal("expected out-of-memory error once the region is exhausted")
	}

	freedPPN := f1.PPN()
	f1.Release()

	f3, err := AllocFrame()
	if err != nil {
		t.Fatalf("unexpected error after release: %v", err)
	}
	if f3.PPN() != freedPPN {
		t.Fatalf("expected reused frame %d; got %d", freedPPN, f3.PPN())
	}

	_ = f2
}

func TestAllocContiguousReturnsAdjacentFrames(t *testing.T) {
	Init(0, mem.PhysAddr(8*mem.PageSize))

	addr, err := AllocContiguous(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gotPPN := addr.PPN()
	if gotPPN != 0 {
		t.Fatalf("expected first run to start at frame 0; got %d", gotPPN)
	}
	if got := FreeFrames(); got != 4 {
		t.Fatalf("expected 4 frames remaining; got %d", got)
	}

	addr2, err := AllocContiguous(4)
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if addr2.PPN() != gotPPN+4 {
		t.Fatalf("expected second run to start at frame %d; got %d", gotPPN+4, addr2.PPN())
	}

	if _, err := AllocContiguous(1); err == nil {
		t.Fatal("expected out-of-memory error once the region is exhausted")
	}
}

func TestAllocContiguousRejectsNonEmptyFreeList(t *testing.T) {
	Init(0, mem.PhysAddr(8*mem.PageSize))

	f, err := AllocFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Release()

	if _, err := AllocContiguous(2); err == nil {
		t.Fatal("expected AllocContiguous to refuse to run while the free list is non-empty")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	Init(0, mem.PhysAddr(4*mem.PageSize))

	f, err := AllocFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := FreeFrames()
	f.Release()
	f.Release()

	if got := FreeFrames(); got != before+1 {
		t.Fatalf("expected a single release to be accounted for; got free=%d want=%d", got, before+1)
	}
}
