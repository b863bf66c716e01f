// Package pmm hands out zero-filled 4 KiB physical frames and reclaims them
// on release. A single contiguous physical region is carved up by a bump
// cursor; frames released during the session are pushed onto a LIFO free
// list and handed back out before the bump cursor advances any further.
package pmm

import (
	"chronos/kernel"
	"chronos/kernel/mem"
)

// InvalidFrame is returned by allocation functions that fail to reserve a
// frame.
const InvalidFrame = PPN(^uint64(0))

// PPN re-exports mem.PPN so callers need not import mem solely to name a
// frame number.
type PPN = mem.PPN

var (
	errOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}

	// allocator is the process-wide singleton physical frame allocator.
	// It is initialized once during boot (Init) and guarded by a spinlock.
	allocator regionAllocator
)

// regionAllocator hands out frames from a single contiguous physical region
// (the RAM remaining after the kernel image and heap) using a bump cursor,
// falling back to a LIFO free list for frames that have been released.
type regionAllocator struct {
	startFrame, endFrame PPN // [startFrame, endFrame) is the manageable region
	nextFrame            PPN // bump cursor; only valid while free list is empty
	free                 []PPN
}

// Init configures the allocator to hand out frames drawn from
// [regionStart, regionEnd). regionStart is rounded up and regionEnd down to
// a page boundary, so only frames lying wholly inside the region are handed
// out.
func Init(regionStart, regionEnd mem.PhysAddr) {
	start := (regionStart + mem.PhysAddr(mem.PageSize-1)).PPN()
	allocator = regionAllocator{
		startFrame: start,
		endFrame:   regionEnd.PPN(),
		nextFrame:  start,
	}
}

// FreeFrames returns the number of frames the allocator could still hand
// out; used by tests to assert that dropping a MemorySet returns the frame
// count to its value before construction.
func FreeFrames() uint64 {
	return uint64(len(allocator.free)) + uint64(allocator.endFrame-allocator.nextFrame)
}

// AllocFrame reserves and zero-fills the next available physical frame.
func AllocFrame() (*FrameTracker, *kernel.Error) {
	ppn, err := allocRaw()
	if err != nil {
		return nil, err
	}

	kernel.Memset(ppn.Addr(), 0, mem.PageSize)
	return &FrameTracker{ppn: ppn, live: true}, nil
}

// AllocContiguous reserves n physically contiguous, zero-filled frames in
// one call. Used only by goruntime's bootstrap of the Go allocator, which
// needs each span it hands to mallocinit to be addressable as one run of
// memory. It only succeeds while the free list is empty (nothing has been
// released yet to fragment the bump region), which holds for the one-time,
// early-boot call site it exists for.
func AllocContiguous(n uint64) (mem.PhysAddr, *kernel.Error) {
	if len(allocator.free) > 0 {
		return 0, &kernel.Error{Module: "pmm", Message: "AllocContiguous: free list non-empty, cannot guarantee contiguity"}
	}
	if PPN(uint64(allocator.nextFrame)+n) > allocator.endFrame {
		return 0, errOutOfMemory
	}

	start := allocator.nextFrame
	allocator.nextFrame = PPN(uint64(allocator.nextFrame) + n)

	addr := start.Addr()
	kernel.Memset(addr, 0, mem.Size(n)*mem.PageSize)
	return addr, nil
}

func allocRaw() (PPN, *kernel.Error) {
	if n := len(allocator.free); n > 0 {
		ppn := allocator.free[n-1]
		allocator.free = allocator.free[:n-1]
		return ppn, nil
	}

	if allocator.nextFrame >= allocator.endFrame {
		return InvalidFrame, errOutOfMemory
	}

	ppn := allocator.nextFrame
	allocator.nextFrame++
	return ppn, nil
}

func freeRaw(ppn PPN) {
	allocator.free = append(allocator.free, ppn)
}

// FrameTracker owns exactly one physical frame and releases it back to the
// allocator when Release is called. FrameTrackers are never aliased: the
// zero value is not a valid tracker (Valid reports false), and Release is
// idempotent so a MemorySet's drop path can call it unconditionally.
type FrameTracker struct {
	ppn  PPN
	live bool
}

// Valid reports whether this tracker still owns a frame.
func (f *FrameTracker) Valid() bool { return f != nil && f.live }

// PPN returns the physical page number owned by this tracker.
func (f *FrameTracker) PPN() PPN { return f.ppn }

// Addr returns the physical address of the owned frame.
func (f *FrameTracker) Addr() mem.PhysAddr { return f.ppn.Addr() }

// Release returns the owned frame to the allocator. After Release, Valid
// reports false and the tracker must not be used again.
func (f *FrameTracker) Release() {
	if f == nil || !f.live {
		return
	}
	f.live = false
	freeRaw(f.ppn)
}
