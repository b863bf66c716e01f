// Package heap implements the kernel's global small-object allocator: a
// single free-list over one fixed-size arena reserved immediately above the
// kernel image (8 MiB). It backs kernel metadata -- task control blocks,
// page-table bookkeeping -- that must exist before the Go runtime's own
// allocator is bootstrapped (kernel/goruntime.Init). Allocation is first-fit
// over the free list; adjacent freed blocks are coalesced on release.
package heap

import (
	"chronos/kernel"
	"chronos/kernel/kfmt"
	"chronos/kernel/sync"
)

// Size is the fixed arena size reserved immediately above the kernel image.
const Size = 8 * 1024 * 1024

// Lock guards every access to the free list. Callers must acquire it around
// Alloc/Free; this is documented here rather than enforced by the type
// system.
var Lock sync.Spinlock

// block is one free-list node: a run of [addr, addr+size) bytes not
// currently allocated. Blocks are singly linked in ascending address order
// and coalesced with their neighbours whenever a Free makes them adjacent.
type block struct {
	addr uintptr
	size uintptr
	next *block
}

var (
	arenaStart uintptr
	arenaEnd   uintptr
	freeList   *block

	errOutOfMemory = &kernel.Error{Module: "heap", Message: "out of memory"}
)

// Init configures the heap to serve allocations from [start, start+Size).
// Called once during boot, before the frame allocator.
func Init(start uintptr) {
	arenaStart = start
	arenaEnd = start + uintptr(Size)
	freeList = &block{addr: start, size: uintptr(Size)}
}

func alignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

// Alloc reserves size bytes aligned to align (a power of two), first-fit
// over the free list. Exhaustion is a kernel invariant violation, so it
// panics via kfmt.Panic rather than returning an error: heap allocation
// failure is always fatal, never recoverable.
func Alloc(size, align uintptr) uintptr {
	var prev *block
	for b := freeList; b != nil; b = b.next {
		base := alignUp(b.addr, align)
		pad := base - b.addr
		if b.size < pad+size {
			prev = b
			continue
		}

		end := base + size
		remaining := b.size - pad - size
		switch {
		case pad == 0 && remaining == 0:
			unlink(prev, b)
		case pad == 0:
			b.addr = end
			b.size = remaining
		default:
			b.size = pad
			if remaining > 0 {
				insertAfter(b, &block{addr: end, size: remaining})
			}
		}
		return base
	}

	kfmt.Panic(errOutOfMemory)
	return 0
}

func unlink(prev, b *block) {
	if prev == nil {
		freeList = b.next
		return
	}
	prev.next = b.next
}

func insertAfter(b, n *block) {
	n.next = b.next
	b.next = n
}

// Free returns [ptr, ptr+size) to the free list in address order, merging
// it with whichever neighbouring free blocks it now sits flush against.
func Free(ptr, size uintptr) {
	n := &block{addr: ptr, size: size}

	if freeList == nil || ptr < freeList.addr {
		n.next = freeList
		freeList = n
		coalesce(n)
		return
	}

	b := freeList
	for b.next != nil && b.next.addr < ptr {
		b = b.next
	}
	n.next = b.next
	b.next = n
	coalesce(n)
	coalesce(b)
}

func coalesce(b *block) {
	for b != nil && b.next != nil && b.addr+b.size == b.next.addr {
		b.size += b.next.size
		b.next = b.next.next
	}
}
