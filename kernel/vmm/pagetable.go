package vmm

import (
	"chronos/kernel"
	"chronos/kernel/mem"
	"chronos/kernel/pmm"
	"unsafe"
)

const (
	// ptesPerTable is the number of 8-byte entries in one 4 KiB table page.
	ptesPerTable = int(mem.PageSize) / 8

	// satpModeSV39 is the mode field value that selects SV39 paging when
	// written to the high bits of the satp CSR.
	satpModeSV39 = uint64(8)
	satpModeShift = 60
)

var (
	// ErrAlreadyMapped is returned by Map when the target leaf PTE is
	// already valid.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual page is already mapped"}
	// ErrNotMapped is returned by Unmap/Translate when an intermediate or
	// leaf PTE along the walk is not valid.
	ErrNotMapped = &kernel.Error{Module: "vmm", Message: "virtual page is not mapped"}

	// frameAllocFn is swapped out by tests; production code always calls
	// pmm.AllocFrame.
	frameAllocFn = pmm.AllocFrame
)

// ptesAt overlays a [512]pageTableEntry view on top of the table page at
// ppn. This is safe to dereference only while the currently active address
// space identity-maps physical memory 1:1 onto itself -- true for every
// MemorySet Chronos builds (the kernel space always does, and page tables
// belonging to user spaces are only ever walked while the kernel space is
// active).
func ptesAt(ppn mem.PPN) *[512]pageTableEntry {
	return (*[512]pageTableEntry)(unsafe.Pointer(uintptr(ppn.Addr())))
}

// PageTable is a three-level SV39 page table. It owns the FrameTrackers for
// its root and every intermediate table frame it allocated; leaf target
// frames are owned by whoever installed the mapping (a MapArea).
type PageTable struct {
	root   *pmm.FrameTracker
	tables []*pmm.FrameTracker // every intermediate/root frame this table owns
}

// NewPageTable allocates a zero-filled root frame and returns a PageTable
// rooted at it.
func NewPageTable() (*PageTable, *kernel.Error) {
	root, err := frameAllocFn()
	if err != nil {
		return nil, err
	}
	return &PageTable{root: root, tables: []*pmm.FrameTracker{root}}, nil
}

// RootPPN returns the physical page number of the root table frame.
func (pt *PageTable) RootPPN() mem.PPN { return pt.root.PPN() }

// Token produces the satp register value that activates this table in SV39
// mode: (SV39_MODE << 60) | root_ppn.
func (pt *PageTable) Token() uint64 {
	return (satpModeSV39 << satpModeShift) | uint64(pt.RootPPN())
}

// Map walks VPN[2]->VPN[1]->VPN[0], allocating and zeroing intermediate
// tables on demand, and installs a leaf PTE pointing at ppn with the given
// flags (FlagValid is set automatically). Map fails with ErrAlreadyMapped if
// the leaf PTE is already valid.
func (pt *PageTable) Map(vpn mem.VPN, ppn mem.PPN, flags PTEFlag) *kernel.Error {
	leaf, err := pt.walkAlloc(vpn)
	if err != nil {
		return err
	}
	if leaf.HasFlags(FlagValid) {
		return ErrAlreadyMapped
	}

	*leaf = 0
	leaf.SetPPN(ppn)
	leaf.SetFlags(flags | FlagValid)
	return nil
}

// Unmap walks to the leaf PTE for vpn and clears it. It fails with
// ErrNotMapped if any entry along the walk (intermediate or leaf) is
// invalid.
func (pt *PageTable) Unmap(vpn mem.VPN) *kernel.Error {
	leaf, err := pt.walk(vpn)
	if err != nil {
		return err
	}
	if !leaf.HasFlags(FlagValid) {
		return ErrNotMapped
	}
	*leaf = 0
	return nil
}

// Translate returns the PPN and flags of the leaf PTE mapping vpn, or
// ErrNotMapped if vpn has no valid mapping.
func (pt *PageTable) Translate(vpn mem.VPN) (mem.PPN, PTEFlag, *kernel.Error) {
	leaf, err := pt.walk(vpn)
	if err != nil {
		return 0, 0, err
	}
	if !leaf.HasFlags(FlagValid) {
		return 0, 0, ErrNotMapped
	}
	return leaf.PPN(), leaf.flags(), nil
}

// walk descends to the leaf PTE for vpn without allocating; any missing
// intermediate table is reported as ErrNotMapped.
func (pt *PageTable) walk(vpn mem.VPN) (*pageTableEntry, *kernel.Error) {
	tablePPN := pt.RootPPN()
	for level := mem.PageLevels - 1; level >= 0; level-- {
		entries := ptesAt(tablePPN)
		entry := &entries[vpn.Index(level)]

		if level == 0 {
			return entry, nil
		}

		if !entry.HasFlags(FlagValid) {
			return nil, ErrNotMapped
		}
		tablePPN = entry.PPN()
	}
	panic("unreachable")
}

// walkAlloc descends to the leaf PTE for vpn, allocating and zero-filling
// any missing intermediate table along the way.
func (pt *PageTable) walkAlloc(vpn mem.VPN) (*pageTableEntry, *kernel.Error) {
	tablePPN := pt.RootPPN()
	for level := mem.PageLevels - 1; level >= 0; level-- {
		entries := ptesAt(tablePPN)
		entry := &entries[vpn.Index(level)]

		if level == 0 {
			return entry, nil
		}

		if !entry.HasFlags(FlagValid) {
			frame, err := frameAllocFn()
			if err != nil {
				return nil, err
			}
			pt.tables = append(pt.tables, frame)

			*entry = 0
			entry.SetPPN(frame.PPN())
			entry.SetFlags(FlagValid)
		}
		tablePPN = entry.PPN()
	}
	panic("unreachable")
}

// Release returns every table frame this PageTable owns (root and
// intermediates) to the frame allocator. Data frames mapped by leaf PTEs are
// not touched here -- their owner (a MapArea) must release them separately.
func (pt *PageTable) Release() {
	for _, f := range pt.tables {
		f.Release()
	}
	pt.tables = nil
}
