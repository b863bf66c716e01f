package vmm

import "chronos/kernel/mem"

// PTEFlag is a single-bit flag within an SV39 page table entry: bits
// [53:10] hold the PPN, bits [7:0] hold the flags below.
type PTEFlag uint64

const (
	// FlagValid marks the entry as present; an invalid entry's remaining
	// bits are unspecified.
	FlagValid PTEFlag = 1 << 0
	// FlagRead permits loads from the mapped page.
	FlagRead PTEFlag = 1 << 1
	// FlagWrite permits stores to the mapped page.
	FlagWrite PTEFlag = 1 << 2
	// FlagExec permits instruction fetch from the mapped page.
	FlagExec PTEFlag = 1 << 3
	// FlagUser permits U-mode access to the mapped page.
	FlagUser PTEFlag = 1 << 4
	// FlagGlobal marks the mapping as present in every address space. No
	// mapping Chronos builds sets it: the trampoline is mapped into each
	// address space separately instead.
	FlagGlobal PTEFlag = 1 << 5
	// FlagAccessed is set by the MMU on first reference.
	FlagAccessed PTEFlag = 1 << 6
	// FlagDirty is set by the MMU on first write.
	FlagDirty PTEFlag = 1 << 7

	// rwxMask isolates the three permission bits that distinguish a leaf
	// entry (at least one set) from a pointer to the next table (none set).
	rwxMask = FlagRead | FlagWrite | FlagExec

	pteFlagBits = 8
	ptePPNShift = 10
	ptePPNMask  = uint64(0x003FFFFFFFFFFC00) // bits [53:10]
)

// PermMask is the user-facing permission bitmask a MapArea carries: the
// subset of PTEFlag values meaningful to callers building page mappings
// ({R, W, X, U}).
type PermMask = PTEFlag

// Perm constructors name the permission bits callers combine with | when
// building a MapArea.
const (
	PermRead  = FlagRead
	PermWrite = FlagWrite
	PermExec  = FlagExec
	PermUser  = FlagUser
)

// pageTableEntry is the in-memory representation of one SV39 PTE slot.
type pageTableEntry uint64

// HasFlags returns true if every bit in flags is set.
func (pte pageTableEntry) HasFlags(flags PTEFlag) bool {
	return uint64(pte)&uint64(flags) == uint64(flags)
}

// HasAnyFlag returns true if at least one bit in flags is set.
func (pte pageTableEntry) HasAnyFlag(flags PTEFlag) bool {
	return uint64(pte)&uint64(flags) != 0
}

// IsLeaf reports whether this entry terminates a walk (any of R/W/X set)
// rather than pointing at the next-level table.
func (pte pageTableEntry) IsLeaf() bool {
	return pte.HasAnyFlag(rwxMask)
}

// SetFlags ORs flags into the entry.
func (pte *pageTableEntry) SetFlags(flags PTEFlag) {
	*pte = pageTableEntry(uint64(*pte) | uint64(flags))
}

// PPN extracts the physical page number this entry names, whether it is a
// leaf's target frame or a pointer to the next-level table page.
func (pte pageTableEntry) PPN() mem.PPN {
	return mem.PPN((uint64(pte) & ptePPNMask) >> ptePPNShift)
}

// SetPPN rewrites the PPN field in place, leaving flags untouched.
func (pte *pageTableEntry) SetPPN(ppn mem.PPN) {
	*pte = pageTableEntry((uint64(*pte) &^ ptePPNMask) | (uint64(ppn) << ptePPNShift))
}

// flags returns just the flag bits of the entry.
func (pte pageTableEntry) flags() PTEFlag {
	return PTEFlag(uint64(pte) & (1<<pteFlagBits - 1))
}
