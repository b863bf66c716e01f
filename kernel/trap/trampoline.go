package trap

import "chronos/kernel/mem"

// AllTraps is the trap entry point; stvec is set to its address during
// boot. It is never called directly from Go -- the hart jumps here on
// every U->S trap -- so it is declared only to pin the symbol and let
// AllTrapsAddr report its address.
func AllTraps()

// Restore is the trap exit point: it loads the user token into satp,
// restores the full register file from the TrapContext at trapCtxVPN, and
// executes sret. It never returns to its caller in the ordinary sense --
// control resumes in U-mode -- so every caller must treat a call to
// Restore as a tail call.
func Restore(trapCtxVPN uintptr, userToken uint64)

// AllTrapsAddr and RestoreAddr expose the link-time addresses of the two
// trampoline entry points. Both live on the single physical page every
// MemorySet maps at vmm.TrampolineVPN; the kernel's own MemorySet identity
// maps all of RAM, so a Go function value's address here is already the
// physical address vmm.MapTrampoline needs.
func AllTrapsAddr() uintptr
func RestoreAddr() uintptr

// TrampolinePPN returns the physical page number backing the trampoline
// code, for vmm.MemorySet.MapTrampoline.
func TrampolinePPN() mem.PPN {
	return mem.PhysAddr(AllTrapsAddr()).PPN()
}
