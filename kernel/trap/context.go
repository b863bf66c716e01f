// Package trap implements the S<->U trap boundary: the TrapContext layout
// the trampoline assembly reads and writes, and the dispatcher entered from
// the trampoline on every trap. CSR access is declared in Go and implemented
// in assembly, and trapped register state is captured as a fixed-layout
// snapshot dispatched by cause -- RISC-V has a single stvec entry point for
// every trap, rather than a vector table indexed per interrupt source.
package trap

import (
	"chronos/kernel/mem"
)

// gprCount is the number of general-purpose registers saved in a
// TrapContext, x[0] (always zero) included for offset simplicity even
// though the trampoline never touches it.
const gprCount = 32

// TrapContext is the fixed-layout structure living at a user task's
// trap-frame page. Field order is ABI: trampoline_riscv64.s indexes this
// struct by constant byte offsets, so no field may move without updating
// the offsets there.
type TrapContext struct {
	X           [gprCount]uint64 // x[0..32), x[2] is the user stack pointer
	Sstatus     uint64           // supervisor-status snapshot at trap entry
	Sepc        uint64           // supervisor exception program counter
	KernelSATP  uint64           // kernel page-table token, for trap entry
	KernelSP    uint64           // this task's kernel stack pointer
	TrapHandler uint64           // address of the Go dispatcher entry stub
}

// Offsets (in bytes) of each TrapContext field. The assembly cannot see Go
// constants, so context.h repeats this layout for the trampoline; a change
// to TrapContext must be mirrored in both places by hand.
const (
	OffsetX           = 0
	OffsetSstatus     = gprCount * 8
	OffsetSepc        = OffsetSstatus + 8
	OffsetKernelSATP  = OffsetSepc + 8
	OffsetKernelSP    = OffsetKernelSATP + 8
	OffsetTrapHandler = OffsetKernelSP + 8
	ContextSize       = OffsetTrapHandler + 8
)

// NewUserContext builds the initial TrapContext for a task that has never
// run: sepc is the ELF entry point, x[2] (sp) is the user stack top, and
// the embedded kernel-state fields carry what the trampoline needs to
// re-enter the kernel on this task's first trap.
func NewUserContext(entry, userSP mem.VirtAddr, kernelSATP uint64, kernelSP mem.VirtAddr, trapHandler uintptr) TrapContext {
	var ctx TrapContext
	ctx.X[2] = uint64(userSP)
	ctx.Sepc = uint64(entry)
	ctx.Sstatus = initialUserSstatus()
	ctx.KernelSATP = kernelSATP
	ctx.KernelSP = uint64(kernelSP)
	ctx.TrapHandler = uint64(trapHandler)
	return ctx
}

// sstatus.SPP (bit 8) selects the privilege level sret drops to: 0 = U-mode.
// sstatus.SPIE (bit 5) restores SIE on return so interrupts are enabled
// once back in U-mode -- moot here since Chronos never takes timer
// interrupts, but set for fidelity to the real register contract.
const (
	sstatusSPP  = 1 << 8
	sstatusSPIE = 1 << 5
)

func initialUserSstatus() uint64 {
	return sstatusSPIE &^ sstatusSPP
}
