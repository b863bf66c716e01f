// Package cpu exposes the small set of privileged RISC-V operations the
// rest of the kernel needs: paging-register control, interrupt masking and
// the halt loop. Each operation is declared here as a body-less Go function
// and implemented in the paired .s file.
package cpu

// EnableInterrupts sets the supervisor interrupt-enable bit (sstatus.SIE).
func EnableInterrupts()

// DisableInterrupts clears the supervisor interrupt-enable bit.
func DisableInterrupts()

// Halt parks the hart in a wfi loop; it never returns.
func Halt()

// SetSATP writes token to the satp CSR, switching the active page table.
func SetSATP(token uint64)

// SATP returns the current value of the satp CSR.
func SATP() uint64

// SFenceVMA issues a global TLB fence (sfence.vma with no operands),
// flushing every cached address translation.
func SFenceVMA()

// SCAUSE returns the current value of the scause CSR.
func SCAUSE() uint64

// STVAL returns the current value of the stval CSR.
func STVAL() uint64

// SetSTVEC writes addr into the stvec CSR in Direct mode, installing it as
// the single entry point every U->S trap jumps to. Chronos never sets the
// low two mode bits (Vectored mode): every trap, regardless of cause, enters
// through the one shared trampoline.
func SetSTVEC(addr uintptr)
