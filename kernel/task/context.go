// Package task implements the task control block, the cooperative
// scheduler, and the __switch context switch. The switch primitive uses the
// same declare-in-Go/implement-in-assembly split as the cpu package; each
// TCB embeds the address space (vmm.MemorySet) it runs in.
package task

// TaskContext is the callee-saved register set __switch spills and
// reloads: return address, stack pointer, and s0-s11. Caller-saved
// registers need no home here -- the compiler already spilled them to the
// kernel stack at the call site that invoked Switch.
type TaskContext struct {
	RA uint64
	SP uint64
	S  [12]uint64
}

// NewTrapReturnContext builds the TaskContext a brand-new task's first
// Switch lands in. ra is set to trapReturnStubAddr, a small assembly stub
// that fetches the current task's TrapContext pointer and user token
// (via the callbacks registered with SetTrapReturnSource) and tail-calls
// trap.Restore -- so the very first time this context runs, it emerges in
// U-mode at the task's ELF entry point, exactly as if it were returning
// from an ordinary trap.
func NewTrapReturnContext(kernelSP uintptr) TaskContext {
	return TaskContext{RA: uint64(trapReturnStubAddr()), SP: uint64(kernelSP)}
}

// Switch spills the caller's callee-saved registers into cur, loads them
// from next, and returns -- which, because ra was just reloaded, resumes
// execution wherever next last called Switch (or, for a task's first run,
// at the trap-return stub). Implemented in switch_riscv64.s.
//
// Callers must drop any locks covering scheduler state before calling
// Switch: control does not return here until some other call to Switch
// names cur as its `next`, at which point this goroutine-less "thread" is
// a different task's call stack and would not see the lock as held by
// itself.
func Switch(cur, next *TaskContext)

// trapReturnStubAddr returns the address of the assembly stub described
// above. Implemented in switch_riscv64.s.
func trapReturnStubAddr() uintptr

// trapReturnSource is registered by the task manager: it reports the
// current task's TrapContext pointer and user satp token, the two values
// trap.Restore needs to resume a task in U-mode.
var trapReturnSource func() (trapCtxPtr uintptr, userToken uint64)

// SetTrapReturnSource registers fn as the source of the current task's
// trap-return arguments. Called once during boot wiring.
func SetTrapReturnSource(fn func() (uintptr, uint64)) { trapReturnSource = fn }

// currentTrapReturnArgs is called by the assembly trap-return stub using
// the ordinary Go calling convention; its two results arrive in the exact
// registers trap.Restore expects them in, so the stub can tail-call
// straight into Restore without rearranging anything.
func currentTrapReturnArgs() (uintptr, uint64) { return trapReturnSource() }
