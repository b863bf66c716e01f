package trap

import (
	"chronos/kernel"
	"chronos/kernel/cpu"
	"chronos/kernel/kfmt"
)

// scause values Chronos cares about (RISC-V privileged spec table, trap
// cause encoding; the interrupt bit is the high bit of the CSR and is
// masked off before comparing against these).
const (
	causeInterruptBit = uint64(1) << 63

	causeInstructionPageFault = 12
	causeLoadPageFault        = 13
	causeStoreAMOPageFault    = 15
	causeIllegalInstruction   = 2
	causeEnvironmentCallFromU = 8
)

// SyscallHandlerFn services one ecall trap and returns the value to place
// in x[10]. Provided by the syscall package and registered by kmain during
// boot.
type SyscallHandlerFn func(id uint64, args [3]uint64) uint64

// TrapReturnFn computes the current task's TrapContext pointer and user
// satp token and tail-calls Restore. Provided by the task package, which
// alone knows which task is current, and registered by kmain.
type TrapReturnFn func()

// FatalFaultFn is invoked on a task-fatal trap (page fault, illegal
// instruction): it marks the current task Zombie with the given exit code
// and schedules the next task. Registered by kmain, whose handler calls the
// task manager.
type FatalFaultFn func(exitCode int64)

// CurrentTaskIDFn reports the id of the task currently executing, for fault
// log lines. Provided by the task package, which alone knows which task
// is current, and registered by kmain; taskID reports -1 if the callback has not been wired yet (e.g. in
// tests that never call Dispatch for a task-fatal cause).
type CurrentTaskIDFn func() int

var (
	syscallHandler SyscallHandlerFn
	trapReturn     TrapReturnFn
	fatalFault     FatalFaultFn
	currentTaskID  CurrentTaskIDFn

	errUnexpectedInterrupt = &kernel.Error{Module: "trap", Message: "unexpected supervisor interrupt"}
	errUnhandledTrap       = &kernel.Error{Module: "trap", Message: "unhandled trap cause"}

	// scauseFn/stvalFn are mocked by tests and inlined by the compiler in
	// production builds.
	scauseFn = cpu.SCAUSE
	stvalFn  = cpu.STVAL
)

// SetSyscallHandler registers the function Dispatch calls for
// causeEnvironmentCallFromU traps.
func SetSyscallHandler(fn SyscallHandlerFn) { syscallHandler = fn }

// SetTrapReturn registers the function Dispatch calls to return to U-mode
// once it is done handling a trap.
func SetTrapReturn(fn TrapReturnFn) { trapReturn = fn }

// SetFatalFaultHandler registers the function Dispatch calls to kill the
// current task on an unrecoverable fault.
func SetFatalFaultHandler(fn FatalFaultFn) { fatalFault = fn }

// SetCurrentTaskIDFn registers the function Dispatch calls to look up the
// current task's id for fault log lines.
func SetCurrentTaskIDFn(fn CurrentTaskIDFn) { currentTaskID = fn }

// taskID returns the current task's id via currentTaskID, or -1 if no
// callback has been registered.
func taskID() int {
	if currentTaskID == nil {
		return -1
	}
	return currentTaskID()
}

// Dispatch is entered from the trampoline with the TrapContext pointer,
// running on the current task's kernel stack with the kernel page table
// already active (per __alltraps steps 6-7). It never returns in the
// ordinary sense: every path ends by calling trapReturn (same task
// resumes) or, via fatalFault, scheduling a different task.
func Dispatch(ctx *TrapContext) {
	cause := scauseFn()
	if cause&causeInterruptBit != 0 {
		kfmt.Printf("trap: unexpected supervisor interrupt, scause=0x%x\n", cause&^causeInterruptBit)
		kfmt.Panic(errUnexpectedInterrupt)
	}

	switch cause {
	case causeEnvironmentCallFromU:
		ctx.Sepc += 4 // skip the ecall instruction on return
		id := ctx.X[17]
		args := [3]uint64{ctx.X[10], ctx.X[11], ctx.X[12]}
		ctx.X[10] = syscallHandler(id, args)
		trapReturn()

	case causeInstructionPageFault, causeLoadPageFault, causeStoreAMOPageFault:
		kfmt.Printf("trap: page fault (cause=%d) at sepc=0x%x, stval=0x%x, task=%d; killing task\n",
			cause, ctx.Sepc, stvalFn(), taskID())
		fatalFault(-1)

	case causeIllegalInstruction:
		kfmt.Printf("trap: illegal instruction at sepc=0x%x, task=%d; killing task\n", ctx.Sepc, taskID())
		fatalFault(-1)

	default:
		kfmt.Printf("trap: unhandled scause=0x%x at sepc=0x%x\n", cause, ctx.Sepc)
		kfmt.Panic(errUnhandledTrap)
	}
}

// DispatchAddr returns the address of Dispatch, which trap.NewUserContext
// and the task loader store in a TrapContext's TrapHandler field.
func DispatchAddr() uintptr
