package task

import (
	"chronos/kernel/mem"
	"chronos/kernel/vmm"
)

// Status is a TaskControlBlock's position in its lifecycle.
type Status int

const (
	// Ready tasks are waiting in the scheduler's ready queue.
	Ready Status = iota
	// Running is the single currently executing task.
	Running
	// Zombie tasks have exited or faulted and carry a valid ExitCode.
	// Once Zombie, a task is never run again.
	Zombie
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Zombie:
		return "Zombie"
	default:
		return "unknown"
	}
}

// ControlBlock is the per-task state the scheduler manipulates.
type ControlBlock struct {
	ID         int
	Status     Status
	Context    TaskContext
	MemorySet  *vmm.MemorySet
	TrapCtxPPN mem.PPN
	BaseSize   mem.VPN // highest user-data VPN at load time; informational
	ExitCode   int64   // valid iff Status == Zombie
}

// UserToken returns the satp value that activates this task's address
// space.
func (tcb *ControlBlock) UserToken() uint64 { return tcb.MemorySet.Token() }

// TrapContextAddr returns the virtual address of this task's TrapContext
// page, i.e. the pointer trap.Restore expects as its first argument.
func (tcb *ControlBlock) TrapContextAddr() uintptr {
	return uintptr(vmm.TrapContextVPN.Addr())
}
