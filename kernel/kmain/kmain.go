// Package kmain assembles every Chronos subsystem into the kernel's boot
// sequence; it sits above every other package without being imported back
// by any of them -- Kmain cannot live in the leaf "kernel" package
// (kernel/error.go) because every subsystem it wires already imports that
// package for kernel.Error, and Go forbids the cycle that would result.
package kmain

import (
	"chronos/kernel"
	"chronos/kernel/bootinfo"
	"chronos/kernel/console"
	"chronos/kernel/cpu"
	"chronos/kernel/goruntime"
	"chronos/kernel/heap"
	"chronos/kernel/kfmt"
	"chronos/kernel/loader"
	"chronos/kernel/pmm"
	"chronos/kernel/sync"
	"chronos/kernel/syscall"
	"chronos/kernel/task"
	"chronos/kernel/trap"
	"chronos/kernel/vmm"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// tasks is the process-wide task manager singleton, populated by LoadAll
// and handed to RunFirst at the end of boot. It is a package var rather
// than a Kmain-local one so the trap/task callbacks wired below can close
// over it without plumbing it through every intermediate call.
var tasks = task.NewManager()

// Kmain is the only Go symbol the kernel's entry stub calls into (see
// cmd/chronos). By the time it runs, the entry assembly has already cleared
// .bss and parked a0/a1 (hart id, device-tree pointer) as the hartID/dtb
// arguments below; that assembly, like the SBI firmware it hands control
// to, is outside this package's scope. Everything from here on is the
// bootstrap sequence proper: heap, frame allocator, kernel address space,
// trap vector, embedded apps, first task. Kmain does not return; if it
// somehow did, the entry stub halts.
//
//go:noinline
func Kmain(hartID uint64, dtb uintptr) {
	bootinfo.SetBootArgs(hartID, dtb)

	kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: console.SBI{}, Prefix: []byte("chronos: ")})
	kfmt.Printf("booting on hart %d\n", hartID)

	layout := bootinfo.KernelLayout()
	heap.Init(uintptr(layout.HeapStart))
	pmm.Init(layout.FrameStart, layout.FrameEnd)

	kernelMS, err := vmm.NewKernel(trap.TrampolinePPN())
	if err != nil {
		kfmt.Panic(err)
	}
	kernelMS.Activate()

	cpu.SetSTVEC(trap.AllTrapsAddr())

	if err := goruntime.Init(); err != nil {
		kfmt.Panic(err)
	}

	wireCallbacks()

	if err := loader.LoadAll(kernelMS, trap.TrampolinePPN(), tasks); err != nil {
		kfmt.Panic(err)
	}
	kfmt.Printf("kmain: loaded %d app(s)\n", tasks.Count())

	tasks.RunFirst()

	// kfmt.Panic instead of panic() keeps the compiler from treating
	// this call as dead code and eliminating Kmain's tail.
	kfmt.Panic(errKmainReturned)
}

// wireCallbacks connects trap.Dispatch to the task scheduler and syscall
// surface. Done once, after goruntime.Init (the callbacks close over
// interface values and a *syscall.Handler, both of which need working
// interface dispatch) and before loader.LoadAll hands the first task to
// tasks, since RunFirst's very first trap return depends on every callback
// already being registered.
func wireCallbacks() {
	sync.SetYieldFn(tasks.SuspendAndRunNext)
	task.SetTrapReturnSource(tasks.CurrentTrapReturnArgs)
	trap.SetTrapReturn(tasks.TrapReturn)
	trap.SetCurrentTaskIDFn(tasks.CurrentTaskID)
	trap.SetFatalFaultHandler(func(exitCode int64) {
		kfmt.Printf("kmain: task %d killed, exit code %d\n", tasks.Current().ID, exitCode)
		tasks.ExitAndRunNext(exitCode)
	})

	syscallHandler := &syscall.Handler{Tasks: tasks, Output: console.SBI{}}
	trap.SetSyscallHandler(syscallHandler.Dispatch)
}
