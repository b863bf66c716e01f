package task

import (
	"chronos/kernel/sbicall"
	"chronos/kernel/sync"
	"chronos/kernel/trap"
)

// Manager holds the global, lock-protected scheduler state: every task's
// control block, the id of the current task, and the FIFO ready queue. The
// currently-running task is held separately and is never itself a member
// of the ready queue.
type Manager struct {
	lock    sync.Spinlock
	tasks   []*ControlBlock
	current int // index into tasks, or -1 if none is running
	ready   []int
}

// NewManager returns an empty task manager.
func NewManager() *Manager {
	return &Manager{current: -1}
}

// shutdownFn is sbicall.Shutdown, indirected so tests can observe a ready
// queue draining to empty without issuing a real SBI system reset call.
var shutdownFn = sbicall.Shutdown

// switchFn is Switch, indirected so tests can record context switches
// without actually reloading the host's stack pointer and callee-saved
// registers from test-fabricated TaskContext values.
var switchFn = Switch

// Count returns the number of tasks ever added to this manager, regardless
// of their current status.
func (m *Manager) Count() int {
	m.lock.Acquire()
	defer m.lock.Release()
	return len(m.tasks)
}

// Add registers tcb in Ready state and enqueues it.
func (m *Manager) Add(tcb *ControlBlock) {
	m.lock.Acquire()
	tcb.Status = Ready
	tcb.ID = len(m.tasks)
	m.tasks = append(m.tasks, tcb)
	m.ready = append(m.ready, tcb.ID)
	m.lock.Release()
}

// Current returns the currently running task, or nil if none is running.
func (m *Manager) Current() *ControlBlock {
	m.lock.Acquire()
	defer m.lock.Release()
	return m.currentLocked()
}

func (m *Manager) currentLocked() *ControlBlock {
	if m.current < 0 {
		return nil
	}
	return m.tasks[m.current]
}

// CurrentTaskID implements trap.CurrentTaskIDFn: the id of the running
// task, or -1 if none is current.
func (m *Manager) CurrentTaskID() int {
	tcb := m.Current()
	if tcb == nil {
		return -1
	}
	return tcb.ID
}

// RunFirst pops the front of the ready queue, marks it Running and current,
// then switches into it. Called once from the boot path; does not return.
func (m *Manager) RunFirst() {
	m.lock.Acquire()
	id, ok := m.popReadyLocked()
	if !ok {
		m.lock.Release()
		shutdownFn(false)
		return
	}

	m.tasks[id].Status = Running
	m.current = id
	next := &m.tasks[id].Context
	m.lock.Release()

	var dummy TaskContext
	switchFn(&dummy, next)
}

// SuspendAndRunNext marks the current task Ready, enqueues it at the tail,
// then runs the next Ready task.
func (m *Manager) SuspendAndRunNext() {
	m.lock.Acquire()
	outgoing := m.currentLocked()
	outgoing.Status = Ready
	m.ready = append(m.ready, outgoing.ID)
	m.runNextLocked(outgoing)
}

// ExitAndRunNext marks the current task Zombie with the given exit code
// (it is not re-enqueued) then runs the next Ready task. If the ready
// queue is empty, every task has finished and the firmware is asked to
// shut down.
func (m *Manager) ExitAndRunNext(exitCode int64) {
	m.lock.Acquire()
	outgoing := m.currentLocked()
	outgoing.Status = Zombie
	outgoing.ExitCode = exitCode
	m.runNextLocked(outgoing)
}

// runNextLocked is called with the lock held. It pops the next Ready task,
// updates the current pointer, drops the lock, then switches from the
// outgoing task's TaskContext to the incoming one's -- the lock must be
// released before Switch because control will not return here until some
// later Switch names outgoing as its `next`, on what is logically a
// different call stack that cannot see the lock as self-held.
func (m *Manager) runNextLocked(outgoing *ControlBlock) {
	id, ok := m.popReadyLocked()
	if !ok {
		m.lock.Release()
		if outgoing.Status == Zombie {
			shutdownFn(false)
			return
		}
		panic("task: ready queue empty with no zombie exit in progress")
	}

	m.tasks[id].Status = Running
	m.current = id
	next := &m.tasks[id].Context
	cur := &outgoing.Context
	m.lock.Release()

	switchFn(cur, next)
}

func (m *Manager) popReadyLocked() (int, bool) {
	if len(m.ready) == 0 {
		return 0, false
	}
	id := m.ready[0]
	m.ready = m.ready[1:]
	return id, true
}

// CurrentTrapReturnArgs implements the callback task.SetTrapReturnSource
// wants: the current task's TrapContext pointer and user satp token. A
// brand-new task reaches U-mode through this path via trapReturnStub's
// call into it, tail-jumping into trap.Restore from assembly.
func (m *Manager) CurrentTrapReturnArgs() (uintptr, uint64) {
	tcb := m.Current()
	return tcb.TrapContextAddr(), tcb.UserToken()
}

// TrapReturn implements trap.TrapReturnFn for the ordinary case: a task
// already running returns from a syscall it trapped into. Unlike a fresh
// task's first dispatch, no TaskContext switch is involved here -- Dispatch
// calls this as a plain Go function from partway down the kernel stack, so
// reaching U-mode is just a direct call into trap.Restore.
func (m *Manager) TrapReturn() {
	ptr, token := m.CurrentTrapReturnArgs()
	trap.Restore(ptr, token)
}
