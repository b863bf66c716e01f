// Package sync provides the spinlock synchronization primitive.
package sync

import "sync/atomic"

// spinAttemptsBeforeYielding bounds how many times Acquire busy-spins on the
// atomic swap before giving the rest of this hart's time to another task via
// yieldFn. Chronos is single-hart, so a held lock can only ever be released
// by code running on a task this hart has scheduled away from; spinning
// forever would wedge the hart against itself.
const spinAttemptsBeforeYielding = 128

var (
	// yieldFn is wired by kmain to the task manager's cooperative yield once
	// the scheduler exists (see kernel/kmain's wireCallbacks). It stays nil
	// during early boot, before any task is running, when Acquire cannot yet
	// be contended.
	yieldFn func()
)

// SetYieldFn installs the function Acquire calls after spinAttemptsBeforeYielding
// failed attempts to swap a contended lock. Passing nil (the zero value)
// reverts Acquire to pure busy-waiting.
func SetYieldFn(fn func()) {
	yieldFn = fn
}

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	attempts := uint32(0)
	for !l.TryToAcquire() {
		attempts++
		if attempts >= spinAttemptsBeforeYielding && yieldFn != nil {
			yieldFn()
			attempts = 0
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
