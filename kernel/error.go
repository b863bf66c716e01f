// Package kernel contains the types shared by every Chronos subsystem:
// the typed kernel error used instead of the stdlib error interface, and a
// handful of unsafe memory primitives that work before the heap exists.
package kernel

// Error is the typed error value returned by every fallible kernel operation.
// Chronos never returns a bare stdlib error from kernel code; Module
// identifies the subsystem that raised the error so panic output and log
// lines can be traced back to their source without string concatenation.
type Error struct {
	Module  string
	Message string
}

// Error implements the stdlib error interface so a *kernel.Error can still be
// passed to code (e.g. kfmt.Panic) that expects one.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return "[" + e.Module + "] " + e.Message
}
