package kfmt

import (
	"chronos/kernel"
	"chronos/kernel/sbicall"
)

var (
	// shutdownFn is mocked by tests and is automatically inlined by the
	// compiler. It is sbicall.Shutdown, not a parked halt loop, because
	// Chronos runs under QEMU/OpenSBI, which can actually power the machine
	// off; reporting failure lets an automated test harness observe a
	// non-zero QEMU exit code instead of hanging.
	shutdownFn = sbicall.Shutdown

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and powers
// the machine off through shutdownFn (sbicall.Shutdown with the failure
// reason). Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic)
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	shutdownFn(true)
}

// panicString serves as a redirect target for runtime.throw
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
