package trap

import (
	"bytes"
	"chronos/kernel/cpu"
	"chronos/kernel/kfmt"
	"testing"
)

func withMockedOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	t.Cleanup(func() { kfmt.SetOutputSink(nil) })
	return &buf
}

func TestDispatchEcallAdvancesSepcAndInvokesSyscallHandler(t *testing.T) {
	withMockedOutput(t)
	defer func() {
		scauseFn = cpu.SCAUSE
		syscallHandler = nil
		trapReturn = nil
	}()

	scauseFn = func() uint64 { return causeEnvironmentCallFromU }

	var gotID uint64
	var gotArgs [3]uint64
	syscallHandler = func(id uint64, args [3]uint64) uint64 {
		gotID, gotArgs = id, args
		return 42
	}

	returned := false
	trapReturn = func() { returned = true }

	ctx := &TrapContext{Sepc: 0x1000}
	ctx.X[17] = 64
	ctx.X[10], ctx.X[11], ctx.X[12] = 1, 2, 3

	Dispatch(ctx)

	if ctx.Sepc != 0x1004 {
		t.Fatalf("expected sepc advanced by 4; got 0x%x", ctx.Sepc)
	}
	if gotID != 64 || gotArgs != [3]uint64{1, 2, 3} {
		t.Fatalf("unexpected syscall invocation: id=%d args=%v", gotID, gotArgs)
	}
	if ctx.X[10] != 42 {
		t.Fatalf("expected x[10] to carry the syscall result; got %d", ctx.X[10])
	}
	if !returned {
		t.Fatal("expected trapReturn to be invoked")
	}
}

func TestDispatchPageFaultKillsTaskWithoutAdvancingSepc(t *testing.T) {
	withMockedOutput(t)
	defer func() {
		scauseFn = cpu.SCAUSE
		stvalFn = cpu.STVAL
		fatalFault = nil
	}()

	scauseFn = func() uint64 { return causeLoadPageFault }
	stvalFn = func() uint64 { return 0xdead }

	var gotCode int64 = 7 // sentinel, must be overwritten
	fatalFault = func(exitCode int64) { gotCode = exitCode }

	ctx := &TrapContext{Sepc: 0x2000}
	Dispatch(ctx)

	if ctx.Sepc != 0x2000 {
		t.Fatalf("expected sepc untouched on fault; got 0x%x", ctx.Sepc)
	}
	if gotCode != -1 {
		t.Fatalf("expected fatalFault(-1); got %d", gotCode)
	}
}

func TestDispatchFaultLogIncludesTaskID(t *testing.T) {
	buf := withMockedOutput(t)
	defer func() {
		scauseFn = cpu.SCAUSE
		stvalFn = cpu.STVAL
		fatalFault = nil
		currentTaskID = nil
	}()

	scauseFn = func() uint64 { return causeIllegalInstruction }
	fatalFault = func(exitCode int64) {}
	currentTaskID = func() int { return 3 }

	Dispatch(&TrapContext{Sepc: 0x3000})

	if got := buf.String(); !bytes.Contains([]byte(got), []byte("task=3")) {
		t.Fatalf("expected fault log to name the task id, got %q", got)
	}
}
