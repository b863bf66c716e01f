package task

import "testing"

func TestNewTrapReturnContextSetsStackPointer(t *testing.T) {
	const sp = uintptr(0xdeadbeef)
	ctx := NewTrapReturnContext(sp)

	if ctx.SP != uint64(sp) {
		t.Fatalf("expected SP %#x; got %#x", sp, ctx.SP)
	}
	if ctx.RA == 0 {
		t.Fatal("expected RA to point at the trap-return stub, not zero")
	}
}
