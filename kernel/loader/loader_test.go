package loader

import (
	"testing"

	"chronos/kernel/mem"
	"chronos/kernel/pmm"
	"chronos/kernel/task"
	"chronos/kernel/vmm"
	"debug/elf"
)

func withFakeApps(t *testing.T, images [][]byte) {
	t.Helper()
	orig := appTableFn
	t.Cleanup(func() { appTableFn = orig })
	table := fakeAppTable(images)
	appTableFn = func() appTable { return table }
}

func TestAppCountAndGetAppData(t *testing.T) {
	a := buildELF(0x1000, []elfSegment{{vaddr: 0x1000, flags: uint32(elf.PF_R | elf.PF_X), data: []byte{1, 2, 3}}})
	b := buildELF(0x2000, []elfSegment{{vaddr: 0x2000, flags: uint32(elf.PF_R | elf.PF_X), data: []byte{4, 5}}})
	withFakeApps(t, [][]byte{a, b})

	if got := AppCount(); got != 2 {
		t.Fatalf("expected 2 apps, got %d", got)
	}
	if got := GetAppData(0); len(got) != len(a) {
		t.Fatalf("expected app 0 length %d, got %d", len(a), len(got))
	}
	if got := GetAppData(1); len(got) != len(b) {
		t.Fatalf("expected app 1 length %d, got %d", len(b), len(got))
	}
}

func TestAppCountIsZeroWithNoApps(t *testing.T) {
	withFakeApps(t, nil)
	if got := AppCount(); got != 0 {
		t.Fatalf("expected 0 apps, got %d", got)
	}
}

func newTrampolinePPN(t *testing.T) mem.PPN {
	t.Helper()
	frame, err := pmm.AllocFrame()
	if err != nil {
		t.Fatalf("AllocFrame: %v", err)
	}
	return frame.PPN()
}

func TestLoadAllAddsOneTaskPerApp(t *testing.T) {
	pmm.Init(0, mem.PhysAddr(4096*uint64(mem.PageSize)))

	code := make([]byte, 16)
	for i := range code {
		code[i] = byte(0x13 + i) // arbitrary placeholder opcodes
	}
	app := buildELF(0x1000, []elfSegment{{vaddr: 0x1000, flags: uint32(elf.PF_R | elf.PF_X), data: code}})
	withFakeApps(t, [][]byte{app})

	kernelMS, err := vmm.NewBare()
	if err != nil {
		t.Fatalf("NewBare: %v", err)
	}
	trampolinePPN := newTrampolinePPN(t)
	if err := kernelMS.MapTrampoline(trampolinePPN); err != nil {
		t.Fatalf("MapTrampoline: %v", err)
	}

	tasks := task.NewManager()
	if err := LoadAll(kernelMS, trampolinePPN, tasks); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if got := tasks.Count(); got != 1 {
		t.Fatalf("expected 1 task added, got %d", got)
	}
	if tcb := tasks.Current(); tcb != nil {
		t.Fatal("expected LoadAll not to run any task, only enqueue it")
	}
}

func TestLoadAllFailsOnMalformedELF(t *testing.T) {
	pmm.Init(0, mem.PhysAddr(4096*uint64(mem.PageSize)))
	withFakeApps(t, [][]byte{{0x00, 0x01, 0x02}})

	kernelMS, err := vmm.NewBare()
	if err != nil {
		t.Fatalf("NewBare: %v", err)
	}
	trampolinePPN := newTrampolinePPN(t)
	if err := kernelMS.MapTrampoline(trampolinePPN); err != nil {
		t.Fatalf("MapTrampoline: %v", err)
	}

	if err := LoadAll(kernelMS, trampolinePPN, task.NewManager()); err == nil {
		t.Fatal("expected LoadAll to fail on a malformed ELF image")
	}
}
