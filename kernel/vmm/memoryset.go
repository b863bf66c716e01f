// Package vmm builds and manages SV39 page tables and the virtual address
// spaces built on top of them: a three-level table walk addressed by direct
// physical pointer, and the MemorySet abstraction (page table plus ordered
// map areas) used for both the kernel's own address space and every user
// task's.
package vmm

import (
	"bytes"
	"chronos/kernel"
	"chronos/kernel/bootinfo"
	"chronos/kernel/cpu"
	"chronos/kernel/mem"
	"debug/elf"
	"sort"
)

const (
	// TrampolineVPN is the fixed top-of-space VPN every MemorySet maps the
	// trampoline code page to.
	TrampolineVPN = mem.VPN((1 << 27) - 1)

	// TrapContextVPN is the VPN immediately below the trampoline, where a
	// user MemorySet's TrapContext page lives.
	TrapContextVPN = mem.VPN((1 << 27) - 2)

	// userStackPages is the number of pages reserved for a task's user
	// stack, placed above a one-page guard gap past its highest segment.
	userStackPages = 2

	// KernelStackPages is the number of pages backing one task's kernel
	// stack (16 KiB).
	KernelStackPages = 4

	// kernelStackSlot is the per-task VPN stride used by KernelStackVPNRange:
	// the stack itself plus a one-page guard below it, so an overflowing
	// task's stack faults instead of silently corrupting its neighbour's.
	kernelStackSlot = KernelStackPages + 1
)

var errBadELF = &kernel.Error{Module: "vmm", Message: "malformed user ELF image"}

// MemorySet is a page table plus the ordered, VPN-disjoint MapAreas
// installed into it.
type MemorySet struct {
	pt    *PageTable
	areas []*MapArea
}

// NewBare returns an empty MemorySet backed by a freshly allocated page
// table.
func NewBare() (*MemorySet, *kernel.Error) {
	pt, err := NewPageTable()
	if err != nil {
		return nil, err
	}
	return &MemorySet{pt: pt}, nil
}

// Push installs area into the MemorySet's page table and, if initialData is
// non-nil, copies it into the freshly mapped pages starting at area's first
// VPN. Push fails if area overlaps any area already installed.
func (ms *MemorySet) Push(area *MapArea, initialData []byte) *kernel.Error {
	for _, existing := range ms.areas {
		if area.Overlaps(existing) {
			return &kernel.Error{Module: "vmm", Message: "map area overlaps an existing area"}
		}
	}

	if err := area.MapInto(ms.pt); err != nil {
		return err
	}
	if initialData != nil {
		if err := area.CopyData(initialData); err != nil {
			return err
		}
	}

	ms.areas = append(ms.areas, area)
	return nil
}

// MapTrampoline installs the trampoline code page at the top VPN of the
// address space, identity-pointing at trampolinePPN with R|X and no U. It
// is called once by NewKernel and once more after every FromELF.
func (ms *MemorySet) MapTrampoline(trampolinePPN mem.PPN) *kernel.Error {
	return ms.Push(NewDirectArea(TrampolineVPN, trampolinePPN, FlagRead|FlagExec), nil)
}

// Activate writes this MemorySet's page-table token into satp and issues a
// full TLB fence, making it the active address space.
func (ms *MemorySet) Activate() {
	cpu.SetSATP(ms.pt.Token())
	cpu.SFenceVMA()
}

// Token returns the satp value that activates this MemorySet.
func (ms *MemorySet) Token() uint64 { return ms.pt.Token() }

// Translate delegates to the underlying page table.
func (ms *MemorySet) Translate(vpn mem.VPN) (mem.PPN, PTEFlag, *kernel.Error) {
	return ms.pt.Translate(vpn)
}

// KernelStackVPNRange returns the deterministic VPN range reserved for the
// taskIndex'th task's kernel stack, counting down from the VPN immediately
// below the trampoline with a one-page guard between consecutive stacks.
func KernelStackVPNRange(taskIndex int) (start, end mem.VPN) {
	end = TrampolineVPN - mem.VPN(taskIndex)*kernelStackSlot
	start = end - mem.VPN(KernelStackPages)
	return start, end
}

// InsertKernelStack maps taskIndex's kernel stack into the kernel
// MemorySet (R|W, not U) and returns its top-of-stack virtual address, the
// initial kernel stack pointer a task's TrapContext records.
func (ms *MemorySet) InsertKernelStack(taskIndex int) (mem.VirtAddr, *kernel.Error) {
	start, end := KernelStackVPNRange(taskIndex)
	area := NewFramedArea(start, end, FlagRead|FlagWrite)
	if err := ms.Push(area, nil); err != nil {
		return 0, err
	}
	return end.Addr(), nil
}

// Release drops every area (freeing their data frames) and then the page
// table itself (freeing its table frames), in that order: freeing a frame
// only returns it to the allocator, never mutates a PTE, so releasing areas
// before the table they're installed in is always safe.
func (ms *MemorySet) Release() {
	for _, area := range ms.areas {
		area.UnmapFrom(ms.pt)
	}
	ms.areas = nil
	ms.pt.Release()
}

// NewKernel builds the supervisor address space: identity maps for the
// kernel image's text/rodata/data+bss sections with appropriate
// permissions, identity maps the remaining physical RAM (heap and frame
// pool) R|W so pmm/vmm code can keep dereferencing physical addresses
// directly once paging is on, and maps the trampoline. Chronos talks to the
// firmware exclusively through SBI ecalls, never MMIO, so there is no
// separate MMIO region to map here.
func NewKernel(trampolinePPN mem.PPN) (*MemorySet, *kernel.Error) {
	ms, err := NewBare()
	if err != nil {
		return nil, err
	}

	layout := bootinfo.KernelLayout()
	sections := []struct {
		start, end mem.PhysAddr
		perms      PTEFlag
	}{
		{layout.TextStart, layout.TextEnd, FlagRead | FlagExec},
		{layout.RodataStart, layout.RodataEnd, FlagRead},
		{layout.DataStart, layout.HeapStart, FlagRead | FlagWrite},
		{layout.HeapStart, layout.HeapEnd, FlagRead | FlagWrite},
		{layout.FrameStart, layout.FrameEnd, FlagRead | FlagWrite},
	}

	for _, s := range sections {
		if s.end <= s.start {
			continue
		}
		area := NewIdenticalArea(mem.VirtAddr(s.start).VPN(), mem.VirtAddr(s.end-1).VPN()+1, s.perms)
		if err := ms.Push(area, nil); err != nil {
			return nil, err
		}
	}

	if err := ms.MapTrampoline(trampolinePPN); err != nil {
		return nil, err
	}
	return ms, nil
}

// FromELF parses a user ELF image and builds a user MemorySet from its
// PT_LOAD segments, then appends a guarded user stack above the highest
// loaded page, a TrapContext page immediately below the trampoline, and the
// trampoline itself. It returns the MemorySet, the physical frame backing
// the TrapContext page, the initial user stack pointer, and the ELF entry
// point.
func FromELF(image []byte, trampolinePPN mem.PPN) (*MemorySet, mem.PPN, mem.VirtAddr, mem.VirtAddr, *kernel.Error) {
	f, ferr := elf.NewFile(bytes.NewReader(image))
	if ferr != nil {
		return nil, 0, 0, 0, errBadELF
	}

	ms, err := NewBare()
	if err != nil {
		return nil, 0, 0, 0, err
	}

	// segData pairs a PT_LOAD segment's file bytes with the address they
	// load at. Pages are mapped in a separate pass first (pagePerms, below)
	// so that two segments sharing one VPN get a single area whose
	// permissions are the union of both; the file bytes are then written in
	// afterward so each segment's data lands at its own intra-page offset.
	type segData struct {
		vaddr mem.VirtAddr
		data  []byte
	}

	pagePerms := make(map[mem.VPN]PTEFlag)
	var segs []segData
	var maxVPN mem.VPN

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}

		startVPN := mem.VirtAddr(prog.Vaddr).VPN()
		endVPN := mem.VirtAddr(prog.Vaddr+prog.Memsz-1).VPN() + 1

		perms := FlagUser
		if prog.Flags&elf.PF_R != 0 {
			perms |= FlagRead
		}
		if prog.Flags&elf.PF_W != 0 {
			perms |= FlagWrite
		}
		if prog.Flags&elf.PF_X != 0 {
			perms |= FlagExec
		}
		for vpn := startVPN; vpn < endVPN; vpn++ {
			pagePerms[vpn] |= perms
		}

		data := make([]byte, prog.Filesz)
		if len(data) > 0 {
			if _, rerr := prog.Open().Read(data); rerr != nil {
				return nil, 0, 0, 0, errBadELF
			}
			segs = append(segs, segData{vaddr: mem.VirtAddr(prog.Vaddr), data: data})
		}

		if endVPN > maxVPN {
			maxVPN = endVPN
		}
	}

	areas, err := pushMergedAreas(ms, pagePerms)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for _, seg := range segs {
		area := areaContaining(areas, seg.vaddr.VPN())
		if area == nil {
			return nil, 0, 0, 0, errBadELF
		}
		if err := area.CopyAt(seg.vaddr, seg.data); err != nil {
			return nil, 0, 0, 0, err
		}
	}

	stackBottom := maxVPN + 1 // one-page guard gap
	stackTop := stackBottom + userStackPages
	stackArea := NewFramedArea(stackBottom, stackTop, FlagRead|FlagWrite|FlagUser)
	if err := ms.Push(stackArea, nil); err != nil {
		return nil, 0, 0, 0, err
	}

	trapCtxArea := NewFramedArea(TrapContextVPN, TrapContextVPN+1, FlagRead|FlagWrite)
	if err := ms.Push(trapCtxArea, nil); err != nil {
		return nil, 0, 0, 0, err
	}
	trapCtxPPN, _ := trapCtxArea.FramePPN(TrapContextVPN)

	if err := ms.MapTrampoline(trampolinePPN); err != nil {
		return nil, 0, 0, 0, err
	}

	return ms, trapCtxPPN, stackTop.Addr(), mem.VirtAddr(f.Entry), nil
}

// pushMergedAreas groups pagePerms (one permission mask per VPN) into the
// fewest contiguous, same-permission Framed areas and pushes each into ms,
// returning them in ascending VPN order.
func pushMergedAreas(ms *MemorySet, pagePerms map[mem.VPN]PTEFlag) ([]*MapArea, *kernel.Error) {
	if len(pagePerms) == 0 {
		return nil, nil
	}

	vpns := make([]mem.VPN, 0, len(pagePerms))
	for vpn := range pagePerms {
		vpns = append(vpns, vpn)
	}
	sort.Slice(vpns, func(i, j int) bool { return vpns[i] < vpns[j] })

	var areas []*MapArea
	push := func(start, end mem.VPN, perms PTEFlag) *kernel.Error {
		area := NewFramedArea(start, end, perms)
		if err := ms.Push(area, nil); err != nil {
			return err
		}
		areas = append(areas, area)
		return nil
	}

	start, prev := vpns[0], vpns[0]
	perms := pagePerms[vpns[0]]
	for _, vpn := range vpns[1:] {
		p := pagePerms[vpn]
		if vpn == prev+1 && p == perms {
			prev = vpn
			continue
		}
		if err := push(start, prev+1, perms); err != nil {
			return nil, err
		}
		start, prev, perms = vpn, vpn, p
	}
	if err := push(start, prev+1, perms); err != nil {
		return nil, err
	}
	return areas, nil
}

func areaContaining(areas []*MapArea, vpn mem.VPN) *MapArea {
	for _, a := range areas {
		if a.Contains(vpn) {
			return a
		}
	}
	return nil
}
