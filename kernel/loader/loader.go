// Package loader parses the user ELF images embedded in the kernel image
// and turns each into a runnable task. It reads the linker-placed embedded
// app table at `_num_app` using the same declare-in-Go/implement-in-assembly
// split bootinfo uses for its own linker-provided symbols, and logs what it
// loaded through kfmt.
package loader

import (
	"unsafe"

	"chronos/kernel"
	"chronos/kernel/bootinfo"
	"chronos/kernel/kfmt"
	"chronos/kernel/mem"
	"chronos/kernel/task"
	"chronos/kernel/trap"
	"chronos/kernel/vmm"
)

// numAppTableAddr returns the address of the _num_app symbol the build
// places in the kernel image. Implemented in loader_riscv64.s.
func numAppTableAddr() uintptr

// appTable is the parsed form of the embedded-app table: image is the byte
// range the offsets are relative into, and offsets holds AppCount()+1
// entries marking each app's [start,end) range within image.
type appTable struct {
	image   []byte
	offsets []uint64
}

// appTableFn produces the current appTable. Indirected, like
// sbicall.GetTimeMicros and its siblings, so tests can substitute a table
// built over synthetic, in-memory ELF fixtures instead of reading the real
// linker symbol.
var appTableFn = readAppTable

func readAppTable() appTable {
	tableAddr := numAppTableAddr()
	count := *(*uint64)(unsafe.Pointer(tableAddr))

	offsets := make([]uint64, count+1)
	base := tableAddr + 8
	for i := range offsets {
		offsets[i] = *(*uint64)(unsafe.Pointer(base + uintptr(i)*8))
	}

	imageBase := uintptr(bootinfo.KernelTextBase)
	image := unsafe.Slice((*byte)(unsafe.Pointer(imageBase)), offsets[count])
	return appTable{image: image, offsets: offsets}
}

// AppCount returns the number of embedded user ELF images.
func AppCount() int {
	t := appTableFn()
	if len(t.offsets) == 0 {
		return 0
	}
	return len(t.offsets) - 1
}

// GetAppData returns the i'th embedded ELF image's bytes.
func GetAppData(i int) []byte {
	t := appTableFn()
	return t.image[t.offsets[i]:t.offsets[i+1]]
}

// LoadAll builds a MemorySet, kernel stack, and TrapContext for every
// embedded app, in table order (task index == app index), and adds a
// TaskControlBlock for each to tasks. kernelMS is the active kernel
// MemorySet each task's kernel stack is carved out of; trampolinePPN is the
// physical page every user MemorySet's trampoline area identity-points at.
func LoadAll(kernelMS *vmm.MemorySet, trampolinePPN mem.PPN, tasks *task.Manager) *kernel.Error {
	count := AppCount()
	for i := 0; i < count; i++ {
		image := GetAppData(i)

		userMS, trapCtxPPN, userSP, entry, err := vmm.FromELF(image, trampolinePPN)
		if err != nil {
			return err
		}

		kernelSP, err := kernelMS.InsertKernelStack(i)
		if err != nil {
			return err
		}

		ctx := trap.NewUserContext(entry, userSP, kernelMS.Token(), kernelSP, trap.DispatchAddr())
		kernel.Memcopy(
			mem.PhysAddr(uintptr(unsafe.Pointer(&ctx))),
			trapCtxPPN.Addr(),
			mem.Size(unsafe.Sizeof(ctx)),
		)

		tcb := &task.ControlBlock{
			MemorySet:  userMS,
			Context:    task.NewTrapReturnContext(uintptr(kernelSP)),
			TrapCtxPPN: trapCtxPPN,
			BaseSize:   userSP.VPN(),
		}
		tasks.Add(tcb)

		kfmt.Printf("loader: app %d entry=0x%x user_sp=0x%x kernel_sp=0x%x\n",
			i, uint64(entry), uint64(userSP), uint64(kernelSP))
	}
	return nil
}
