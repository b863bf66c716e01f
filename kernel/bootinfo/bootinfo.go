// Package bootinfo exposes the physical memory layout the boot environment
// hands the kernel: the fixed addresses from the machine's memory map and
// the kernel image's own section boundaries, as placed by the linker script.
// There is no bootloader handoff struct to parse under SBI; the information
// is instead a build-time contract with the linker script, surfaced here as
// plain Go accessors.
package bootinfo

import "chronos/kernel/mem"

const (
	// FirmwareBase is where OpenSBI/QEMU place the firmware image.
	FirmwareBase = mem.PhysAddr(0x8000_0000)

	// KernelTextBase is the kernel's link address, immediately above the
	// firmware's reserved region.
	KernelTextBase = mem.PhysAddr(0x8020_0000)

	// KernelHeapSize is the fixed size of the kernel heap arena placed
	// immediately above the kernel image.
	KernelHeapSize = 8 * mem.Mb

	// MemoryEnd is the last physical address backed by RAM on the
	// emulated machine (128 MiB total).
	MemoryEnd = mem.PhysAddr(0x8800_0000)
)

// Layout describes the boundaries of one loaded kernel image, in ascending
// address order: text, rodata, data+bss, then the heap and frame-pool
// regions that follow it.
type Layout struct {
	TextStart, TextEnd     mem.PhysAddr
	RodataStart, RodataEnd mem.PhysAddr
	DataStart, DataEnd     mem.PhysAddr // covers both .data and .bss
	HeapStart, HeapEnd     mem.PhysAddr
	FrameStart, FrameEnd   mem.PhysAddr
}

// kernelEnd is provided by the linker script as the first address past the
// kernel image's loaded sections (the `_kernel_end` symbol). The
// accessors below are declared without a body and implemented in
// layout_riscv64.s.
func textStart() uintptr
func textEnd() uintptr
func rodataStart() uintptr
func rodataEnd() uintptr
func dataStart() uintptr
func kernelEnd() uintptr

// KernelLayout reads the linker-provided section symbols and derives the
// heap and frame-pool regions that follow the image: heap immediately above
// the image, frame pool from the end of the heap to MemoryEnd.
func KernelLayout() Layout {
	heapStart := mem.PhysAddr(kernelEnd())
	heapEnd := heapStart + mem.PhysAddr(KernelHeapSize)

	return Layout{
		TextStart:   mem.PhysAddr(textStart()),
		TextEnd:     mem.PhysAddr(textEnd()),
		RodataStart: mem.PhysAddr(rodataStart()),
		RodataEnd:   mem.PhysAddr(rodataEnd()),
		DataStart:   mem.PhysAddr(dataStart()),
		DataEnd:     heapStart,
		HeapStart:   heapStart,
		HeapEnd:     heapEnd,
		FrameStart:  heapEnd,
		FrameEnd:    MemoryEnd,
	}
}

// HartID and DTBPointer are populated from a0/a1 at kernel entry (the SBI
// boot contract). Both are informational only: Chronos is single-hart and
// never walks the device tree.
var (
	HartID     uint64
	DTBPointer uintptr
)

// SetBootArgs records the values the entry trampoline received in a0/a1.
// Called once, before any other kernel initialisation.
func SetBootArgs(hartID uint64, dtb uintptr) {
	HartID = hartID
	DTBPointer = dtb
}
