package kernel

import (
	"reflect"
	"unsafe"

	"chronos/kernel/mem"
)

// Memset fills size bytes starting at addr with value. Chronos's kernel
// address space identity-maps all physical memory, so addr is equally at
// home naming a physical frame (pmm.AllocFrame zeroing a fresh frame) as it
// is naming the backing array of a Go-resident buffer cast through
// unsafe.Pointer. The implementation is log2(size) copy calls rather than a
// byte-at-a-time loop, which pays off since every call this kernel makes
// sizes in whole pages.
func Memset(addr mem.PhysAddr, value byte, size mem.Size) {
	if size == 0 {
		return
	}

	target := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: uintptr(addr),
	}))

	target[0] = value
	for index := mem.Size(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Memcopy copies size bytes from src to dst, both named as physical
// addresses per Memset's identity-mapping note above.
func Memcopy(src, dst mem.PhysAddr, size mem.Size) {
	if size == 0 {
		return
	}

	srcSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: uintptr(src),
	}))
	dstSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: uintptr(dst),
	}))

	copy(dstSlice, srcSlice)
}
