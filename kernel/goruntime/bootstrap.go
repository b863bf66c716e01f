// Package goruntime contains code for bootstrapping Go runtime features such
// as the memory allocator.
package goruntime

import (
	"chronos/kernel"
	"chronos/kernel/mem"
	"chronos/kernel/pmm"
	"chronos/kernel/sbicall"
	"unsafe"
)

var (
	allocContiguousFn = pmm.AllocContiguous
	mallocInitFn      = mallocInit
	algInitFn         = algInit
	modulesInitFn     = modulesInit
	typeLinksInitFn   = typeLinksInit
	itabsInitFn       = itabsInit
	getTimeMicrosFn   = sbicall.GetTimeMicros

	// A seed for the pseudo-random number generator used by getRandomData
	prngSeed = 0xdeadc0de
)

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

// reserveOrAlloc backs size bytes, rounded up to whole pages, with
// contiguous zero-filled physical frames and returns the start address.
//
// Chronos's kernel MemorySet identity-maps the whole of physical RAM up
// front (see vmm.NewKernel), so a physical frame's address already *is* a
// valid virtual address under the active page table -- reserving and
// backing collapse into the same step; there is no lazy, copy-on-write
// zero-page path to fall back to.
func reserveOrAlloc(size uintptr) (unsafe.Pointer, *kernel.Error) {
	pageCount := (mem.Size(size) + mem.PageSize - 1) >> mem.PageShift
	if pageCount == 0 {
		// A zero-sized request (notably the dummy calls below, made before
		// pmm.Init has run) needs no frame at all.
		return unsafe.Pointer(uintptr(1)), nil
	}

	addr, err := allocContiguousFn(uint64(pageCount))
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(uintptr(addr)), nil
}

// sysReserve reserves address space for use by the Go allocator. On Chronos
// this commits real frames immediately; see reserveOrAlloc.
//
// This function replaces runtime.sysReserve and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	p, err := reserveOrAlloc(size)
	if err != nil {
		panic(err)
	}

	*reserved = true
	return p
}

// sysMap finishes backing a region previously handed out by sysReserve.
// Since sysReserve already committed real frames for the whole region,
// there is nothing left to do beyond the allocator's own bookkeeping.
//
// This function replaces runtime.sysMap and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}

	mSysStatInc(sysStat, uintptr(size))
	return virtAddr
}

// sysAlloc reserves and backs size bytes of memory in a single step,
// returning the pointer to the region start.
//
// This function replaces runtime.sysAlloc and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	p, err := reserveOrAlloc(size)
	if err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, uintptr(size))
	return p
}

// nanotime returns a monotonically increasing clock value derived from the
// SBI firmware timer.
//
// This function replaces runtime.nanotime and is invoked by the Go allocator
// when a span allocation is performed.
//
//go:redirect-from runtime.nanotime
//go:nosplit
func nanotime() uint64 {
	return getTimeMicrosFn() * 1000
}

// getRandomData populates the given slice with random data. The implementation
// is the runtime package reads a random stream from /dev/random but since this
// is not available, we use a prng instead.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := 0; i < len(r); i++ {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables support for various Go runtime features. After a call to init
// the following runtime features become available for use:
//  - heap memory allocation (new, make e.t.c)
//  - map primitives
//  - interfaces
func Init() *kernel.Error {
	mallocInitFn()
	algInitFn()       // setup hash implementation for map keys
	modulesInitFn()   // provides activeModules
	typeLinksInitFn() // uses maps, activeModules
	itabsInitFn()     // uses activeModules

	return nil
}

func init() {
	// Dummy calls so the compiler does not optimize away the functions in
	// this file.
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
	)

	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
	getRandomData(nil)
	stat = nanotime()
}
