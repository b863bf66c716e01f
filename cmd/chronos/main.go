// Command chronos is the kernel image's package main. It carries no logic
// of its own beyond the trampoline below; see kernel/kmain for the actual
// boot sequence.
package main

import (
	"chronos/kernel/cpu"
	"chronos/kernel/kmain"
)

// hartID and dtbPointer are populated by the entry assembly (boot state
// contract: a0 = hart id, a1 = device-tree blob pointer) before it calls
// main.main, since a freestanding program's main has no parameter list of
// its own to receive boot-time register values through. The entry assembly
// and the linker script that places this image at bootinfo.KernelTextBase
// are build orchestration, outside this package's scope.
var (
	hartID     uint64
	dtbPointer uintptr
)

// main calls the real kernel entrypoint. It exists only so the Go compiler
// sees a live call into kernel/kmain and does not dead-code-eliminate it.
// Kmain is not expected to return -- every exit path it takes shuts the
// firmware down first -- but if it somehow did, parking the hart in wfi
// here is a safer failure mode than falling off the end of main into
// whatever the Go runtime does when main.main returns.
func main() {
	kmain.Kmain(hartID, dtbPointer)
	cpu.Halt()
}
