// Package console provides the kernel's sole character output device: the
// SBI firmware's legacy console, wrapped as an io.Writer so it can serve as
// kfmt's output sink and as the backing device for the write syscall. SBI is
// a concrete type rather than an interface value because interfaces are
// unsafe to use before the Go runtime's allocator has been bootstrapped (see
// goruntime.Init), and the console is attached well before that point.
package console

import "chronos/kernel/sbicall"

// putCharFn is sbicall.ConsolePutChar, indirected so tests can capture
// output without executing a real ECALL.
var putCharFn = sbicall.ConsolePutChar

// SBI is the firmware console. Its zero value is ready to use.
type SBI struct{}

// Write implements io.Writer, emitting each byte via the SBI legacy console
// extension. It always consumes the whole buffer and never errors --
// the console has no failure mode visible to software.
func (SBI) Write(p []byte) (int, error) {
	for _, b := range p {
		putCharFn(b)
	}
	return len(p), nil
}

// WriteByte implements io.ByteWriter.
func (SBI) WriteByte(b byte) error {
	putCharFn(b)
	return nil
}
