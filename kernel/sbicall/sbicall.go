// Package sbicall wraps the firmware services Chronos consumes: legacy
// console output and system reset, each an ECALL trampoline in
// sbi_riscv64.s, and the monotonic timer, read from the time CSR. The
// assembly split keeps the SBI calling convention (a0..a2 arguments, a6/a7
// extension+function id) out of Go.
package sbicall

// TimerFrequencyHz is the firmware-documented tick rate of the SBI timer on
// the QEMU virt machine. There is no device-tree parse in this core (see
// bootinfo), so the frequency is a hard-coded constant isolated behind
// GetTimeMicros rather than spread across call sites.
const TimerFrequencyHz = 10_000_000

// ConsolePutChar emits one byte to the SBI legacy console (EID 0x01).
func ConsolePutChar(ch byte)

// shutdown issues the SBI System Reset Extension call (EID 0x53525354)
// with the given reset type and reason.
func shutdown(resetType, reason uint64)

const (
	resetTypeShutdown = 0
	reasonNoFailure   = 0
	reasonFailure     = 1
)

// Shutdown powers off the machine. failure selects the reset reason
// reported to the firmware; it has no effect on QEMU's exit code handling
// beyond that report.
func Shutdown(failure bool) {
	reason := uint64(reasonNoFailure)
	if failure {
		reason = reasonFailure
	}
	shutdown(resetTypeShutdown, reason)
}

// getTime returns the raw SBI timer tick count.
func getTime() uint64

// GetTime returns the raw monotonic tick counter, read from the time CSR
// (rdtime in sbi_riscv64.s).
func GetTime() uint64 { return getTime() }

// GetTimeMicros scales the raw tick counter to microseconds using
// TimerFrequencyHz.
func GetTimeMicros() uint64 {
	return getTime() / (TimerFrequencyHz / 1_000_000)
}
