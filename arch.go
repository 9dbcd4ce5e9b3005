package kantos

// Arch is the architecture-port capability set the scheduler is built
// against. It plays the same role here that Bus plays for the teacher's CPU
// emulator: every hardware-specific concern the portable core needs is
// reached exclusively through this interface, so the scheduler itself never
// contains architecture-specific code.
//
// A concrete implementation is provided by package archsim.
type Arch interface {
	// TickInit programs the hardware tick to fire every ms milliseconds
	// and registers cb to run from the tick ISR on every occurrence.
	// The tick interrupt must be assigned a priority strictly more urgent
	// than the context-switch interrupt.
	TickInit(ms int, cb func()) error

	// TickGet returns the current monotonic tick count. It must never
	// return a torn (partially-updated) value.
	TickGet() uint64

	// PendSVInit configures the deferrable context-switch interrupt at a
	// priority strictly less urgent than the tick.
	PendSVInit() error

	// PendSVTrigger requests the context-switch interrupt to run at the
	// next opportunity, issuing whatever barriers are needed so the
	// request is observed before the call returns.
	PendSVTrigger()

	// NewStack allocates size bytes of stack storage for one task.
	NewStack(size int) []byte

	// CLZ returns the number of leading zero bits in word, 0..32. For
	// word == 0 it returns 32; callers must guard against that case
	// themselves, exactly as spec.md §4.1 requires.
	CLZ(word uint32) uint32

	// BusySleep blocks the calling goroutine for approximately us
	// microseconds without involving the scheduler.
	BusySleep(us int)
}
