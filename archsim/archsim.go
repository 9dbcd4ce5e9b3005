// Package archsim implements a deterministic, host-language simulation of
// the Cortex-M33 architecture port the kantos scheduler runs against: a
// tick source, a deferrable context-switch trigger flag, stack storage,
// count-leading-zeros, and a busy-wait. It plays the same role here that
// the m68k package's CPU plays for its instruction set — a faithful,
// testable model of hardware behavior with no real silicon underneath.
package archsim

import (
	"fmt"
	"log"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mlukumies/kantos"
)

var _ kantos.Arch = (*Port)(nil)

// idleSpinMicros mirrors kantos.Scheduler's own default idle spin interval;
// kept as a separate constant here since archsim cannot import kantos's
// unexported value.
const idleSpinMicros = 200

// Debug enables the verbose scheduler tracing the original firmware gates
// behind OS_DEBUG: when set, IdleBody logs on every iteration instead of
// just spinning through BusySleep. kantos itself cannot reference this flag
// (package kantos never imports archsim, to avoid the import cycle archsim
// importing kantos already creates the other way), so a caller who wants
// debug-idle behavior must pass Port.IdleBody as the idle TaskFunc to
// kantos.NewTaskSet explicitly; kantos.Scheduler's own built-in default idle
// body never reads this flag and always just spins.
var Debug bool

// Port is a simulated architecture port implementing kantos.Arch. The
// zero value is not usable; construct one with New or NewManual.
type Port struct {
	tickCounter uint64
	tickCB      func()
	tickStop    chan struct{}
	tickOnce    sync.Once

	pendsvPending uint32

	manual    bool
	wallClock bool
}

// Option configures a Port at construction.
type Option func(*Port)

// WithWallClock makes BusySleep use a real time.Sleep instead of a
// calibrated spin loop. Useful for demos where burning CPU cycles for
// real would be wasteful; never used by the deterministic test suite.
func WithWallClock() Option {
	return func(p *Port) { p.wallClock = true }
}

// New constructs a Port whose tick source is driven by a real
// *time.Ticker — the architecture port a production build or the sample
// demo uses, analogous to the firmware's STM_TICK_init running off genuine
// SysTick hardware.
func New(opts ...Option) *Port {
	p := &Port{tickStop: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewManual constructs a Port whose tick source never advances on its own;
// tests drive it explicitly with Advance. This is the simulated-hardware
// analog of the m68k package's split between Bus and the optional
// cycle-counting CycleBus: production wants a wall-clock-driven tick,
// deterministic tests want a hand-advanceable one with no timing
// dependency at all.
func NewManual(opts ...Option) *Port {
	p := &Port{tickStop: make(chan struct{}), manual: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TickInit registers cb to run on every tick and, for a wall-clock Port,
// starts a goroutine incrementing the tick counter every ms milliseconds.
// A manual Port only records cb; ticks are driven by Advance.
func (p *Port) TickInit(ms int, cb func()) error {
	if cb == nil {
		return fmt.Errorf("archsim: TickInit: nil callback")
	}
	if ms <= 0 {
		ms = 1
	}
	p.tickCB = cb
	if p.manual {
		return nil
	}
	p.tickOnce.Do(func() {
		go func() {
			t := time.NewTicker(time.Duration(ms) * time.Millisecond)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					p.tick()
				case <-p.tickStop:
					return
				}
			}
		}()
	})
	return nil
}

// tick is the simulated SysTick ISR body: an atomic 64-bit increment
// followed by the registered callback, grounded on SysTick_Handler's
// add-with-carry in system_cortex_m33.c, which the original performs as a
// single logical operation so no observer ever sees a torn counter value.
func (p *Port) tick() {
	atomic.AddUint64(&p.tickCounter, 1)
	if p.tickCB != nil {
		p.tickCB()
	}
}

// Advance drives n ticks on a manual Port, synchronously invoking the
// registered callback n times. It is the deterministic replacement for
// waiting on wall-clock time in tests, the same role
// sst_runner_test.go's step-by-step replay plays for the m68k CPU.
func (p *Port) Advance(n int) {
	for i := 0; i < n; i++ {
		p.tick()
	}
}

// TickGet returns the current tick count via a single atomic load, never a
// torn read, matching spec.md §4.1's monotonic-counter-getter contract.
func (p *Port) TickGet() uint64 {
	return atomic.LoadUint64(&p.tickCounter)
}

// PendSVInit is a no-op for the simulated port: there is no real interrupt
// controller to program a priority into, only the pending flag
// PendSVTrigger sets.
func (p *Port) PendSVInit() error {
	return nil
}

// PendSVTrigger sets the pending context-switch flag and yields the
// goroutine once, standing in for the dsb/isb barrier pair the firmware
// issues so the request is observed before the call returns.
func (p *Port) PendSVTrigger() {
	atomic.StoreUint32(&p.pendsvPending, 1)
	runtime.Gosched()
}

// PendSVPending reports whether a context-switch request is outstanding,
// exposed for debug tooling and tests; the scheduler itself tracks the
// pending switch in its own NEXT state word rather than polling this.
func (p *Port) PendSVPending() bool {
	return atomic.LoadUint32(&p.pendsvPending) != 0
}

// NewStack allocates size bytes of backing storage for one task's stack.
func (p *Port) NewStack(size int) []byte {
	return make([]byte, size)
}

// CLZ returns the number of leading zero bits in word, grounded on
// _examples/Maemo32-SupraX_Legacy/proto/ooo/ooo.go's SelectIssueBundle,
// the one place in the retrieval pack where bits.LeadingZeros32 over a
// bitmap is itself the scheduling primitive rather than incidental
// counting.
func (p *Port) CLZ(word uint32) uint32 {
	return uint32(bits.LeadingZeros32(word))
}

// BusySleep blocks for approximately us microseconds: a calibrated spin
// loop by default (matching STM_busy_sleep's crude cycle-burning loop), or
// a real time.Sleep if the Port was built WithWallClock.
func (p *Port) BusySleep(us int) {
	if us <= 0 {
		return
	}
	if p.wallClock {
		time.Sleep(time.Duration(us) * time.Microsecond)
		return
	}
	deadline := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}

// IdleBody is an idle task body a caller can pass to kantos.NewTaskSet
// instead of leaving idle nil: when Debug is set it logs each iteration and
// yields via h.PreemptionPoint, the simulator's analog of the firmware's
// debug-build idle loop that forgoes wfi to stay visible under a debugger;
// otherwise it behaves exactly like the scheduler's own built-in default —
// a plain calibrated spin between checkpoints.
func (p *Port) IdleBody(h *kantos.TaskHandle, arg1, arg2, arg3 any) {
	for {
		if Debug {
			log.Printf("archsim: idle (tick %d)", p.TickGet())
		}
		p.BusySleep(idleSpinMicros)
		h.PreemptionPoint()
	}
}

// Close stops the wall-clock tick goroutine, if one was started. Manual
// ports have nothing to stop.
func (p *Port) Close() {
	if !p.manual {
		select {
		case <-p.tickStop:
		default:
			close(p.tickStop)
		}
	}
}
