package kantos

import (
	"encoding/binary"
	"log"
)

// sentinelWord is the debug value written at the base of every primed
// stack, matching the firmware's SENTINEL (0xDEADBEEF in
// system_cortex_m33.c's STM_Task_Stack_init).
const sentinelWord uint32 = 0xDEADBEEF

// thumbPSR is the synthetic program-status word stacked by priming: the
// Thumb-mode bit set, every other bit zero, matching
// STM_Task_Stack_init's xPSR value (0x01000000).
const thumbPSR uint32 = 0x01000000

// scratchR12, scratchR3 are the arbitrary values the firmware leaves in the
// R12 and R3 slots of a primed frame; their exact content is unobservable
// to correct code and is kept only for the round-trip law in spec.md §8.
const scratchR12 uint32 = 0x0C
const scratchR3 uint32 = 0x03

// SavedContext is the synthetic (or genuinely saved) CPU context sitting at
// the top of a task's stack: everything the context-switch step needs to
// resume that task. Its field order mirrors, from highest to lowest
// address, the frame spec.md §4.1 describes: two debug sentinels, xPSR,
// the return PC, the return LR, R12, R3, arg3/arg2/arg1, and R11..R4.
//
// Go has no address-valued registers, so the PC/LR "registers" are carried
// as the actual Go values they stand for (the entry function and the
// loop-forever trap) rather than raw words; every other slot is the literal
// uint32 the firmware would store.
type SavedContext struct {
	Sentinel1, Sentinel2 uint32
	PSR                  uint32
	PC                   TaskFunc
	LR                   func()
	R12, R3              uint32
	Arg3, Arg2, Arg1     any
	R11, R10, R9, R8, R7, R6, R5, R4 uint32
}

// StackFrame is a task's private stack: backing storage plus the saved
// context currently at its top. A freshly primed frame looks, to the
// context-switch step, exactly like one that was switched out mid-run.
type StackFrame struct {
	mem []byte
	ctx *SavedContext
}

// loopForever is the trap every primed task's return address points at. A
// task function that returns parks here forever instead of corrupting an
// arbitrary return address, matching the firmware's loop_forever — realized
// as a blocking select rather than a busy spin, since a hosted goroutine has
// no wfi and a bare `for {}` would pin a CPU core for the life of the
// process.
func loopForever() {
	log.Printf("kantos: task entry point returned; trapped in loop_forever")
	select {}
}

// PrimeStack synthesizes the one-time context that makes an unprimed task
// look as if it had just been context-switched out, per spec.md §4.1. It
// is idempotent only in the sense that calling it twice replaces the
// frame; the scheduler calls it exactly once per task, in Scheduler.Start.
func PrimeStack(t *Task, mem []byte) *StackFrame {
	ctx := &SavedContext{
		Sentinel1: sentinelWord,
		Sentinel2: sentinelWord,
		PSR:       thumbPSR,
		PC:        t.Fn,
		LR:        loopForever,
		R12:       scratchR12,
		R3:        scratchR3,
		Arg3:      t.Arg3,
		Arg2:      t.Arg2,
		Arg1:      t.Arg1,
		// R11..R4: arbitrary content, matching the firmware's loop that
		// stores the register's own number — content is unobservable to
		// correct code, kept deterministic only so tests are repeatable.
		R11: 11, R10: 10, R9: 9, R8: 8, R7: 7, R6: 6, R5: 5, R4: 4,
	}
	f := &StackFrame{mem: mem, ctx: ctx}
	f.writeDebugWords()
	return f
}

// writeDebugWords records the sentinel and PSR words into the byte-backed
// stack storage so a debugger (or StackFrame.Sentinels) can inspect them
// the way one would inspect real stack memory; the typed SavedContext
// remains the authoritative source the context switch actually reads.
func (f *StackFrame) writeDebugWords() {
	if len(f.mem) < 12 {
		return
	}
	top := len(f.mem)
	binary.BigEndian.PutUint32(f.mem[top-4:], f.ctx.Sentinel2)
	binary.BigEndian.PutUint32(f.mem[top-8:], f.ctx.Sentinel1)
	binary.BigEndian.PutUint32(f.mem[top-12:], f.ctx.PSR)
}

// Sentinels returns the two debug sentinel words written at stack priming,
// for debug tooling only; the scheduler never reads them back.
func (f *StackFrame) Sentinels() (uint32, uint32) {
	return f.ctx.Sentinel1, f.ctx.Sentinel2
}

// Restore reproduces the context-switch ISR's load sequence against this
// frame without actually transferring control: it is the pure, testable
// half of spec.md §8's round-trip law ("priming then simulating
// save/restore yields the original task entry frame").
func (f *StackFrame) Restore() RestoredContext {
	return RestoredContext{
		R0:  f.ctx.Arg1,
		R1:  f.ctx.Arg2,
		R2:  f.ctx.Arg3,
		R3:  f.ctx.R3,
		PC:  f.ctx.PC,
		LR:  f.ctx.LR,
		PSR: f.ctx.PSR,
	}
}

// Run invokes the restored entry point with h as its scheduler handle and
// the restored argument registers, then falls through to the restored
// trap if the entry point ever returns — the host-language equivalent of
// hardware restoring PC and jumping there, with LR already in place as the
// return address.
func (rc RestoredContext) Run(h *TaskHandle) {
	rc.PC(h, rc.R0, rc.R1, rc.R2)
	rc.LR()
}

// RestoredContext is what the context-switch ISR's restore sequence would
// leave in the CPU's registers immediately before returning from exception.
type RestoredContext struct {
	R0, R1, R2 any
	R3         uint32
	PC         TaskFunc
	LR         func()
	PSR        uint32
}
