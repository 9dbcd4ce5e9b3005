// Package kantos implements the portable core of a preemptive-capable
// cooperative real-time kernel: a fixed set of tasks multiplexed over a
// single CPU through a bitmask-driven priority scheduler.
//
// The hardware-specific half of the kernel — the tick source, the deferred
// context-switch interrupt, and stack allocation — is reached only through
// the Arch interface. See package archsim for a deterministic, host-language
// implementation of that interface used by tests and the sample demo.
package kantos

// MaxNumTasks is the hard upper bound on task count, enforced by the width
// of the state bitmasks (one bit per task in a uint32).
const MaxNumTasks = 32

// TaskStackSize is the default per-task stack allocation in bytes.
const TaskStackSize = 0x400

// IdleStackSize is the default idle-task stack allocation in bytes.
const IdleStackSize = 0x100

// NoSleep is the wakeup-time sentinel meaning "this task is not sleeping".
const NoSleep uint64 = 0xFFFFFFFFFFFFFFFF

// lowestPrio is the idle task's fixed priority. Every other task must use a
// strictly higher value.
const lowestPrio = 0

// TaskFunc is a task entry point. It is invoked exactly once, the first time
// the task is scheduled to run, with the three opaque arguments supplied at
// definition time. The architectural calling convention this stands in for
// delivers arg1/arg2/arg3 through the first three argument registers; here
// they are delivered as plain Go values.
//
// The firmware's task bodies reach the scheduler through ambient global
// functions (yield(), sleep(ms)) because there is exactly one scheduler in
// the whole program. Go has no implicit global scheduler instance to call
// through, so h is the explicit capability a task uses to cooperate: Yield,
// Sleep, and PreemptionPoint. It is bound by Scheduler.Start, after
// NewScheduler exists — which is also why TaskFunc cannot simply close over
// a *Scheduler at Define time.
type TaskFunc func(h *TaskHandle, arg1, arg2, arg3 any)

// TaskID is the index of a task within a TaskSet.
type TaskID uint32

// Task is one entry of the fixed, link-time task set. Every field except sp
// and WakeupTime is immutable once the set is built, apart from the idle
// task's Fn, which Scheduler.Start fills in when it is nil.
type Task struct {
	// sp holds the saved context for this task when it is not running.
	// It is nil until Scheduler.Start primes every task's stack, and is
	// mutated afterward only by the scheduler's context-switch step.
	sp *StackFrame

	// Fn is the task's entry function, invoked once on first scheduling.
	Fn TaskFunc

	// Arg1, Arg2, Arg3 are delivered to Fn on first run.
	Arg1, Arg2, Arg3 any

	// Prio is the task's immutable priority; higher is more urgent. The
	// idle task is always priority 0 and every other task must exceed it.
	Prio uint32

	// StackSize is the size, in bytes, of this task's private stack.
	StackSize int

	// WakeupTime is the tick count at which a sleeping task becomes
	// eligible to run, or NoSleep if the task is not sleeping.
	WakeupTime uint64

	stack []byte
}

// Define produces one task record. It corresponds to the firmware's
// OS_TASK_DEFINE macro: fn and its three arguments plus a priority, with
// the stack size defaulting to TaskStackSize.
func Define(fn TaskFunc, arg1, arg2, arg3 any, prio uint32) Task {
	return Task{
		Fn:         fn,
		Arg1:       arg1,
		Arg2:       arg2,
		Arg3:       arg3,
		Prio:       prio,
		StackSize:  TaskStackSize,
		WakeupTime: NoSleep,
	}
}
