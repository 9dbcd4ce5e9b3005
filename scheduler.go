package kantos

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// idleSpinMicros is how long the default idle body busy-waits between
// PreemptionPoint calls; arbitrary, like the firmware's release-mode wfi
// loop, which has no fixed period either.
const idleSpinMicros = 200

// Scheduler owns the task-state bitmasks, the tick-driven and cooperative
// scheduling algorithms, and the goroutine handoff that realizes the
// context-switch ISR. One Scheduler runs exactly one TaskSet.
//
// Go cannot splice a saved register file onto an arbitrary stack the way
// the firmware's PendSV handler does, so every task here is given its own
// goroutine — a real, independently scheduled stack — and "saving" a task
// simply means its goroutine stops running and parks on a channel until
// told to resume. This preserves every invariant in spec.md §3/§8: at any
// instant, at most one task's goroutine is unparked and actually
// executing application code.
type Scheduler struct {
	mu         sync.Mutex
	tasks      []Task
	state      stateWords
	port       Arch
	wake       []chan struct{}
	idleID     TaskID
	tickPeriod time.Duration
}

// SchedulerOption configures optional Scheduler behavior at construction.
type SchedulerOption func(*Scheduler)

// WithTickPeriod overrides the default 1ms tick period used to convert
// Sleep's time.Duration into tick counts, matching scheduler_start's
// TICK_init(1, schedule) call with a configurable interval.
func WithTickPeriod(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickPeriod = d }
}

// NewScheduler builds a Scheduler over set and port. It does not start
// anything; call Start to prime stacks, arm the tick and context-switch
// interrupts, and begin running tasks.
func NewScheduler(set *TaskSet, port Arch, opts ...SchedulerOption) (*Scheduler, error) {
	if port == nil {
		return nil, ErrNilArch
	}
	if set == nil || len(set.Tasks) == 0 {
		return nil, ErrEmptyTaskSet
	}
	if len(set.Tasks) > MaxNumTasks {
		return nil, fmt.Errorf("%w: %d tasks, max %d", ErrTooManyTasks, len(set.Tasks), MaxNumTasks)
	}
	s := &Scheduler{
		tasks:      set.Tasks,
		port:       port,
		idleID:     TaskID(len(set.Tasks) - 1),
		tickPeriod: time.Millisecond,
		wake:       make([]chan struct{}, len(set.Tasks)),
	}
	for i := range s.wake {
		s.wake[i] = make(chan struct{}, 1)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TaskHandle is the capability a running task uses to cooperate with the
// scheduler: yielding, sleeping, and checking in at a preemption point. It
// replaces the firmware's ambient global yield()/sleep() calls, which work
// only because the original program has exactly one scheduler; Go tasks
// are handed this explicitly instead.
type TaskHandle struct {
	sched *Scheduler
	self  TaskID
}

// ID returns the handle's own task id.
func (h *TaskHandle) ID() TaskID { return h.self }

// Yield cooperatively relinquishes the CPU if a ready task of priority ≥
// this task's own is waiting.
func (h *TaskHandle) Yield() { h.sched.Yield(h.self) }

// Sleep blocks this task for at least d; see Scheduler.Sleep.
func (h *TaskHandle) Sleep(d time.Duration) { h.sched.Sleep(h.self, d) }

// PreemptionPoint checks in for tick-triggered preemption; see
// Scheduler.PreemptionPoint. Tasks that only ever call Yield or Sleep do
// not need to call this.
func (h *TaskHandle) PreemptionPoint() { h.sched.PreemptionPoint(h.self) }

// defaultIdle is the weakly-bound idle body Start installs for the idle task
// when it has no explicit Fn (other tasks without an Fn get no default): a
// busy spin that checks in at PreemptionPoint
// every iteration, matching idle_task's release-mode wfi loop in os.c —
// except that on this host a "wait for interrupt" cannot itself notice a
// pending context switch, so the checkpoint call stands in for it.
func (s *Scheduler) defaultIdle() TaskFunc {
	return func(h *TaskHandle, arg1, arg2, arg3 any) {
		for {
			s.port.BusySleep(idleSpinMicros)
			h.PreemptionPoint()
		}
	}
}

// Start primes every task's stack, arms the context-switch interrupt and
// the tick source, and launches one goroutine per task. It blocks until
// ctx is cancelled. Production code calls Start(context.Background()) and
// never observes it return, exactly as scheduler_start never returns in
// the original; ctx exists purely as a clean-shutdown escape hatch for
// tests and the sample demo.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for i := range s.tasks {
		id := TaskID(i)
		t := &s.tasks[i]
		t.WakeupTime = NoSleep
		if t.Fn == nil && id == s.idleID {
			t.Fn = s.defaultIdle()
		}
		t.sp = PrimeStack(t, t.stack)
		if id == 0 {
			s.state.set(StateRunning, id)
		} else {
			s.state.set(StateReady, id)
		}
	}

	if err := s.port.PendSVInit(); err != nil {
		return fmt.Errorf("kantos: pendsv init: %w", err)
	}
	if err := s.port.TickInit(int(s.tickPeriod/time.Millisecond), s.schedule); err != nil {
		return fmt.Errorf("kantos: tick init: %w", err)
	}

	for i := range s.tasks {
		go s.runTask(TaskID(i), i == 0)
	}

	<-ctx.Done()
	return ctx.Err()
}

// runTask is a task's goroutine body. A task other than task 0 starts
// parked, exactly as if it had already been context-switched out once;
// its first unpark is indistinguishable, from inside the task, from
// resuming after any later context switch — both read their entry point
// and arguments out of the primed/saved stack frame.
func (s *Scheduler) runTask(id TaskID, alreadyRunning bool) {
	if !alreadyRunning {
		s.park(id)
	}
	t := &s.tasks[id]
	h := &TaskHandle{sched: s, self: id}
	t.sp.Restore().Run(h)
}

// signal unparks id's goroutine if it is currently parked, or leaves a
// pending wake for it if it gets there first; either way id's next park
// call returns immediately exactly once.
func (s *Scheduler) signal(id TaskID) {
	select {
	case s.wake[id] <- struct{}{}:
	default:
	}
}

// park blocks the calling goroutine — which must be task id's own — until
// signal(id) is called.
func (s *Scheduler) park(id TaskID) {
	<-s.wake[id]
}

// reclassifyEjectedLocked implements the shared prelude of schedule() and
// yield(): the single EJECTED task, if any, is reclassified into READY or
// PENDING depending on whether it recorded a wakeup time before being
// switched out. Must be called with s.mu held.
func (s *Scheduler) reclassifyEjectedLocked() {
	if s.state.isEmpty(StateEjected) {
		return
	}
	id := TaskID(s.port.CLZ(s.state[StateEjected]))
	s.state.clear(StateEjected, id)
	if s.tasks[id].WakeupTime == NoSleep {
		s.state.set(StateReady, id)
	} else {
		s.state.set(StatePending, id)
	}
}

// schedule is the tick callback: ported from os.c's schedule(), algorithm
// for algorithm. It reclassifies any ejected task, promotes PENDING tasks
// whose wakeup time has strictly passed to READY, and — only if at least
// one task woke — arbitrates whether the newly-ready set warrants
// preempting the running task. It never performs the switch itself: it
// only stages the winning candidate in NEXT and triggers the
// context-switch interrupt. The actual save/restore handoff runs on the
// running task's own goroutine (see contextSwitchCommit), reached either
// through its own next Yield/Sleep call or, for a task that never calls
// either, through PreemptionPoint.
func (s *Scheduler) schedule() {
	s.mu.Lock()
	s.reclassifyEjectedLocked()

	if s.state.isEmpty(StatePending) {
		s.mu.Unlock()
		return
	}
	if !s.state.isEmpty(StateNext) {
		// A switch is already staged and awaiting commit by the running
		// task; NEXT holds at most one bit (spec.md §8), so don't stage a
		// second one.
		s.mu.Unlock()
		return
	}

	snapshot := s.state[StatePending]
	now := s.port.TickGet()
	woke := false
	w := snapshot
	for w != 0 {
		id := TaskID(s.port.CLZ(w))
		w &^= bit(id)
		if s.tasks[id].WakeupTime < now {
			s.state.clear(StatePending, id)
			s.state.set(StateReady, id)
			s.tasks[id].WakeupTime = NoSleep
			woke = true
		}
	}

	if !woke {
		s.mu.Unlock()
		return
	}

	curr := TaskID(s.port.CLZ(s.state[StateRunning]))
	currPrio := s.tasks[curr].Prio
	selected := curr
	r := s.state[StateReady]
	for r != 0 {
		id := TaskID(s.port.CLZ(r))
		r &^= bit(id)
		if s.tasks[id].Prio >= currPrio {
			selected = id
			break
		}
	}

	if selected == curr {
		s.mu.Unlock()
		return
	}

	s.state.clear(StateReady, selected)
	s.state.set(StateNext, selected)
	s.mu.Unlock()

	s.port.PendSVTrigger()
}

// yield is the shared body of Yield and Sleep, ported from os.c's yield().
// self must be the calling task's own id and must currently be RUNNING.
func (s *Scheduler) yield(self TaskID, sleeping bool) {
	s.mu.Lock()
	s.reclassifyEjectedLocked()

	if !s.state.isEmpty(StateNext) {
		// schedule() already staged a switch against this task (it was
		// busy and never reached a checkpoint before now); commit it
		// instead of arbitrating again.
		s.mu.Unlock()
		s.contextSwitchCommit(self)
		return
	}

	if s.state.isEmpty(StateReady) {
		s.mu.Unlock()
		return
	}

	curr := TaskID(s.port.CLZ(s.state[StateRunning]))
	currPrio := s.tasks[curr].Prio
	next := curr
	r := s.state[StateReady]
	for r != 0 {
		id := TaskID(s.port.CLZ(r))
		r &^= bit(id)
		if s.tasks[id].Prio >= currPrio {
			next = id
			break
		}
	}

	if next == curr {
		if !sleeping {
			s.mu.Unlock()
			return
		}
		if s.state.isEmpty(StateReady) {
			s.mu.Unlock()
			panic("kantos: READY is empty at yield's sleep fallback; the idle task must always be ready")
		}
		next = TaskID(s.port.CLZ(s.state[StateReady]))
	}

	s.state.clear(StateReady, next)
	s.state.set(StateNext, next)
	s.mu.Unlock()

	s.contextSwitchCommit(self)
}

// contextSwitchCommit performs the context-switch ISR's ejection, commit,
// and restore sequence (spec.md §4.4 steps 3, 5-9) for a switch already
// staged in NEXT. It must run on self's own goroutine: ejecting self from
// RUNNING means self's goroutine stops executing application code, and a
// Go goroutine can only stop itself — nothing external can halt it at an
// arbitrary point the way real PendSV hardware halts whatever is running.
func (s *Scheduler) contextSwitchCommit(self TaskID) {
	s.mu.Lock()
	if !s.state.has(StateRunning, self) || s.state.isEmpty(StateNext) {
		s.mu.Unlock()
		return
	}
	next := TaskID(s.port.CLZ(s.state[StateNext]))
	s.state.clear(StateRunning, self)
	s.state.set(StateEjected, self)
	s.state.clear(StateNext, next)
	s.state.set(StateRunning, next)
	s.mu.Unlock()

	s.signal(next)
	s.park(self)
}

// Yield cooperatively relinquishes the CPU if a ready task of priority ≥
// the caller's is waiting. self must be the calling task's own id.
func (s *Scheduler) Yield(self TaskID) {
	s.yield(self, false)
}

// Sleep blocks the calling task for at least d, rounded down to whole tick
// periods the way the firmware's sleep(ms) is: it records a wakeup time and
// then always relinquishes the CPU, even if no ready task currently
// outranks it. self must be the calling task's own id.
func (s *Scheduler) Sleep(self TaskID, d time.Duration) {
	s.mu.Lock()
	ticks := uint64(d / s.tickPeriod)
	s.tasks[self].WakeupTime = s.port.TickGet() + ticks
	s.mu.Unlock()
	s.yield(self, true)
}

// PreemptionPoint is the explicit substitute for genuine mid-instruction
// hardware preemption: a task whose body never calls Yield or Sleep (a
// tight busy loop) must call this once per iteration. It is a no-op unless
// a tick-driven schedule() call has already staged a switch away from
// self, in which case it performs exactly the handoff Yield/Sleep would.
func (s *Scheduler) PreemptionPoint(self TaskID) {
	s.mu.Lock()
	staged := s.state.has(StateRunning, self) && !s.state.isEmpty(StateNext)
	s.mu.Unlock()
	if !staged {
		return
	}
	s.contextSwitchCommit(self)
}
