package kantos

import "fmt"

// TaskSet is the fixed, ordered array of tasks a Scheduler runs, with an
// idle task always appended last. It corresponds to the firmware's
// OS_TASKS_INIT-built __tasks[] array plus its backing stack region —
// except here the stack region is N independently allocated Go byte slices
// rather than one contiguous linker-section array, since Go has no
// equivalent of a named linker section to reserve it in.
type TaskSet struct {
	Tasks []Task
}

// NewTaskSet appends an idle task to tasks and allocates a private stack
// for every task through port. It corresponds to the task-definition
// macro's compile-time aggregation (os.h's OS_TASKS_INIT): building the
// ordered array and reserving storage. Stack priming itself is deferred to
// Scheduler.Start, matching spec.md §4.3's scheduler_start, which is the
// function that actually calls task_stack_init for every task.
//
// idle overrides the default idle-task body; pass nil to use the
// Scheduler's built-in default (a busy-wait loop that yields control back
// at every iteration through PreemptionPoint).
func NewTaskSet(port Arch, idle TaskFunc, tasks ...Task) (*TaskSet, error) {
	if port == nil {
		return nil, ErrNilArch
	}
	all := make([]Task, 0, len(tasks)+1)
	all = append(all, tasks...)
	all = append(all, Task{
		Fn:         idle,
		Prio:       lowestPrio,
		StackSize:  IdleStackSize,
		WakeupTime: NoSleep,
	})
	if len(all) > MaxNumTasks {
		return nil, fmt.Errorf("%w: %d tasks defined, max %d", ErrTooManyTasks, len(all), MaxNumTasks)
	}
	idleIndex := len(all) - 1
	for i := range all {
		t := &all[i]
		if t.StackSize == 0 {
			t.StackSize = TaskStackSize
		}
		if i != idleIndex && t.Prio <= lowestPrio {
			return nil, fmt.Errorf("%w: task %d has priority %d, idle is %d", ErrInvalidPriority, i, t.Prio, lowestPrio)
		}
		t.stack = port.NewStack(t.StackSize)
		t.WakeupTime = NoSleep
	}
	return &TaskSet{Tasks: all}, nil
}
