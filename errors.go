package kantos

import "errors"

// ErrTooManyTasks is returned by NewTaskSet/NewScheduler when the task
// count (including the appended idle task) exceeds MaxNumTasks, matching
// the firmware's scheduler_start validation of N ≤ 32.
var ErrTooManyTasks = errors.New("kantos: task count exceeds MaxNumTasks")

// ErrNilArch is returned when a nil Arch capability set is supplied to
// NewTaskSet or NewScheduler, standing in for the firmware's null
// driver-pointer checks in system.h.
var ErrNilArch = errors.New("kantos: nil Arch port")

// ErrInvalidPriority is returned when a non-idle task is defined with a
// priority that does not exceed the idle task's fixed priority of 0.
var ErrInvalidPriority = errors.New("kantos: task priority must exceed idle priority")

// ErrEmptyTaskSet is returned by NewScheduler when given a TaskSet with no
// tasks at all (not even the idle task NewTaskSet always appends).
var ErrEmptyTaskSet = errors.New("kantos: empty task set")
