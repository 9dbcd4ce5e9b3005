package kantos

import "testing"

func TestPrimeStackRoundTrip(t *testing.T) {
	var got [3]any
	fn := TaskFunc(func(h *TaskHandle, a1, a2, a3 any) {
		got[0], got[1], got[2] = a1, a2, a3
	})

	task := &Task{
		Fn:   fn,
		Arg1: "first",
		Arg2: 42,
		Arg3: struct{ x int }{x: 7},
	}
	mem := make([]byte, TaskStackSize)

	frame := PrimeStack(task, mem)
	rc := frame.Restore()

	if rc.R3 != scratchR3 {
		t.Fatalf("R3 = %#x, want %#x", rc.R3, scratchR3)
	}
	if rc.PSR != thumbPSR {
		t.Fatalf("PSR = %#x, want thumb-mode word %#x", rc.PSR, thumbPSR)
	}
	if rc.R0 != task.Arg1 || rc.R1 != task.Arg2 || rc.R2 != task.Arg3 {
		t.Fatalf("restored args = (%v, %v, %v), want (%v, %v, %v)",
			rc.R0, rc.R1, rc.R2, task.Arg1, task.Arg2, task.Arg3)
	}

	rc.PC(nil, rc.R0, rc.R1, rc.R2)
	if got[0] != task.Arg1 || got[1] != task.Arg2 || got[2] != task.Arg3 {
		t.Fatalf("entry point ran with (%v, %v, %v), want (%v, %v, %v)",
			got[0], got[1], got[2], task.Arg1, task.Arg2, task.Arg3)
	}

	if rc.LR == nil {
		t.Fatalf("LR (loop-forever trap) must not be nil")
	}
}

func TestPrimeStackSentinels(t *testing.T) {
	task := &Task{Fn: func(h *TaskHandle, a1, a2, a3 any) {}}
	mem := make([]byte, TaskStackSize)
	frame := PrimeStack(task, mem)

	s1, s2 := frame.Sentinels()
	if s1 != sentinelWord || s2 != sentinelWord {
		t.Fatalf("sentinels = (%#x, %#x), want (%#x, %#x)", s1, s2, sentinelWord, sentinelWord)
	}
}

func TestCLZBitIndexingLaw(t *testing.T) {
	clz := func(word uint32) uint32 {
		n := uint32(0)
		for word&0x80000000 == 0 && n < 32 {
			word <<= 1
			n++
		}
		return n
	}
	for i := TaskID(0); i < 32; i++ {
		if got := clz(bit(i)); got != uint32(i) {
			t.Fatalf("clz(bit(%d)) = %d, want %d", i, got, i)
		}
	}
}
