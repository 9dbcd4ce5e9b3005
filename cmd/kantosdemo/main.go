// Command kantosdemo is a runnable sample application standing in for the
// original firmware's os/app.c and os/main.c: it defines a small set of
// tasks over the kantos scheduler and drives it with a real, wall-clock
// archsim.Port, proving the tick source, the cooperative API, and the
// context-switch handoff work together end-to-end.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mlukumies/kantos"
	"github.com/mlukumies/kantos/archsim"
	"github.com/mlukumies/kantos/internal/demoio"
)

func main() {
	port := archsim.New(archsim.WithWallClock())
	console := &demoio.Console{}
	led := &demoio.LED{}

	// Mirrors app.c's tick_callback/"print current tick count" loop.
	printer := kantos.TaskFunc(func(h *kantos.TaskHandle, a1, a2, a3 any) {
		for {
			console.PrintHex("tick count: ", uint32(port.TickGet()))
			h.Sleep(1000 * time.Millisecond)
		}
	})

	// Mirrors main.c's DEBUG_BLINK user-LED toggle before each print.
	blinker := kantos.TaskFunc(func(h *kantos.TaskHandle, a1, a2, a3 any) {
		for {
			on := led.Toggle()
			console.Print(fmt.Sprintf("led: %v", on))
			h.Sleep(500 * time.Millisecond)
		}
	})

	set, err := kantos.NewTaskSet(port, port.IdleBody,
		kantos.Define(printer, nil, nil, nil, 1),
		kantos.Define(blinker, nil, nil, nil, 1),
	)
	if err != nil {
		log.Fatalf("kantosdemo: %v", err)
	}
	sched, err := kantos.NewScheduler(set, port)
	if err != nil {
		log.Fatalf("kantosdemo: %v", err)
	}

	console.Print("Hello, literal pool!")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sched.Start(ctx); err != nil {
		log.Printf("kantosdemo: scheduler stopped: %v", err)
	}
}
