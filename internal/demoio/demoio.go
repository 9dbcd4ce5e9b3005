// Package demoio provides the out-of-scope peripheral collaborators the
// sample application drives: a simulated UART print sink and a single
// user LED. Real hardware bring-up (UART register programming, GPIO
// alternate-function wiring) is explicitly out of scope for the kernel
// core (spec.md §1); these types exist only so cmd/kantosdemo has
// something to call, the way the firmware's os/app.c calls libs/print's
// print()/print_hex() and main.c's uart0_print()/user_led_toggle().
package demoio

import (
	"fmt"
	"sync"
)

// Console is a simulated UART print sink.
type Console struct {
	mu sync.Mutex
}

// Print writes msg followed by a newline, standing in for print().
func (c *Console) Print(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Println(msg)
}

// PrintHex writes msg followed by value formatted in hex, standing in for
// print_hex().
func (c *Console) PrintHex(msg string, value uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Printf("%s%#08x\n", msg, value)
}

// LED is a simulated single-bit user LED, standing in for main.c's GPIOA
// PA5 toggle.
type LED struct {
	mu sync.Mutex
	on bool
}

// Toggle flips the LED's state and returns the new state.
func (l *LED) Toggle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = !l.on
	return l.on
}
