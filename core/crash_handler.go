// Package core holds process-wide goroutine and crash handling
package core

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync/atomic"
)

var crashHook atomic.Pointer[func()]

// SetCrashHook registers cleanup that runs before a crash report is printed
// The HMI uses it to restore the terminal
func SetCrashHook(fn func()) {
	if fn == nil {
		crashHook.Store(nil)
		return
	}
	crashHook.Store(&fn)
}

// HandleCrash runs the crash hook, prints the stack trace and exits
func HandleCrash(r any) {
	if r == nil {
		return
	}
	if hook := crashHook.Load(); hook != nil {
		(*hook)()
	}

	fmt.Fprintf(os.Stderr, "\nCRASH DETECTED: %v\n", r)
	fmt.Fprintf(os.Stderr, "Stack Trace:\n%s\n", debug.Stack())
	os.Stderr.Sync()

	os.Exit(1)
}

// Go runs fn in a new goroutine with panic recovery
// Use this instead of the 'go' keyword for long-lived loops
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				HandleCrash(r)
			}
		}()
		fn()
	}()
}
