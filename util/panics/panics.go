// Package panics wraps long-running node goroutines (the accept loop,
// one per peer connection, the mining loop) so that a programmer error
// in one of them is logged with its stack trace instead of silently
// killing the process via an unrecovered panic propagating out of a
// bare `go func()`.
package panics

import (
	"os"
	"runtime/debug"
	"time"

	"github.com/xaichain/xaid/logs"
)

// HandlePanic recovers a panic, logs it alongside the stack trace
// captured where the goroutine was spawned, and exits the process —
// a panicked goroutine has left the node in an unknown state, not one
// worth limping on in.
func HandlePanic(log logs.Logger, goroutineStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}

	log.Criticalf("Fatal error: %+v", err)
	if goroutineStackTrace != nil {
		log.Criticalf("Goroutine stack trace: %s", goroutineStackTrace)
	}
	log.Criticalf("Stack trace: %s", debug.Stack())
	log.Criticalf("Exiting")
	os.Exit(1)
}

// GoroutineWrapperFunc returns a spawn function that runs f in a new
// goroutine with HandlePanic deferred over it.
func GoroutineWrapperFunc(log logs.Logger) func(func()) {
	return func(f func()) {
		stackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, stackTrace)
			f()
		}()
	}
}

// AfterFuncWrapperFunc returns a time.AfterFunc wrapper that handles
// panics in the deferred function the same way GoroutineWrapperFunc
// does for goroutines.
func AfterFuncWrapperFunc(log logs.Logger) func(d time.Duration, f func()) *time.Timer {
	return func(d time.Duration, f func()) *time.Timer {
		stackTrace := debug.Stack()
		return time.AfterFunc(d, func() {
			defer HandlePanic(log, stackTrace)
			f()
		})
	}
}

// Exit logs reason at critical level and exits the process.
func Exit(log logs.Logger, reason string) {
	log.Criticalf("Exiting: %s", reason)
	os.Exit(1)
}
