// Package event provides a settable, waitable boolean condition, the
// primitive behind the lattice connected and lock signals.
package event

import (
	"sync"
	"time"
)

// Flag is a boolean condition that goroutines can wait on. The zero value
// is not usable; construct with New. All methods are safe for concurrent
// use.
type Flag struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{} // closed while the flag is set
}

// New returns an unset Flag.
func New() *Flag {
	return &Flag{ch: make(chan struct{})}
}

// Set raises the flag and wakes all waiters. Idempotent.
func (f *Flag) Set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		f.set = true
		close(f.ch)
	}
}

// Clear lowers the flag. Idempotent.
func (f *Flag) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		f.set = false
		f.ch = make(chan struct{})
	}
}

// IsSet reports whether the flag is currently raised.
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Chan returns a channel that is closed while the flag is set. The channel
// is a snapshot: a Clear after the call hands out a fresh channel, so a
// receive reports that the flag WAS set at some point after the call.
func (f *Flag) Chan() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch
}

// Wait blocks until the flag is set or timeout elapses. A timeout <= 0
// blocks indefinitely. Returns whether the flag was observed set.
func (f *Flag) Wait(timeout time.Duration) bool {
	ch := f.Chan()
	if timeout <= 0 {
		<-ch
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return f.IsSet()
	}
}
