// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package safety provides the process-wide safety flag.
//
// A Flag starts safe and can be tripped exactly once. Once tripped it never
// becomes safe again; a new flight needs a new process.
package safety

import (
	"sync"
	"sync/atomic"
)

// Flag is safe for concurrent use by the control loop and the motor workers.
type Flag struct {
	tripped atomic.Bool
	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	reason  string
}

// New returns a flag in the safe state
func New() *Flag {
	return &Flag{done: make(chan struct{})}
}

// OK reports whether operation is still safe
func (f *Flag) OK() bool {
	return !f.tripped.Load()
}

// Trip clears the flag. It returns true only for the call that actually
// tripped it; the first reason is kept.
func (f *Flag) Trip(reason string) bool {
	tripped := false
	f.once.Do(func() {
		f.mu.Lock()
		f.reason = reason
		f.mu.Unlock()
		f.tripped.Store(true)
		close(f.done)
		tripped = true
	})
	return tripped
}

// Reason returns the reason given to the tripping call, or "" while safe
func (f *Flag) Reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// Done is closed when the flag trips
func (f *Flag) Done() <-chan struct{} {
	return f.done
}
