// Package system provides clock implementations.
package system

import (
	"sync"
	"time"
)

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a clock frozen at T, advanced by Step on every call.
type Fixed struct {
	mu   sync.Mutex
	T    time.Time
	Step time.Duration
}

// Now returns the current fixed instant and advances it by Step.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.T.UTC()
	f.T = f.T.Add(f.Step)
	return now
}
