// Copyright (c) 2026 The meshx Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package clock

import (
	"runtime"
	"sort"
	"sync"
	"time"
)

// Fake is a Clock that only moves forward programmatically.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

var _ Clock = (*Fake)(nil)

// NewFake returns a Fake clock set to the Unix epoch.
func NewFake() *Fake {
	return &Fake{now: time.Unix(0, 0)}
}

// Now returns the fake clock's current time.
func (fc *Fake) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

// AfterFunc schedules f to run when the fake clock advances past d from now.
func (fc *Fake) AfterFunc(d time.Duration, f func()) Timer {
	fc.mu.Lock()
	t := &fakeTimer{when: fc.now.Add(d), fn: f}
	fc.timers = append(fc.timers, t)
	due := fc.expired(fc.now)
	fc.mu.Unlock()
	run(due)
	return t
}

// Add moves the clock forward by d, running every timer that comes due in
// scheduled order. Add should be called from a single goroutine at a time.
func (fc *Fake) Add(d time.Duration) {
	fc.mu.Lock()
	end := fc.now.Add(d)
	due := fc.expired(end)
	fc.now = end
	fc.mu.Unlock()
	run(due)
}

// expired removes and returns all timers due at or before end, soonest
// first. Must be called with mu held.
func (fc *Fake) expired(end time.Time) []*fakeTimer {
	var due, pending []*fakeTimer
	for _, t := range fc.timers {
		if !t.when.After(end) {
			due = append(due, t)
		} else {
			pending = append(pending, t)
		}
	}
	fc.timers = pending
	sort.SliceStable(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
	return due
}

func run(due []*fakeTimer) {
	for _, t := range due {
		t.fire()
	}
	if len(due) > 0 {
		// Let fired work settle before the caller inspects state.
		runtime.Gosched()
	}
}

type fakeTimer struct {
	when time.Time
	fn   func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	fn := t.fn
	t.mu.Unlock()
	fn()
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
