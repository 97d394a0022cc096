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

// Package clock abstracts deferred execution so that idle timers can be
// driven deterministically in tests.
package clock

import "time"

// Clock schedules functions to run after a duration.
type Clock interface {
	// Now returns the current time on this clock.
	Now() time.Time

	// AfterFunc runs f on its own goroutine after d elapses. The returned
	// Timer can stop the execution before it fires.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc execution.
type Timer interface {
	// Stop cancels the pending execution. It reports whether the timer was
	// still pending; false means the function already ran or was stopped.
	Stop() bool
}

// Real is a Clock backed by the time package.
type Real struct{}

var _ Clock = Real{}

// NewReal returns a Clock backed by the time package.
func NewReal() Real { return Real{} }

// Now returns time.Now.
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
