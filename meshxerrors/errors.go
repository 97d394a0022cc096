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

// Package meshxerrors separates the two failure classes of the resolution
// core.
//
// Ordinary errors (a discovery lookup failing, a connection refusing to
// open) are recoverable and propagate to callers verbatim. Defects are not:
// a defect reports a broken invariant between independently extracted
// parameters, a bug that no caller can meaningfully repair. Components
// signal defects by panicking with a *Defect so that broken invariants
// surface loudly instead of degrading into silently wrong routing.
package meshxerrors

import (
	"errors"
	"fmt"
)

// Defect is a non-recoverable invariant violation.
//
// A Defect indicates that two extraction capabilities disagreed about the
// same target, or that a caller presented state the contract forbids. By
// contract defects abort the current operation; deployments that must not
// crash may recover them at a process boundary, but must treat them as bugs
// to fix, never as conditions to handle.
type Defect struct {
	msg string
}

// Defectf builds a Defect from a format string.
func Defectf(format string, args ...interface{}) *Defect {
	return &Defect{msg: fmt.Sprintf(format, args...)}
}

// Error returns the defect message.
func (d *Defect) Error() string {
	return "invariant violated: " + d.msg
}

// Panic panics with a new Defect. It exists so that fail-fast call sites
// read as a single statement.
func Panic(format string, args ...interface{}) {
	panic(Defectf(format, args...))
}

// IsDefect reports whether err is, or wraps, a Defect.
func IsDefect(err error) bool {
	var d *Defect
	return errors.As(err, &d)
}

// FromPanic converts a recovered panic value into an error. Defects pass
// through unchanged; any other value is wrapped so that recover sites can
// treat both uniformly.
func FromPanic(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
