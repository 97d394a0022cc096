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

package disco

import (
	"go.uber.org/atomic"

	"github.com/meshx-io/meshx/meshxerrors"
)

// Cached couples a service with a reference on the cache entry whose
// discovery produced it. Holding the handle holds the entry: its idle timer
// cannot start while any handle is live, even though the discovery call
// itself completed long ago.
//
// Release is idempotent. A handle must not be used after Release.
type Cached[S any] struct {
	svc      S
	release  func()
	retain   func() func()
	released atomic.Bool
}

func newCached[S any](svc S, release func(), retain func() func()) *Cached[S] {
	return &Cached[S]{svc: svc, release: release, retain: retain}
}

// Service returns the wrapped service.
func (h *Cached[S]) Service() S {
	if h.released.Load() {
		meshxerrors.Panic("use of released cache handle")
	}
	return h.svc
}

// Release drops this handle's reference on the cache entry. When the last
// handle for an entry is released, the entry's idle timer starts.
func (h *Cached[S]) Release() {
	if h.released.Swap(true) {
		return
	}
	h.release()
}

// With wraps a derived service in a sibling handle sharing h's cache entry,
// extending the entry's lifetime to cover the derived service as well. The
// source handle must still be live.
func With[S, D any](h *Cached[S], derived D) *Cached[D] {
	if h.released.Load() {
		meshxerrors.Panic("cloning a released cache handle")
	}
	release := h.retain()
	return &Cached[D]{svc: derived, release: release, retain: h.retain}
}
