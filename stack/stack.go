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

// Package stack defines the composition contracts shared by every layer of
// the resolution core.
//
// A stack is assembled from factories: each layer consumes an opaque,
// caller-supplied target, extracts the parameters it understands, and
// produces a service for the layers beneath it. The target itself is never
// interpreted by this package; layers declare the parameters they need as
// injected extraction functions.
package stack

import "context"

// Factory produces an S-typed service for a T-typed target.
//
// Factories must be safe for concurrent use. A factory call must not retain
// the target beyond the call; targets are owned by the caller.
type Factory[T, S any] interface {
	NewService(target T) S
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc[T, S any] func(target T) S

// NewService calls the underlying function.
func (f FactoryFunc[T, S]) NewService(target T) S { return f(target) }

// Service is a request/response capability produced by a stack.
type Service[Req, Res any] interface {
	Call(ctx context.Context, req Req) (Res, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Call calls the underlying function.
func (f ServiceFunc[Req, Res]) Call(ctx context.Context, req Req) (Res, error) {
	return f(ctx, req)
}

// Extract is a pure extraction capability: it derives a P-typed parameter
// from a target. Extractions are assumed total and side effect free; two
// extractions from the same target must agree with each other (for example,
// every key in an extracted distribution must be a member of the extracted
// backend set).
type Extract[T, P any] func(target T) P
