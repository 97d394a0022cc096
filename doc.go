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

// Package meshx is the dynamic backend resolution core of a sidecar proxy.
//
// The module turns a per-connection routing target into a live, shared set
// of backend services without repeating expensive discovery or backend
// construction per request, and without interrupting in-flight traffic when
// the backend set changes. Three packages carry the mechanism:
//
// Package disco memoizes an asynchronous discovery operation per key behind
// a single-flight queue, handing out reference-counted handles whose
// lifetimes gate idle eviction.
//
// Package pool reconciles a cache of constructed backend services against
// each target's desired key set, publishing lock-free immutable snapshots.
//
// Package distribute builds weighted selection views over pool snapshots
// for individual routing decisions.
//
// Targets are opaque to all three layers: each receives injected extraction
// capabilities (package stack) for the parameters it understands. The
// packages etcddisco and grpcbackend supply concrete collaborators, an
// etcd-backed discovery source and a gRPC-backed backend builder, but the
// core compiles against neither.
package meshx
