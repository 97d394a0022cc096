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

// Package pool maintains a reconciling cache of constructed backend
// services.
//
// Each reconciliation extracts the desired backend key set from a target and
// converges the pool on exactly that set under a short-lived lock: undesired
// entries are removed eagerly, absent keys are built, and keys present in
// both generations are never rebuilt, so long-lived backend state (open
// connections, balancer state) survives changes elsewhere in the set. The
// result is published as an immutable snapshot that readers consult without
// locking and without contending with later reconciliations.
package pool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/meshx-io/meshx/meshxerrors"
	"github.com/meshx-io/meshx/stack"
)

type options struct {
	name     string
	capacity int
	logger   *zap.Logger
}

var defaultOptions = options{
	name:     "default",
	capacity: 10,
}

// Option customizes the behavior of a Pool.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(options *options) { f(options) }

// Name labels the pool in logs and metrics.
//
// Defaults to "default".
func Name(name string) Option {
	return optionFunc(func(options *options) {
		options.name = name
	})
}

// Capacity specifies the initial capacity of the backend map.
//
// Defaults to 10.
func Capacity(capacity int) Option {
	return optionFunc(func(options *options) {
		options.capacity = capacity
	})
}

// Logger specifies a logger.
func Logger(logger *zap.Logger) Option {
	return optionFunc(func(options *options) {
		options.logger = logger
	})
}

// Pool is a reconciling cache mapping backend keys to constructed services.
//
// The type parameters are the opaque target T, the backend key K, and the
// constructed service S. Construction must be synchronous and cheap; any
// asynchronous work (dialing, handshakes) belongs inside the constructed
// service, never inside the builder, because the builder runs under the
// pool lock.
type Pool[T any, K comparable, S any] struct {
	extract stack.Extract[T, []K]
	inner   stack.Factory[T, stack.Factory[K, S]]
	logger  *zap.Logger
	metrics poolMetrics

	mu       sync.Mutex
	backends map[K]S
}

var _ stack.Factory[struct{}, *Snapshot[string, struct{}]] = (*Pool[struct{}, string, struct{}])(nil)

// New creates a backend pool.
//
// extract derives the desired backend key set from a target. inner yields,
// per target, the builder that turns one bare key into a fully wired
// service.
func New[T any, K comparable, S any](
	extract stack.Extract[T, []K],
	inner stack.Factory[T, stack.Factory[K, S]],
	opts ...Option,
) *Pool[T, K, S] {
	options := defaultOptions
	for _, o := range opts {
		o.apply(&options)
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool[T, K, S]{
		extract:  extract,
		inner:    inner,
		logger:   logger,
		metrics:  newPoolMetrics(options.name),
		backends: make(map[K]S, options.capacity),
	}
}

// Reconcile converges the pool on the target's desired backend set and
// returns an immutable snapshot of the result.
//
// Entries whose keys left the desired set are removed immediately; entries
// for newly desired keys are built via the target's builder; entries present
// in both generations are retained untouched. Concurrent reconciliations are
// serialized by the pool lock, and each individually converges the pool on
// exactly its own desired set.
func (p *Pool[T, K, S]) Reconcile(target T) *Snapshot[K, S] {
	desired := p.extract(target)
	want := make(map[K]struct{}, len(desired))
	for _, k := range desired {
		want[k] = struct{}{}
	}
	build := p.inner.NewService(target)

	p.mu.Lock()
	defer p.mu.Unlock()

	for k := range p.backends {
		if _, ok := want[k]; !ok {
			delete(p.backends, k)
			p.metrics.removed.Inc()
			p.logger.Debug("removing backend", zap.Any("backend", k))
		}
	}

	if len(want) > len(p.backends) {
		for _, k := range desired {
			if _, ok := p.backends[k]; ok {
				p.logger.Debug("retaining backend", zap.Any("backend", k))
				continue
			}
			p.backends[k] = build.NewService(k)
			p.metrics.built.Inc()
			p.logger.Debug("adding backend", zap.Any("backend", k))
		}
	}

	p.metrics.size.Set(float64(len(p.backends)))

	backends := make(map[K]S, len(p.backends))
	for k, s := range p.backends {
		backends[k] = s
	}
	return &Snapshot[K, S]{backends: backends}
}

// NewService implements stack.Factory so a Pool can slot directly beneath a
// distribution builder.
func (p *Pool[T, K, S]) NewService(target T) *Snapshot[K, S] {
	return p.Reconcile(target)
}

// Snapshot is an immutable view of the pool taken at the end of one
// reconciliation. Lookups never lock and never observe later mutations.
type Snapshot[K comparable, S any] struct {
	backends map[K]S
}

// Get returns the service for a key in the snapshot.
//
// A key absent from the snapshot means two extractions from the same target
// disagreed about its backend set. That cannot happen with consistent
// extraction capabilities, so Get fails fast with a defect rather than
// degrading silently.
func (s *Snapshot[K, S]) Get(key K) S {
	svc, ok := s.backends[key]
	if !ok {
		meshxerrors.Panic("backend %v is not in the snapshot", key)
	}
	return svc
}

// Lookup returns the service for a key and whether it is present, for
// callers probing a snapshot they did not derive from the same target.
func (s *Snapshot[K, S]) Lookup(key K) (S, bool) {
	svc, ok := s.backends[key]
	return svc, ok
}

// Len reports the number of backends in the snapshot.
func (s *Snapshot[K, S]) Len() int { return len(s.backends) }

// Keys returns the snapshot's key set in unspecified order.
func (s *Snapshot[K, S]) Keys() []K {
	keys := make([]K, 0, len(s.backends))
	for k := range s.backends {
		keys = append(keys, k)
	}
	return keys
}
