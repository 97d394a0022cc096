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

// Package distribute builds weighted selection views over backend pool
// snapshots.
//
// A Builder resolves each key of a target's distribution, in declared
// order, against the snapshot produced by reconciling the same target. A
// key missing from the snapshot means the two extraction capabilities
// disagreed; the build fails fast with a defect rather than dropping or
// substituting the backend.
package distribute

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meshx-io/meshx/pool"
	"github.com/meshx-io/meshx/stack"
)

// ErrEmptyDistribution is returned by Select when the distribution the
// service was built over has no backends.
var ErrEmptyDistribution = errors.New("distribution has no backends")

type options struct {
	seed   int64
	logger *zap.Logger
}

// Option customizes the behavior of a Builder.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(options *options) { f(options) }

// Logger specifies a logger.
func Logger(logger *zap.Logger) Option {
	return optionFunc(func(options *options) {
		options.logger = logger
	})
}

// Seed specifies the random seed used for weighted selection.
//
// Defaults to approximately the process start time in nanoseconds.
func Seed(seed int64) Option {
	return optionFunc(func(options *options) {
		options.seed = seed
	})
}

// Builder assembles Distribute services for one routing decision at a time.
//
// The type parameters are the opaque target T, the backend key K, and the
// backend service S held by the pool.
type Builder[T any, K comparable, S any] struct {
	extract stack.Extract[T, Distribution[K]]
	pool    stack.Factory[T, *pool.Snapshot[K, S]]
	logger  *zap.Logger

	mu      sync.Mutex
	randSrc rand.Source
}

var _ stack.Factory[struct{}, *Distribute[string, struct{}]] = (*Builder[struct{}, string, struct{}])(nil)

// NewBuilder creates a distribution builder over a backend pool.
//
// extract derives the target's distribution; pool (typically a *pool.Pool)
// yields the snapshot for the same target. Build passes the same target
// instance to both so the two extractions stay consistent.
func NewBuilder[T any, K comparable, S any](
	extract stack.Extract[T, Distribution[K]],
	pool stack.Factory[T, *pool.Snapshot[K, S]],
	opts ...Option,
) *Builder[T, K, S] {
	options := options{seed: time.Now().UnixNano()}
	for _, o := range opts {
		o.apply(&options)
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Builder[T, K, S]{
		extract: extract,
		pool:    pool,
		logger:  logger,
		randSrc: rand.NewSource(options.seed),
	}
}

// Build extracts the target's distribution, reconciles the pool against the
// same target, and resolves every distribution key in declared order against
// the resulting snapshot.
//
// Build panics with a defect if the distribution references a key absent
// from the snapshot: the extraction capabilities disagreed, and selection
// must not silently drop or substitute backends.
func (b *Builder[T, K, S]) Build(target T) *Distribute[K, S] {
	dist := b.extract(target)
	b.logger.Debug("new distribution", zap.Any("backends", dist.Keys()))

	snapshot := b.pool.NewService(target)

	services := make([]S, len(dist.backends))
	cum := make([]uint64, len(dist.backends))
	var total uint64
	for i, backend := range dist.backends {
		services[i] = snapshot.Get(backend.Key)
		total += uint64(backend.Weight)
		cum[i] = total
	}

	b.mu.Lock()
	seed := b.randSrc.Int63()
	b.mu.Unlock()

	return &Distribute[K, S]{
		kind:     dist.kind,
		backends: dist.backends,
		services: services,
		cum:      cum,
		total:    total,
		rnd:      rand.New(rand.NewSource(seed)),
	}
}

// NewService implements stack.Factory.
func (b *Builder[T, K, S]) NewService(target T) *Distribute[K, S] {
	return b.Build(target)
}

// Distribute selects a backend per request according to its distribution's
// declared weights and dispatches to its service.
type Distribute[K comparable, S any] struct {
	kind     kind
	backends []Backend[K]
	services []S
	cum      []uint64
	total    uint64

	// rand.Source is not safe for concurrent use.
	mu  sync.Mutex
	rnd *rand.Rand
}

// Select picks one backend according to the distribution.
//
// A first-available distribution always selects its earliest backend. A
// weighted distribution selects proportionally to the declared weights; a
// distribution with a single backend, or with all weights zero, degrades to
// deterministic and uniform selection respectively.
func (d *Distribute[K, S]) Select() (K, S, error) {
	if len(d.backends) == 0 {
		var k K
		var s S
		return k, s, ErrEmptyDistribution
	}

	i := d.pick()
	return d.backends[i].Key, d.services[i], nil
}

func (d *Distribute[K, S]) pick() int {
	if len(d.backends) == 1 || d.kind == kindFirstAvailable {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.total == 0 {
		return d.rnd.Intn(len(d.backends))
	}
	r := uint64(d.rnd.Int63n(int64(d.total)))
	return sort.Search(len(d.cum), func(i int) bool { return d.cum[i] > r })
}

// Call selects a backend from d and dispatches req to its service.
func Call[K comparable, Req, Res any](
	ctx context.Context,
	d *Distribute[K, stack.Service[Req, Res]],
	req Req,
) (Res, error) {
	_, svc, err := d.Select()
	if err != nil {
		var zero Res
		return zero, err
	}
	return svc.Call(ctx, req)
}
