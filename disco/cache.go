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

// Package disco memoizes an asynchronous discovery operation, usually backed
// by a control plane client.
//
// Each distinct key extracted from a target shares one cache entry. An entry
// serializes concurrent callers through a bounded FIFO queue in front of the
// raw discovery operation, so the operation runs at most once per entry no
// matter how many callers present the key. The resolved value is retained by
// the entry and shared with every caller by copy.
//
// Entries are reference counted. Every service built from an entry's
// discovery carries a handle that keeps the entry live; the idle timer only
// starts once the last handle is released, and the entry is evicted after
// the idle duration passes with no references. A later lookup of the same
// key re-runs discovery from scratch.
//
// The cache enforces no timeout on discovery and never retries. The queue
// capacity exists purely to bound contention: a full queue exerts
// backpressure on new callers (subject to their own context) rather than
// shedding load. Timeout and failfast policy belong to the layers composed
// around this one.
//
// Close shuts the whole cache down, releasing queued callers and stopping
// the per-entry goroutines; a closed cache rejects further lookups.
package disco

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meshx-io/meshx/internal/clock"
	"github.com/meshx-io/meshx/stack"
)

// Discover is the raw discovery operation: it resolves a key to a value,
// asynchronously and possibly with failure. Implementations must be safe for
// concurrent use across keys; the cache guarantees at most one outstanding
// call per key.
type Discover[K comparable, V any] func(ctx context.Context, key K) (V, error)

// DefaultQueueCapacity bounds the number of callers queued behind one key's
// in-flight discovery. The bound exists to limit contention, not to shed
// load or enforce deadlines.
const DefaultQueueCapacity = 10

// ErrCacheClosed is returned by GetOrBuild after the cache has been closed.
var ErrCacheClosed = errors.New("disco: cache is closed")

type options struct {
	name     string
	capacity int
	clock    clock.Clock
	logger   *zap.Logger
}

var defaultOptions = options{
	name:     "default",
	capacity: DefaultQueueCapacity,
}

// Option customizes the behavior of a Cache.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(options *options) { f(options) }

// Name labels the cache in logs and metrics.
//
// Defaults to "default".
func Name(name string) Option {
	return optionFunc(func(options *options) {
		options.name = name
	})
}

// QueueCapacity overrides the per-key queue bound.
//
// Defaults to DefaultQueueCapacity.
func QueueCapacity(capacity int) Option {
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

// Clock overrides the clock driving idle timers. Tests use a fake clock to
// drive eviction deterministically.
func Clock(c clock.Clock) Option {
	return optionFunc(func(options *options) {
		options.clock = c
	})
}

// Cache memoizes discovery per key and builds services over the resolved
// values.
//
// The type parameters are the opaque target T, the discovery key K extracted
// from it, the discovered value V, and the terminal service S built from V.
type Cache[T any, K comparable, V, S any] struct {
	extract  stack.Extract[T, K]
	discover Discover[K, V]
	inner    stack.Factory[T, stack.Factory[V, S]]

	idle     time.Duration
	capacity int
	clock    clock.Clock
	logger   *zap.Logger
	metrics  cacheMetrics

	// stop is closed by Close; serve goroutines and queued callers watch
	// it. wg counts the serve goroutines.
	stop chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	entries map[K]*entry[K, V]
}

// New creates a discovery cache.
//
// extract derives the key that determines which callers share a pipeline.
// discover is the raw asynchronous lookup. inner turns a target into a
// builder from the discovered value to the terminal service; it runs once
// per GetOrBuild call. idle is how long an entry with no live handles
// survives before eviction.
func New[T any, K comparable, V, S any](
	extract stack.Extract[T, K],
	discover Discover[K, V],
	inner stack.Factory[T, stack.Factory[V, S]],
	idle time.Duration,
	opts ...Option,
) *Cache[T, K, V, S] {
	options := defaultOptions
	for _, o := range opts {
		o.apply(&options)
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := options.clock
	if clk == nil {
		clk = clock.NewReal()
	}

	return &Cache[T, K, V, S]{
		extract:  extract,
		discover: discover,
		inner:    inner,
		idle:     idle,
		capacity: options.capacity,
		clock:    clk,
		logger:   logger,
		metrics:  newCacheMetrics(options.name),
		stop:     make(chan struct{}),
		entries:  make(map[K]*entry[K, V]),
	}
}

// entry is the per-key discovery pipeline: a bounded FIFO queue of waiters
// served by a single goroutine, plus the memoized resolution.
type entry[K comparable, V any] struct {
	key K

	// reqs carries one door channel per queued caller; the serving
	// goroutine closes doors in submission order. Closed on eviction.
	reqs chan chan struct{}

	// done is closed once the first queued request resolves. value and err
	// are immutable afterward.
	done  chan struct{}
	value V
	err   error

	// refs, idleTimer and idleGen are guarded by Cache.mu. The idle timer
	// runs only while refs is zero; idleGen stamps each armed timer so a
	// timer that fired just before being stopped cannot evict the entry
	// during a later idle window.
	refs      int
	idleTimer clock.Timer
	idleGen   uint64
}

// GetOrBuild resolves the target's discovery key, joins or starts the key's
// single-flight lookup, and builds the terminal service from the resolved
// value. The returned handle keeps the underlying cache entry live until
// released; releasing the last handle starts the entry's idle timer.
//
// A discovery failure is returned verbatim and establishes no lifetime: the
// caller's reference is dropped immediately, so a failed entry becomes
// eligible for idle eviction without delay. Likewise if ctx ends before
// resolution, the reference is dropped and ctx's error returned; the
// in-flight discovery itself is not cancelled.
func (c *Cache[T, K, V, S]) GetOrBuild(ctx context.Context, target T) (*Cached[S], error) {
	key := c.extract(target)
	e, err := c.retain(key)
	if err != nil {
		return nil, err
	}
	build := c.inner.NewService(target)

	select {
	case <-e.done:
		// Already resolved; skip the queue.
	default:
		door := make(chan struct{})
		select {
		case e.reqs <- door:
		case <-c.stop:
			c.release(e)
			return nil, ErrCacheClosed
		case <-ctx.Done():
			c.release(e)
			return nil, ctx.Err()
		}
		select {
		case <-door:
		case <-c.stop:
			c.release(e)
			return nil, ErrCacheClosed
		case <-ctx.Done():
			c.release(e)
			return nil, ctx.Err()
		}
	}

	if e.err != nil {
		c.release(e)
		return nil, e.err
	}

	svc := build.NewService(e.value)
	return newCached(svc, func() { c.release(e) }, func() func() {
		c.retainLive(e)
		return func() { c.release(e) }
	}), nil
}

// serve drains one entry's queue. The first request triggers the discovery
// lookup; every request, including those queued behind the lookup, is then
// answered in FIFO order from the memoized result. serve exits when the
// entry is evicted or the cache is closed.
func (c *Cache[T, K, V, S]) serve(e *entry[K, V]) {
	defer c.wg.Done()

	resolved := false
	for {
		var door chan struct{}
		select {
		case d, ok := <-e.reqs:
			if !ok {
				return
			}
			door = d
		case <-c.stop:
			return
		}
		if !resolved {
			e.value, e.err = c.discover(context.Background(), e.key)
			resolved = true
			close(e.done)
			if e.err != nil {
				c.metrics.failures.Inc()
				c.logger.Debug("discovery failed",
					zap.Any("key", e.key),
					zap.Error(e.err))
			} else {
				c.metrics.resolutions.Inc()
				c.logger.Debug("discovery resolved", zap.Any("key", e.key))
			}
		}
		close(door)
	}
}

// retain returns the live entry for key, creating it if absent, with its
// reference count incremented and any pending idle timer stopped.
func (c *Cache[T, K, V, S]) retain(key K) (*entry[K, V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}

	e, ok := c.entries[key]
	if !ok {
		e = &entry[K, V]{
			key:  key,
			reqs: make(chan chan struct{}, c.capacity),
			done: make(chan struct{}),
		}
		c.entries[key] = e
		c.wg.Add(1)
		go c.serve(e)
		c.metrics.size.Inc()
		c.logger.Debug("discovery entry created", zap.Any("key", key))
	}

	e.refs++
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
	return e, nil
}

// retainLive increments the reference count of an entry known to be live
// because the caller already holds a reference to it.
func (c *Cache[T, K, V, S]) retainLive(e *entry[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs++
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
}

// release drops one reference. The idle timer starts when the count reaches
// zero; eviction happens only if the timer fires with the count still zero
// and no newer idle window has begun since.
func (c *Cache[T, K, V, S]) release(e *entry[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.refs--
	if e.refs > 0 || c.closed {
		return
	}
	e.idleGen++
	gen := e.idleGen
	e.idleTimer = c.clock.AfterFunc(c.idle, func() { c.evict(e, gen) })
}

func (c *Cache[T, K, V, S]) evict(e *entry[K, V], gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A caller may have retained the entry between the timer firing and
	// this lock acquisition; a generation mismatch means this timer's idle
	// window was interrupted and a fresh one is counting down.
	if e.refs > 0 || e.idleGen != gen || c.entries[e.key] != e {
		return
	}

	delete(c.entries, e.key)
	close(e.reqs)
	c.metrics.size.Dec()
	c.metrics.evictions.Inc()
	c.logger.Debug("discovery entry evicted", zap.Any("key", e.key))
}

// Close shuts the cache down. Pending idle timers are stopped, every entry
// is discarded, and the per-entry serving goroutines are waited for.
// Callers queued behind an in-flight discovery are released with
// ErrCacheClosed; the discovery itself is allowed to finish. Close is
// idempotent.
func (c *Cache[T, K, V, S]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for key, e := range c.entries {
		if e.idleTimer != nil {
			e.idleTimer.Stop()
			e.idleTimer = nil
		}
		delete(c.entries, key)
		c.metrics.size.Dec()
	}
	c.mu.Unlock()

	close(c.stop)
	c.wg.Wait()
	c.logger.Debug("discovery cache closed")
	return nil
}

// Len reports the number of live entries.
func (c *Cache[T, K, V, S]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
