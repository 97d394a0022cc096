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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/meshx-io/meshx/internal/clock"
	"github.com/meshx-io/meshx/internal/testtime"
	"github.com/meshx-io/meshx/stack"
)

const testIdle = 10 * time.Second

type target struct {
	key string
}

func keyOf(t target) string { return t.key }

// suffixBuilder builds a terminal service by appending a suffix to the
// discovered value.
func suffixBuilder(suffix string) stack.Factory[target, stack.Factory[string, string]] {
	return stack.FactoryFunc[target, stack.Factory[string, string]](func(target) stack.Factory[string, string] {
		return stack.FactoryFunc[string, string](func(v string) string {
			return v + suffix
		})
	})
}

// fakeDiscover counts invocations per key and resolves each key to
// "resolved:"+key, optionally blocking until released.
type fakeDiscover struct {
	calls   atomic.Int64
	err     error
	started chan struct{} // receives one value per invocation, if set
	gate    chan struct{} // blocks resolution until closed, if set
}

func (d *fakeDiscover) discover(_ context.Context, key string) (string, error) {
	d.calls.Inc()
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.gate != nil {
		<-d.gate
	}
	if d.err != nil {
		return "", d.err
	}
	return "resolved:" + key, nil
}

func newTestCache(d *fakeDiscover, clk clock.Clock, opts ...Option) *Cache[target, string, string, string] {
	opts = append([]Option{Clock(clk)}, opts...)
	return New[target, string, string, string](
		keyOf, d.discover, suffixBuilder("/svc"), testIdle, opts...)
}

// manualClock hands armed timer callbacks to the test instead of running
// them, and its timers always report that they already fired when stopped.
type manualClock struct {
	mu        sync.Mutex
	callbacks []func()
}

func (mc *manualClock) Now() time.Time { return time.Unix(0, 0) }

func (mc *manualClock) AfterFunc(_ time.Duration, f func()) clock.Timer {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.callbacks = append(mc.callbacks, f)
	return firedTimer{}
}

func (mc *manualClock) fire(i int) {
	mc.mu.Lock()
	f := mc.callbacks[i]
	mc.mu.Unlock()
	f()
}

type firedTimer struct{}

func (firedTimer) Stop() bool { return false }

func TestGetOrBuildResolvesAndBuilds(t *testing.T) {
	d := &fakeDiscover{}
	c := newTestCache(d, clock.NewFake())

	h, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, "resolved:books/svc", h.Service())
	assert.Equal(t, int64(1), d.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestSingleFlightSharedKey(t *testing.T) {
	d := &fakeDiscover{
		started: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	c := newTestCache(d, clock.NewFake())

	const callers = 5
	results := make(chan string, callers)
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.GetOrBuild(context.Background(), target{key: "books"})
			if err != nil {
				errs <- err
				return
			}
			defer h.Release()
			results <- h.Service()
		}()
	}

	// Wait for the one discovery to start, then let it resolve.
	<-d.started
	close(d.gate)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	n := 0
	for got := range results {
		assert.Equal(t, "resolved:books/svc", got)
		n++
	}
	assert.Equal(t, callers, n)
	assert.Equal(t, int64(1), d.calls.Load(), "discovery must run once per key")
}

func TestDistinctKeysResolveIndependently(t *testing.T) {
	d := &fakeDiscover{}
	c := newTestCache(d, clock.NewFake())

	h1, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	defer h1.Release()
	h2, err := c.GetOrBuild(context.Background(), target{key: "movies"})
	require.NoError(t, err)
	defer h2.Release()

	assert.Equal(t, "resolved:books/svc", h1.Service())
	assert.Equal(t, "resolved:movies/svc", h2.Service())
	assert.Equal(t, int64(2), d.calls.Load())
	assert.Equal(t, 2, c.Len())
}

func TestIdleEviction(t *testing.T) {
	d := &fakeDiscover{}
	fc := clock.NewFake()
	c := newTestCache(d, fc)

	h, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	h.Release()
	require.Equal(t, 1, c.Len(), "entry survives until the idle duration passes")

	fc.Add(testIdle)
	require.Equal(t, 0, c.Len(), "entry must be evicted after idling out")

	// The next lookup must re-run discovery, not resurrect stale state.
	h, err = c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, int64(2), d.calls.Load())
}

func TestRetainWithinIdleWindowStopsTimer(t *testing.T) {
	d := &fakeDiscover{}
	fc := clock.NewFake()
	c := newTestCache(d, fc)

	h, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	h.Release()

	fc.Add(testIdle / 2)
	h, err = c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.calls.Load(), "entry reused within the idle window")

	// The original timer must not fire while the new handle is live.
	fc.Add(testIdle * 2)
	assert.Equal(t, 1, c.Len())

	h.Release()
	fc.Add(testIdle)
	assert.Equal(t, 0, c.Len())
}

func TestInterruptedIdleWindowOutlivesItsTimer(t *testing.T) {
	d := &fakeDiscover{}
	mc := &manualClock{}
	c := newTestCache(d, mc)

	// First idle window: the timer fires but its callback is delayed.
	h, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	h.Release()

	// The entry is retained and released again, starting a second window.
	h, err = c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	h.Release()

	// The first window's delayed callback runs only now. The second window
	// has just begun, so the entry must survive.
	mc.fire(0)
	assert.Equal(t, 1, c.Len(),
		"a timer from an interrupted idle window must not evict the entry")

	// The second window's own timer still evicts.
	mc.fire(1)
	assert.Equal(t, 0, c.Len())
}

func TestLiveHandleBlocksEviction(t *testing.T) {
	d := &fakeDiscover{}
	fc := clock.NewFake()
	c := newTestCache(d, fc)

	h, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)

	// Discovery completed long ago, but the service built from it is still
	// held; the idle timer must not even start.
	fc.Add(testIdle * 10)
	assert.Equal(t, 1, c.Len())

	h.Release()
	fc.Add(testIdle)
	assert.Equal(t, 0, c.Len())
}

func TestWithExtendsLifetimeToDerivedService(t *testing.T) {
	d := &fakeDiscover{}
	fc := clock.NewFake()
	c := newTestCache(d, fc)

	h, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)

	derived := With(h, 42)
	assert.Equal(t, 42, derived.Service())

	h.Release()
	fc.Add(testIdle)
	assert.Equal(t, 1, c.Len(), "derived handle must keep the entry live")

	derived.Release()
	fc.Add(testIdle)
	assert.Equal(t, 0, c.Len())
}

func TestReleaseIsIdempotent(t *testing.T) {
	d := &fakeDiscover{}
	fc := clock.NewFake()
	c := newTestCache(d, fc)

	h, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	h2, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)

	h.Release()
	h.Release()
	h.Release()

	// The double releases must not have consumed h2's reference.
	fc.Add(testIdle)
	assert.Equal(t, 1, c.Len())

	h2.Release()
	fc.Add(testIdle)
	assert.Equal(t, 0, c.Len())
}

func TestDiscoveryErrorPropagatesVerbatim(t *testing.T) {
	sentinel := errors.New("control plane says no")
	d := &fakeDiscover{err: sentinel}
	fc := clock.NewFake()
	c := newTestCache(d, fc)

	_, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.ErrorIs(t, err, sentinel)

	// Failures extend no lifetimes: the entry idles out immediately.
	fc.Add(testIdle)
	assert.Equal(t, 0, c.Len())

	// A post-eviction lookup runs a fresh discovery.
	_, err = c.GetOrBuild(context.Background(), target{key: "books"})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, int64(2), d.calls.Load())
}

func TestFailureMemoizedWithinWindow(t *testing.T) {
	sentinel := errors.New("control plane says no")
	d := &fakeDiscover{err: sentinel}
	fc := clock.NewFake()
	c := newTestCache(d, fc)

	_, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.ErrorIs(t, err, sentinel)

	// Before the entry idles out, callers observe the memoized failure; the
	// cache never retries on its own.
	_, err = c.GetOrBuild(context.Background(), target{key: "books"})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, int64(1), d.calls.Load())
}

func TestAbandonedCallEstablishesNoReference(t *testing.T) {
	d := &fakeDiscover{
		started: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	fc := clock.NewFake()
	c := newTestCache(d, fc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrBuild(ctx, target{key: "books"})
		done <- err
	}()

	<-d.started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// No reference was established, so the entry is eligible for eviction
	// even though the discovery is still in flight.
	fc.Add(testIdle)
	assert.Equal(t, 0, c.Len())

	close(d.gate)
}

func TestQueueExertsBackpressure(t *testing.T) {
	d := &fakeDiscover{
		started: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	c := newTestCache(d, clock.NewFake(), QueueCapacity(1))

	// First caller: dequeued by the serving goroutine, blocked in discovery.
	first := make(chan error, 1)
	go func() {
		h, err := c.GetOrBuild(context.Background(), target{key: "books"})
		if err == nil {
			h.Release()
		}
		first <- err
	}()
	<-d.started

	// Second caller: occupies the single queue slot.
	second := make(chan error, 1)
	go func() {
		h, err := c.GetOrBuild(context.Background(), target{key: "books"})
		if err == nil {
			h.Release()
		}
		second <- err
	}()

	// Give the second caller time to take the slot, then let a third caller
	// run into the full queue with a deadline of its own.
	testtime.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*testtime.Millisecond)
	defer cancel()
	_, err := c.GetOrBuild(ctx, target{key: "books"})
	require.ErrorIs(t, err, context.DeadlineExceeded,
		"a full queue must push back on the caller, not time out internally")

	close(d.gate)
	require.NoError(t, <-first)
	require.NoError(t, <-second)
	assert.Equal(t, int64(1), d.calls.Load())
}

func TestCloseDiscardsEntriesAndRejectsCallers(t *testing.T) {
	d := &fakeDiscover{}
	fc := clock.NewFake()
	c := newTestCache(d, fc)

	h, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	h.Release()
	require.Equal(t, 1, c.Len())

	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Len())

	// The idle timer armed by the release was stopped.
	fc.Add(testIdle)

	_, err = c.GetOrBuild(context.Background(), target{key: "books"})
	assert.ErrorIs(t, err, ErrCacheClosed)

	require.NoError(t, c.Close(), "closing twice is a no-op")
}

func TestCloseReleasesQueuedCallers(t *testing.T) {
	d := &fakeDiscover{
		started: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	c := newTestCache(d, clock.NewFake(), QueueCapacity(1))

	first := make(chan error, 1)
	go func() {
		h, err := c.GetOrBuild(context.Background(), target{key: "books"})
		if err == nil {
			h.Release()
		}
		first <- err
	}()
	<-d.started

	second := make(chan error, 1)
	go func() {
		_, err := c.GetOrBuild(context.Background(), target{key: "books"})
		second <- err
	}()

	closed := make(chan struct{})
	go func() {
		assert.NoError(t, c.Close())
		close(closed)
	}()

	// The queued caller must not wait out the in-flight discovery.
	require.ErrorIs(t, <-second, ErrCacheClosed)

	// Close waits for the serving goroutine, which finishes its discovery.
	close(d.gate)
	<-closed
	if err := <-first; err != nil {
		assert.ErrorIs(t, err, ErrCacheClosed)
	}
}

func TestInnerBuilderRunsPerCall(t *testing.T) {
	d := &fakeDiscover{}
	c := New[target, string, string, string](
		keyOf, d.discover, suffixBuilder("/a"), testIdle, Clock(clock.NewFake()))

	h1, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	defer h1.Release()
	h2, err := c.GetOrBuild(context.Background(), target{key: "books"})
	require.NoError(t, err)
	defer h2.Release()

	// One discovery, two independently built terminal services.
	assert.Equal(t, int64(1), d.calls.Load())
	assert.Equal(t, "resolved:books/a", h1.Service())
	assert.Equal(t, "resolved:books/a", h2.Service())
}
