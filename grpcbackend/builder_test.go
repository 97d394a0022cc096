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

package grpcbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceIsLazy(t *testing.T) {
	b := NewBuilder()
	c := b.NewService("127.0.0.1:9090")

	assert.Equal(t, "127.0.0.1:9090", c.Addr())
	assert.False(t, c.Connected(), "construction must perform no I/O")
}

func TestClientConnCreatedOnceAndReused(t *testing.T) {
	b := NewBuilder()
	c := b.NewService("127.0.0.1:9090")

	conn1, err := c.ClientConn()
	require.NoError(t, err)
	require.NotNil(t, conn1)
	assert.True(t, c.Connected())

	conn2, err := c.ClientConn()
	require.NoError(t, err)
	assert.Same(t, conn1, conn2)

	require.NoError(t, c.Close())
}

func TestDistinctBackendsPerAddress(t *testing.T) {
	b := NewBuilder()
	c1 := b.NewService("127.0.0.1:9090")
	c2 := b.NewService("127.0.0.1:9091")

	assert.NotSame(t, c1, c2)
	assert.NotEqual(t, c1.Addr(), c2.Addr())
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewBuilder()
	c := b.NewService("127.0.0.1:9090")

	_, err := c.ClientConn()
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.ClientConn()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClosedBackendIsForgotten(t *testing.T) {
	b := NewBuilder()
	c1 := b.NewService("127.0.0.1:9090")
	c2 := b.NewService("127.0.0.1:9091")

	_, err := c1.ClientConn()
	require.NoError(t, err)

	// Closing a backend reconciled out of a pool must drop its connection
	// and its registration, not park both until the builder closes.
	require.NoError(t, c1.Close())
	assert.False(t, c1.Connected())

	b.mu.Lock()
	_, tracked := b.built[c1]
	registered := len(b.built)
	b.mu.Unlock()
	assert.False(t, tracked)
	assert.Equal(t, 1, registered)

	require.NoError(t, b.Close())
	_, err = c2.ClientConn()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBuilderCloseClosesEverything(t *testing.T) {
	b := NewBuilder()
	c1 := b.NewService("127.0.0.1:9090")
	c2 := b.NewService("127.0.0.1:9091")

	_, err := c1.ClientConn()
	require.NoError(t, err)

	require.NoError(t, b.Close())

	_, err = c1.ClientConn()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c2.ClientConn()
	assert.ErrorIs(t, err, ErrClosed)
}
