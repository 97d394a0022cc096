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

// Package grpcbackend builds backend pool services over gRPC client
// connections.
//
// Construction is synchronous and performs no I/O, as the pool contract
// requires: the client connection is created lazily and gRPC itself defers
// connecting until the first call. A Conn retained across reconciliations
// therefore keeps its established connection.
package grpcbackend

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/meshx-io/meshx/stack"
)

type options struct {
	dialOptions []grpc.DialOption
	logger      *zap.Logger
}

// Option customizes the behavior of a Builder.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(options *options) { f(options) }

// DialOptions replaces the gRPC dial options used for every backend.
//
// Defaults to insecure transport credentials; production deployments are
// expected to supply their own credentials.
func DialOptions(opts ...grpc.DialOption) Option {
	return optionFunc(func(options *options) {
		options.dialOptions = opts
	})
}

// Logger specifies a logger.
func Logger(logger *zap.Logger) Option {
	return optionFunc(func(options *options) {
		options.logger = logger
	})
}

// Builder turns backend addresses into lazily connected gRPC backends. It
// satisfies the backend pool's per-key builder contract.
//
// The builder tracks every backend it builds until that backend is closed,
// so callers that drop a backend (a pool reconciling it away) close it to
// unregister it; Close tears down whatever is still live.
type Builder struct {
	dialOptions []grpc.DialOption
	logger      *zap.Logger

	mu    sync.Mutex
	built map[*Conn]struct{}
}

var _ stack.Factory[string, *Conn] = (*Builder)(nil)

// NewBuilder creates a backend builder.
func NewBuilder(opts ...Option) *Builder {
	options := options{
		dialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	}
	for _, o := range opts {
		o.apply(&options)
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Builder{
		dialOptions: options.dialOptions,
		logger:      logger,
		built:       make(map[*Conn]struct{}),
	}
}

// NewService builds a backend for addr. No connection is opened until the
// backend's first use. The backend stays registered with the builder until
// it is closed.
func (b *Builder) NewService(addr string) *Conn {
	c := &Conn{
		addr:        addr,
		dialOptions: b.dialOptions,
		logger:      b.logger,
		forget:      b.forget,
	}
	b.mu.Lock()
	b.built[c] = struct{}{}
	b.mu.Unlock()
	return c
}

func (b *Builder) forget(c *Conn) {
	b.mu.Lock()
	delete(b.built, c)
	b.mu.Unlock()
}

// Close closes every still-registered backend, aggregating failures.
func (b *Builder) Close() error {
	b.mu.Lock()
	built := b.built
	b.built = make(map[*Conn]struct{})
	b.mu.Unlock()

	var errs error
	for c := range built {
		errs = multierr.Append(errs, c.Close())
	}
	return errs
}

// Conn is one backend address realized as a lazily created gRPC client
// connection.
type Conn struct {
	addr        string
	dialOptions []grpc.DialOption
	logger      *zap.Logger
	forget      func(*Conn)

	mu     sync.Mutex
	conn   *grpc.ClientConn
	closed bool
}

// Addr returns the backend's address.
func (c *Conn) Addr() string { return c.addr }

// ErrClosed is returned when a backend is used after Close.
var ErrClosed = errors.New("grpcbackend: backend is closed")

// ClientConn returns the backend's client connection, creating it on first
// use.
func (c *Conn) ClientConn() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := grpc.NewClient(c.addr, c.dialOptions...)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("created backend client", zap.String("addr", c.addr))
	c.conn = conn
	return conn, nil
}

// Invoke performs a unary RPC against the backend.
func (c *Conn) Invoke(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error {
	conn, err := c.ClientConn()
	if err != nil {
		return err
	}
	return conn.Invoke(ctx, method, args, reply, opts...)
}

// Connected reports whether the backend has created its client connection.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close closes the backend's connection if one was opened and unregisters
// the backend from its builder. Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if c.forget != nil {
		c.forget(c)
	}
	if conn == nil {
		return nil
	}
	return conn.Close()
}
