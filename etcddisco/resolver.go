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

// Package etcddisco resolves service names to endpoint sets through etcd.
//
// Endpoints register themselves under {prefix}/{service}/{addr} with a
// JSON-encoded Endpoint as the value, typically attached to a TTL lease so
// crashed instances age out. The resolver is a concrete realization of the
// discovery cache's raw lookup operation; the cache stays unaware of etcd.
package etcddisco

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/meshx-io/meshx/disco"
)

// DefaultPrefix is the key prefix under which services register.
const DefaultPrefix = "/meshx/services"

// Endpoint is one registered instance of a service.
type Endpoint struct {
	Addr     string            `json:"addr"`
	Weight   uint32            `json:"weight,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type options struct {
	prefix string
	logger *zap.Logger
}

// Option customizes the behavior of a Resolver.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(options *options) { f(options) }

// Prefix overrides the registration key prefix.
//
// Defaults to DefaultPrefix.
func Prefix(prefix string) Option {
	return optionFunc(func(options *options) {
		options.prefix = prefix
	})
}

// Logger specifies a logger.
func Logger(logger *zap.Logger) Option {
	return optionFunc(func(options *options) {
		options.logger = logger
	})
}

// Resolver looks up the registered endpoints of a service in etcd.
type Resolver struct {
	client *clientv3.Client
	prefix string
	logger *zap.Logger
}

// New connects to etcd and returns a resolver over it.
func New(endpoints []string, opts ...Option) (*Resolver, error) {
	client, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, opts...), nil
}

// NewWithClient returns a resolver over an existing etcd client. The
// resolver takes ownership of the client; Close closes it.
func NewWithClient(client *clientv3.Client, opts ...Option) *Resolver {
	options := options{prefix: DefaultPrefix}
	for _, o := range opts {
		o.apply(&options)
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		client: client,
		prefix: options.prefix,
		logger: logger,
	}
}

// Discover returns every endpoint currently registered for service.
// Malformed registrations are skipped with a warning rather than failing
// the whole lookup.
func (r *Resolver) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	prefix := r.servicePrefix(service)
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ep, err := decodeEndpoint(kv.Value)
		if err != nil {
			r.logger.Warn("skipping malformed registration",
				zap.String("key", string(kv.Key)),
				zap.Error(err))
			continue
		}
		endpoints = append(endpoints, ep)
	}

	r.logger.Debug("resolved service",
		zap.String("service", service),
		zap.Int("endpoints", len(endpoints)))
	return endpoints, nil
}

// Func adapts the resolver to the discovery cache's lookup contract.
func (r *Resolver) Func() disco.Discover[string, []Endpoint] {
	return r.Discover
}

// Close closes the underlying etcd client.
func (r *Resolver) Close() error {
	return r.client.Close()
}

func (r *Resolver) servicePrefix(service string) string {
	return r.prefix + "/" + service + "/"
}

func decodeEndpoint(value []byte) (Endpoint, error) {
	var ep Endpoint
	if err := json.Unmarshal(value, &ep); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}
