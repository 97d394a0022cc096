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

// Package config loads the resolution core's static tunables from the
// environment.
//
// Every tunable has a default; invalid values are rejected at load time
// rather than silently replaced, so a misconfigured deployment fails before
// it starts serving.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Environment variable names, under the MESHX prefix.
const (
	EnvDiscoveryIdleTimeout   = "MESHX_DISCOVERY_IDLE_TIMEOUT"
	EnvDiscoveryQueueCapacity = "MESHX_DISCOVERY_QUEUE_CAPACITY"
	EnvBackendCapacity        = "MESHX_BACKEND_CAPACITY"
)

// Defaults applied when the environment leaves a tunable unset.
const (
	DefaultDiscoveryIdleTimeout   = 60 * time.Second
	DefaultDiscoveryQueueCapacity = 10
	DefaultBackendCapacity        = 10
)

// Config holds the static tunables consumed by the resolution core.
type Config struct {
	// DiscoveryIdleTimeout is how long a discovery cache entry survives
	// with zero live handles before eviction.
	DiscoveryIdleTimeout time.Duration

	// DiscoveryQueueCapacity bounds the number of callers queued behind one
	// key's in-flight discovery.
	DiscoveryQueueCapacity int

	// BackendCapacity is the initial capacity of a backend pool's map.
	BackendCapacity int
}

// Load reads the configuration from the environment, applying defaults for
// unset variables and rejecting invalid values.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MESHX")
	v.AutomaticEnv()

	v.SetDefault("discovery_idle_timeout", DefaultDiscoveryIdleTimeout)
	v.SetDefault("discovery_queue_capacity", DefaultDiscoveryQueueCapacity)
	v.SetDefault("backend_capacity", DefaultBackendCapacity)

	cfg := Config{
		DiscoveryIdleTimeout:   v.GetDuration("discovery_idle_timeout"),
		DiscoveryQueueCapacity: v.GetInt("discovery_queue_capacity"),
		BackendCapacity:        v.GetInt("backend_capacity"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs error
	if c.DiscoveryIdleTimeout <= 0 {
		errs = multierr.Append(errs,
			fmt.Errorf("%s must be a positive duration, got %v", EnvDiscoveryIdleTimeout, c.DiscoveryIdleTimeout))
	}
	if c.DiscoveryQueueCapacity <= 0 {
		errs = multierr.Append(errs,
			fmt.Errorf("%s must be a positive integer, got %d", EnvDiscoveryQueueCapacity, c.DiscoveryQueueCapacity))
	}
	if c.BackendCapacity <= 0 {
		errs = multierr.Append(errs,
			fmt.Errorf("%s must be a positive integer, got %d", EnvBackendCapacity, c.BackendCapacity))
	}
	return errs
}
