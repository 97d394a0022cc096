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

package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolSizeVec = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshx_backend_pool_size",
			Help: "Number of backends held by the pool after its last reconciliation",
		},
		[]string{"pool"},
	)
	poolBuiltVec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshx_backend_pool_built_total",
			Help: "Number of backend services constructed",
		},
		[]string{"pool"},
	)
	poolRemovedVec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshx_backend_pool_removed_total",
			Help: "Number of backend services removed from the pool",
		},
		[]string{"pool"},
	)
)

type poolMetrics struct {
	size    prometheus.Gauge
	built   prometheus.Counter
	removed prometheus.Counter
}

func newPoolMetrics(pool string) poolMetrics {
	labels := prometheus.Labels{"pool": pool}
	return poolMetrics{
		size:    poolSizeVec.With(labels),
		built:   poolBuiltVec.With(labels),
		removed: poolRemovedVec.With(labels),
	}
}
