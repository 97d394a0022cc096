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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheSizeVec = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshx_discovery_cache_size",
			Help: "Number of live discovery cache entries",
		},
		[]string{"cache"},
	)
	cacheEvictionsVec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshx_discovery_cache_evictions_total",
			Help: "Number of discovery cache entries evicted after idling out",
		},
		[]string{"cache"},
	)
	cacheResolutionsVec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshx_discovery_resolutions_total",
			Help: "Number of successful discovery lookups performed",
		},
		[]string{"cache"},
	)
	cacheFailuresVec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshx_discovery_failures_total",
			Help: "Number of failed discovery lookups",
		},
		[]string{"cache"},
	)
)

type cacheMetrics struct {
	size        prometheus.Gauge
	evictions   prometheus.Counter
	resolutions prometheus.Counter
	failures    prometheus.Counter
}

func newCacheMetrics(cache string) cacheMetrics {
	labels := prometheus.Labels{"cache": cache}
	return cacheMetrics{
		size:        cacheSizeVec.With(labels),
		evictions:   cacheEvictionsVec.With(labels),
		resolutions: cacheResolutionsVec.With(labels),
		failures:    cacheFailuresVec.With(labels),
	}
}
