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

package distribute

// Backend is one weighted member of a distribution.
type Backend[K comparable] struct {
	Key    K
	Weight uint32
}

type kind int

const (
	kindEmpty kind = iota
	kindFirstAvailable
	kindRandomAvailable
)

// Distribution is an ordered, weighted set of backend keys governing how
// requests split across backends. Order is significant: it aligns the
// distribution with the weighted index built at selection time, and it is
// the preference order for first-available distributions.
//
// Every key in a distribution must be a member of the backend set extracted
// from the same target. A distribution referencing any other key is a
// defect.
type Distribution[K comparable] struct {
	kind     kind
	backends []Backend[K]
}

// Empty returns a distribution with no backends. Selecting from a service
// built over it fails with ErrEmptyDistribution.
func Empty[K comparable]() Distribution[K] {
	return Distribution[K]{kind: kindEmpty}
}

// FirstAvailable returns an unweighted distribution that always prefers the
// earliest key.
func FirstAvailable[K comparable](keys ...K) Distribution[K] {
	if len(keys) == 0 {
		return Empty[K]()
	}
	backends := make([]Backend[K], len(keys))
	for i, k := range keys {
		backends[i] = Backend[K]{Key: k}
	}
	return Distribution[K]{kind: kindFirstAvailable, backends: backends}
}

// RandomAvailable returns a weighted distribution selecting each backend
// with probability proportional to its declared weight. Zero-weight
// backends are never selected unless every backend has zero weight, in
// which case selection is uniform.
func RandomAvailable[K comparable](backends ...Backend[K]) Distribution[K] {
	if len(backends) == 0 {
		return Empty[K]()
	}
	copied := make([]Backend[K], len(backends))
	copy(copied, backends)
	return Distribution[K]{kind: kindRandomAvailable, backends: copied}
}

// Keys returns the distribution's keys in declared order.
func (d Distribution[K]) Keys() []K {
	keys := make([]K, len(d.backends))
	for i, b := range d.backends {
		keys[i] = b.Key
	}
	return keys
}

// Len reports the number of backends in the distribution.
func (d Distribution[K]) Len() int { return len(d.backends) }
