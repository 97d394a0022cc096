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

// Package testtime dilates real-time waits in tests so that timing-sensitive
// assertions survive CPU-starved CI hosts. Set TEST_TIME_SCALE to a float
// multiplier to slow the affected tests down.
package testtime

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	// X is the dilation factor read from TEST_TIME_SCALE.
	X = 1.0

	// Millisecond is one dilated millisecond.
	Millisecond = time.Millisecond
)

func init() {
	v := os.Getenv("TEST_TIME_SCALE")
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		panic(fmt.Sprintf("testtime: invalid TEST_TIME_SCALE %q: %v", v, err))
	}
	X = f
	Millisecond = Scale(time.Millisecond)
	fmt.Fprintln(os.Stderr, "Scaling test time by factor", X)
}

// Scale dilates d by the configured factor.
func Scale(d time.Duration) time.Duration {
	return time.Duration(X * float64(d))
}

// Sleep sleeps for the dilated duration.
func Sleep(d time.Duration) {
	time.Sleep(Scale(d))
}
