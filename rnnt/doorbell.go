// Copyright 2025 go-rnnt Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rnnt

import (
	"runtime"
	"sync/atomic"
)

// Doorbell counters implement a single-producer/single-consumer semaphore
// between adjacent column workers of a wavefront sweep. The producer column
// decrements its neighbour's counter once per published row; the consumer
// waits for its counter to go negative, computes its cell, then increments
// the counter back to account for the consumed row. The counters carry no
// data, only readiness; the Go memory model orders the neighbouring table
// write before the decrement that announces it.
const (
	// busySpins is how many raw probes a waiter makes before it starts
	// yielding to the scheduler between further probes.
	busySpins = 64

	// maxSpinIterations bounds the total probes of a single wait. A launch
	// that passed bounds validation cannot exhaust it; hitting the bound
	// means the dependency structure is broken, and the sweep aborts with
	// errStalled instead of hanging.
	maxSpinIterations = 1 << 26
)

// waitDoorbell blocks until c goes negative, meaning the producer column has
// published at least one row this consumer has not used yet. It returns
// false when the sweep is aborting or the spin budget runs out; in the
// latter case it trips abort itself so sibling workers unwind too.
func waitDoorbell(c *atomic.Int32, abort *atomic.Bool) bool {
	for spins := 0; c.Load() >= 0; spins++ {
		if abort.Load() {
			return false
		}
		if spins >= maxSpinIterations {
			abort.Store(true)
			return false
		}
		if spins >= busySpins {
			runtime.Gosched()
		}
	}
	return true
}
