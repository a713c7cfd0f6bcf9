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
	"sync/atomic"

	"github.com/ajroetker/go-rnnt/rnnt/workerpool"
)

// MinParallelTableCells is the minimum alpha/beta table size
// (batch * maxT * maxU) before the wavefront sweeps use the worker pool.
// Below this the doorbell handshake costs more than the arithmetic it
// overlaps and the serial kernels win.
const MinParallelTableCells = 2048

// The forward variable alpha[t][u] is the log-probability mass of all
// alignment prefixes that reach lattice cell (t, u): u labels emitted within
// the first t+1 time steps. Each cell combines two predecessors,
//
//	no-emit: alpha[t-1][u] + logProbs[t-1][u][blank]
//	emit:    alpha[t][u-1] + logProbs[t][u-1][label[u-1]]
//
// and the forward log-likelihood of a batch element is the terminal cell
// plus the final blank, alpha[T-1][U] + logProbs[T-1][U][blank].

// forwardSerial fills alpha and the per-batch forward log-likelihood on the
// calling goroutine, column by column. It is the fallback when no pool is
// available and the reference the parallel kernel is checked against: both
// evaluate each cell with identical operand order, so their outputs match
// bit for bit.
func forwardSerial[T Floats](logProbs []T, labels []int32, alpha, logLik []T, inLen, labLen []int32, dims Dims, blank int) {
	for b := 0; b < dims.Batch; b++ {
		bT := int(inLen[b])
		bU := int(labLen[b])

		alpha[dims.tbl(b, 0, 0)] = 0
		for t := 1; t < bT; t++ {
			alpha[dims.tbl(b, t, 0)] = alpha[dims.tbl(b, t-1, 0)] + logProbs[dims.lp(b, t-1, 0, blank)]
		}
		for u := 1; u <= bU; u++ {
			l := int(dims.label(labels, b, u-1))
			alpha[dims.tbl(b, 0, u)] = alpha[dims.tbl(b, 0, u-1)] + logProbs[dims.lp(b, 0, u-1, l)]
			for t := 1; t < bT; t++ {
				noEmit := alpha[dims.tbl(b, t-1, u)] + logProbs[dims.lp(b, t-1, u, blank)]
				emit := alpha[dims.tbl(b, t, u-1)] + logProbs[dims.lp(b, t, u-1, l)]
				alpha[dims.tbl(b, t, u)] = logSumExp(noEmit, emit)
			}
		}
		logLik[b] = alpha[dims.tbl(b, bT-1, bU)] + logProbs[dims.lp(b, bT-1, bU, blank)]
	}
}

// forwardParallel runs one column worker per (batch element, label position).
//
// Worker u owns alpha column u and walks t upward. After each row, column u
// rings column u+1's doorbell; column u>0 first waits on its own doorbell,
// so it only ever reads rows its left neighbour has finished. That is
// exactly the wavefront dependency of the recurrence, with no per-step
// barrier: distant columns proceed at independent paces.
//
// Scheduling relies on ParallelForAtomic claiming indices in increasing
// order: a column's producer is always claimed before the column itself, so
// a waiting column never depends on work that has not started, and the sweep
// cannot deadlock even on a single-worker pool.
func forwardParallel[T Floats](pool *workerpool.Pool, logProbs []T, labels []int32, alpha, logLik []T, inLen, labLen []int32, dims Dims, blank int) error {
	doorbells := make([]atomic.Int32, dims.Batch*dims.MaxU)
	var abort atomic.Bool

	width := dims.MaxU
	pool.ParallelForAtomic(dims.Batch*width, func(idx int) {
		b := idx / width
		u := idx % width
		bT := int(inLen[b])
		bU := int(labLen[b])
		if u > bU {
			return
		}
		bells := doorbells[b*width : (b+1)*width]

		if u == 0 {
			// Boundary column: only-blank path along the time axis.
			for t := 0; t < bT; t++ {
				if t == 0 {
					alpha[dims.tbl(b, 0, 0)] = 0
				} else {
					alpha[dims.tbl(b, t, 0)] = alpha[dims.tbl(b, t-1, 0)] + logProbs[dims.lp(b, t-1, 0, blank)]
				}
				if bU > 0 {
					bells[1].Add(-1)
				}
			}
			return
		}

		l := int(dims.label(labels, b, u-1))
		for t := 0; t < bT; t++ {
			if !waitDoorbell(&bells[u], &abort) {
				return
			}
			if t == 0 {
				// Boundary row: only-emit path along the label axis.
				alpha[dims.tbl(b, 0, u)] = alpha[dims.tbl(b, 0, u-1)] + logProbs[dims.lp(b, 0, u-1, l)]
			} else {
				noEmit := alpha[dims.tbl(b, t-1, u)] + logProbs[dims.lp(b, t-1, u, blank)]
				emit := alpha[dims.tbl(b, t, u-1)] + logProbs[dims.lp(b, t, u-1, l)]
				alpha[dims.tbl(b, t, u)] = logSumExp(noEmit, emit)
			}
			if u < bU {
				bells[u+1].Add(-1)
			}
			bells[u].Add(1)
		}
	})

	if abort.Load() {
		return errStalled
	}
	// All columns have joined; the terminal cells are final.
	for b := 0; b < dims.Batch; b++ {
		bT := int(inLen[b])
		bU := int(labLen[b])
		logLik[b] = alpha[dims.tbl(b, bT-1, bU)] + logProbs[dims.lp(b, bT-1, bU, blank)]
	}
	return nil
}

// forwardPass picks the serial or doorbell-parallel kernel.
func forwardPass[T Floats](pool *workerpool.Pool, logProbs []T, labels []int32, alpha, logLik []T, inLen, labLen []int32, dims Dims, blank int) error {
	if pool == nil || noParallel || dims.TableLen() < MinParallelTableCells {
		forwardSerial(logProbs, labels, alpha, logLik, inLen, labLen, dims, blank)
		return nil
	}
	return forwardParallel(pool, logProbs, labels, alpha, logLik, inLen, labLen, dims, blank)
}
