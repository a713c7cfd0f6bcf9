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

// The backward variable beta[t][u] is the log-probability mass of all
// alignment suffixes departing cell (t, u), including the final blank at
// (T-1, U). It mirrors alpha with time reversed:
//
//	no-emit: beta[t+1][u] + logProbs[t][u][blank]
//	emit:    beta[t][u+1] + logProbs[t][u][label[u]]
//
// and beta[0][0] is the backward log-likelihood, which must agree with the
// forward one up to rounding — the strongest cross-check the two sweeps
// admit.

// backwardSerial fills beta and the per-batch backward log-likelihood on the
// calling goroutine, columns from bU down to 0. Like forwardSerial it is
// both the no-pool fallback and the bit-exact reference for the parallel
// kernel.
func backwardSerial[T Floats](logProbs []T, labels []int32, beta, logLik []T, inLen, labLen []int32, dims Dims, blank int) {
	for b := 0; b < dims.Batch; b++ {
		bT := int(inLen[b])
		bU := int(labLen[b])

		beta[dims.tbl(b, bT-1, bU)] = logProbs[dims.lp(b, bT-1, bU, blank)]
		for t := bT - 2; t >= 0; t-- {
			beta[dims.tbl(b, t, bU)] = beta[dims.tbl(b, t+1, bU)] + logProbs[dims.lp(b, t, bU, blank)]
		}
		for u := bU - 1; u >= 0; u-- {
			l := int(dims.label(labels, b, u))
			beta[dims.tbl(b, bT-1, u)] = beta[dims.tbl(b, bT-1, u+1)] + logProbs[dims.lp(b, bT-1, u, l)]
			for t := bT - 2; t >= 0; t-- {
				noEmit := beta[dims.tbl(b, t+1, u)] + logProbs[dims.lp(b, t, u, blank)]
				emit := beta[dims.tbl(b, t, u+1)] + logProbs[dims.lp(b, t, u, l)]
				beta[dims.tbl(b, t, u)] = logSumExp(noEmit, emit)
			}
		}
		logLik[b] = beta[dims.tbl(b, 0, 0)]
	}
}

// backwardParallel is the mirror image of forwardParallel: column bU walks
// the only-blank path from the end, every column u < bU waits on column u+1,
// and doorbells ring downward. Task indices enumerate columns from high u to
// low u so that, with ParallelForAtomic's increasing claim order, a column's
// producer is again always claimed first.
func backwardParallel[T Floats](pool *workerpool.Pool, logProbs []T, labels []int32, beta, logLik []T, inLen, labLen []int32, dims Dims, blank int) error {
	doorbells := make([]atomic.Int32, dims.Batch*dims.MaxU)
	var abort atomic.Bool

	width := dims.MaxU
	pool.ParallelForAtomic(dims.Batch*width, func(idx int) {
		b := idx / width
		u := (width - 1) - idx%width
		bT := int(inLen[b])
		bU := int(labLen[b])
		if u > bU {
			return
		}
		bells := doorbells[b*width : (b+1)*width]

		if u == bU {
			// Boundary column: only-blank path, walked from the end.
			for t := bT - 1; t >= 0; t-- {
				if t == bT-1 {
					beta[dims.tbl(b, t, u)] = logProbs[dims.lp(b, t, u, blank)]
				} else {
					beta[dims.tbl(b, t, u)] = beta[dims.tbl(b, t+1, u)] + logProbs[dims.lp(b, t, u, blank)]
				}
				if u > 0 {
					bells[u-1].Add(-1)
				}
			}
			return
		}

		l := int(dims.label(labels, b, u))
		for t := bT - 1; t >= 0; t-- {
			if !waitDoorbell(&bells[u], &abort) {
				return
			}
			if t == bT-1 {
				// Boundary row: only-emit path.
				beta[dims.tbl(b, t, u)] = beta[dims.tbl(b, t, u+1)] + logProbs[dims.lp(b, t, u, l)]
			} else {
				noEmit := beta[dims.tbl(b, t+1, u)] + logProbs[dims.lp(b, t, u, blank)]
				emit := beta[dims.tbl(b, t, u+1)] + logProbs[dims.lp(b, t, u, l)]
				beta[dims.tbl(b, t, u)] = logSumExp(noEmit, emit)
			}
			if u > 0 {
				bells[u-1].Add(-1)
			}
			bells[u].Add(1)
		}
	})

	if abort.Load() {
		return errStalled
	}
	for b := 0; b < dims.Batch; b++ {
		logLik[b] = beta[dims.tbl(b, 0, 0)]
	}
	return nil
}

// backwardPass picks the serial or doorbell-parallel kernel.
func backwardPass[T Floats](pool *workerpool.Pool, logProbs []T, labels []int32, beta, logLik []T, inLen, labLen []int32, dims Dims, blank int) error {
	if pool == nil || noParallel || dims.TableLen() < MinParallelTableCells {
		backwardSerial(logProbs, labels, beta, logLik, inLen, labLen, dims, blank)
		return nil
	}
	return backwardParallel(pool, logProbs, labels, beta, logLik, inLen, labLen, dims, blank)
}
