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
	stdmath "math"

	"github.com/ajroetker/go-rnnt/rnnt/workerpool"
)

// The gradient of the per-batch loss with respect to a lattice cell is the
// (negated) posterior probability of the corresponding transition,
//
//	d loss / d logProbs[t][u][k] = -exp(alpha[t][u] + beta' + logProbs[t][u][k] - logLik)
//
// where beta' is beta[t+1][u] for the blank transition (k = blank, t < T-1),
// beta[t][u+1] for the emit transition (k = label[u], u < U), and absent for
// the terminal blank at (T-1, U). Cells on no transition get zero gradient.
// Alpha and beta are finished artifacts of the prior sweeps, so rows need no
// synchronization: the sweep is embarrassingly parallel across (b, t).
//
// Each cell has exactly one writer. The general blank loop stops at T-2 and
// the terminal cell is written only by the t == 0 worker, so the terminal
// value is authoritative regardless of scheduling. When a target label
// equals blank (legal, if unusual), the emit write lands after the blank
// write within the same worker and deterministically wins.

// gradientRow fills the gradient cells owned by the (b, t) worker.
func gradientRow[T Floats](logProbs []T, labels []int32, alpha, beta, logLik, grads []T, dims Dims, blank, b, t int, bT, bU int) {
	ll := float64(logLik[b])

	if t == 0 {
		// Terminal blank at (T-1, U): the alignment's mandatory last step.
		i := dims.lp(b, bT-1, bU, blank)
		grads[i] = -T(stdmath.Exp(float64(alpha[dims.tbl(b, bT-1, bU)]) + float64(logProbs[i]) - ll))
	}
	if t < bT-1 {
		for u := 0; u <= bU; u++ {
			i := dims.lp(b, t, u, blank)
			grads[i] = -T(stdmath.Exp(float64(alpha[dims.tbl(b, t, u)]) + float64(beta[dims.tbl(b, t+1, u)]) + float64(logProbs[i]) - ll))
		}
	}
	for u := 0; u < bU; u++ {
		l := int(dims.label(labels, b, u))
		i := dims.lp(b, t, u, l)
		grads[i] = -T(stdmath.Exp(float64(alpha[dims.tbl(b, t, u)]) + float64(beta[dims.tbl(b, t, u+1)]) + float64(logProbs[i]) - ll))
	}
}

// gradientSerial fills the gradient lattice on the calling goroutine.
func gradientSerial[T Floats](logProbs []T, labels []int32, alpha, beta, logLik, grads []T, inLen, labLen []int32, dims Dims, blank int) {
	for b := 0; b < dims.Batch; b++ {
		bT := int(inLen[b])
		bU := int(labLen[b])
		for t := 0; t < bT; t++ {
			gradientRow(logProbs, labels, alpha, beta, logLik, grads, dims, blank, b, t, bT, bU)
		}
	}
}

// gradientParallel distributes (batch element, time step) pairs across the
// pool in contiguous chunks. Rows are independent, so plain ParallelFor
// suffices.
func gradientParallel[T Floats](pool *workerpool.Pool, logProbs []T, labels []int32, alpha, beta, logLik, grads []T, inLen, labLen []int32, dims Dims, blank int) {
	width := dims.MaxT
	pool.ParallelFor(dims.Batch*width, func(start, end int) {
		for idx := start; idx < end; idx++ {
			b := idx / width
			t := idx % width
			bT := int(inLen[b])
			if t >= bT {
				continue
			}
			gradientRow(logProbs, labels, alpha, beta, logLik, grads, dims, blank, b, t, bT, int(labLen[b]))
		}
	})
}

// gradientPass picks the serial or pool-parallel kernel.
func gradientPass[T Floats](pool *workerpool.Pool, logProbs []T, labels []int32, alpha, beta, logLik, grads []T, inLen, labLen []int32, dims Dims, blank int) {
	if pool == nil || noParallel || dims.TableLen() < MinParallelTableCells {
		gradientSerial(logProbs, labels, alpha, beta, logLik, grads, inLen, labLen, dims, blank)
		return
	}
	gradientParallel(pool, logProbs, labels, alpha, beta, logLik, grads, inLen, labLen, dims, blank)
}
