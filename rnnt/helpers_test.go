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
	"math/rand"
)

// randLogProbs fills a lattice with log-softmaxed random logits, so every
// (b, t, u) distribution is a proper probability over the vocabulary.
func randLogProbs[T Floats](dims Dims, rng *rand.Rand) []T {
	lp := make([]T, dims.LatticeLen())
	logits := make([]float64, dims.Vocab)
	for cell := 0; cell < dims.Batch*dims.MaxT*dims.MaxU; cell++ {
		maxLogit := stdmath.Inf(-1)
		for k := range logits {
			logits[k] = rng.Float64()*4 - 2
			if logits[k] > maxLogit {
				maxLogit = logits[k]
			}
		}
		var sumExp float64
		for _, v := range logits {
			sumExp += stdmath.Exp(v - maxLogit)
		}
		lse := maxLogit + stdmath.Log(sumExp)
		for k, v := range logits {
			lp[cell*dims.Vocab+k] = T(v - lse)
		}
	}
	return lp
}

// randLabels fills a right-padded label matrix with non-blank ids.
func randLabels(dims Dims, blank int, rng *rand.Rand) []int32 {
	labels := make([]int32, dims.LabelsLen())
	for i := range labels {
		l := rng.Intn(dims.Vocab - 1)
		if l >= blank {
			l++
		}
		labels[i] = int32(l)
	}
	return labels
}

// bruteLogLik enumerates every monotonic alignment for batch element b —
// interleavings of bT-1 time advances and bU label emissions, closed by the
// final blank at (bT-1, bU) — and sums the path probabilities in the log
// domain. Exponential, so only usable as a test oracle on tiny lattices.
func bruteLogLik[T Floats](lp []T, labels []int32, dims Dims, b, bT, bU, blank int) float64 {
	total := stdmath.Inf(-1)
	var walk func(t, u int, acc float64)
	walk = func(t, u int, acc float64) {
		if t == bT-1 && u == bU {
			total = logSumExp(total, acc+float64(lp[dims.lp(b, t, u, blank)]))
			return
		}
		if t+1 < bT {
			walk(t+1, u, acc+float64(lp[dims.lp(b, t, u, blank)]))
		}
		if u < bU {
			walk(t, u+1, acc+float64(lp[dims.lp(b, t, u, int(dims.label(labels, b, u)))]))
		}
	}
	walk(0, 0, 0)
	return total
}
