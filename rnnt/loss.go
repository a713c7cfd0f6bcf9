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
	"fmt"
	stdmath "math"
	"sync"

	"github.com/ajroetker/go-rnnt/rnnt/workerpool"
)

// Reduction selects how the per-batch losses are combined into the scalar
// reported by Result.Loss.
type Reduction string

const (
	// ReductionMean returns the arithmetic mean over the batch.
	ReductionMean Reduction = "mean"
	// ReductionSum returns the sum over the batch.
	ReductionSum Reduction = "sum"
	// ReductionNone leaves the per-batch vector unreduced; read
	// Result.Losses.
	ReductionNone Reduction = "none"
)

// Result carries the outputs of one Loss invocation. All buffers are freshly
// allocated and owned by the caller.
type Result[T Floats] struct {
	// Loss is the reduced scalar for ReductionMean and ReductionSum. It is
	// zero for ReductionNone; use Losses instead.
	Loss T

	// Losses holds the per-batch losses -(forwardLL + backwardLL)/2 before
	// reduction. A target assigned zero probability (every alignment
	// crosses a -Inf lattice cell) yields +Inf for that element only;
	// other elements are unaffected.
	Losses []T

	// Grads is d Losses[b] / d logProbs, same shape as the input lattice.
	// Combine with the upstream gradient of the surrounding graph via
	// ScaleGradients.
	Grads []T

	// ForwardLL and BackwardLL are the per-batch log-likelihoods produced
	// independently by the two sweeps. They agree up to floating-point
	// rounding and are exposed for diagnostics.
	ForwardLL  []T
	BackwardLL []T
}

// Loss computes the transducer loss and its gradient lattice.
//
//   - logProbs:     [Batch][MaxT][MaxU][Vocab] log-domain output
//     distribution of the transducer network, flat row-major; read-only
//   - labels:       [Batch][MaxU-1] target label ids, right-padded
//   - inputLengths: valid input length per batch element, in (0, MaxT]
//   - labelLengths: valid target length per batch element, in [0, MaxU-1]
//   - blank:        id of the blank symbol, in [0, Vocab)
//
// The forward and backward sweeps run concurrently (they share no data), the
// gradient sweep runs after both, and all three use pool for intra-item
// parallelism. A nil pool runs everything on the calling goroutine.
//
// Configuration problems return a *ConfigError and input/geometry
// inconsistencies a *BoundsError, in both cases before any sweep launches.
// Per-batch numeric anomalies (targets assigned zero probability) are
// carried through Losses and Grads rather than reported as errors; with ReductionMean or
// ReductionSum they make the reduced scalar non-finite, which is the
// expected consequence of the policy.
func Loss[T Floats](pool *workerpool.Pool, logProbs []T, labels []int32, inputLengths, labelLengths []int32, dims Dims, blank int, reduction Reduction) (*Result[T], error) {
	switch reduction {
	case ReductionMean, ReductionSum, ReductionNone:
	default:
		return nil, &ConfigError{Param: "reduction", Reason: fmt.Sprintf("unknown policy %q (want mean, sum, or none)", string(reduction))}
	}
	if blank < 0 || blank >= dims.Vocab {
		return nil, &ConfigError{Param: "blank", Reason: fmt.Sprintf("id %d outside vocabulary [0, %d)", blank, dims.Vocab)}
	}
	if err := validateInputs(logProbs, labels, inputLengths, labelLengths, dims); err != nil {
		return nil, err
	}

	alpha := make([]T, dims.TableLen())
	beta := make([]T, dims.TableLen())
	res := &Result[T]{
		Losses:     make([]T, dims.Batch),
		Grads:      make([]T, dims.LatticeLen()),
		ForwardLL:  make([]T, dims.Batch),
		BackwardLL: make([]T, dims.Batch),
	}

	// Alpha and beta touch disjoint buffers, so the two sweeps overlap.
	var wg sync.WaitGroup
	var fwdErr, bwdErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		fwdErr = forwardPass(pool, logProbs, labels, alpha, res.ForwardLL, inputLengths, labelLengths, dims, blank)
	}()
	go func() {
		defer wg.Done()
		bwdErr = backwardPass(pool, logProbs, labels, beta, res.BackwardLL, inputLengths, labelLengths, dims, blank)
	}()
	wg.Wait()
	if fwdErr != nil {
		return nil, fwdErr
	}
	if bwdErr != nil {
		return nil, bwdErr
	}

	// The gradient sweep normalizes by the backward log-likelihood
	// beta[0][0], matching the closed-form posterior it computes.
	gradientPass(pool, logProbs, labels, alpha, beta, res.BackwardLL, res.Grads, inputLengths, labelLengths, dims, blank)

	// Averaging the two independently derived log-likelihoods cancels part
	// of the accumulated rounding before negation.
	for b := range res.Losses {
		res.Losses[b] = -(res.ForwardLL[b] + res.BackwardLL[b]) / 2
	}
	switch reduction {
	case ReductionMean, ReductionSum:
		var sum T
		for _, l := range res.Losses {
			sum += l
		}
		if reduction == ReductionMean {
			sum /= T(dims.Batch)
		}
		res.Loss = sum
	}
	return res, nil
}

// ScaleGradients applies the chain rule to a gradient lattice produced by
// Loss: every cell of batch element b is multiplied in place by upstream[b],
// the incoming gradient of that element's loss. A length-1 upstream is
// broadcast across the batch, the usual case after a mean or sum reduction
// (for mean, fold the 1/Batch factor into the scalar first). Returns grads
// for chaining.
func ScaleGradients[T Floats](grads, upstream []T, dims Dims) ([]T, error) {
	if len(grads) != dims.LatticeLen() {
		return nil, &BoundsError{Batch: -1, Field: "len(grads)", Got: len(grads), Min: dims.LatticeLen(), Max: dims.LatticeLen()}
	}
	if len(upstream) != 1 && len(upstream) != dims.Batch {
		return nil, &BoundsError{Batch: -1, Field: "len(upstream)", Got: len(upstream), Min: 1, Max: dims.Batch}
	}
	stride := dims.MaxT * dims.MaxU * dims.Vocab
	for b := 0; b < dims.Batch; b++ {
		g := upstream[0]
		if len(upstream) > 1 {
			g = upstream[b]
		}
		if g == 1 {
			continue
		}
		seg := grads[b*stride : (b+1)*stride]
		for i := range seg {
			seg[i] *= g
		}
	}
	return grads, nil
}

// validateInputs checks every bound a sweep will index with. Sweeps assume
// validated inputs and perform no checks of their own; an out-of-range
// length here is the difference between an error and a hang or panic there.
func validateInputs[T Floats](logProbs []T, labels []int32, inputLengths, labelLengths []int32, dims Dims) error {
	if dims.Batch <= 0 {
		return &BoundsError{Batch: -1, Field: "dims.Batch", Got: dims.Batch, Min: 1, Max: stdmath.MaxInt}
	}
	if dims.MaxT <= 0 || dims.MaxU <= 0 || dims.Vocab <= 0 {
		return &BoundsError{Batch: -1, Field: "dims", Got: dims.MaxT * dims.MaxU * dims.Vocab, Min: 1, Max: stdmath.MaxInt}
	}
	if len(logProbs) != dims.LatticeLen() {
		return &BoundsError{Batch: -1, Field: "len(logProbs)", Got: len(logProbs), Min: dims.LatticeLen(), Max: dims.LatticeLen()}
	}
	if len(labels) != dims.LabelsLen() {
		return &BoundsError{Batch: -1, Field: "len(labels)", Got: len(labels), Min: dims.LabelsLen(), Max: dims.LabelsLen()}
	}
	if len(inputLengths) != dims.Batch {
		return &BoundsError{Batch: -1, Field: "len(inputLengths)", Got: len(inputLengths), Min: dims.Batch, Max: dims.Batch}
	}
	if len(labelLengths) != dims.Batch {
		return &BoundsError{Batch: -1, Field: "len(labelLengths)", Got: len(labelLengths), Min: dims.Batch, Max: dims.Batch}
	}
	for b := 0; b < dims.Batch; b++ {
		bT := int(inputLengths[b])
		if bT < 1 || bT > dims.MaxT {
			return &BoundsError{Batch: b, Field: "inputLengths", Got: bT, Min: 1, Max: dims.MaxT}
		}
		bU := int(labelLengths[b])
		if bU < 0 || bU > dims.MaxU-1 {
			return &BoundsError{Batch: b, Field: "labelLengths", Got: bU, Min: 0, Max: dims.MaxU - 1}
		}
		for u := 0; u < bU; u++ {
			if l := int(dims.label(labels, b, u)); l < 0 || l >= dims.Vocab {
				return &BoundsError{Batch: b, Field: "labels", Got: l, Min: 0, Max: dims.Vocab - 1}
			}
		}
	}
	return nil
}
