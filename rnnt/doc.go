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

// Package rnnt computes the transducer (RNN-T) sequence loss and its exact
// gradient over a [batch, time, label, vocab] log-probability lattice.
//
// The loss is the negative log-probability mass of every monotonic alignment
// between an input of length T and a label sequence of length U, computed
// without enumerating alignments: a forward sweep (alpha) and a backward
// sweep (beta) solve the alignment dynamic program from both ends, and a
// gradient sweep combines the two tables into d loss / d logProbs in closed
// form. See Graves, "Sequence Transduction with Recurrent Neural Networks"
// (arXiv:1211.3711).
//
// The forward and backward sweeps parallelize across label positions inside
// each batch element. Adjacent columns synchronize through atomic doorbell
// counters rather than a per-step barrier, so computation advances as a
// wavefront along the lattice anti-diagonal and columns can run at different
// paces. The gradient sweep has no cross-worker dependencies and
// parallelizes freely across time steps.
//
// Basic usage:
//
//	import (
//	    "github.com/ajroetker/go-rnnt/rnnt"
//	    "github.com/ajroetker/go-rnnt/rnnt/workerpool"
//	)
//
//	pool := workerpool.New(rnnt.DefaultWorkers())
//	defer pool.Close()
//
//	dims := rnnt.Dims{Batch: b, MaxT: t, MaxU: u, Vocab: a}
//	res, err := rnnt.Loss(pool, logProbs, labels, inLens, labLens, dims, blank, rnnt.ReductionMean)
//
// Loss returns the reduced loss together with the gradient lattice; combine
// the lattice with an upstream gradient via ScaleGradients to plug the pair
// into any reverse-mode differentiation engine as a custom operation.
package rnnt
