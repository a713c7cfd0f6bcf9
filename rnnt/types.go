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

// Floats is a constraint for the floating-point element types supported by
// the loss kernels.
type Floats interface {
	~float32 | ~float64
}

// Dims describes the geometry of a transducer log-probability lattice.
//
//   - Batch: number of independent batch elements
//   - MaxT:  padded input length (time axis)
//   - MaxU:  padded label-position axis; a target of length U occupies
//     positions 0..U, so MaxU must be at least the longest target plus one
//   - Vocab: vocabulary size, including the blank symbol
//
// All buffers are flat row-major slices: logProbs and grads are
// [Batch][MaxT][MaxU][Vocab], alpha and beta are [Batch][MaxT][MaxU], and
// labels is [Batch][MaxU-1].
type Dims struct {
	Batch int
	MaxT  int
	MaxU  int
	Vocab int
}

// LatticeLen returns the element count of a [Batch][MaxT][MaxU][Vocab]
// lattice.
func (d Dims) LatticeLen() int { return d.Batch * d.MaxT * d.MaxU * d.Vocab }

// TableLen returns the element count of a [Batch][MaxT][MaxU] alpha/beta
// table.
func (d Dims) TableLen() int { return d.Batch * d.MaxT * d.MaxU }

// LabelsLen returns the element count of a [Batch][MaxU-1] label matrix.
func (d Dims) LabelsLen() int { return d.Batch * (d.MaxU - 1) }

// lp returns the flat index of logProbs[b][t][u][k].
func (d Dims) lp(b, t, u, k int) int {
	return ((b*d.MaxT+t)*d.MaxU+u)*d.Vocab + k
}

// tbl returns the flat index of alpha[b][t][u] (or beta[b][t][u]).
func (d Dims) tbl(b, t, u int) int {
	return (b*d.MaxT+t)*d.MaxU + u
}

// label returns labels[b][u].
func (d Dims) label(labels []int32, b, u int) int32 {
	return labels[b*(d.MaxU-1)+u]
}
