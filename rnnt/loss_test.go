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
	"errors"
	stdmath "math"
	"math/rand"
	"testing"

	"github.com/ajroetker/go-rnnt/rnnt/workerpool"
)

// The dynamic program must agree with a brute-force enumeration of all
// monotonic alignments summed via log-sum-exp.
func TestLossMatchesBruteForce(t *testing.T) {
	tests := []struct {
		name   string
		dims   Dims
		blank  int
		inLen  []int32
		labLen []int32
		seed   int64
	}{
		{
			// Two time steps, two labels: the classic hand-checkable case.
			name:  "2x3x5",
			dims:  Dims{Batch: 1, MaxT: 2, MaxU: 3, Vocab: 5},
			blank: 0, inLen: []int32{2}, labLen: []int32{2}, seed: 7,
		},
		{
			name:  "batch of mixed lengths",
			dims:  Dims{Batch: 3, MaxT: 4, MaxU: 4, Vocab: 6},
			blank: 0, inLen: []int32{4, 2, 3}, labLen: []int32{3, 1, 0}, seed: 8,
		},
		{
			name:  "nonzero blank id",
			dims:  Dims{Batch: 2, MaxT: 5, MaxU: 3, Vocab: 4},
			blank: 3, inLen: []int32{5, 4}, labLen: []int32{2, 2}, seed: 9,
		},
		{
			name:  "more labels than steps",
			dims:  Dims{Batch: 1, MaxT: 2, MaxU: 5, Vocab: 5},
			blank: 0, inLen: []int32{2}, labLen: []int32{4}, seed: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(tt.seed))
			lp := randLogProbs[float64](tt.dims, rng)
			labels := randLabels(tt.dims, tt.blank, rng)
			if tt.name == "2x3x5" {
				labels = []int32{1, 2}
			}

			res, err := Loss(nil, lp, labels, tt.inLen, tt.labLen, tt.dims, tt.blank, ReductionNone)
			if err != nil {
				t.Fatalf("Loss: %v", err)
			}
			for b := 0; b < tt.dims.Batch; b++ {
				want := -bruteLogLik(lp, labels, tt.dims, b, int(tt.inLen[b]), int(tt.labLen[b]), tt.blank)
				if stdmath.Abs(res.Losses[b]-want) > 1e-9 {
					t.Errorf("batch %d: loss %v, brute force %v", b, res.Losses[b], want)
				}
			}
		})
	}
}

func TestReductionLaws(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	dims := Dims{Batch: 4, MaxT: 6, MaxU: 4, Vocab: 5}
	blank := 0

	lp := randLogProbs[float64](dims, rng)
	labels := randLabels(dims, blank, rng)
	inLen := []int32{6, 4, 5, 2}
	labLen := []int32{3, 2, 0, 1}

	none, err := Loss(nil, lp, labels, inLen, labLen, dims, blank, ReductionNone)
	if err != nil {
		t.Fatalf("Loss(none): %v", err)
	}
	sum, err := Loss(nil, lp, labels, inLen, labLen, dims, blank, ReductionSum)
	if err != nil {
		t.Fatalf("Loss(sum): %v", err)
	}
	mean, err := Loss(nil, lp, labels, inLen, labLen, dims, blank, ReductionMean)
	if err != nil {
		t.Fatalf("Loss(mean): %v", err)
	}

	var wantSum float64
	for _, l := range none.Losses {
		wantSum += l
	}
	if stdmath.Abs(sum.Loss-wantSum) > 1e-12 {
		t.Errorf("sum reduction = %v, want %v", sum.Loss, wantSum)
	}
	if stdmath.Abs(mean.Loss-wantSum/float64(dims.Batch)) > 1e-12 {
		t.Errorf("mean reduction = %v, want %v", mean.Loss, wantSum/float64(dims.Batch))
	}
	if none.Loss != 0 {
		t.Errorf("none reduction scalar = %v, want 0", none.Loss)
	}
}

func TestUnknownReductionRejected(t *testing.T) {
	dims := Dims{Batch: 1, MaxT: 1, MaxU: 1, Vocab: 2}
	lp := []float64{stdmath.Log(0.5), stdmath.Log(0.5)}

	_, err := Loss(nil, lp, []int32{}, []int32{1}, []int32{0}, dims, 0, Reduction("avg"))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if cfgErr.Param != "reduction" {
		t.Errorf("Param = %q, want \"reduction\"", cfgErr.Param)
	}
}

func TestBlankOutOfRangeRejected(t *testing.T) {
	dims := Dims{Batch: 1, MaxT: 1, MaxU: 1, Vocab: 2}
	lp := []float64{stdmath.Log(0.5), stdmath.Log(0.5)}

	for _, blank := range []int{-1, 2, 100} {
		_, err := Loss(nil, lp, []int32{}, []int32{1}, []int32{0}, dims, blank, ReductionMean)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("blank=%d: err = %v, want *ConfigError", blank, err)
		}
	}
}

func TestBoundsValidation(t *testing.T) {
	dims := Dims{Batch: 2, MaxT: 3, MaxU: 3, Vocab: 4}
	rng := rand.New(rand.NewSource(17))
	lp := randLogProbs[float64](dims, rng)
	labels := []int32{1, 2, 3, 1}
	okIn := []int32{3, 2}
	okLab := []int32{2, 1}

	tests := []struct {
		name   string
		mutate func() ([]float64, []int32, []int32, []int32)
	}{
		{
			name: "zero input length",
			mutate: func() ([]float64, []int32, []int32, []int32) {
				return lp, labels, []int32{0, 2}, okLab
			},
		},
		{
			name: "input length beyond MaxT",
			mutate: func() ([]float64, []int32, []int32, []int32) {
				return lp, labels, []int32{4, 2}, okLab
			},
		},
		{
			name: "label length beyond MaxU-1",
			mutate: func() ([]float64, []int32, []int32, []int32) {
				return lp, labels, okIn, []int32{2, 3}
			},
		},
		{
			name: "negative label length",
			mutate: func() ([]float64, []int32, []int32, []int32) {
				return lp, labels, okIn, []int32{2, -1}
			},
		},
		{
			name: "label outside vocabulary",
			mutate: func() ([]float64, []int32, []int32, []int32) {
				return lp, []int32{1, 9, 3, 1}, okIn, okLab
			},
		},
		{
			name: "short lattice",
			mutate: func() ([]float64, []int32, []int32, []int32) {
				return lp[:len(lp)-1], labels, okIn, okLab
			},
		},
		{
			name: "short length vector",
			mutate: func() ([]float64, []int32, []int32, []int32) {
				return lp, labels, []int32{3}, okLab
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mlp, mlabels, mIn, mLab := tt.mutate()
			_, err := Loss(nil, mlp, mlabels, mIn, mLab, dims, 0, ReductionMean)
			var boundsErr *BoundsError
			if !errors.As(err, &boundsErr) {
				t.Fatalf("err = %v, want *BoundsError", err)
			}
		})
	}

	// The unmutated inputs pass.
	if _, err := Loss(nil, lp, labels, okIn, okLab, dims, 0, ReductionMean); err != nil {
		t.Fatalf("valid inputs rejected: %v", err)
	}
}

func TestScaleGradients(t *testing.T) {
	dims := Dims{Batch: 2, MaxT: 1, MaxU: 1, Vocab: 2}
	grads := []float64{1, 2, 3, 4}

	// Broadcast scalar upstream.
	out, err := ScaleGradients(grads, []float64{0.5}, dims)
	if err != nil {
		t.Fatalf("ScaleGradients: %v", err)
	}
	want := []float64{0.5, 1, 1.5, 2}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("broadcast: out[%d] = %v, want %v", i, out[i], want[i])
		}
	}

	// Per-batch upstream.
	out, err = ScaleGradients(out, []float64{2, -1}, dims)
	if err != nil {
		t.Fatalf("ScaleGradients: %v", err)
	}
	want = []float64{1, 2, -1.5, -2}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("per-batch: out[%d] = %v, want %v", i, out[i], want[i])
		}
	}

	// Shape mismatches.
	var boundsErr *BoundsError
	if _, err := ScaleGradients(grads[:3], []float64{1}, dims); !errors.As(err, &boundsErr) {
		t.Errorf("short grads: err = %v, want *BoundsError", err)
	}
	if _, err := ScaleGradients(grads, []float64{1, 2, 3}, dims); !errors.As(err, &boundsErr) {
		t.Errorf("bad upstream length: err = %v, want *BoundsError", err)
	}
}

// End to end through the pool, against the serial result.
func TestLossWithPoolMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	// Big enough to clear MinParallelTableCells so the doorbell kernels run.
	dims := Dims{Batch: 4, MaxT: 40, MaxU: 16, Vocab: 8}
	blank := 0

	lp := randLogProbs[float32](dims, rng)
	labels := randLabels(dims, blank, rng)
	inLen := make([]int32, dims.Batch)
	labLen := make([]int32, dims.Batch)
	for b := range inLen {
		inLen[b] = int32(1 + rng.Intn(dims.MaxT))
		labLen[b] = int32(rng.Intn(dims.MaxU))
	}

	want, err := Loss(nil, lp, labels, inLen, labLen, dims, blank, ReductionMean)
	if err != nil {
		t.Fatalf("Loss(serial): %v", err)
	}

	pool := workerpool.New(DefaultWorkers())
	defer pool.Close()
	got, err := Loss(pool, lp, labels, inLen, labLen, dims, blank, ReductionMean)
	if err != nil {
		t.Fatalf("Loss(pool): %v", err)
	}

	if got.Loss != want.Loss {
		t.Errorf("pooled loss = %v, serial loss = %v", got.Loss, want.Loss)
	}
	for i := range want.Grads {
		if got.Grads[i] != want.Grads[i] {
			t.Fatalf("grads[%d] = %v, want %v", i, got.Grads[i], want.Grads[i])
		}
	}
}

func BenchmarkLoss(b *testing.B) {
	rng := rand.New(rand.NewSource(23))
	dims := Dims{Batch: 8, MaxT: 64, MaxU: 24, Vocab: 32}
	blank := 0

	lp := randLogProbs[float32](dims, rng)
	labels := randLabels(dims, blank, rng)
	inLen := make([]int32, dims.Batch)
	labLen := make([]int32, dims.Batch)
	for i := range inLen {
		inLen[i] = int32(dims.MaxT)
		labLen[i] = int32(dims.MaxU - 1)
	}

	b.Run("serial", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := Loss(nil, lp, labels, inLen, labLen, dims, blank, ReductionMean); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("pool", func(b *testing.B) {
		pool := workerpool.New(DefaultWorkers())
		defer pool.Close()
		for i := 0; i < b.N; i++ {
			if _, err := Loss(pool, lp, labels, inLen, labLen, dims, blank, ReductionMean); err != nil {
				b.Fatal(err)
			}
		}
	})
}
