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
	"fmt"
)

// ConfigError reports an invocation-level configuration problem: an unknown
// reduction policy, a blank id outside the vocabulary, or a bad environment
// override. Nothing has been computed when a ConfigError is returned.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rnnt: invalid %s: %s", e.Param, e.Reason)
}

// BoundsError reports input data inconsistent with the declared lattice
// geometry: a length vector outside the padded dimensions, a label outside
// the vocabulary, or a buffer shorter than the geometry implies. Launching a
// sweep with such inputs would index out of range, so all bounds are checked
// before any sweep starts. Batch is the offending batch element, or -1 when
// the problem is batch-independent.
type BoundsError struct {
	Batch int
	Field string
	Got   int
	Min   int
	Max   int
}

func (e *BoundsError) Error() string {
	if e.Batch < 0 {
		return fmt.Sprintf("rnnt: %s = %d, want within [%d, %d]", e.Field, e.Got, e.Min, e.Max)
	}
	return fmt.Sprintf("rnnt: %s = %d for batch element %d, want within [%d, %d]", e.Field, e.Got, e.Batch, e.Min, e.Max)
}

// errStalled is returned when a doorbell wait exhausts its spin budget.
// Reaching it means a dependency the launch-time validation should have
// ruled out is broken; it exists so a malformed launch surfaces as an error
// instead of a hang.
var errStalled = errors.New("rnnt: wavefront sweep stalled waiting on a doorbell")
