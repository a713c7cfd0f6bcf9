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

import stdmath "math"

// logSumExp combines two log-domain probabilities that represent alternative
// paths through the alignment lattice:
//
//	log(exp(a) + exp(b)) = max(a, b) + log1p(exp(-|a-b|))
//
// The identity keeps the exp argument non-positive, so the combination never
// overflows where the naive form would. A -Inf operand (an impossible path)
// acts as the identity element.
func logSumExp[T Floats](a, b T) T {
	if stdmath.IsInf(float64(a), -1) {
		return b
	}
	if stdmath.IsInf(float64(b), -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + T(stdmath.Log1p(stdmath.Exp(float64(b-a))))
}
