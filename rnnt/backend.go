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
	"os"
	"runtime"
	"strconv"
)

// backendName is the diagnostics string for the detected compute backend.
// Set by init() in backend_*.go files.
var backendName string

// noParallel forces the serial sweep kernels regardless of the pool handed
// to Loss. Set once at init from RNNT_NO_PARALLEL.
var noParallel bool

// defaultWorkers is the worker count DefaultWorkers reports.
var defaultWorkers int

func init() {
	noParallel = NoParallelEnv()
	defaultWorkers = runtime.GOMAXPROCS(0)
	if v := os.Getenv("RNNT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			defaultWorkers = n
		}
	}
}

// BackendName returns a human-readable name for the compute backend the
// sweeps run on, e.g. "amd64/avx2" or "arm64/neon". The kernels themselves
// are portable Go; the name identifies the CPU class for diagnostics.
func BackendName() string {
	return backendName
}

// DefaultWorkers returns the worker count new pools should be sized with:
// GOMAXPROCS, unless overridden by the RNNT_WORKERS environment variable.
func DefaultWorkers() int {
	return defaultWorkers
}

// NoParallelEnv checks if the RNNT_NO_PARALLEL environment variable is set.
// When set, the serial sweep kernels are used regardless of the pool passed
// in. This is useful for testing and debugging.
func NoParallelEnv() bool {
	val := os.Getenv("RNNT_NO_PARALLEL")
	if val == "" {
		return false
	}
	// Any non-empty value is considered true, but also parse as bool
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}
