// Copyright 2026 The gVisor Authors.
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

package atomicbitops

import (
	"runtime"
	"testing"

	"gvisor.dev/wlan/pkg/sync"
)

func TestConcurrentAdd(t *testing.T) {
	var (
		i  Int64
		u  Uint64
		wg sync.WaitGroup
	)
	n := runtime.GOMAXPROCS(0) * 4
	const each = 1000
	for g := 0; g < n; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < each; k++ {
				i.Add(1)
				u.Add(2)
			}
		}()
	}
	wg.Wait()
	if got, want := i.Load(), int64(n*each); got != want {
		t.Errorf("Int64.Load() = %d, want %d", got, want)
	}
	if got, want := u.Load(), uint64(2*n*each); got != want {
		t.Errorf("Uint64.Load() = %d, want %d", got, want)
	}
}

func TestBool(t *testing.T) {
	var b Bool
	if b.Load() {
		t.Fatalf("zero Bool.Load() = true, want false")
	}
	b.Store(true)
	if !b.Load() {
		t.Errorf("Bool.Load() after Store(true) = false")
	}
	if !b.CompareAndSwap(1, 0) {
		t.Errorf("CompareAndSwap(1, 0) = false, want true")
	}
	if b.Load() {
		t.Errorf("Bool.Load() after CompareAndSwap(1, 0) = true")
	}
}
