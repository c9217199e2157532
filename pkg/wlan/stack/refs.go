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

package stack

import (
	"fmt"

	"gvisor.dev/wlan/pkg/atomicbitops"
)

// refs keeps a reference count using atomic operations and calls the
// destructor when the count reaches zero.
type refs struct {
	refCount atomicbitops.Int64
}

// InitRefs initializes r with one reference.
func (r *refs) InitRefs() {
	r.refCount.Store(1)
}

// ReadRefs returns the current number of references. The returned count is
// inherently racy and is unsafe to use without external synchronization.
func (r *refs) ReadRefs() int64 {
	return r.refCount.Load()
}

// IncRef increments the reference count.
//
//go:nosplit
func (r *refs) IncRef(owner string) {
	if v := r.refCount.Add(1); v <= 1 {
		panic(fmt.Sprintf("Incrementing non-positive count %p on %s", r, owner))
	}
}

// DecRef decrements the reference count and runs destroy when it reaches
// zero.
//
//go:nosplit
func (r *refs) DecRef(owner string, destroy func()) {
	switch v := r.refCount.Add(-1); {
	case v < 0:
		panic(fmt.Sprintf("Decrementing non-positive ref count %p, owned by %s", r, owner))
	case v == 0:
		if destroy != nil {
			destroy()
		}
	}
}
