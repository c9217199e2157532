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

//go:build rxdebug
// +build rxdebug

package stack

import (
	"fmt"

	"gvisor.dev/wlan/pkg/atomicbitops"
	"gvisor.dev/wlan/pkg/wlan"
)

// rxSentinelEnabled is true in builds that check receive serialization.
const rxSentinelEnabled = true

// rxSentinel panics when receive calls for one radio overlap.
type rxSentinel struct {
	busy atomicbitops.Uint32
}

func (s *rxSentinel) enter(hw wlan.HardwareID) {
	if !s.busy.CompareAndSwap(0, 1) {
		panic(fmt.Sprintf("overlapping receive calls on hardware %d", hw))
	}
}

func (s *rxSentinel) exit() {
	s.busy.Store(0)
}
