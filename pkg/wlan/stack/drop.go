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
	"gvisor.dev/wlan/pkg/log"
	"gvisor.dev/wlan/pkg/wlan"
)

// dropReason is why the receive path dropped a frame or one of its MSDUs.
type dropReason int

const (
	dropNone dropReason = iota
	dropMalformed
	dropBadFCS
	dropBadPLCP
	dropNotForUs
	dropDuplicate
	dropNoKey
	dropDecryptFailed
	dropReplayed
	dropUnprotected
	dropReassembly
)

func (r dropReason) String() string {
	switch r {
	case dropNone:
		return "none"
	case dropMalformed:
		return "malformed"
	case dropBadFCS:
		return "bad FCS"
	case dropBadPLCP:
		return "bad PLCP"
	case dropNotForUs:
		return "not for us"
	case dropDuplicate:
		return "duplicate"
	case dropNoKey:
		return "no key"
	case dropDecryptFailed:
		return "decryption failed"
	case dropReplayed:
		return "replayed"
	case dropUnprotected:
		return "unprotected"
	case dropReassembly:
		return "reassembly"
	default:
		return "unknown"
	}
}

// counter returns the counter of r in s.
func (r dropReason) counter(s *wlan.DropStats) *wlan.StatCounter {
	switch r {
	case dropMalformed:
		return s.Malformed
	case dropBadFCS:
		return s.BadFCS
	case dropBadPLCP:
		return s.BadPLCP
	case dropNotForUs:
		return s.NotForUs
	case dropDuplicate:
		return s.Duplicate
	case dropNoKey:
		return s.NoKey
	case dropDecryptFailed:
		return s.DecryptFailed
	case dropReplayed:
		return s.Replayed
	case dropUnprotected:
		return s.Unprotected
	case dropReassembly:
		return s.Reassembly
	default:
		panic("no counter for drop reason " + r.String())
	}
}

// drop records a drop on hw.
func (d *Dispatcher) drop(hw *Hardware, f *Frame, reason dropReason) {
	reason.counter(&hw.stats.Rx.Dropped).Increment()
	if d.logger.IsLogging(log.Debug) {
		d.logger.Debugf("hw %d: dropped %s: %s", hw.id, f, reason)
	}
}
