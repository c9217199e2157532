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

package station

import (
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/fragmentation"
)

// Station is a peer known to a radio.
//
// Identity and keys are changed only by Table mutations. The receive state
// (duplicate detection and reassembly) is changed only by the receive path
// of the owning radio, which callers serialize.
type Station struct {
	addr  wlan.Address
	hw    wlan.HardwareID
	iface wlan.InterfaceID

	pairwise *Key
	group    [MaxKeyID + 1]*Key

	lastSeqCtrl [wlan.NumTIDs]uint16
	seqValid    [wlan.NumTIDs]bool

	// Fragments holds the pending reassemblies of the station.
	Fragments fragmentation.Set
}

// Address returns the station address.
func (s *Station) Address() wlan.Address {
	return s.addr
}

// Hardware returns the radio the station belongs to.
func (s *Station) Hardware() wlan.HardwareID {
	return s.hw
}

// Interface returns the virtual interface the station is associated with.
func (s *Station) Interface() wlan.InterfaceID {
	return s.iface
}

// PairwiseKey returns the installed pairwise key, or nil.
func (s *Station) PairwiseKey() *Key {
	return s.pairwise
}

// GroupKey returns the installed group key with index id, or nil.
func (s *Station) GroupKey(id uint8) *Key {
	if int(id) >= len(s.group) {
		return nil
	}
	return s.group[id]
}

// HasKey returns true if any key is installed.
func (s *Station) HasKey() bool {
	if s.pairwise != nil {
		return true
	}
	for _, k := range s.group {
		if k != nil {
			return true
		}
	}
	return false
}

// IsDuplicate returns true if a retransmitted frame repeats the last
// sequence control seen for tid. Otherwise it records seqCtrl as the last
// one seen.
func (s *Station) IsDuplicate(tid wlan.TID, seqCtrl uint16, retry bool) bool {
	if retry && s.seqValid[tid] && s.lastSeqCtrl[tid] == seqCtrl {
		return true
	}
	s.lastSeqCtrl[tid] = seqCtrl
	s.seqValid[tid] = true
	return false
}
