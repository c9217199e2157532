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

package fragmentation

import (
	"time"

	"gvisor.dev/wlan/pkg/wlan"
)

// Set holds the reassemblers of one station, one per TID.
type Set struct {
	reassemblers [wlan.NumTIDs]Reassembler
}

// Get returns the reassembler for tid.
func (s *Set) Get(tid wlan.TID) *Reassembler {
	return &s.reassemblers[tid]
}

// Expire discards every pending reassembly older than p.Timeout and returns
// how many were discarded.
func (s *Set) Expire(p *Params, now time.Time) int {
	n := 0
	for i := range s.reassemblers {
		if s.reassemblers[i].Expire(p, now) {
			n++
		}
	}
	return n
}

// Discard drops every pending reassembly.
func (s *Set) Discard() {
	for i := range s.reassemblers {
		s.reassemblers[i].Discard()
	}
}

// CacheSize is the number of pending reassemblies a Cache holds.
const CacheSize = 4

type cacheEntry struct {
	transmitter wlan.Address
	tid         wlan.TID
	lastUsed    uint64
	r           Reassembler
}

// Cache holds pending reassemblies for transmitters that have no station.
// When full, starting a new reassembly evicts the least recently used one.
//
// The zero value is ready for use.
type Cache struct {
	entries [CacheSize]cacheEntry
	tick    uint64
}

// Lookup returns the pending reassembly for (ta, tid), or nil.
func (c *Cache) Lookup(ta wlan.Address, tid wlan.TID) *Reassembler {
	for i := range c.entries {
		e := &c.entries[i]
		if e.r.State() == Awaiting && e.transmitter == ta && e.tid == tid {
			c.tick++
			e.lastUsed = c.tick
			return &e.r
		}
	}
	return nil
}

// Get returns the reassembler for (ta, tid), claiming an entry for it if
// none is pending. Claiming may evict the least recently used pending
// reassembly.
func (c *Cache) Get(p *Params, ta wlan.Address, tid wlan.TID) *Reassembler {
	if r := c.Lookup(ta, tid); r != nil {
		return r
	}
	victim := &c.entries[0]
	for i := range c.entries {
		e := &c.entries[i]
		if e.r.State() == Idle {
			victim = e
			break
		}
		if e.lastUsed < victim.lastUsed {
			victim = e
		}
	}
	if victim.r.Discard() {
		p.Stats.Evicted.Increment()
	}
	c.tick++
	victim.transmitter = ta
	victim.tid = tid
	victim.lastUsed = c.tick
	return &victim.r
}

// Len returns the number of pending reassemblies.
func (c *Cache) Len() int {
	n := 0
	for i := range c.entries {
		if c.entries[i].r.State() == Awaiting {
			n++
		}
	}
	return n
}

// Expire discards every pending reassembly older than p.Timeout and returns
// how many were discarded.
func (c *Cache) Expire(p *Params, now time.Time) int {
	n := 0
	for i := range c.entries {
		if c.entries[i].r.Expire(p, now) {
			n++
		}
	}
	return n
}

// Discard drops every pending reassembly.
func (c *Cache) Discard() {
	for i := range c.entries {
		c.entries[i].r.Discard()
	}
}
