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

// Package station holds the station and key table shared by the receive
// paths of every radio.
//
// The table is read under a ReadGuard, which corresponds to the read-side
// protection window of the receive path: any number of radios may hold
// guards at once, while Add, Remove and SetKey wait for every guard to be
// released.
package station

import (
	"errors"
	"fmt"

	"github.com/google/btree"
	"gvisor.dev/wlan/pkg/sync"
	"gvisor.dev/wlan/pkg/wlan"
)

// Errors returned by Table mutations.
var (
	ErrExists   = errors.New("station already exists")
	ErrNotFound = errors.New("station not found")
)

// btreeDegree is the degree of the address index.
const btreeDegree = 8

func lessStation(a, b *Station) bool {
	return a.addr.Less(b.addr)
}

// Table is the station table.
type Table struct {
	mu       sync.RWMutex
	stations *btree.BTreeG[*Station]
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		stations: btree.NewG[*Station](btreeDegree, lessStation),
	}
}

// Add adds a station belonging to radio hw, associated with interface
// iface.
func (t *Table) Add(addr wlan.Address, hw wlan.HardwareID, iface wlan.InterfaceID) (*Station, error) {
	if addr.IsGroup() {
		return nil, fmt.Errorf("station address %s is a group address", addr)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &Station{addr: addr, hw: hw, iface: iface}
	if _, ok := t.stations.Get(s); ok {
		return nil, fmt.Errorf("add %s: %w", addr, ErrExists)
	}
	t.stations.ReplaceOrInsert(s)
	return s, nil
}

// Remove removes a station, discarding its pending reassemblies.
func (t *Table) Remove(addr wlan.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stations.Delete(&Station{addr: addr})
	if !ok {
		return fmt.Errorf("remove %s: %w", addr, ErrNotFound)
	}
	s.Fragments.Discard()
	return nil
}

// SetKey installs k on a station, as its pairwise key or as the group key
// with index k.ID. A nil key with pairwise set removes the pairwise key.
func (t *Table) SetKey(addr wlan.Address, k *Key, pairwise bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stations.Get(&Station{addr: addr})
	if !ok {
		return fmt.Errorf("set key on %s: %w", addr, ErrNotFound)
	}
	if pairwise {
		s.pairwise = k
		return nil
	}
	if k == nil {
		return fmt.Errorf("set key on %s: nil group key", addr)
	}
	s.group[k.ID] = k
	return nil
}

// DeleteGroupKey removes the group key with index id from a station.
func (t *Table) DeleteGroupKey(addr wlan.Address, id uint8) error {
	if id > MaxKeyID {
		return fmt.Errorf("key index %d out of range", id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stations.Get(&Station{addr: addr})
	if !ok {
		return fmt.Errorf("delete key on %s: %w", addr, ErrNotFound)
	}
	s.group[id] = nil
	return nil
}

// Len returns the number of stations.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stations.Len()
}

// ReadLock enters the read-side protection window. The returned guard must
// be released exactly once its holder no longer dereferences stations
// obtained from it.
func (t *Table) ReadLock() ReadGuard {
	t.mu.RLock()
	return ReadGuard{t: t}
}

// ReadGuard is a held read lock on a Table.
type ReadGuard struct {
	t *Table
}

// Held returns true if the guard has not been released.
func (g *ReadGuard) Held() bool {
	return g.t != nil
}

// Lookup returns the station with address addr, or nil.
func (g *ReadGuard) Lookup(addr wlan.Address) *Station {
	if g.t == nil {
		panic("station lookup through a released guard")
	}
	s, _ := g.t.stations.Get(&Station{addr: addr})
	return s
}

// Ascend calls fn for every station of radio hw in address order, until fn
// returns false.
func (g *ReadGuard) Ascend(hw wlan.HardwareID, fn func(*Station) bool) {
	if g.t == nil {
		panic("station iteration through a released guard")
	}
	g.t.stations.Ascend(func(s *Station) bool {
		if s.hw != hw {
			return true
		}
		return fn(s)
	})
}

// AscendAll calls fn for every station in address order, until fn returns
// false.
func (g *ReadGuard) AscendAll(fn func(*Station) bool) {
	if g.t == nil {
		panic("station iteration through a released guard")
	}
	g.t.stations.Ascend(fn)
}

// Release leaves the protection window. Releasing an already released guard
// is a no-op.
func (g *ReadGuard) Release() {
	if g.t == nil {
		return
	}
	t := g.t
	g.t = nil
	t.mu.RUnlock()
}
