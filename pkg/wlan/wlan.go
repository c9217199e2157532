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

// Package wlan provides the types shared by the 802.11 receive path: hardware
// addresses, traffic identifiers, clocks and statistics.
//
// The pipeline itself lives in package stack; frame layouts live in package
// header.
package wlan

import (
	"fmt"
	"net"
	"reflect"
	"strconv"
	"time"

	"gvisor.dev/wlan/pkg/atomicbitops"
)

// AddressSize is the size of an IEEE 802 MAC address.
const AddressSize = 6

// Address is an IEEE 802 MAC address.
type Address [AddressSize]byte

// BroadcastAddress is the all-ones group address.
var BroadcastAddress = Address{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseAddress parses s in any format accepted by net.ParseMAC, restricted to
// 48-bit addresses.
func ParseAddress(s string) (Address, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return Address{}, err
	}
	if len(hw) != AddressSize {
		return Address{}, fmt.Errorf("address %q is not a 48-bit MAC address", s)
	}
	var a Address
	copy(a[:], hw)
	return a, nil
}

// AddressFrom copies the first AddressSize bytes of b into an Address.
func AddressFrom(b []byte) Address {
	var a Address
	copy(a[:], b)
	return a
}

// IsGroup returns true if a is a multicast or broadcast address.
func (a Address) IsGroup() bool {
	return a[0]&1 != 0
}

// IsBroadcast returns true if a is the broadcast address.
func (a Address) IsBroadcast() bool {
	return a == BroadcastAddress
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return net.HardwareAddr(a[:]).String()
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(b []byte) error {
	v, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Less orders addresses byte-wise.
func (a Address) Less(b Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// TID is an 802.11 traffic identifier.
type TID uint8

const (
	// NumQoSTIDs is the number of traffic identifiers QoS data frames can
	// carry.
	NumQoSTIDs = 16

	// NonQoSTID is the traffic identifier used for non-QoS data frames. It
	// has its own sequence space.
	NonQoSTID TID = NumQoSTIDs

	// NumTIDs is the number of sequence spaces tracked per station.
	NumTIDs = NumQoSTIDs + 1
)

// HardwareID identifies a radio. Stations belong to exactly one radio.
type HardwareID uint32

// InterfaceID identifies a virtual interface on a radio.
type InterfaceID uint32

// A Clock provides the current time. Fragment expiry is the only user.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// StdClock implements Clock with the time package.
type StdClock struct{}

// Now implements Clock.Now.
func (StdClock) Now() time.Time {
	return time.Now()
}

// A StatCounter keeps track of a statistic.
type StatCounter struct {
	count atomicbitops.Uint64
}

// Increment adds one to the counter.
func (s *StatCounter) Increment() {
	s.IncrementBy(1)
}

// Value returns the current value of the counter.
func (s *StatCounter) Value() uint64 {
	return s.count.Load()
}

// IncrementBy increments the counter by v.
func (s *StatCounter) IncrementBy(v uint64) {
	s.count.Add(v)
}

func (s *StatCounter) String() string {
	return strconv.FormatUint(s.Value(), 10)
}

// DropStats counts frames dropped by the receive path, by reason.
type DropStats struct {
	// Malformed is the number of frames that were too short for their
	// header, carried a malformed radiotap header, aggregate or LLC header.
	Malformed *StatCounter

	// BadFCS is the number of frames whose frame check sequence did not
	// match or that the hardware flagged as failing it.
	BadFCS *StatCounter

	// BadPLCP is the number of frames the hardware flagged as having a
	// failed PLCP CRC.
	BadPLCP *StatCounter

	// NotForUs is the number of frames whose receiver address matched no
	// interface that is up.
	NotForUs *StatCounter

	// Duplicate is the number of retransmissions of an already received
	// frame.
	Duplicate *StatCounter

	// NoKey is the number of protected frames for which no station or no
	// key was installed.
	NoKey *StatCounter

	// DecryptFailed is the number of protected frames that failed
	// decryption or integrity checking.
	DecryptFailed *StatCounter

	// Replayed is the number of protected frames whose packet number did
	// not advance.
	Replayed *StatCounter

	// Unprotected is the number of unprotected data frames received from
	// a station that has a key installed.
	Unprotected *StatCounter

	// Reassembly is the number of fragments dropped because they did not
	// continue the pending reassembly.
	Reassembly *StatCounter
}

// ReassemblyStats counts fragment and aggregate handling.
type ReassemblyStats struct {
	// Fragments is the number of fragments accepted into a reassembly
	// buffer.
	Fragments *StatCounter

	// Reassembled is the number of packets completed from fragments.
	Reassembled *StatCounter

	// Desync is the number of pending reassemblies discarded because a
	// fragment arrived out of sequence.
	Desync *StatCounter

	// Overflow is the number of pending reassemblies discarded because they
	// grew past the configured maximum.
	Overflow *StatCounter

	// Expired is the number of pending reassemblies discarded by expiry.
	Expired *StatCounter

	// Evicted is the number of pending reassemblies discarded to make room
	// in the per-radio cache for unknown senders.
	Evicted *StatCounter

	// Aggregates is the number of A-MSDUs unpacked.
	Aggregates *StatCounter

	// Subframes is the number of A-MSDU subframes unpacked.
	Subframes *StatCounter
}

// RxStats collects receive path statistics for one radio.
type RxStats struct {
	// Frames is the number of frames that entered the pipeline.
	Frames *StatCounter

	// Bytes is the number of bytes that entered the pipeline.
	Bytes *StatCounter

	// Packets is the number of packets handed to a sink.
	Packets *StatCounter

	// PacketBytes is the number of payload bytes handed to a sink.
	PacketBytes *StatCounter

	// Monitored is the number of frames copied to a monitor tap.
	Monitored *StatCounter

	// Management is the number of management frames handed to the
	// management handler.
	Management *StatCounter

	// Control is the number of control frames consumed.
	Control *StatCounter

	// NoData is the number of data frames without payload consumed.
	NoData *StatCounter

	// Dropped counts drops by reason.
	Dropped DropStats

	// Reassembly counts fragment and aggregate handling.
	Reassembly ReassemblyStats
}

// Stats holds statistics about a radio.
type Stats struct {
	// Rx is the receive path statistics.
	Rx RxStats
}

func fillIn(v reflect.Value) {
	for i := 0; i < v.NumField(); i++ {
		v := v.Field(i)
		if s, ok := v.Addr().Interface().(**StatCounter); ok {
			if *s == nil {
				*s = new(StatCounter)
			}
		} else {
			fillIn(v)
		}
	}
}

// FillIn returns a copy of s with nil fields initialized to new StatCounters.
func (s Stats) FillIn() Stats {
	fillIn(reflect.ValueOf(&s).Elem())
	return s
}

// TotalDropped sums every drop reason.
func (s *DropStats) TotalDropped() uint64 {
	var total uint64
	v := reflect.ValueOf(s).Elem()
	for i := 0; i < v.NumField(); i++ {
		if c, ok := v.Field(i).Interface().(*StatCounter); ok && c != nil {
			total += c.Value()
		}
	}
	return total
}
