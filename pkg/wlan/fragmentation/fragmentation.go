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

// Package fragmentation implements reassembly of fragmented 802.11 MSDUs.
//
// Fragments of one MSDU share a sequence number and carry consecutive
// fragment numbers; every fragment but the last has MoreFragments set. A
// transmitter sends the fragments of an MSDU in order, so each (station, TID)
// pair needs a single pending reassembly. Per-station state lives in a Set;
// frames from senders without a station use the per-radio Cache.
package fragmentation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gvisor.dev/wlan/pkg/wlan"
)

const (
	// DefaultMaxSize is the default bound on the body bytes buffered for one
	// reassembly.
	DefaultMaxSize = 8192

	// DefaultTimeout is the default age after which a pending reassembly is
	// discarded by expiry.
	DefaultTimeout = 2 * time.Second
)

var (
	// ErrDesync indicates a fragment that does not continue the pending
	// reassembly, or that differs from it in protection or packet number.
	ErrDesync = errors.New("fragment does not continue the pending reassembly")

	// ErrNoReassembly indicates a fragment other than the first one arriving
	// while no reassembly is pending.
	ErrNoReassembly = errors.New("fragment without a pending reassembly")

	// ErrOverflow indicates a reassembly that grew past the configured
	// maximum size.
	ErrOverflow = errors.New("reassembly exceeds maximum size")
)

// DesyncPolicy selects what happens to a fragment that does not continue the
// pending reassembly. The pending reassembly is discarded under every policy.
type DesyncPolicy int

const (
	// DesyncRestart starts a new reassembly when the fragment is the first
	// fragment of an MSDU, and drops it otherwise.
	DesyncRestart DesyncPolicy = iota

	// DesyncDropBoth drops the fragment along with the pending reassembly.
	DesyncDropBoth
)

func (p DesyncPolicy) String() string {
	switch p {
	case DesyncRestart:
		return "restart"
	case DesyncDropBoth:
		return "drop-both"
	default:
		return fmt.Sprintf("DesyncPolicy(%d)", int(p))
	}
}

// ParseDesyncPolicy parses the String form of a policy.
func ParseDesyncPolicy(s string) (DesyncPolicy, error) {
	switch strings.ToLower(s) {
	case "restart", "":
		return DesyncRestart, nil
	case "drop-both", "dropboth":
		return DesyncDropBoth, nil
	default:
		return DesyncRestart, fmt.Errorf("unknown desync policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p DesyncPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *DesyncPolicy) UnmarshalText(b []byte) error {
	v, err := ParseDesyncPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Params holds the per-radio configuration shared by every reassembler of
// that radio.
type Params struct {
	// Policy is applied to fragments that do not continue a pending
	// reassembly.
	Policy DesyncPolicy

	// MaxSize bounds the body bytes of one reassembly.
	MaxSize int

	// Timeout is the age after which Expire discards a pending reassembly.
	Timeout time.Duration

	// Stats is incremented as fragments are processed.
	Stats *wlan.ReassemblyStats
}

// A Fragment is the reference counted buffer a fragment body aliases. A
// reassembler holds one reference to every fragment it buffers.
type Fragment interface {
	DecRef()
}

// FrameInfo describes the sequencing fields of a data frame.
type FrameInfo struct {
	// Sequence is the 12 bit sequence number.
	Sequence uint16

	// Fragment is the 4 bit fragment number.
	Fragment uint8

	// More is the MoreFragments flag.
	More bool

	// Protected is set when the frame was received encrypted.
	Protected bool

	// PN is the packet number of a frame decrypted by the receive path.
	// Fragments of one MSDU carry consecutive packet numbers.
	PN uint64

	// HasPN is set when PN is known. Frames decrypted by the hardware have
	// no packet number.
	HasPN bool
}

// IsFragment returns true if the frame is one part of a fragmented MSDU.
func (f FrameInfo) IsFragment() bool {
	return f.More || f.Fragment != 0
}

// Result is a completed MSDU.
type Result struct {
	// Parts holds the bodies of every fragment in order. An unfragmented
	// frame yields a single part.
	Parts [][]byte

	// Refs holds the references the parts alias. Ownership passes to the
	// caller.
	Refs []Fragment
}

// Size returns the total size of the parts.
func (r *Result) Size() int {
	n := 0
	for _, p := range r.Parts {
		n += len(p)
	}
	return n
}

// Release drops every reference held by r.
func (r *Result) Release() {
	for _, ref := range r.Refs {
		ref.DecRef()
	}
	r.Refs = nil
	r.Parts = nil
}
