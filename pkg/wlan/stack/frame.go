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
	"strings"

	"gvisor.dev/wlan/pkg/sync"
)

// RxFlags describe how a frame was captured.
type RxFlags uint32

const (
	// FlagRadiotap is set when the frame starts with a radiotap header.
	FlagRadiotap RxFlags = 1 << iota

	// FlagFCS is set when the frame ends with its frame check sequence.
	FlagFCS

	// FlagBadFCS is set when the hardware found the frame check sequence
	// to be wrong.
	FlagBadFCS

	// FlagBadPLCP is set when the hardware found the PLCP CRC to be wrong.
	FlagBadPLCP

	// FlagDecrypted is set when the hardware decrypted the frame. The body
	// is plaintext and carries neither cipher header nor MIC.
	FlagDecrypted
)

var rxFlagNames = []string{"radiotap", "fcs", "bad-fcs", "bad-plcp", "decrypted"}

func (f RxFlags) String() string {
	var names []string
	for i, name := range rxFlagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// RxInfo is the reception metadata of a frame. Fields other than Flags are
// filled from the radiotap header when present.
type RxInfo struct {
	// Flags are the capture flags.
	Flags RxFlags

	// Rate is the data rate in units of 500 kb/s.
	Rate uint8

	// Signal is the signal power at the antenna in dBm.
	Signal int8

	// Noise is the noise power at the antenna in dBm.
	Noise int8

	// Frequency is the channel center frequency in MHz.
	Frequency uint16

	// TSFT is the MAC timestamp of the first bit of the frame, in
	// microseconds.
	TSFT uint64
}

// Frame is a frame as received from the hardware.
//
// Frames are reference counted. NewFrame returns a frame holding one
// reference, which the caller hands to the Dispatcher. The release function
// runs exactly once, when the last reference is dropped.
type Frame struct {
	_ sync.NoCopy
	refs

	data    []byte
	release func()

	// Info is the reception metadata. The receive path reads it and fills
	// in radiotap fields on its own copy.
	Info RxInfo
}

// NewFrame returns a frame over data. release may be nil.
func NewFrame(data []byte, info RxInfo, release func()) *Frame {
	f := &Frame{
		data:    data,
		release: release,
		Info:    info,
	}
	f.InitRefs()
	return f
}

// Data returns the frame bytes as received, including any radiotap header
// and FCS.
func (f *Frame) Data() []byte {
	return f.data
}

// Size returns the number of bytes received.
func (f *Frame) Size() int {
	return len(f.data)
}

// IncRef takes a reference on f.
func (f *Frame) IncRef() {
	f.refs.IncRef("stack.Frame")
}

// DecRef drops a reference on f, releasing it when none remain.
func (f *Frame) DecRef() {
	f.refs.DecRef("stack.Frame", func() {
		if f.release != nil {
			f.release()
		}
		f.data = nil
	})
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame(%d bytes, %s)", len(f.data), f.Info.Flags)
}
