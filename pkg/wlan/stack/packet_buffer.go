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
	"encoding/binary"

	"gvisor.dev/wlan/pkg/sync"
	"gvisor.dev/wlan/pkg/wlan"
)

// EthernetHeaderSize is the size of the header EthernetFrame prepends.
const EthernetHeaderSize = 14

// PacketBuffer is a network-layer packet produced by the receive path: the
// payload of one MSDU with its 802.11 and LLC/SNAP headers removed.
//
// PacketBuffers are reference counted. A PacketBuffer holds a reference on
// every Frame its payload aliases.
type PacketBuffer struct {
	_ sync.NoCopy
	refs

	data   []byte
	frames []*Frame

	// EtherType is the protocol carried by the payload.
	EtherType uint16

	// Source is the address of the original sender.
	Source wlan.Address

	// Destination is the address of the final recipient.
	Destination wlan.Address

	// Hardware is the radio the packet was received on.
	Hardware wlan.HardwareID

	// Interface is the virtual interface the packet is delivered to.
	Interface wlan.InterfaceID

	// Transmitter is the address of the station that transmitted the frame.
	Transmitter wlan.Address

	// KnownStation is true if the transmitter was a known station.
	KnownStation bool

	// RxInfo is the reception metadata of the last frame of the packet.
	RxInfo RxInfo
}

// newPacketBuffer returns a packet over data, taking a reference on each of
// frames.
func newPacketBuffer(data []byte, frames []*Frame) *PacketBuffer {
	pk := &PacketBuffer{data: data}
	if len(frames) != 0 {
		pk.frames = make([]*Frame, len(frames))
		copy(pk.frames, frames)
		for _, f := range frames {
			f.IncRef()
		}
	}
	pk.InitRefs()
	return pk
}

// NewPacketBuffer returns a packet owning data. It is used by link
// endpoints and tests that build packets outside the receive path.
func NewPacketBuffer(data []byte) *PacketBuffer {
	return newPacketBuffer(data, nil)
}

// Data returns the payload. The bytes must not be modified.
func (pk *PacketBuffer) Data() []byte {
	return pk.data
}

// Size returns the size of the payload.
func (pk *PacketBuffer) Size() int {
	return len(pk.data)
}

// IncRef takes a reference on pk.
func (pk *PacketBuffer) IncRef() {
	pk.refs.IncRef("stack.PacketBuffer")
}

// DecRef drops a reference on pk. When none remain, the references on the
// frames it aliases are dropped.
func (pk *PacketBuffer) DecRef() {
	pk.refs.DecRef("stack.PacketBuffer", func() {
		for i, f := range pk.frames {
			f.DecRef()
			pk.frames[i] = nil
		}
		pk.frames = nil
		pk.data = nil
	})
}

// Clone makes a shallow copy of pk sharing its payload. The clone holds its
// own references on the frames.
func (pk *PacketBuffer) Clone() *PacketBuffer {
	c := newPacketBuffer(pk.data, pk.frames)
	c.EtherType = pk.EtherType
	c.Source = pk.Source
	c.Destination = pk.Destination
	c.Hardware = pk.Hardware
	c.Interface = pk.Interface
	c.Transmitter = pk.Transmitter
	c.KnownStation = pk.KnownStation
	c.RxInfo = pk.RxInfo
	return c
}

// EthernetFrame returns the packet as an Ethernet II frame.
func (pk *PacketBuffer) EthernetFrame() []byte {
	b := make([]byte, EthernetHeaderSize+len(pk.data))
	copy(b[0:], pk.Destination[:])
	copy(b[6:], pk.Source[:])
	binary.BigEndian.PutUint16(b[12:], pk.EtherType)
	copy(b[EthernetHeaderSize:], pk.data)
	return b
}
