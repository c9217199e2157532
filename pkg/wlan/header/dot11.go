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

// Package header provides the implementation of the encoding and decoding of
// 802.11 MAC headers, LLC/SNAP headers, A-MSDU subframes and cipher headers.
// Each header type is a byte slice with accessors, in the same way the frame
// is laid out on the air.
package header

import (
	"encoding/binary"
	"hash/crc32"

	"gvisor.dev/wlan/pkg/wlan"
)

const (
	frameControl = 0
	flagsOffset  = 1
	durationID   = 2
	address1     = 4
	address2     = 10
	address3     = 16
	seqCtrl      = 22
	address4     = 24
)

const (
	// Dot11MinimumSize is the size of a three address data or management
	// header.
	Dot11MinimumSize = 24

	// Dot11ControlMinimumSize is the size of the shortest control frame
	// header (CTS and ACK): frame control, duration and receiver address.
	Dot11ControlMinimumSize = 10

	// Dot11ControlSize is the size of a control frame header carrying a
	// transmitter address.
	Dot11ControlSize = 16

	// Dot11Address4Size is the size of the fourth address present when both
	// ToDS and FromDS are set on a data frame.
	Dot11Address4Size = 6

	// Dot11QoSControlSize is the size of the QoS control field of QoS data
	// frames.
	Dot11QoSControlSize = 2

	// Dot11HTControlSize is the size of the HT control field present on QoS
	// data and management frames that have the Order flag set.
	Dot11HTControlSize = 4

	// Dot11FCSSize is the size of the trailing frame check sequence.
	Dot11FCSSize = 4

	// Dot11MaxFragmentNumber is the largest fragment number the sequence
	// control field can carry.
	Dot11MaxFragmentNumber = 15
)

// Dot11FrameType is the two bit frame type field of the frame control field.
type Dot11FrameType uint8

// Frame types.
const (
	Dot11TypeManagement Dot11FrameType = 0
	Dot11TypeControl    Dot11FrameType = 1
	Dot11TypeData       Dot11FrameType = 2
	Dot11TypeExtension  Dot11FrameType = 3
)

func (t Dot11FrameType) String() string {
	switch t {
	case Dot11TypeManagement:
		return "management"
	case Dot11TypeControl:
		return "control"
	case Dot11TypeData:
		return "data"
	default:
		return "extension"
	}
}

// Data frame subtype bits.
const (
	// Dot11SubtypeQoS is set on QoS data subtypes.
	Dot11SubtypeQoS = 0x8

	// Dot11SubtypeNoData is set on subtypes that carry no frame body (null
	// function and CF-Poll/Ack without data).
	Dot11SubtypeNoData = 0x4
)

// Control frame subtypes with a header shorter than Dot11ControlSize.
const (
	Dot11SubtypeCTS = 0xc
	Dot11SubtypeACK = 0xd
)

// Dot11Flags is the second byte of the frame control field.
type Dot11Flags uint8

// Frame control flags.
const (
	Dot11FlagToDS Dot11Flags = 1 << iota
	Dot11FlagFromDS
	Dot11FlagMoreFragments
	Dot11FlagRetry
	Dot11FlagPowerManagement
	Dot11FlagMoreData
	Dot11FlagProtected
	Dot11FlagOrder
)

// ToDS returns true if the frame is sent to the distribution system.
func (f Dot11Flags) ToDS() bool { return f&Dot11FlagToDS != 0 }

// FromDS returns true if the frame comes from the distribution system.
func (f Dot11Flags) FromDS() bool { return f&Dot11FlagFromDS != 0 }

// MoreFragments returns true if further fragments of this MSDU follow.
func (f Dot11Flags) MoreFragments() bool { return f&Dot11FlagMoreFragments != 0 }

// Retry returns true if the frame is a retransmission.
func (f Dot11Flags) Retry() bool { return f&Dot11FlagRetry != 0 }

// Protected returns true if the frame body is encrypted.
func (f Dot11Flags) Protected() bool { return f&Dot11FlagProtected != 0 }

// Order returns true if the Order (+HTC) bit is set.
func (f Dot11Flags) Order() bool { return f&Dot11FlagOrder != 0 }

// QoS control field bits.
const (
	qosTIDMask      = 0x000f
	qosAMSDUPresent = 0x0080
)

// Dot11Fields contains the fields of an 802.11 MAC header. It is used to
// describe the fields of a frame that needs to be encoded.
type Dot11Fields struct {
	// Type is the frame type.
	Type Dot11FrameType

	// Subtype is the four bit frame subtype.
	Subtype uint8

	// Flags is the second byte of the frame control field.
	Flags Dot11Flags

	// Duration is the duration/ID field.
	Duration uint16

	// Address1 is the receiver address.
	Address1 wlan.Address

	// Address2 is the transmitter address.
	Address2 wlan.Address

	// Address3 is the third address.
	Address3 wlan.Address

	// Address4 is only encoded on data frames with ToDS and FromDS set.
	Address4 wlan.Address

	// SequenceNumber is the 12 bit sequence number.
	SequenceNumber uint16

	// FragmentNumber is the 4 bit fragment number.
	FragmentNumber uint8

	// QoSControl is only encoded on QoS data frames.
	QoSControl uint16

	// HTControl is only encoded when the Order flag requires it.
	HTControl uint32
}

// HeaderLength returns the size of the header the fields encode to.
func (f *Dot11Fields) HeaderLength() int {
	return dot11HeaderLength(byte(f.Type)<<2|f.Subtype<<4, byte(f.Flags))
}

// Dot11 represents an 802.11 MAC header stored in a byte array. It may be
// followed by the frame body.
type Dot11 []byte

// dot11HeaderLength returns the header length implied by the two frame
// control bytes.
func dot11HeaderLength(fc0, fc1 byte) int {
	typ := Dot11FrameType((fc0 >> 2) & 0x3)
	subtype := fc0 >> 4
	flags := Dot11Flags(fc1)
	switch typ {
	case Dot11TypeControl:
		if subtype == Dot11SubtypeCTS || subtype == Dot11SubtypeACK {
			return Dot11ControlMinimumSize
		}
		return Dot11ControlSize
	case Dot11TypeManagement:
		if flags.Order() {
			return Dot11MinimumSize + Dot11HTControlSize
		}
		return Dot11MinimumSize
	case Dot11TypeData:
		n := Dot11MinimumSize
		if flags.ToDS() && flags.FromDS() {
			n += Dot11Address4Size
		}
		if subtype&Dot11SubtypeQoS != 0 {
			n += Dot11QoSControlSize
			if flags.Order() {
				n += Dot11HTControlSize
			}
		}
		return n
	default:
		return Dot11MinimumSize
	}
}

// HeaderLength returns the length of the header, derived from the frame
// control field. b must hold at least the frame control field.
func (b Dot11) HeaderLength() int {
	return dot11HeaderLength(b[frameControl], b[flagsOffset])
}

// IsValid returns true if b holds at least the frame control field and the
// full header it describes.
func (b Dot11) IsValid() bool {
	return len(b) >= 2 && len(b) >= b.HeaderLength()
}

// Version returns the protocol version.
func (b Dot11) Version() uint8 {
	return b[frameControl] & 0x3
}

// Type returns the frame type.
func (b Dot11) Type() Dot11FrameType {
	return Dot11FrameType((b[frameControl] >> 2) & 0x3)
}

// Subtype returns the frame subtype.
func (b Dot11) Subtype() uint8 {
	return b[frameControl] >> 4
}

// Flags returns the frame control flags.
func (b Dot11) Flags() Dot11Flags {
	return Dot11Flags(b[flagsOffset])
}

// IsData returns true for data frames.
func (b Dot11) IsData() bool {
	return b.Type() == Dot11TypeData
}

// IsQoSData returns true for QoS data frames.
func (b Dot11) IsQoSData() bool {
	return b.IsData() && b.Subtype()&Dot11SubtypeQoS != 0
}

// HasBody returns true for data subtypes that carry a frame body.
func (b Dot11) HasBody() bool {
	return b.IsData() && b.Subtype()&Dot11SubtypeNoData == 0
}

// Duration returns the duration/ID field.
func (b Dot11) Duration() uint16 {
	return binary.LittleEndian.Uint16(b[durationID:])
}

// Address1 returns the receiver address.
func (b Dot11) Address1() wlan.Address {
	return wlan.AddressFrom(b[address1:])
}

// Address2 returns the transmitter address. Not present on CTS and ACK.
func (b Dot11) Address2() wlan.Address {
	return wlan.AddressFrom(b[address2:])
}

// Address3 returns the third address.
func (b Dot11) Address3() wlan.Address {
	return wlan.AddressFrom(b[address3:])
}

// Address4 returns the fourth address. It is only present when
// HasAddress4 returns true.
func (b Dot11) Address4() wlan.Address {
	return wlan.AddressFrom(b[address4:])
}

// HasAddress4 returns true if the frame carries a fourth address.
func (b Dot11) HasAddress4() bool {
	f := b.Flags()
	return b.IsData() && f.ToDS() && f.FromDS()
}

// ReceiverAddress returns the address of the receiving station.
func (b Dot11) ReceiverAddress() wlan.Address {
	return b.Address1()
}

// TransmitterAddress returns the address of the transmitting station.
func (b Dot11) TransmitterAddress() wlan.Address {
	return b.Address2()
}

// DestinationAddress returns the final destination of the MSDU.
func (b Dot11) DestinationAddress() wlan.Address {
	if b.Flags().ToDS() {
		return b.Address3()
	}
	return b.Address1()
}

// SourceAddress returns the original source of the MSDU.
func (b Dot11) SourceAddress() wlan.Address {
	f := b.Flags()
	switch {
	case f.ToDS() && f.FromDS():
		return b.Address4()
	case f.FromDS():
		return b.Address3()
	default:
		return b.Address2()
	}
}

// SequenceControl returns the raw sequence control field.
func (b Dot11) SequenceControl() uint16 {
	return binary.LittleEndian.Uint16(b[seqCtrl:])
}

// SequenceNumber returns the 12 bit sequence number.
func (b Dot11) SequenceNumber() uint16 {
	return b.SequenceControl() >> 4
}

// FragmentNumber returns the 4 bit fragment number.
func (b Dot11) FragmentNumber() uint8 {
	return uint8(b.SequenceControl() & 0xf)
}

// IsFragment returns true if the frame is one fragment of a larger MSDU.
func (b Dot11) IsFragment() bool {
	return b.Flags().MoreFragments() || b.FragmentNumber() != 0
}

func (b Dot11) qosOffset() int {
	if b.HasAddress4() {
		return address4 + Dot11Address4Size
	}
	return address4
}

// QoSControl returns the QoS control field. It must only be called on QoS
// data frames.
func (b Dot11) QoSControl() uint16 {
	return binary.LittleEndian.Uint16(b[b.qosOffset():])
}

// TID returns the traffic identifier of a data frame. Non-QoS frames share
// the NonQoSTID sequence space.
func (b Dot11) TID() wlan.TID {
	if !b.IsQoSData() {
		return wlan.NonQoSTID
	}
	return wlan.TID(b.QoSControl() & qosTIDMask)
}

// AMSDUPresent returns true if the body of a QoS data frame is an A-MSDU.
func (b Dot11) AMSDUPresent() bool {
	return b.IsQoSData() && b.QoSControl()&qosAMSDUPresent != 0
}

// Body returns the frame body following the header.
func (b Dot11) Body() []byte {
	return b[b.HeaderLength():]
}

// Encode encodes all the fields of the header. b must be at least
// f.HeaderLength() bytes long.
func (b Dot11) Encode(f *Dot11Fields) {
	b[frameControl] = byte(f.Type)<<2 | f.Subtype<<4
	b[flagsOffset] = byte(f.Flags)
	hdrLen := b.HeaderLength()
	binary.LittleEndian.PutUint16(b[durationID:], f.Duration)
	copy(b[address1:], f.Address1[:])
	if hdrLen <= Dot11ControlMinimumSize {
		return
	}
	copy(b[address2:], f.Address2[:])
	if f.Type == Dot11TypeControl {
		return
	}
	copy(b[address3:], f.Address3[:])
	binary.LittleEndian.PutUint16(b[seqCtrl:], f.SequenceNumber<<4|uint16(f.FragmentNumber&0xf))
	off := address4
	if b.HasAddress4() {
		copy(b[address4:], f.Address4[:])
		off += Dot11Address4Size
	}
	if b.IsQoSData() {
		binary.LittleEndian.PutUint16(b[off:], f.QoSControl)
		off += Dot11QoSControlSize
	}
	if off+Dot11HTControlSize <= hdrLen {
		binary.LittleEndian.PutUint32(b[off:], f.HTControl)
	}
}

// QoSControlFor returns a QoS control field carrying tid and, when amsdu is
// true, the A-MSDU present bit.
func QoSControlFor(tid wlan.TID, amsdu bool) uint16 {
	v := uint16(tid) & qosTIDMask
	if amsdu {
		v |= qosAMSDUPresent
	}
	return v
}

// FCS computes the frame check sequence of frame, which must not include an
// FCS.
func FCS(frame []byte) uint32 {
	return crc32.ChecksumIEEE(frame)
}

// AppendFCS appends the frame check sequence of frame to it.
func AppendFCS(frame []byte) []byte {
	return binary.LittleEndian.AppendUint32(frame, FCS(frame))
}

// VerifyFCS checks the trailing frame check sequence of frame and returns
// the frame without it.
func VerifyFCS(frame []byte) ([]byte, bool) {
	if len(frame) < Dot11FCSSize {
		return nil, false
	}
	n := len(frame) - Dot11FCSSize
	if binary.LittleEndian.Uint32(frame[n:]) != FCS(frame[:n]) {
		return nil, false
	}
	return frame[:n], true
}
