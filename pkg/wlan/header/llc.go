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

package header

import (
	"encoding/binary"
)

// EtherType values the receive path treats specially.
const (
	EtherTypeIPv4  uint16 = 0x0800
	EtherTypeARP   uint16 = 0x0806
	EtherTypeIPv6  uint16 = 0x86dd
	EtherTypeEAPOL uint16 = 0x888e
	EtherTypeAARP  uint16 = 0x80f3
	EtherTypeIPX   uint16 = 0x8137
)

const (
	// LLCSNAPSize is the size of an LLC header followed by a SNAP header.
	LLCSNAPSize = 8

	snapEtherType = 6
)

var (
	rfc1042Header      = [6]byte{0xaa, 0xaa, 0x03, 0x00, 0x00, 0x00}
	bridgeTunnelHeader = [6]byte{0xaa, 0xaa, 0x03, 0x00, 0x00, 0xf8}
)

// LLCSNAP represents an LLC/SNAP header stored in a byte array, as found at
// the start of every MSDU carrying an EtherType protocol.
type LLCSNAP []byte

// IsValid returns true if b is long enough and starts with an RFC 1042 or
// bridge-tunnel encapsulation header.
func (b LLCSNAP) IsValid() bool {
	if len(b) < LLCSNAPSize {
		return false
	}
	oui := [6]byte(b[:snapEtherType])
	return oui == rfc1042Header || oui == bridgeTunnelHeader
}

// EtherType returns the encapsulated protocol.
func (b LLCSNAP) EtherType() uint16 {
	return binary.BigEndian.Uint16(b[snapEtherType:])
}

// Payload returns the bytes following the header.
func (b LLCSNAP) Payload() []byte {
	return b[LLCSNAPSize:]
}

// Encode encodes an LLC/SNAP header for etherType. AARP and IPX use the
// bridge-tunnel encapsulation; everything else uses RFC 1042.
func (b LLCSNAP) Encode(etherType uint16) {
	if etherType == EtherTypeAARP || etherType == EtherTypeIPX {
		copy(b, bridgeTunnelHeader[:])
	} else {
		copy(b, rfc1042Header[:])
	}
	binary.BigEndian.PutUint16(b[snapEtherType:], etherType)
}

// EncapsulateLLCSNAP returns payload prefixed with an LLC/SNAP header for
// etherType.
func EncapsulateLLCSNAP(etherType uint16, payload []byte) []byte {
	b := make([]byte, LLCSNAPSize+len(payload))
	LLCSNAP(b).Encode(etherType)
	copy(b[LLCSNAPSize:], payload)
	return b
}
