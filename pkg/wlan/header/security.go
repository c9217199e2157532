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

const (
	// CipherHeaderSize is the size of the CCMP and GCMP headers that precede
	// the encrypted payload of a protected frame.
	CipherHeaderSize = 8

	// CipherMICSize is the size of the trailing integrity code of CCMP-128
	// and GCMP.
	CipherMICSize = 16

	cipherKeyID = 3
	extIV       = 0x20
)

// MaxPacketNumber is the largest 48 bit packet number.
const MaxPacketNumber = 1<<48 - 1

// CipherHeader represents a CCMP or GCMP header stored in a byte array.
type CipherHeader []byte

// IsValid returns true if b holds a complete header with the extended IV
// bit set.
func (b CipherHeader) IsValid() bool {
	return len(b) >= CipherHeaderSize && b[cipherKeyID]&extIV != 0
}

// KeyID returns the key index.
func (b CipherHeader) KeyID() uint8 {
	return b[cipherKeyID] >> 6
}

// PacketNumber returns the 48 bit packet number.
func (b CipherHeader) PacketNumber() uint64 {
	return uint64(b[0]) |
		uint64(b[1])<<8 |
		uint64(b[4])<<16 |
		uint64(b[5])<<24 |
		uint64(b[6])<<32 |
		uint64(b[7])<<40
}

// Encode encodes the header for keyID and pn.
func (b CipherHeader) Encode(keyID uint8, pn uint64) {
	b[0] = byte(pn)
	b[1] = byte(pn >> 8)
	b[2] = 0
	b[cipherKeyID] = extIV | (keyID&0x3)<<6
	b[4] = byte(pn >> 16)
	b[5] = byte(pn >> 24)
	b[6] = byte(pn >> 32)
	b[7] = byte(pn >> 40)
}
