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
	"crypto/cipher"
	"fmt"
	"strings"

	"gvisor.dev/wlan/pkg/wlan"
)

// Cipher is a pairwise or group cipher suite.
type Cipher int

// Supported cipher suites.
const (
	CipherNone Cipher = iota
	CipherGCMP128
	CipherGCMP256
)

func (c Cipher) String() string {
	switch c {
	case CipherNone:
		return "none"
	case CipherGCMP128:
		return "gcmp-128"
	case CipherGCMP256:
		return "gcmp-256"
	default:
		return fmt.Sprintf("Cipher(%d)", int(c))
	}
}

// KeySize returns the size of the key material of c.
func (c Cipher) KeySize() int {
	switch c {
	case CipherGCMP128:
		return 16
	case CipherGCMP256:
		return 32
	default:
		return 0
	}
}

// ParseCipher parses the String form of a cipher suite.
func ParseCipher(s string) (Cipher, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return CipherNone, nil
	case "gcmp-128", "gcmp":
		return CipherGCMP128, nil
	case "gcmp-256":
		return CipherGCMP256, nil
	default:
		return CipherNone, fmt.Errorf("unknown cipher %q", s)
	}
}

// MaxKeyID is the largest key index a cipher header can carry.
const MaxKeyID = 3

// ReplayCounter tracks the highest packet number accepted per TID.
type ReplayCounter struct {
	pn [wlan.NumTIDs]uint64
}

// Check returns true if pn is newer than the last packet number accepted
// for tid.
func (c *ReplayCounter) Check(tid wlan.TID, pn uint64) bool {
	return pn > c.pn[tid]
}

// Update records pn as accepted for tid.
func (c *ReplayCounter) Update(tid wlan.TID, pn uint64) {
	c.pn[tid] = pn
}

// Last returns the last packet number accepted for tid.
func (c *ReplayCounter) Last(tid wlan.TID) uint64 {
	return c.pn[tid]
}

// Key is an installed temporal key.
//
// The key material is immutable once installed. Replay state is updated by
// the receive path of the radio the owning station belongs to.
type Key struct {
	// ID is the key index, 0 to MaxKeyID.
	ID uint8

	// Cipher is the cipher suite.
	Cipher Cipher

	// Material is the temporal key.
	Material []byte

	// Replay holds the receive packet numbers.
	Replay ReplayCounter

	aead cipher.AEAD
}

// NewKey validates and returns a key.
func NewKey(id uint8, c Cipher, material []byte) (*Key, error) {
	if id > MaxKeyID {
		return nil, fmt.Errorf("key index %d out of range", id)
	}
	if c == CipherNone {
		return nil, fmt.Errorf("key %d has no cipher", id)
	}
	if got, want := len(material), c.KeySize(); got != want {
		return nil, fmt.Errorf("%s key %d: got %d bytes of key material, want %d", c, id, got, want)
	}
	return &Key{
		ID:       id,
		Cipher:   c,
		Material: append([]byte(nil), material...),
	}, nil
}

// AEAD returns the cipher instance of k, creating it with newAEAD on first
// use.
func (k *Key) AEAD(newAEAD func(key []byte) (cipher.AEAD, error)) (cipher.AEAD, error) {
	if k.aead != nil {
		return k.aead, nil
	}
	a, err := newAEAD(k.Material)
	if err != nil {
		return nil, err
	}
	k.aead = a
	return a, nil
}
