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

// Package crypto implements the GCMP data confidentiality protocol of
// 802.11 on top of crypto/aes and crypto/cipher.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/header"
	"gvisor.dev/wlan/pkg/wlan/station"
)

var (
	// ErrTruncated indicates a protected body too short for the cipher
	// header and MIC.
	ErrTruncated = errors.New("protected frame truncated")

	// ErrBadHeader indicates a cipher header without the extended IV bit.
	ErrBadHeader = errors.New("invalid cipher header")

	// ErrKeyMismatch indicates a key index or cipher that does not match the
	// selected key.
	ErrKeyMismatch = errors.New("key mismatch")

	// ErrReplay indicates a packet number that did not advance.
	ErrReplay = errors.New("replayed packet number")

	// ErrAuth indicates a failed integrity check.
	ErrAuth = errors.New("message authentication failed")
)

const (
	nonceSize = 12

	// Frame control bits cleared in the AAD.
	fcSubtypeMask = 0x70
	fcFlagsMask   = header.Dot11FlagRetry | header.Dot11FlagPowerManagement | header.Dot11FlagMoreData

	// aadMaxSize covers a four address QoS header.
	aadMaxSize = 2 + 3*wlan.AddressSize + 2 + wlan.AddressSize + 2
)

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GCMP decrypts and encrypts GCMP-128 and GCMP-256 protected frames. The
// zero value is ready for use.
type GCMP struct{}

// nonce builds A2 || PN5..PN0.
func nonce(hdr header.Dot11, pn uint64) [nonceSize]byte {
	var n [nonceSize]byte
	a2 := hdr.Address2()
	copy(n[:], a2[:])
	for i := 0; i < 6; i++ {
		n[6+i] = byte(pn >> (8 * (5 - i)))
	}
	return n
}

// aad builds the additional authentication data of hdr.
func aad(buf *[aadMaxSize]byte, hdr header.Dot11) []byte {
	b := buf[:0]
	fc0 := hdr[0]
	flags := hdr.Flags()
	if hdr.IsData() {
		fc0 &^= fcSubtypeMask
	}
	flags &^= fcFlagsMask
	flags |= header.Dot11FlagProtected
	if hdr.IsQoSData() {
		flags &^= header.Dot11FlagOrder
	}
	b = append(b, fc0, byte(flags))
	a1, a2, a3 := hdr.Address1(), hdr.Address2(), hdr.Address3()
	b = append(b, a1[:]...)
	b = append(b, a2[:]...)
	b = append(b, a3[:]...)
	b = binary.LittleEndian.AppendUint16(b, hdr.SequenceControl()&0xf)
	if hdr.HasAddress4() {
		a4 := hdr.Address4()
		b = append(b, a4[:]...)
	}
	if hdr.IsQoSData() {
		b = append(b, byte(hdr.TID()), 0)
	}
	return b
}

func checkKey(k *station.Key) error {
	if k.Cipher != station.CipherGCMP128 && k.Cipher != station.CipherGCMP256 {
		return fmt.Errorf("%w: %s key used for GCMP", ErrKeyMismatch, k.Cipher)
	}
	return nil
}

// Decrypt authenticates and decrypts body, which holds the cipher header,
// the ciphertext and the MIC of a frame with MAC header hdr. The plaintext
// is written over the ciphertext and returned. The replay counter of k is
// advanced only when the frame authenticates.
func (GCMP) Decrypt(k *station.Key, hdr header.Dot11, body []byte) ([]byte, error) {
	if err := checkKey(k); err != nil {
		return nil, err
	}
	if len(body) < header.CipherHeaderSize+header.CipherMICSize {
		return nil, ErrTruncated
	}
	ch := header.CipherHeader(body)
	if !ch.IsValid() {
		return nil, ErrBadHeader
	}
	if ch.KeyID() != k.ID {
		return nil, fmt.Errorf("%w: frame key index %d, key index %d", ErrKeyMismatch, ch.KeyID(), k.ID)
	}
	tid := hdr.TID()
	pn := ch.PacketNumber()
	if !k.Replay.Check(tid, pn) {
		return nil, fmt.Errorf("%w: %d after %d", ErrReplay, pn, k.Replay.Last(tid))
	}
	gcm, err := k.AEAD(newGCM)
	if err != nil {
		return nil, err
	}
	n := nonce(hdr, pn)
	var buf [aadMaxSize]byte
	ct := body[header.CipherHeaderSize:]
	pt, err := gcm.Open(ct[:0], n[:], ct, aad(&buf, hdr))
	if err != nil {
		return nil, ErrAuth
	}
	k.Replay.Update(tid, pn)
	return pt, nil
}

// Encrypt returns the protected body of a frame with MAC header hdr: the
// cipher header for pn, the ciphertext of plaintext and the MIC. hdr must
// have the Protected flag set.
func (GCMP) Encrypt(k *station.Key, hdr header.Dot11, pn uint64, plaintext []byte) ([]byte, error) {
	if err := checkKey(k); err != nil {
		return nil, err
	}
	if pn > header.MaxPacketNumber {
		return nil, fmt.Errorf("packet number %#x out of range", pn)
	}
	gcm, err := k.AEAD(newGCM)
	if err != nil {
		return nil, err
	}
	out := make([]byte, header.CipherHeaderSize, header.CipherHeaderSize+len(plaintext)+header.CipherMICSize)
	header.CipherHeader(out).Encode(k.ID, pn)
	n := nonce(hdr, pn)
	var buf [aadMaxSize]byte
	return gcm.Seal(out, n[:], plaintext, aad(&buf, hdr)), nil
}
