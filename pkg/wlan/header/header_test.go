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
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/wlan/pkg/wlan"
)

var (
	staAddr = wlan.Address{0x02, 0, 0, 0, 0, 0x01}
	apAddr  = wlan.Address{0x02, 0, 0, 0, 0, 0xa0}
	dstAddr = wlan.Address{0x02, 0, 0, 0, 0, 0xd0}
	srcAddr = wlan.Address{0x02, 0, 0, 0, 0, 0x50}
)

func encode(f Dot11Fields) Dot11 {
	b := make(Dot11, f.HeaderLength())
	b.Encode(&f)
	return b
}

func TestHeaderLength(t *testing.T) {
	for _, tc := range []struct {
		name   string
		fields Dot11Fields
		want   int
	}{
		{
			name:   "data",
			fields: Dot11Fields{Type: Dot11TypeData},
			want:   24,
		},
		{
			name:   "four address data",
			fields: Dot11Fields{Type: Dot11TypeData, Flags: Dot11FlagToDS | Dot11FlagFromDS},
			want:   30,
		},
		{
			name:   "QoS data",
			fields: Dot11Fields{Type: Dot11TypeData, Subtype: Dot11SubtypeQoS},
			want:   26,
		},
		{
			name:   "four address QoS data with HT control",
			fields: Dot11Fields{Type: Dot11TypeData, Subtype: Dot11SubtypeQoS, Flags: Dot11FlagToDS | Dot11FlagFromDS | Dot11FlagOrder},
			want:   36,
		},
		{
			name:   "non-QoS data ignores order",
			fields: Dot11Fields{Type: Dot11TypeData, Flags: Dot11FlagOrder},
			want:   24,
		},
		{
			name:   "management",
			fields: Dot11Fields{Type: Dot11TypeManagement, Subtype: 8},
			want:   24,
		},
		{
			name:   "management with HT control",
			fields: Dot11Fields{Type: Dot11TypeManagement, Subtype: 8, Flags: Dot11FlagOrder},
			want:   28,
		},
		{
			name:   "ACK",
			fields: Dot11Fields{Type: Dot11TypeControl, Subtype: Dot11SubtypeACK},
			want:   10,
		},
		{
			name:   "RTS",
			fields: Dot11Fields{Type: Dot11TypeControl, Subtype: 0xb},
			want:   16,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fields.HeaderLength(); got != tc.want {
				t.Errorf("got Dot11Fields.HeaderLength() = %d, want = %d", got, tc.want)
			}
			b := encode(tc.fields)
			if got := b.HeaderLength(); got != tc.want {
				t.Errorf("got Dot11.HeaderLength() = %d, want = %d", got, tc.want)
			}
			if !b.IsValid() {
				t.Errorf("got IsValid() = false for a complete header")
			}
			if Dot11(b[:len(b)-1]).IsValid() {
				t.Errorf("got IsValid() = true for a truncated header")
			}
		})
	}
}

func TestAddresses(t *testing.T) {
	type addrs struct {
		RA, TA, DA, SA wlan.Address
	}
	for _, tc := range []struct {
		name   string
		fields Dot11Fields
		want   addrs
	}{
		{
			name:   "IBSS",
			fields: Dot11Fields{Type: Dot11TypeData, Address1: staAddr, Address2: srcAddr, Address3: apAddr},
			want:   addrs{RA: staAddr, TA: srcAddr, DA: staAddr, SA: srcAddr},
		},
		{
			name:   "from AP",
			fields: Dot11Fields{Type: Dot11TypeData, Flags: Dot11FlagFromDS, Address1: staAddr, Address2: apAddr, Address3: srcAddr},
			want:   addrs{RA: staAddr, TA: apAddr, DA: staAddr, SA: srcAddr},
		},
		{
			name:   "to AP",
			fields: Dot11Fields{Type: Dot11TypeData, Flags: Dot11FlagToDS, Address1: apAddr, Address2: staAddr, Address3: dstAddr},
			want:   addrs{RA: apAddr, TA: staAddr, DA: dstAddr, SA: staAddr},
		},
		{
			name:   "WDS",
			fields: Dot11Fields{Type: Dot11TypeData, Flags: Dot11FlagToDS | Dot11FlagFromDS, Address1: apAddr, Address2: staAddr, Address3: dstAddr, Address4: srcAddr},
			want:   addrs{RA: apAddr, TA: staAddr, DA: dstAddr, SA: srcAddr},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := encode(tc.fields)
			got := addrs{
				RA: b.ReceiverAddress(),
				TA: b.TransmitterAddress(),
				DA: b.DestinationAddress(),
				SA: b.SourceAddress(),
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("addresses mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSequenceAndQoS(t *testing.T) {
	b := encode(Dot11Fields{
		Type:           Dot11TypeData,
		Subtype:        Dot11SubtypeQoS,
		Flags:          Dot11FlagMoreFragments | Dot11FlagRetry | Dot11FlagToDS | Dot11FlagFromDS,
		SequenceNumber: 0xabc,
		FragmentNumber: 3,
		QoSControl:     QoSControlFor(5, true),
	})
	if got, want := b.SequenceNumber(), uint16(0xabc); got != want {
		t.Errorf("got SequenceNumber() = %#x, want = %#x", got, want)
	}
	if got, want := b.FragmentNumber(), uint8(3); got != want {
		t.Errorf("got FragmentNumber() = %d, want = %d", got, want)
	}
	if got, want := b.SequenceControl(), uint16(0xabc3); got != want {
		t.Errorf("got SequenceControl() = %#x, want = %#x", got, want)
	}
	if !b.IsFragment() || !b.Flags().MoreFragments() || !b.Flags().Retry() {
		t.Errorf("fragment flags not decoded: %#x", b.Flags())
	}
	if got, want := b.TID(), wlan.TID(5); got != want {
		t.Errorf("got TID() = %d, want = %d", got, want)
	}
	if !b.AMSDUPresent() {
		t.Errorf("got AMSDUPresent() = false, want = true")
	}

	plain := encode(Dot11Fields{Type: Dot11TypeData, SequenceNumber: 7})
	if got := plain.TID(); got != wlan.NonQoSTID {
		t.Errorf("got TID() = %d for non-QoS data, want = %d", got, wlan.NonQoSTID)
	}
	if plain.AMSDUPresent() || plain.IsFragment() {
		t.Errorf("non-QoS unfragmented frame reported as aggregate or fragment")
	}

	null := encode(Dot11Fields{Type: Dot11TypeData, Subtype: Dot11SubtypeQoS | Dot11SubtypeNoData})
	if null.HasBody() {
		t.Errorf("got HasBody() = true for QoS null")
	}
}

func TestFCS(t *testing.T) {
	frame := append([]byte(encode(Dot11Fields{Type: Dot11TypeData, Address1: staAddr})), "payload"...)
	withFCS := AppendFCS(append([]byte(nil), frame...))
	got, ok := VerifyFCS(withFCS)
	if !ok {
		t.Fatalf("VerifyFCS rejected a valid frame")
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("got VerifyFCS() = %x, want = %x", got, frame)
	}
	withFCS[len(withFCS)-1] ^= 1
	if _, ok := VerifyFCS(withFCS); ok {
		t.Errorf("VerifyFCS accepted a corrupted checksum")
	}
	if _, ok := VerifyFCS([]byte{1, 2}); ok {
		t.Errorf("VerifyFCS accepted a frame shorter than the checksum")
	}
}

func TestLLCSNAP(t *testing.T) {
	b := LLCSNAP(EncapsulateLLCSNAP(EtherTypeIPv4, []byte{1, 2, 3}))
	if !b.IsValid() {
		t.Fatalf("got IsValid() = false for RFC 1042 header %x", []byte(b))
	}
	if got := b.EtherType(); got != EtherTypeIPv4 {
		t.Errorf("got EtherType() = %#x, want = %#x", got, EtherTypeIPv4)
	}
	if diff := cmp.Diff([]byte{1, 2, 3}, b.Payload()); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	ipx := LLCSNAP(EncapsulateLLCSNAP(EtherTypeIPX, nil))
	if !ipx.IsValid() || ipx[5] != 0xf8 {
		t.Errorf("IPX not bridge-tunnel encapsulated: %x", []byte(ipx))
	}

	if LLCSNAP([]byte{0xaa, 0xaa, 0x03, 0x00, 0x00, 0x01, 0x08, 0x00}).IsValid() {
		t.Errorf("got IsValid() = true for an unknown OUI")
	}
	if LLCSNAP([]byte{0xaa, 0xaa, 0x03}).IsValid() {
		t.Errorf("got IsValid() = true for a truncated header")
	}
}

func TestAMSDUIterator(t *testing.T) {
	subframes := []AMSDUSubframe{
		{Destination: dstAddr, Source: srcAddr, MSDU: []byte{1}},
		{Destination: staAddr, Source: srcAddr, MSDU: []byte{2, 2, 2, 2, 2, 2}},
		{Destination: dstAddr, Source: apAddr, MSDU: []byte{3, 3, 3}},
	}
	body := EncodeAMSDU(subframes)
	if got, want := len(body), 16+20+17; got != want {
		t.Fatalf("got len(EncodeAMSDU()) = %d, want = %d", got, want)
	}

	it := MakeAMSDUIterator(body)
	var got []AMSDUSubframe
	for {
		sf, done, err := it.Next()
		if err != nil {
			t.Fatalf("Next(): %v", err)
		}
		if done {
			break
		}
		got = append(got, sf)
	}
	if diff := cmp.Diff(subframes, got); diff != "" {
		t.Errorf("subframes mismatch (-want +got):\n%s", diff)
	}
}

func TestAMSDUIteratorMalformed(t *testing.T) {
	valid := EncodeAMSDU([]AMSDUSubframe{
		{Destination: dstAddr, Source: srcAddr, MSDU: []byte{1, 2, 3}},
		{Destination: dstAddr, Source: srcAddr, MSDU: []byte{4}},
	})
	for _, tc := range []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"truncated header", valid[:10]},
		{"length past end", valid[:len(valid)-1]},
		{"trailing padding only", valid[:20]},
		{"trailing garbage", append(append([]byte(nil), valid...), 0, 0, 0, 0)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			it := MakeAMSDUIterator(tc.body)
			for {
				_, done, err := it.Next()
				if err != nil {
					if !errors.Is(err, ErrMalformedAMSDU) {
						t.Errorf("got error %v, want ErrMalformedAMSDU", err)
					}
					return
				}
				if done {
					t.Fatalf("iteration completed without error")
				}
			}
		})
	}
}

func TestCipherHeader(t *testing.T) {
	b := make(CipherHeader, CipherHeaderSize)
	const pn = 0x0102_0304_0506
	b.Encode(2, pn)
	if !b.IsValid() {
		t.Fatalf("got IsValid() = false for %x", []byte(b))
	}
	if got := b.KeyID(); got != 2 {
		t.Errorf("got KeyID() = %d, want = 2", got)
	}
	if got := b.PacketNumber(); got != pn {
		t.Errorf("got PacketNumber() = %#x, want = %#x", got, uint64(pn))
	}
	if diff := cmp.Diff([]byte{0x06, 0x05, 0x00, 0xa0, 0x04, 0x03, 0x02, 0x01}, []byte(b)); diff != "" {
		t.Errorf("encoding mismatch (-want +got):\n%s", diff)
	}
	b[cipherKeyID] &^= extIV
	if b.IsValid() {
		t.Errorf("got IsValid() = true without the extended IV bit")
	}
}
