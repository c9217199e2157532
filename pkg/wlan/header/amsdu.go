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
	"errors"
	"fmt"

	"gvisor.dev/wlan/pkg/wlan"
)

const (
	// AMSDUSubframeHeaderSize is the size of the header preceding each MSDU
	// of an A-MSDU: destination, source and length.
	AMSDUSubframeHeaderSize = 14

	amsduDestination = 0
	amsduSource      = 6
	amsduLength      = 12

	// amsduAlignment is the alignment of every subframe but the last.
	amsduAlignment = 4
)

// ErrMalformedAMSDU is returned by AMSDUIterator.Next when the aggregate is
// truncated or a length field runs past its end.
var ErrMalformedAMSDU = errors.New("malformed A-MSDU")

// AMSDUSubframe is one MSDU of an aggregate. MSDU aliases the aggregate.
type AMSDUSubframe struct {
	Destination wlan.Address
	Source      wlan.Address
	MSDU        []byte
}

// AMSDUIterator iterates over the subframes of an A-MSDU body.
type AMSDUIterator struct {
	body   []byte
	offset int
	count  int
}

// MakeAMSDUIterator returns an iterator over the subframes of body.
func MakeAMSDUIterator(body []byte) AMSDUIterator {
	return AMSDUIterator{body: body}
}

// Next returns the next subframe. done is true once every subframe has been
// returned. Once an error is returned, the iterator must not be used again.
func (i *AMSDUIterator) Next() (AMSDUSubframe, bool, error) {
	if i.offset == len(i.body) {
		if i.count == 0 {
			return AMSDUSubframe{}, true, fmt.Errorf("%w: empty aggregate", ErrMalformedAMSDU)
		}
		return AMSDUSubframe{}, true, nil
	}
	rest := i.body[i.offset:]
	if len(rest) < AMSDUSubframeHeaderSize {
		return AMSDUSubframe{}, true, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrMalformedAMSDU, len(rest), i.offset)
	}
	n := int(binary.BigEndian.Uint16(rest[amsduLength:]))
	end := AMSDUSubframeHeaderSize + n
	if end > len(rest) {
		return AMSDUSubframe{}, true, fmt.Errorf("%w: subframe %d length %d exceeds %d remaining bytes", ErrMalformedAMSDU, i.count, n, len(rest)-AMSDUSubframeHeaderSize)
	}
	sf := AMSDUSubframe{
		Destination: wlan.AddressFrom(rest[amsduDestination:]),
		Source:      wlan.AddressFrom(rest[amsduSource:]),
		MSDU:        rest[AMSDUSubframeHeaderSize:end:end],
	}
	if end < len(rest) {
		// Padding only precedes another subframe.
		padded := (end + amsduAlignment - 1) &^ (amsduAlignment - 1)
		if padded >= len(rest) {
			return AMSDUSubframe{}, true, fmt.Errorf("%w: padding of subframe %d runs past the end", ErrMalformedAMSDU, i.count)
		}
		end = padded
	}
	i.offset += end
	i.count++
	return sf, false, nil
}

// EncodeAMSDU builds an A-MSDU body from subframes.
func EncodeAMSDU(subframes []AMSDUSubframe) []byte {
	var b []byte
	for idx, sf := range subframes {
		b = append(b, sf.Destination[:]...)
		b = append(b, sf.Source[:]...)
		b = binary.BigEndian.AppendUint16(b, uint16(len(sf.MSDU)))
		b = append(b, sf.MSDU...)
		if idx != len(subframes)-1 {
			for len(b)%amsduAlignment != 0 {
				b = append(b, 0)
			}
		}
	}
	return b
}
