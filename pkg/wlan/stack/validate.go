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
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"gvisor.dev/wlan/pkg/wlan/header"
)

// radiotapMinimumSize is the size of the fixed radiotap header.
const radiotapMinimumSize = 8

var errRadiotapTruncated = errors.New("radiotap header truncated")

// decodeRadiotap decodes the radiotap header at the start of data. The
// decoder indexes the buffer by the lengths it reads, so corrupt headers are
// rejected up front and any remaining decoder panic is turned into an error.
func decodeRadiotap(rt *layers.RadioTap, data []byte) (err error) {
	if len(data) < radiotapMinimumSize {
		return errRadiotapTruncated
	}
	if l := int(binary.LittleEndian.Uint16(data[2:])); l < radiotapMinimumSize || l >= len(data) {
		return fmt.Errorf("%w: length %d of %d bytes", errRadiotapTruncated, l, len(data))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("radiotap decode: %v", r)
		}
	}()
	return rt.DecodeFromBytes(data, gopacket.NilDecodeFeedback)
}

// fillRxInfo copies the reception fields of rt into info.
func fillRxInfo(info *RxInfo, rt *layers.RadioTap) {
	if rt.Present.TSFT() {
		info.TSFT = rt.TSFT
	}
	if rt.Present.Rate() {
		info.Rate = uint8(rt.Rate)
	}
	if rt.Present.Channel() {
		info.Frequency = uint16(rt.ChannelFrequency)
	}
	if rt.Present.DBMAntennaSignal() {
		info.Signal = rt.DBMAntennaSignal
	}
	if rt.Present.DBMAntennaNoise() {
		info.Noise = rt.DBMAntennaNoise
	}
	if rt.Flags.BadFCS() {
		info.Flags |= FlagBadFCS
	}
	if rt.Present.RxFlags() && rt.RxFlags.BadPlcp() {
		info.Flags |= FlagBadPLCP
	}
}

// validateFrame checks the integrity and minimum size of f and returns its
// MAC frame without radiotap header or FCS, along with the reception
// metadata.
func validateFrame(f *Frame) (header.Dot11, RxInfo, dropReason) {
	data := f.Data()
	info := f.Info
	if info.Flags&FlagBadPLCP != 0 {
		return nil, info, dropBadPLCP
	}
	if info.Flags&FlagBadFCS != 0 {
		return nil, info, dropBadFCS
	}

	fcs := info.Flags&FlagFCS != 0
	if info.Flags&FlagRadiotap != 0 {
		var rt layers.RadioTap
		if err := decodeRadiotap(&rt, data); err != nil {
			return nil, info, dropMalformed
		}
		fillRxInfo(&info, &rt)
		if info.Flags&FlagBadPLCP != 0 {
			return nil, info, dropBadPLCP
		}
		if info.Flags&FlagBadFCS != 0 {
			return nil, info, dropBadFCS
		}
		// The decoder leaves an FCS at the end of the payload, computing
		// one when the radiotap flags say there is none.
		mpdu, ok := header.VerifyFCS(rt.Payload)
		if !ok {
			return nil, info, dropBadFCS
		}
		data = mpdu
		fcs = fcs && !rt.Flags.FCS()
	}
	if fcs {
		mpdu, ok := header.VerifyFCS(data)
		if !ok {
			return nil, info, dropBadFCS
		}
		data = mpdu
	}

	hdr := header.Dot11(data)
	if !hdr.IsValid() || hdr.Version() != 0 {
		return nil, info, dropMalformed
	}
	return hdr, info, dropNone
}
