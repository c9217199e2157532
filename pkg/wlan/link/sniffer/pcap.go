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

package sniffer

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"gvisor.dev/wlan/pkg/sync"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/stack"
)

const (
	// radiotapFlagsPresent is the present bit of the radiotap flags field.
	radiotapFlagsPresent = 1 << 1

	// radiotapFlagFCS marks a frame that ends with its FCS.
	radiotapFlagFCS = 0x10
)

// synthesizeRadiotap returns the radiotap header written in front of frames
// captured without one. It only records whether an FCS follows.
func synthesizeRadiotap(flags stack.RxFlags) []byte {
	if flags&stack.FlagFCS == 0 {
		return []byte{0, 0, 8, 0, 0, 0, 0, 0}
	}
	return []byte{0, 0, 9, 0, radiotapFlagsPresent, 0, 0, 0, radiotapFlagFCS}
}

// pcapFile serializes records to a pcap stream.
type pcapFile struct {
	snapLen uint32
	clock   wlan.Clock

	// Written counts records written.
	Written wlan.StatCounter

	mu sync.Mutex
	// +checklocks:mu
	w *pcapgo.Writer
	// +checklocks:mu
	err error
}

func newPCAPFile(w io.Writer, snapLen uint32, linkType layers.LinkType, clock wlan.Clock) (*pcapFile, error) {
	if clock == nil {
		clock = wlan.StdClock{}
	}
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, linkType); err != nil {
		return nil, fmt.Errorf("writing pcap header: %w", err)
	}
	return &pcapFile{snapLen: snapLen, clock: clock, w: pw}, nil
}

// write writes one record made of the concatenation of parts, truncated to
// the snap length. After the first error nothing more is written.
func (p *pcapFile) write(parts ...[]byte) {
	total := 0
	for _, b := range parts {
		total += len(b)
	}
	length := total
	if max := int(p.snapLen); length > max {
		length = max
	}
	data := make([]byte, 0, length)
	for _, b := range parts {
		if room := length - len(data); len(b) > room {
			b = b[:room]
		}
		data = append(data, b...)
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     p.clock.Now(),
		CaptureLength: len(data),
		Length:        total,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	if err := p.w.WritePacket(ci, data); err != nil {
		p.err = err
		return
	}
	p.Written.Increment()
}

// Err returns the first write error.
func (p *pcapFile) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// frameRecord returns the parts of the pcap record of a frame.
func frameRecord(f *stack.Frame) [][]byte {
	if f.Info.Flags&stack.FlagRadiotap != 0 {
		return [][]byte{f.Data()}
	}
	return [][]byte{synthesizeRadiotap(f.Info.Flags), f.Data()}
}

// ethernetHeader returns the Ethernet II header of pkt.
func ethernetHeader(pkt *stack.PacketBuffer) []byte {
	var b [stack.EthernetHeaderSize]byte
	copy(b[0:], pkt.Destination[:])
	copy(b[wlan.AddressSize:], pkt.Source[:])
	b[12] = byte(pkt.EtherType >> 8)
	b[13] = byte(pkt.EtherType)
	return b[:]
}
