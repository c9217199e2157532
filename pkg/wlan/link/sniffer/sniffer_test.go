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
	"bytes"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"gvisor.dev/wlan/pkg/log"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/faketime"
	"gvisor.dev/wlan/pkg/wlan/header"
	"gvisor.dev/wlan/pkg/wlan/stack"
)

var (
	epoch  = time.Unix(1700000000, 0)
	staMAC = wlan.Address{0x02, 0, 0, 0, 0, 0x01}
	apMAC  = wlan.Address{0x02, 0, 0, 0, 0, 0xaa}
)

func testFrame() []byte {
	f := header.Dot11Fields{
		Type:           header.Dot11TypeData,
		Flags:          header.Dot11FlagFromDS,
		Address1:       staMAC,
		Address2:       apMAC,
		Address3:       apMAC,
		SequenceNumber: 42,
	}
	b := make([]byte, f.HeaderLength())
	header.Dot11(b).Encode(&f)
	return append(b, header.EncapsulateLLCSNAP(header.EtherTypeIPv4, []byte("payload"))...)
}

func readAll(t *testing.T, r *pcapgo.Reader) ([][]byte, []gopacket.CaptureInfo) {
	t.Helper()
	var records [][]byte
	var infos []gopacket.CaptureInfo
	for {
		data, ci, err := r.ReadPacketData()
		if err != nil {
			return records, infos
		}
		records = append(records, data)
		infos = append(infos, ci)
	}
}

func TestTapWritesRadiotap(t *testing.T) {
	var buf bytes.Buffer
	clock := faketime.NewManualClock(epoch)
	tap, err := NewTapWithWriter(&buf, 1<<16, clock)
	if err != nil {
		t.Fatalf("NewTapWithWriter(_) = %s", err)
	}

	mpdu := testFrame()
	withFCS := header.AppendFCS(append([]byte(nil), mpdu...))
	tap.TapFrame(1, stack.NewFrame(mpdu, stack.RxInfo{}, nil))
	clock.Advance(time.Second)
	tap.TapFrame(1, stack.NewFrame(withFCS, stack.RxInfo{Flags: stack.FlagFCS}, nil))

	if err := tap.Err(); err != nil {
		t.Fatalf("tap.Err() = %s", err)
	}
	if got := tap.Written(); got != 2 {
		t.Errorf("got Written() = %d, want 2", got)
	}
	r, err := pcapgo.NewReader(&buf)
	if err != nil {
		t.Fatalf("pcapgo.NewReader(_) = %s", err)
	}
	if got := r.LinkType(); got != layers.LinkTypeIEEE80211Radio {
		t.Errorf("got link type %s, want %s", got, layers.LinkTypeIEEE80211Radio)
	}
	records, infos := readAll(t, r)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for i, want := range []time.Time{epoch, epoch.Add(time.Second)} {
		if !infos[i].Timestamp.Equal(want) {
			t.Errorf("record %d: got timestamp %s, want %s", i, infos[i].Timestamp, want)
		}
	}

	// Both records decode to the same 802.11 frame.
	for i, rec := range records {
		p := gopacket.NewPacket(rec, layers.LayerTypeRadioTap, gopacket.Default)
		rt, ok := p.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap)
		if !ok {
			t.Fatalf("record %d: no radiotap layer", i)
		}
		if got, want := rt.Flags.FCS(), i == 1; got != want {
			t.Errorf("record %d: got FCS flag %t, want %t", i, got, want)
		}
		mac, ok := header.VerifyFCS(rt.Payload)
		if !ok {
			t.Fatalf("record %d: FCS mismatch", i)
		}
		if diff := cmp.Diff(mpdu, mac); diff != "" {
			t.Errorf("record %d: frame mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestTapSnapLength(t *testing.T) {
	var buf bytes.Buffer
	tap, err := NewTapWithWriter(&buf, 16, faketime.NewManualClock(epoch))
	if err != nil {
		t.Fatalf("NewTapWithWriter(_) = %s", err)
	}
	frame := testFrame()
	tap.TapFrame(1, stack.NewFrame(frame, stack.RxInfo{}, nil))

	r, err := pcapgo.NewReader(&buf)
	if err != nil {
		t.Fatalf("pcapgo.NewReader(_) = %s", err)
	}
	_, infos := readAll(t, r)
	if len(infos) != 1 {
		t.Fatalf("got %d records, want 1", len(infos))
	}
	if got := infos[0].CaptureLength; got != 16 {
		t.Errorf("got capture length %d, want 16", got)
	}
	if got, want := infos[0].Length, 8+len(frame); got != want {
		t.Errorf("got length %d, want %d", got, want)
	}
}

func udpPacket(t *testing.T) *stack.PacketBuffer {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 1),
		DstIP:    net.IPv4(192, 168, 1, 2),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("SetNetworkLayerForChecksum(_) = %s", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload("query")); err != nil {
		t.Fatalf("SerializeLayers(_) = %s", err)
	}
	pkt := stack.NewPacketBuffer(buf.Bytes())
	pkt.EtherType = header.EtherTypeIPv4
	pkt.Source = apMAC
	pkt.Destination = staMAC
	return pkt
}

type countingDispatcher struct {
	single, bulk int
}

func (d *countingDispatcher) DeliverNetworkPacket(*stack.PacketBuffer) {
	d.single++
}

func (d *countingDispatcher) DeliverNetworkPackets(pkts stack.PacketBufferList) {
	d.bulk += pkts.Len()
}

func TestDispatcherWritesEthernet(t *testing.T) {
	var buf bytes.Buffer
	lower := &countingDispatcher{}
	d, err := NewDispatcherWithWriter(lower, &buf, 1<<16, faketime.NewManualClock(epoch))
	if err != nil {
		t.Fatalf("NewDispatcherWithWriter(_) = %s", err)
	}
	pkt := udpPacket(t)
	defer pkt.DecRef()
	d.DeliverNetworkPacket(pkt)
	var batch stack.PacketBufferList
	batch.PushBack(udpPacket(t))
	stack.DeliverBatch(d, &batch)

	if lower.single != 1 || lower.bulk != 1 {
		t.Errorf("got %d single and %d bulk deliveries, want 1 and 1", lower.single, lower.bulk)
	}
	if got := d.Written(); got != 2 {
		t.Errorf("got Written() = %d, want 2", got)
	}
	r, err := pcapgo.NewReader(&buf)
	if err != nil {
		t.Fatalf("pcapgo.NewReader(_) = %s", err)
	}
	if got := r.LinkType(); got != layers.LinkTypeEthernet {
		t.Errorf("got link type %s, want %s", got, layers.LinkTypeEthernet)
	}
	records, _ := readAll(t, r)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for i, rec := range records {
		if diff := cmp.Diff(pkt.EthernetFrame(), rec); diff != "" {
			t.Errorf("record %d mismatch (-want +got):\n%s", i, diff)
		}
		p := gopacket.NewPacket(rec, layers.LayerTypeEthernet, gopacket.Default)
		udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			t.Fatalf("record %d: no UDP layer", i)
		}
		if udp.DstPort != 53 {
			t.Errorf("record %d: got destination port %d, want 53", i, udp.DstPort)
		}
	}
}

func TestLogging(t *testing.T) {
	var out bytes.Buffer
	old := log.Log().Emitter
	log.SetTarget(&log.Writer{Next: &out})
	defer log.SetTarget(old)
	atomic.StoreUint32(&LogPackets, 1)

	NewTap().TapFrame(3, stack.NewFrame(testFrame(), stack.RxInfo{}, nil))
	NewTap().TapFrame(3, stack.NewFrame([]byte{1, 2, 3}, stack.RxInfo{Flags: stack.FlagRadiotap}, nil))
	pkt := udpPacket(t)
	defer pkt.DecRef()
	NewDispatcher(nil).DeliverNetworkPacket(pkt)

	got := out.String()
	for _, want := range []string{
		"hw 3: tap data subtype:0 " + apMAC.String() + " -> " + staMAC.String() + " seq:42",
		"hw 3: tap malformed frame len:3",
		"recv udp 192.168.1.1:5353 -> 192.168.1.2:53 len:13",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("log output %q does not contain %q", got, want)
		}
	}
}
