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

// Package sniffer provides monitor taps and network dispatchers that log the
// frames and packets they see.
//
// A Tap is installed as the monitor of a radio and sees every frame before
// validation. A Dispatcher wraps the NetworkDispatcher of a radio and sees
// every packet the receive path delivers. Both log through the log package,
// or write a pcap stream when created with a writer.
package sniffer

import (
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"gvisor.dev/wlan/pkg/log"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/header"
	"gvisor.dev/wlan/pkg/wlan/stack"
)

// LogPackets is a flag used to enable or disable packet logging via the log
// package. Valid values are 0 or 1.
//
// LogPackets must be accessed atomically.
var LogPackets uint32 = 1

// LogPacketsToPCAP is a flag used to enable or disable logging packets to a
// pcap writer. Valid values are 0 or 1. A writer must have been specified when
// the sniffer was created for this flag to have effect.
//
// LogPacketsToPCAP must be accessed atomically.
var LogPacketsToPCAP uint32 = 1

// Tap is a stack.MonitorTap.
type Tap struct {
	pcap *pcapFile
}

var _ stack.MonitorTap = (*Tap)(nil)

// NewTap returns a tap that logs frames.
func NewTap() *Tap {
	return &Tap{}
}

// NewTapWithWriter returns a tap that writes frames to w as a radiotap pcap
// stream. Frames captured without a radiotap header get a minimal one.
//
// snapLen is the maximum amount of a frame to be saved. Longer frames are
// truncated to snapLen. clock timestamps the records and defaults to the
// system clock.
func NewTapWithWriter(w io.Writer, snapLen uint32, clock wlan.Clock) (*Tap, error) {
	p, err := newPCAPFile(w, snapLen, layers.LinkTypeIEEE80211Radio, clock)
	if err != nil {
		return nil, err
	}
	return &Tap{pcap: p}, nil
}

// TapFrame implements stack.MonitorTap.TapFrame.
func (t *Tap) TapFrame(hw wlan.HardwareID, f *stack.Frame) {
	if t.pcap == nil {
		if atomic.LoadUint32(&LogPackets) == 1 {
			logFrame(hw, f)
		}
		return
	}
	if atomic.LoadUint32(&LogPacketsToPCAP) == 1 {
		t.pcap.write(frameRecord(f)...)
	}
}

// Written returns the number of frames written to the pcap stream.
func (t *Tap) Written() uint64 {
	if t.pcap == nil {
		return 0
	}
	return t.pcap.Written.Value()
}

// Err returns the first error writing the pcap stream.
func (t *Tap) Err() error {
	if t.pcap == nil {
		return nil
	}
	return t.pcap.Err()
}

// Dispatcher is a stack.NetworkDispatcher that records packets before
// forwarding them to the dispatcher it wraps.
type Dispatcher struct {
	lower stack.NetworkDispatcher
	pcap  *pcapFile
}

var _ stack.NetworkDispatcher = (*Dispatcher)(nil)

// NewDispatcher returns a dispatcher that logs packets and forwards them to
// lower, which may be nil.
func NewDispatcher(lower stack.NetworkDispatcher) *Dispatcher {
	return &Dispatcher{lower: lower}
}

// NewDispatcherWithWriter returns a dispatcher that writes packets to w as an
// Ethernet pcap stream and forwards them to lower, which may be nil.
func NewDispatcherWithWriter(lower stack.NetworkDispatcher, w io.Writer, snapLen uint32, clock wlan.Clock) (*Dispatcher, error) {
	p, err := newPCAPFile(w, snapLen, layers.LinkTypeEthernet, clock)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{lower: lower, pcap: p}, nil
}

// DeliverNetworkPacket implements stack.NetworkDispatcher.DeliverNetworkPacket.
func (d *Dispatcher) DeliverNetworkPacket(pkt *stack.PacketBuffer) {
	d.dumpPacket("recv", pkt)
	if d.lower != nil {
		d.lower.DeliverNetworkPacket(pkt)
	}
}

// DeliverNetworkPackets implements stack.NetworkDispatcher.DeliverNetworkPackets.
func (d *Dispatcher) DeliverNetworkPackets(pkts stack.PacketBufferList) {
	for _, pkt := range pkts.AsSlice() {
		d.dumpPacket("recv", pkt)
	}
	if d.lower != nil {
		d.lower.DeliverNetworkPackets(pkts)
	}
}

// Written returns the number of packets written to the pcap stream.
func (d *Dispatcher) Written() uint64 {
	if d.pcap == nil {
		return 0
	}
	return d.pcap.Written.Value()
}

// Err returns the first error writing the pcap stream.
func (d *Dispatcher) Err() error {
	if d.pcap == nil {
		return nil
	}
	return d.pcap.Err()
}

func (d *Dispatcher) dumpPacket(prefix string, pkt *stack.PacketBuffer) {
	if d.pcap == nil {
		if atomic.LoadUint32(&LogPackets) == 1 {
			logPacket(prefix, pkt)
		}
		return
	}
	if atomic.LoadUint32(&LogPacketsToPCAP) == 1 {
		d.pcap.write(ethernetHeader(pkt), pkt.Data())
	}
}

// macFrame returns the MAC frame of f, without radiotap header.
func macFrame(f *stack.Frame) (header.Dot11, bool) {
	data := f.Data()
	if f.Info.Flags&stack.FlagRadiotap != 0 {
		var rt layers.RadioTap
		if len(data) < 8 {
			return nil, false
		}
		if err := rt.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil || len(rt.Payload) < header.Dot11FCSSize {
			return nil, false
		}
		data = rt.Payload[:len(rt.Payload)-header.Dot11FCSSize]
	} else if f.Info.Flags&stack.FlagFCS != 0 && len(data) >= header.Dot11FCSSize {
		data = data[:len(data)-header.Dot11FCSSize]
	}
	hdr := header.Dot11(data)
	if !hdr.IsValid() {
		return nil, false
	}
	return hdr, true
}

func logFrame(hw wlan.HardwareID, f *stack.Frame) {
	// The radiotap decoder trusts the lengths it reads.
	defer func() {
		if recover() != nil {
			log.Infof("hw %d: tap undecodable frame len:%d", hw, f.Size())
		}
	}()
	hdr, ok := macFrame(f)
	if !ok {
		log.Infof("hw %d: tap malformed frame len:%d", hw, f.Size())
		return
	}
	if hdr.Type() == header.Dot11TypeControl {
		log.Infof("hw %d: tap %s subtype:%d ra:%s len:%d", hw, hdr.Type(), hdr.Subtype(), hdr.ReceiverAddress(), f.Size())
		return
	}
	log.Infof("hw %d: tap %s subtype:%d %s -> %s seq:%d frag:%d flags:%#02x len:%d",
		hw, hdr.Type(), hdr.Subtype(), hdr.TransmitterAddress(), hdr.ReceiverAddress(),
		hdr.SequenceNumber(), hdr.FragmentNumber(), uint8(hdr.Flags()), f.Size())
}

func logPacket(prefix string, pkt *stack.PacketBuffer) {
	// Figure out the network layer info.
	var (
		src, dst net.IP
		size     int
	)
	p := gopacket.NewPacket(pkt.EthernetFrame(), layers.LayerTypeEthernet, gopacket.NoCopy)
	switch l := p.NetworkLayer().(type) {
	case *layers.IPv4:
		src, dst = l.SrcIP, l.DstIP
		size = int(l.Length) - int(l.IHL)*4
	case *layers.IPv6:
		src, dst = l.SrcIP, l.DstIP
		size = int(l.Length)
	default:
		if arp, ok := p.Layer(layers.LayerTypeARP).(*layers.ARP); ok {
			log.Infof("%s arp %s (%s) -> %s (%s) op:%d",
				prefix,
				net.IP(arp.SourceProtAddress), net.HardwareAddr(arp.SourceHwAddress),
				net.IP(arp.DstProtAddress), net.HardwareAddr(arp.DstHwAddress),
				arp.Operation)
			return
		}
		if eapol, ok := p.Layer(layers.LayerTypeEAPOL).(*layers.EAPOL); ok {
			log.Infof("%s eapol %s -> %s version:%d type:%d len:%d", prefix, pkt.Source, pkt.Destination, eapol.Version, eapol.Type, eapol.Length)
			return
		}
		log.Infof("%s %s -> %s unknown network protocol: %#04x", prefix, pkt.Source, pkt.Destination, pkt.EtherType)
		return
	}
	// Figure out the transport layer info.
	switch l := p.TransportLayer().(type) {
	case *layers.UDP:
		log.Infof("%s udp %s:%d -> %s:%d len:%d xsum:0x%x", prefix, src, l.SrcPort, dst, l.DstPort, size, l.Checksum)
		return
	case *layers.TCP:
		flagsStr := []byte("FSRPAU")
		for i, set := range []bool{l.FIN, l.SYN, l.RST, l.PSH, l.ACK, l.URG} {
			if !set {
				flagsStr[i] = ' '
			}
		}
		details := fmt.Sprintf("flags:(%s) seqnum: %d ack: %d win: %d xsum:0x%x", string(flagsStr), l.Seq, l.Ack, l.Window, l.Checksum)
		log.Infof("%s tcp %s:%d -> %s:%d len:%d %s", prefix, src, l.SrcPort, dst, l.DstPort, size, details)
		return
	}
	if icmp, ok := p.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
		log.Infof("%s icmp %s -> %s %s len:%d id:%04x", prefix, src, dst, icmp.TypeCode, size, icmp.Id)
		return
	}
	if icmp, ok := p.Layer(layers.LayerTypeICMPv6).(*layers.ICMPv6); ok {
		log.Infof("%s icmp %s -> %s %s len:%d", prefix, src, dst, icmp.TypeCode, size)
		return
	}
	log.Infof("%s %s -> %s unknown transport protocol len:%d", prefix, src, dst, size)
}
