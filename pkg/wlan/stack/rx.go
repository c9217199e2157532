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
	"errors"
	"time"

	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/crypto"
	"gvisor.dev/wlan/pkg/wlan/fragmentation"
	"gvisor.dev/wlan/pkg/wlan/header"
	"gvisor.dev/wlan/pkg/wlan/station"
)

// ReceiveToSink runs the receive path for one frame, handing completed
// packets to sink in completion order. The caller's reference on f passes to
// the receive path.
//
// Calls for one Hardware must not overlap. The read-side protection window
// is entered and left by the call. A hint belonging to another Hardware is
// ignored.
func (d *Dispatcher) ReceiveToSink(hw *Hardware, hint *station.Station, f *Frame, sink DeliverySink) {
	g := d.stations.ReadLock()
	defer g.Release()
	d.receive(&g, hw, hint, f, sink)
}

// ReceiveToSinkLocked is ReceiveToSink for callers that already hold a read
// guard on the station table. hint, if set, must have been obtained through
// g.
func (d *Dispatcher) ReceiveToSinkLocked(g *station.ReadGuard, hw *Hardware, hint *station.Station, f *Frame, sink DeliverySink) {
	if !g.Held() {
		panic("receive with a released station guard")
	}
	d.receive(g, hw, hint, f, sink)
}

// ReceiveToBatch runs the receive path for one frame, appending completed
// packets to batch. Entries already in batch are left untouched.
func (d *Dispatcher) ReceiveToBatch(hw *Hardware, hint *station.Station, f *Frame, batch *PacketBufferList) {
	d.ReceiveToSink(hw, hint, f, BatchSink{List: batch})
}

// ReceiveToBatchLocked is ReceiveToBatch for callers that already hold a
// read guard on the station table.
func (d *Dispatcher) ReceiveToBatchLocked(g *station.ReadGuard, hw *Hardware, hint *station.Station, f *Frame, batch *PacketBufferList) {
	d.ReceiveToSinkLocked(g, hw, hint, f, BatchSink{List: batch})
}

// Receive runs the receive path for one frame and delivers the completed
// packets to the radio's NetworkDispatcher in one call, after the
// protection window is left.
func (d *Dispatcher) Receive(hw *Hardware, hint *station.Station, f *Frame) {
	var batch PacketBufferList
	d.ReceiveToBatch(hw, hint, f, &batch)
	DeliverBatch(hw.opts.NetworkDispatcher, &batch)
}

// ReceivePolling runs the receive path for one frame and hands each
// completed packet to poll, after the protection window is left.
func (d *Dispatcher) ReceivePolling(hw *Hardware, hint *station.Station, f *Frame, poll func(*PacketBuffer)) {
	var batch PacketBufferList
	d.ReceiveToBatch(hw, hint, f, &batch)
	DrainBatch(&batch, poll)
}

// ExpireFragments discards the pending reassemblies of hw that started
// before now minus the fragment timeout, and returns how many were
// discarded. It must be serialized with the receive calls of hw.
func (d *Dispatcher) ExpireFragments(hw *Hardware, now time.Time) int {
	hw.sentinel.enter(hw.id)
	defer hw.sentinel.exit()

	g := d.stations.ReadLock()
	defer g.Release()
	n := hw.fragCache.Expire(&hw.fragParams, now)
	g.Ascend(hw.id, func(s *station.Station) bool {
		n += s.Fragments.Expire(&hw.fragParams, now)
		return true
	})
	return n
}

// maxInlineTargets is the number of delivery interfaces held without
// allocating.
const maxInlineTargets = 4

// rxContext is the state of one receive call. It never outlives the call.
type rxContext struct {
	d     *Dispatcher
	hw    *Hardware
	guard *station.ReadGuard
	sink  DeliverySink
	frame *Frame

	info RxInfo
	hdr  header.Dot11
	sta  *station.Station

	// protected is set when the frame was decrypted, by us or the hardware.
	protected bool

	// keyed is set when the transmitter has a key installed.
	keyed bool

	// pn is the packet number of a frame we decrypted, if hasPN.
	pn    uint64
	hasPN bool

	targets   []*Interface
	targetBuf [maxInlineTargets]*Interface
	frames    [1]*Frame
}

func (d *Dispatcher) receive(g *station.ReadGuard, hw *Hardware, hint *station.Station, f *Frame, sink DeliverySink) {
	hw.sentinel.enter(hw.id)
	defer hw.sentinel.exit()
	defer f.DecRef()

	stats := &hw.stats.Rx
	stats.Frames.Increment()
	stats.Bytes.IncrementBy(uint64(f.Size()))
	if hw.opts.Monitor != nil {
		hw.opts.Monitor.TapFrame(hw.id, f)
		stats.Monitored.Increment()
	}

	c := rxContext{
		d:     d,
		hw:    hw,
		guard: g,
		sink:  sink,
		frame: f,
	}
	if reason := c.run(hint); reason != dropNone {
		d.drop(hw, f, reason)
	}
}

func (c *rxContext) run(hint *station.Station) dropReason {
	hdr, info, reason := validateFrame(c.frame)
	if reason != dropNone {
		return reason
	}
	c.hdr = hdr
	c.info = info

	switch hdr.Type() {
	case header.Dot11TypeControl:
		c.hw.stats.Rx.Control.Increment()
		return dropNone
	case header.Dot11TypeExtension:
		return dropMalformed
	}

	if !c.route() {
		return dropNotForUs
	}
	c.sta = c.resolve(hint)

	if hdr.Type() == header.Dot11TypeManagement {
		c.hw.stats.Rx.Management.Increment()
		if h := c.hw.opts.Management; h != nil {
			h.HandleManagement(c.hw.id, c.sta, hdr, info)
		}
		return dropNone
	}

	if !hdr.HasBody() {
		c.hw.stats.Rx.NoData.Increment()
		return dropNone
	}
	tid := hdr.TID()
	if c.sta != nil && c.sta.IsDuplicate(tid, hdr.SequenceControl(), hdr.Flags().Retry()) {
		return dropDuplicate
	}
	body, reason := c.unprotect()
	if reason != dropNone {
		return reason
	}
	return c.reassemble(tid, body)
}

// route selects the interfaces the frame is delivered to. Group-addressed
// frames go to every interface that is up, except the one that sent them.
func (c *rxContext) route() bool {
	ra := c.hdr.ReceiverAddress()
	group := ra.IsGroup()
	var sa wlan.Address
	if group && c.hdr.IsData() {
		sa = c.hdr.SourceAddress()
	}
	c.targets = c.targetBuf[:0]
	for _, ifc := range c.hw.Interfaces() {
		if !ifc.Up() {
			continue
		}
		switch {
		case !group && ifc.Address == ra:
			c.targets = append(c.targets, ifc)
		case group && ifc.Address != sa:
			c.targets = append(c.targets, ifc)
		}
	}
	return len(c.targets) != 0
}

// resolve returns the transmitting station, preferring the driver's hint.
// Stations of another radio are never used.
func (c *rxContext) resolve(hint *station.Station) *station.Station {
	if hint != nil && hint.Hardware() == c.hw.id {
		return hint
	}
	sta := c.guard.Lookup(c.hdr.TransmitterAddress())
	if sta == nil || sta.Hardware() != c.hw.id {
		return nil
	}
	return sta
}

// unprotect returns the plaintext body of the frame. Protected frames fail
// closed: without a station and key they are dropped.
func (c *rxContext) unprotect() ([]byte, dropReason) {
	body := c.hdr.Body()
	if c.sta != nil {
		c.keyed = c.sta.HasKey()
	}
	if !c.hdr.Flags().Protected() {
		return body, dropNone
	}
	c.protected = true
	if c.info.Flags&FlagDecrypted != 0 {
		return body, dropNone
	}
	if c.sta == nil {
		return nil, dropNoKey
	}
	if len(body) < header.CipherHeaderSize {
		return nil, dropMalformed
	}
	var k *station.Key
	if c.hdr.ReceiverAddress().IsGroup() {
		k = c.sta.GroupKey(header.CipherHeader(body).KeyID())
	} else {
		k = c.sta.PairwiseKey()
	}
	if k == nil {
		return nil, dropNoKey
	}
	pn := header.CipherHeader(body).PacketNumber()
	plaintext, err := c.d.decrypter.Decrypt(k, c.hdr, body)
	if err != nil {
		if errors.Is(err, crypto.ErrReplay) {
			return nil, dropReplayed
		}
		return nil, dropDecryptFailed
	}
	c.pn = pn
	c.hasPN = true
	return plaintext, dropNone
}

// reassemble feeds the body through the reassembler of the transmitter and
// delivers the MSDU it completes, if any.
func (c *rxContext) reassemble(tid wlan.TID, body []byte) dropReason {
	info := fragmentation.FrameInfo{
		Sequence:  c.hdr.SequenceNumber(),
		Fragment:  c.hdr.FragmentNumber(),
		More:      c.hdr.Flags().MoreFragments(),
		Protected: c.protected,
		PN:        c.pn,
		HasPN:     c.hasPN,
	}
	// The EtherType of a fragment is unknown until reassembly completes, so
	// no plaintext fragment from a keyed transmitter is buffered.
	if c.keyed && !c.protected && info.IsFragment() {
		return dropUnprotected
	}
	ta := c.hdr.TransmitterAddress()
	var r *fragmentation.Reassembler
	switch {
	case c.sta != nil:
		r = c.sta.Fragments.Get(tid)
	case info.IsFragment() && info.Fragment == 0:
		r = c.hw.fragCache.Get(&c.hw.fragParams, ta, tid)
	default:
		// Only a first fragment claims a cache entry.
		r = c.hw.fragCache.Lookup(ta, tid)
		if r == nil && info.IsFragment() {
			return dropReassembly
		}
	}

	c.frame.IncRef()
	var res fragmentation.Result
	if r == nil {
		res = fragmentation.Result{Parts: [][]byte{body}, Refs: []fragmentation.Fragment{c.frame}}
	} else {
		var now time.Time
		if info.IsFragment() {
			now = c.d.clock.Now()
		}
		var done bool
		var err error
		res, done, err = r.Process(&c.hw.fragParams, now, info, body, c.frame)
		if err != nil {
			c.frame.DecRef()
			return dropReassembly
		}
		if !done {
			return dropNone
		}
	}
	defer res.Release()
	return c.deliverMSDU(&res)
}

// deliverMSDU delivers the units of a completed MSDU.
func (c *rxContext) deliverMSDU(res *fragmentation.Result) dropReason {
	var payload []byte
	var frames []*Frame
	if len(res.Parts) == 1 {
		// Only an unfragmented frame completes with one part.
		payload = res.Parts[0]
		c.frames[0] = c.frame
		frames = c.frames[:]
	} else {
		payload = make([]byte, 0, res.Size())
		for _, p := range res.Parts {
			payload = append(payload, p...)
		}
	}

	if !c.hdr.AMSDUPresent() {
		c.deliverUnit(c.hdr.DestinationAddress(), c.hdr.SourceAddress(), payload, frames)
		return dropNone
	}

	// An aggregate is delivered whole or not at all.
	var subframes []header.AMSDUSubframe
	it := header.MakeAMSDUIterator(payload)
	for {
		sf, done, err := it.Next()
		if err != nil {
			return dropMalformed
		}
		if done {
			break
		}
		subframes = append(subframes, sf)
	}
	c.hw.stats.Rx.Reassembly.Aggregates.Increment()
	c.hw.stats.Rx.Reassembly.Subframes.IncrementBy(uint64(len(subframes)))
	for _, sf := range subframes {
		c.deliverUnit(sf.Destination, sf.Source, sf.MSDU, frames)
	}
	return dropNone
}

// deliverUnit converts one MSDU to a packet and hands it to the sink, once
// per target interface.
func (c *rxContext) deliverUnit(da, sa wlan.Address, msdu []byte, frames []*Frame) {
	snap := header.LLCSNAP(msdu)
	if !snap.IsValid() {
		c.d.drop(c.hw, c.frame, dropMalformed)
		return
	}
	etherType := snap.EtherType()
	if c.keyed && !c.protected && etherType != header.EtherTypeEAPOL {
		c.d.drop(c.hw, c.frame, dropUnprotected)
		return
	}

	pkt := newPacketBuffer(snap.Payload(), frames)
	pkt.EtherType = etherType
	pkt.Source = sa
	pkt.Destination = da
	pkt.Hardware = c.hw.id
	pkt.Transmitter = c.hdr.TransmitterAddress()
	pkt.KnownStation = c.sta != nil
	pkt.RxInfo = c.info

	// Clones are made before the original is handed off, since the sink
	// may release it.
	last := len(c.targets) - 1
	for i, ifc := range c.targets {
		p := pkt
		if i != last {
			p = pkt.Clone()
		}
		p.Interface = ifc.ID
		c.hw.stats.Rx.Packets.Increment()
		c.hw.stats.Rx.PacketBytes.IncrementBy(uint64(p.Size()))
		c.sink.DeliverPacket(p)
	}
}
