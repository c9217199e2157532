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

// DeliverySink receives the packets completed by one receive call, in
// completion order.
type DeliverySink interface {
	// DeliverPacket takes ownership of the caller's reference on pkt.
	DeliverPacket(pkt *PacketBuffer)
}

// ImmediateSink hands every packet to a NetworkDispatcher as it completes.
type ImmediateSink struct {
	Dispatcher NetworkDispatcher
}

// DeliverPacket implements DeliverySink.DeliverPacket.
func (s ImmediateSink) DeliverPacket(pkt *PacketBuffer) {
	s.Dispatcher.DeliverNetworkPacket(pkt)
	pkt.DecRef()
}

// BatchSink appends every packet to a caller-owned list. Entries already in
// the list are never touched.
type BatchSink struct {
	List *PacketBufferList
}

// DeliverPacket implements DeliverySink.DeliverPacket.
func (s BatchSink) DeliverPacket(pkt *PacketBuffer) {
	s.List.PushBack(pkt)
}

// DeliverBatch hands every packet of batch to d in one call and empties
// batch.
func DeliverBatch(d NetworkDispatcher, batch *PacketBufferList) {
	if batch.Len() == 0 {
		return
	}
	d.DeliverNetworkPackets(*batch)
	batch.Reset()
}

// DrainBatch removes the packets of batch in order, handing each to fn. fn
// does not own the packet; it must take a reference to retain it.
func DrainBatch(batch *PacketBufferList, fn func(*PacketBuffer)) {
	for pkt := batch.PopFront(); pkt != nil; pkt = batch.PopFront() {
		fn(pkt)
		pkt.DecRef()
	}
}
