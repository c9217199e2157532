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

// Package channel provides a channel-based link endpoint. It injects frames
// into the receive path of a radio and stores the packets the receive path
// delivers in a channel, standing in for both the driver and the host
// networking stack.
package channel

import (
	"context"

	"gvisor.dev/wlan/pkg/sync"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/stack"
	"gvisor.dev/wlan/pkg/wlan/station"
)

// PacketInfo holds a delivered packet.
type PacketInfo struct {
	Pkt *stack.PacketBuffer

	// Bulk is true if the packet was delivered through
	// DeliverNetworkPackets.
	Bulk bool
}

// Notification is the interface for receiving notification from the packet
// queue.
type Notification interface {
	// WriteNotify will be called when a write happens to the queue.
	WriteNotify()
}

// NotificationHandle is an opaque handle to the registered notification
// target. It can be used to unregister the notification when no longer
// interested.
type NotificationHandle struct {
	n Notification
}

type queue struct {
	// c is the delivered packet channel.
	c chan PacketInfo
	// mu protects fields below.
	mu     sync.RWMutex
	notify []*NotificationHandle
}

func (q *queue) Close() {
	close(q.c)
}

func (q *queue) Read() (PacketInfo, bool) {
	select {
	case p := <-q.c:
		return p, true
	default:
		return PacketInfo{}, false
	}
}

func (q *queue) ReadContext(ctx context.Context) (PacketInfo, bool) {
	select {
	case pkt := <-q.c:
		return pkt, true
	case <-ctx.Done():
		return PacketInfo{}, false
	}
}

func (q *queue) Write(p PacketInfo) bool {
	wrote := false
	select {
	case q.c <- p:
		wrote = true
	default:
	}
	q.mu.RLock()
	notify := q.notify
	q.mu.RUnlock()

	if wrote {
		// Send notification outside of lock.
		for _, h := range notify {
			h.n.WriteNotify()
		}
	}
	return wrote
}

func (q *queue) Num() int {
	return len(q.c)
}

func (q *queue) AddNotify(notify Notification) *NotificationHandle {
	q.mu.Lock()
	defer q.mu.Unlock()
	h := &NotificationHandle{n: notify}
	q.notify = append(q.notify, h)
	return h
}

func (q *queue) RemoveNotify(handle *NotificationHandle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Make a copy, since we reads the array outside of lock when notifying.
	notify := make([]*NotificationHandle, 0, len(q.notify))
	for _, h := range q.notify {
		if h != handle {
			notify = append(notify, h)
		}
	}
	q.notify = notify
}

// Endpoint injects frames into a radio and stores delivered packets in a
// channel. It implements stack.NetworkDispatcher.
type Endpoint struct {
	dispatcher *stack.Dispatcher
	hw         *stack.Hardware

	// Dropped counts packets discarded because the queue was full.
	Dropped wlan.StatCounter

	// Delivered packet queue.
	q *queue
}

// New creates a new channel endpoint queueing up to size packets.
func New(size int) *Endpoint {
	return &Endpoint{
		q: &queue{
			c: make(chan PacketInfo, size),
		},
	}
}

// Close closes e. Further deliveries will panic. Reads continue to succeed
// until all packets are read.
func (e *Endpoint) Close() {
	e.q.Close()
}

// Read does non-blocking read of one packet from the queue. The caller owns
// the returned packet.
func (e *Endpoint) Read() (PacketInfo, bool) {
	return e.q.Read()
}

// ReadContext does blocking read for one packet from the queue. It can be
// cancelled by ctx, and in this case, it returns false.
func (e *Endpoint) ReadContext(ctx context.Context) (PacketInfo, bool) {
	return e.q.ReadContext(ctx)
}

// Drain removes all packets from the queue, releases and counts them.
func (e *Endpoint) Drain() int {
	c := 0
	for {
		p, ok := e.Read()
		if !ok {
			return c
		}
		p.Pkt.DecRef()
		c++
	}
}

// NumQueued returns the number of packets queued.
func (e *Endpoint) NumQueued() int {
	return e.q.Num()
}

// AddNotify registers a notification target for delivered packets.
func (e *Endpoint) AddNotify(notify Notification) *NotificationHandle {
	return e.q.AddNotify(notify)
}

// RemoveNotify unregisters a notification target.
func (e *Endpoint) RemoveNotify(handle *NotificationHandle) {
	e.q.RemoveNotify(handle)
}

// Attach saves the dispatcher and radio frames are injected into.
func (e *Endpoint) Attach(d *stack.Dispatcher, hw *stack.Hardware) {
	e.dispatcher = d
	e.hw = hw
}

// IsAttached returns true if frames can be injected.
func (e *Endpoint) IsAttached() bool {
	return e.dispatcher != nil
}

// InjectInbound injects a frame, delivering its packets immediately.
func (e *Endpoint) InjectInbound(f *stack.Frame) {
	e.dispatcher.ReceiveToSink(e.hw, nil, f, stack.ImmediateSink{Dispatcher: e})
}

// InjectStation injects a frame received from a known station.
func (e *Endpoint) InjectStation(sta *station.Station, f *stack.Frame) {
	e.dispatcher.Receive(e.hw, sta, f)
}

// InjectBurst injects frames in order and delivers all the packets they
// complete in one bulk delivery.
func (e *Endpoint) InjectBurst(frames []*stack.Frame) {
	var batch stack.PacketBufferList
	for _, f := range frames {
		e.dispatcher.ReceiveToBatch(e.hw, nil, f, &batch)
	}
	stack.DeliverBatch(e, &batch)
}

func (e *Endpoint) write(pkt *stack.PacketBuffer, bulk bool) {
	pkt.IncRef()
	if !e.q.Write(PacketInfo{Pkt: pkt, Bulk: bulk}) {
		pkt.DecRef()
		e.Dropped.Increment()
	}
}

// DeliverNetworkPacket implements stack.NetworkDispatcher.DeliverNetworkPacket.
func (e *Endpoint) DeliverNetworkPacket(pkt *stack.PacketBuffer) {
	e.write(pkt, false)
}

// DeliverNetworkPackets implements stack.NetworkDispatcher.DeliverNetworkPackets.
func (e *Endpoint) DeliverNetworkPackets(pkts stack.PacketBufferList) {
	for _, pkt := range pkts.AsSlice() {
		e.write(pkt, true)
	}
}
