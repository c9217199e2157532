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

package channel

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/wlan/pkg/wlan/stack"
	"gvisor.dev/wlan/pkg/wlan/station"
)

type countingNotify struct {
	n int
}

func (c *countingNotify) WriteNotify() {
	c.n++
}

func TestQueueOverflow(t *testing.T) {
	e := New(1)
	defer e.Close()

	notify := &countingNotify{}
	h := e.AddNotify(notify)
	e.DeliverNetworkPacket(stack.NewPacketBuffer([]byte("one")))
	e.DeliverNetworkPacket(stack.NewPacketBuffer([]byte("two")))
	if got := e.NumQueued(); got != 1 {
		t.Errorf("got NumQueued() = %d, want 1", got)
	}
	if got := e.Dropped.Value(); got != 1 {
		t.Errorf("got Dropped = %d, want 1", got)
	}
	if notify.n != 1 {
		t.Errorf("got %d notifications, want 1", notify.n)
	}

	e.RemoveNotify(h)
	if got := e.Drain(); got != 1 {
		t.Errorf("got Drain() = %d, want 1", got)
	}
	e.DeliverNetworkPacket(stack.NewPacketBuffer([]byte("three")))
	if notify.n != 1 {
		t.Errorf("got %d notifications after RemoveNotify, want 1", notify.n)
	}
}

func TestBulkDelivery(t *testing.T) {
	e := New(10)
	defer e.Close()

	var batch stack.PacketBufferList
	for _, s := range []string{"a", "b", "c"} {
		batch.PushBack(stack.NewPacketBuffer([]byte(s)))
	}
	stack.DeliverBatch(e, &batch)
	if got := batch.Len(); got != 0 {
		t.Errorf("got batch length %d after delivery, want 0", got)
	}

	var got []string
	for {
		p, ok := e.Read()
		if !ok {
			break
		}
		if !p.Bulk {
			t.Errorf("packet %q not marked as bulk", p.Pkt.Data())
		}
		got = append(got, string(p.Pkt.Data()))
		p.Pkt.DecRef()
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}
}

func TestReadContextCancelled(t *testing.T) {
	e := New(1)
	defer e.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := e.ReadContext(ctx); ok {
		t.Errorf("ReadContext on an empty queue with a cancelled context succeeded")
	}
}

func TestAttach(t *testing.T) {
	e := New(1)
	defer e.Close()
	if e.IsAttached() {
		t.Errorf("new endpoint is attached")
	}
	hw, err := stack.NewHardware(stack.HardwareOptions{NetworkDispatcher: e})
	if err != nil {
		t.Fatalf("stack.NewHardware(_) = %s", err)
	}
	e.Attach(stack.New(station.NewTable(), stack.Options{}), hw)
	if !e.IsAttached() {
		t.Errorf("endpoint not attached after Attach")
	}
}
