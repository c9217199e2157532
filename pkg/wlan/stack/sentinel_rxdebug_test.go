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

//go:build rxdebug
// +build rxdebug

package stack_test

import (
	"strings"
	"testing"

	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/header"
	"gvisor.dev/wlan/pkg/wlan/stack"
	"gvisor.dev/wlan/pkg/wlan/station"
)

// reentrantHandler feeds a frame back into the radio it was called on.
type reentrantHandler struct {
	c *testContext
}

func (h *reentrantHandler) HandleManagement(wlan.HardwareID, *station.Station, header.Dot11, stack.RxInfo) {
	var batch stack.PacketBufferList
	h.c.d.ReceiveToBatch(h.c.hw, nil, h.c.frame(dataFrame(frameOpts{seq: 1, body: ipv4("nested")})), &batch)
}

func TestOverlappingReceivePanics(t *testing.T) {
	h := &reentrantHandler{}
	c := newTestContext(t, stack.HardwareOptions{Management: h})
	h.c = c

	beacon := make([]byte, header.Dot11MinimumSize)
	header.Dot11(beacon).Encode(&header.Dot11Fields{
		Type:     header.Dot11TypeManagement,
		Subtype:  0x8,
		Address1: wlan.BroadcastAddress,
		Address2: apAddr,
	})
	defer func() {
		r := recover()
		msg, _ := r.(string)
		if !strings.Contains(msg, "overlapping receive") {
			t.Errorf("got panic %v, want an overlapping receive panic", r)
		}
		// The receive path is usable again once the panic unwound.
		c.ep.InjectInbound(c.frame(dataFrame(frameOpts{seq: 2, body: ipv4("after")})))
		if got := c.ep.NumQueued(); got != 1 {
			t.Errorf("got %d packets after the panic, want 1", got)
		}
	}()
	c.ep.InjectInbound(c.frame(beacon))
}
