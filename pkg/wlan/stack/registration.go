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
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/header"
	"gvisor.dev/wlan/pkg/wlan/station"
)

// NetworkDispatcher is the host networking stack the receive path delivers
// packets to.
type NetworkDispatcher interface {
	// DeliverNetworkPacket hands one packet to the stack.
	//
	// The caller retains ownership of pkt; the stack must take its own
	// reference to keep it.
	DeliverNetworkPacket(pkt *PacketBuffer)

	// DeliverNetworkPackets hands a list of packets to the stack, which
	// processes them in list order.
	//
	// The caller retains ownership of the packets.
	DeliverNetworkPackets(pkts PacketBufferList)
}

// Decrypter authenticates and decrypts protected frames.
type Decrypter interface {
	// Decrypt decrypts body, which holds the cipher header, ciphertext and
	// MIC of a frame with MAC header hdr, using k. It returns the plaintext,
	// which may alias body, or an error if the frame must be dropped.
	Decrypt(k *station.Key, hdr header.Dot11, body []byte) ([]byte, error)
}

// MonitorTap receives a copy of every frame entering the receive path of a
// radio, before validation.
type MonitorTap interface {
	// TapFrame is called with the frame as received. The tap must take a
	// reference to retain f past the call.
	TapFrame(hw wlan.HardwareID, f *Frame)
}

// ManagementHandler consumes management frames.
type ManagementHandler interface {
	// HandleManagement is called inside the read-side protection window.
	// sta is nil if the transmitter is unknown. Neither sta nor the bytes of
	// hdr may be retained past the call.
	HandleManagement(hw wlan.HardwareID, sta *station.Station, hdr header.Dot11, info RxInfo)
}
