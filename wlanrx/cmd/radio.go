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

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gvisor.dev/wlan/pkg/prometheus"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/faketime"
	"gvisor.dev/wlan/pkg/wlan/link/sniffer"
	"gvisor.dev/wlan/pkg/wlan/stack"
	"gvisor.dev/wlan/wlanrx/config"
)

// snapLen is the pcap snapshot length of written captures.
const snapLen = 262144

// hostStack stands in for the host networking stack. It counts the packets
// and batches handed to each radio.
type hostStack struct {
	Packets wlan.StatCounter
	Bytes   wlan.StatCounter
	Batches wlan.StatCounter
}

var _ stack.NetworkDispatcher = (*hostStack)(nil)

// DeliverNetworkPacket implements stack.NetworkDispatcher.DeliverNetworkPacket.
func (s *hostStack) DeliverNetworkPacket(pkt *stack.PacketBuffer) {
	s.Packets.Increment()
	s.Bytes.IncrementBy(uint64(pkt.Size()))
}

// DeliverNetworkPackets implements stack.NetworkDispatcher.DeliverNetworkPackets.
func (s *hostStack) DeliverNetworkPackets(pkts stack.PacketBufferList) {
	s.Batches.Increment()
	for _, pkt := range pkts.AsSlice() {
		s.DeliverNetworkPacket(pkt)
	}
}

// radio is a configured radio with its outputs.
type radio struct {
	conf *config.Hardware
	hw   *stack.Hardware
	host hostStack
	out  *sniffer.Dispatcher
	tap  *sniffer.Tap

	// clock is set from capture timestamps when replaying.
	clock *faketime.ManualClock

	files   []*os.File
	writers []*bufio.Writer
}

// create opens path and returns a buffered writer that close flushes.
func (r *radio) create(path string) (*bufio.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriter(f)
	r.files = append(r.files, f)
	r.writers = append(r.writers, w)
	return w, nil
}

// newRadio creates radio h. Packets are written to outDir, if set, and
// frames to the monitor file of h, if set. A nil clock timestamps both
// captures with the system clock.
func newRadio(conf *config.Config, h *config.Hardware, outDir string, mc *faketime.ManualClock) (*radio, error) {
	r := &radio{conf: h, clock: mc}
	var clock wlan.Clock = wlan.StdClock{}
	if mc != nil {
		clock = mc
	}
	var opts stack.HardwareOptions
	if h.Monitor != "" {
		w, err := r.create(h.Monitor)
		if err != nil {
			r.close()
			return nil, err
		}
		tap, err := sniffer.NewTapWithWriter(w, snapLen, clock)
		if err != nil {
			r.close()
			return nil, err
		}
		r.tap = tap
		opts.Monitor = tap
	}
	if outDir != "" {
		w, err := r.create(filepath.Join(outDir, fmt.Sprintf("packets-hw%d.pcap", h.ID)))
		if err != nil {
			r.close()
			return nil, err
		}
		if r.out, err = sniffer.NewDispatcherWithWriter(&r.host, w, snapLen, clock); err != nil {
			r.close()
			return nil, err
		}
	} else {
		r.out = sniffer.NewDispatcher(&r.host)
	}
	opts.NetworkDispatcher = r.out
	hw, err := conf.NewHardware(h, opts)
	if err != nil {
		r.close()
		return nil, err
	}
	r.hw = hw
	return r, nil
}

// close flushes and closes the captures of r.
func (r *radio) close() error {
	var errs []error
	if r.tap != nil {
		errs = append(errs, r.tap.Err())
	}
	if r.out != nil {
		errs = append(errs, r.out.Err())
	}
	for i, f := range r.files {
		errs = append(errs, r.writers[i].Flush(), f.Close())
	}
	r.files, r.writers = nil, nil
	return errors.Join(errs...)
}

// snapshot merges the statistics of radios into one snapshot.
func snapshot(radios []*radio) *prometheus.Snapshot {
	s := prometheus.NewSnapshot()
	for _, r := range radios {
		if r == nil {
			continue
		}
		s.Add(prometheus.StatsSnapshot(r.hw.ID(), r.hw.Stats()).Data...)
	}
	return s
}
