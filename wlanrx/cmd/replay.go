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
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/wlan/pkg/log"
	"gvisor.dev/wlan/pkg/prometheus"
	"gvisor.dev/wlan/pkg/wlan/faketime"
	"gvisor.dev/wlan/pkg/wlan/link/sniffer"
	"gvisor.dev/wlan/pkg/wlan/stack"
	"gvisor.dev/wlan/pkg/wlan/station"
	"gvisor.dev/wlan/wlanrx/config"
)

// Replay implements subcommands.Command for the "replay" command.
type Replay struct {
	outDir     string
	metrics    string
	batchSize  int
	logPackets bool
}

// Name implements subcommands.Command.Name.
func (*Replay) Name() string {
	return "replay"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Replay) Synopsis() string {
	return "replay 802.11 captures through the receive path"
}

// Usage implements subcommands.Command.Usage.
func (*Replay) Usage() string {
	return `replay [flags] [capture.pcap...] - replays the capture of each configured radio.

Captures given on the command line replace the pcap of the radios, in order.
Captures must have link type IEEE802_11_RADIO or IEEE802_11.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Replay) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.outDir, "out-dir", "", "directory receiving packets-hw<ID>.pcap with the delivered packets of each radio.")
	f.StringVar(&r.metrics, "metrics", "-", "file receiving the statistics in Prometheus format, '-' for stdout, empty for none.")
	f.IntVar(&r.batchSize, "batch", 32, "number of frames received before the packets they completed are delivered.")
	f.BoolVar(&r.logPackets, "log-packets", false, "log every frame and packet at Info level.")
}

// Execute implements subcommands.Command.Execute.
func (r *Replay) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)
	if f.NArg() > 0 {
		if f.NArg() != len(conf.Hardware) {
			f.Usage()
			return subcommands.ExitUsageError
		}
		for i := range conf.Hardware {
			conf.Hardware[i].Pcap = f.Arg(i)
		}
	}
	if r.batchSize <= 0 {
		return Errorf("-batch must be positive, got %d", r.batchSize)
	}
	if len(conf.Hardware) == 0 {
		return Errorf("no hardware configured")
	}
	if !r.logPackets {
		atomic.StoreUint32(&sniffer.LogPackets, 0)
	}

	radios, err := r.run(ctx, conf)
	if err != nil {
		return Errorf("%v", err)
	}
	for _, rd := range radios {
		log.Infof("Hardware %d: %d packets, %d bytes delivered", rd.conf.ID, rd.host.Packets.Value(), rd.host.Bytes.Value())
	}
	if err := writeMetrics(r.metrics, conf, radios); err != nil {
		return Errorf("writing metrics: %v", err)
	}
	return subcommands.ExitSuccess
}

// run replays the capture of every radio of conf concurrently. The radios
// share one station table and have one Dispatcher each, clocked by the
// timestamps of their capture.
func (r *Replay) run(ctx context.Context, conf *config.Config) ([]*radio, error) {
	table := station.NewTable()
	if err := conf.InstallStations(table); err != nil {
		return nil, err
	}
	if r.outDir != "" {
		if err := os.MkdirAll(r.outDir, 0755); err != nil {
			return nil, err
		}
	}

	radios := make([]*radio, 0, len(conf.Hardware))
	done := false
	defer func() {
		if done {
			return
		}
		for _, rd := range radios {
			if err := rd.close(); err != nil {
				log.Warningf("Hardware %d: %v", rd.conf.ID, err)
			}
		}
	}()

	for i := range conf.Hardware {
		h := &conf.Hardware[i]
		if h.Pcap == "" {
			return nil, fmt.Errorf("hardware %d has no capture to replay", h.ID)
		}
		rd, err := newRadio(conf, h, r.outDir, faketime.NewManualClock(time.Unix(0, 0)))
		if err != nil {
			return nil, err
		}
		radios = append(radios, rd)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, rd := range radios {
		d := stack.New(table, stack.Options{Clock: rd.clock})
		expireInterval := time.Duration(conf.ReassemblyFor(rd.conf).ExpireInterval)
		g.Go(func() error {
			return r.replay(ctx, d, rd, expireInterval)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Written captures are complete once closed.
	done = true
	for _, rd := range radios {
		if err := rd.close(); err != nil {
			return nil, fmt.Errorf("hardware %d: %w", rd.conf.ID, err)
		}
	}
	return radios, nil
}

// replay feeds the capture of rd through d.
func (r *Replay) replay(ctx context.Context, d *stack.Dispatcher, rd *radio, expireInterval time.Duration) error {
	clock := rd.clock
	path := rd.conf.Pcap
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	pr, err := pcapgo.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	var flags stack.RxFlags
	switch lt := pr.LinkType(); lt {
	case layers.LinkTypeIEEE80211Radio:
		flags = stack.FlagRadiotap
	case layers.LinkTypeIEEE802_11:
	default:
		return fmt.Errorf("%s: unsupported link type %s", path, lt)
	}

	var (
		batch  stack.PacketBufferList
		expiry *faketime.Timer
		frames int
	)
	defer stack.DeliverBatch(rd.hw.NetworkDispatcher(), &batch)
	defer func() {
		if expiry != nil {
			expiry.Stop()
		}
	}()
	for ; ; frames++ {
		if frames%r.batchSize == 0 {
			stack.DeliverBatch(rd.hw.NetworkDispatcher(), &batch)
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		// ReadPacketData returns a new buffer for every packet, which the
		// frame may keep past the next read.
		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: frame %d: %w", path, frames, err)
		}
		// Expiry runs from Set, on this goroutine, between two receives.
		clock.Set(ci.Timestamp)
		if expiry == nil && expireInterval > 0 {
			expiry = clock.AfterFunc(expireInterval, func() {
				if n := d.ExpireFragments(rd.hw, clock.Now()); n > 0 {
					log.Debugf("Hardware %d: expired %d pending reassemblies", rd.conf.ID, n)
				}
				expiry.Reset(expireInterval)
			})
		}
		d.ReceiveToBatch(rd.hw, nil, stack.NewFrame(data, stack.RxInfo{Flags: flags}, nil), &batch)
	}
	log.Infof("Hardware %d: replayed %d frames from %s", rd.conf.ID, frames, path)
	return nil
}

// writeMetrics writes the statistics of radios to path.
func writeMetrics(path string, conf *config.Config, radios []*radio) error {
	if path == "" {
		return nil
	}
	w := io.Writer(os.Stdout)
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	written, err := prometheus.Write(w, prometheus.ExportOptions{
		CommentHeader: fmt.Sprintf("Receive path statistics of %d radios", len(radios)),
	}, map[*prometheus.Snapshot]prometheus.SnapshotExportOptions{
		snapshot(radios): {ExporterPrefix: conf.Metrics.Prefix},
	})
	if err != nil {
		return err
	}
	log.Debugf("Wrote %d bytes of Prometheus metric data", written)
	return nil
}
