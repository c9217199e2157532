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

//go:build linux
// +build linux

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gofrs/flock"
	"github.com/google/subcommands"
	"github.com/vishvananda/netlink"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"gvisor.dev/wlan/pkg/log"
	"gvisor.dev/wlan/pkg/wlan/header"
	"gvisor.dev/wlan/pkg/wlan/link/fdbased"
	"gvisor.dev/wlan/pkg/wlan/link/sniffer"
	"gvisor.dev/wlan/pkg/wlan/stack"
	"gvisor.dev/wlan/pkg/wlan/station"
	"gvisor.dev/wlan/wlanrx/config"
)

// minCaptureSize is the shortest frame worth reading from a monitor mode
// socket: a minimal radiotap header followed by the shortest control frame.
const minCaptureSize = 8 + header.Dot11ControlMinimumSize

// Capture implements subcommands.Command for the "capture" command.
type Capture struct {
	outDir       string
	lockFile     string
	linkWait     time.Duration
	maxFrameSize int
	msgsPerRecv  int
	logPackets   bool
}

// Name implements subcommands.Command.Name.
func (*Capture) Name() string {
	return "capture"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Capture) Synopsis() string {
	return "run the receive path on monitor mode interfaces"
}

// Usage implements subcommands.Command.Usage.
func (*Capture) Usage() string {
	return `capture [flags] - reads frames from the device of each configured radio until interrupted.

Devices must be monitor mode interfaces delivering radiotap headers.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Capture) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.outDir, "out-dir", "", "directory receiving packets-hw<ID>.pcap with the delivered packets of each radio.")
	f.StringVar(&c.lockFile, "lock-file", filepath.Join(os.TempDir(), "wlanrx.lock"), "lock file preventing two captures from running at once.")
	f.DurationVar(&c.linkWait, "link-wait", 10*time.Second, "how long to wait for devices to appear.")
	f.IntVar(&c.maxFrameSize, "max-frame-size", fdbased.DefaultMaxFrameSize, "size of each receive buffer; longer frames are dropped.")
	f.IntVar(&c.msgsPerRecv, "msgs-per-recv", fdbased.MaxMsgsPerRecv, "number of frames read per system call.")
	f.BoolVar(&c.logPackets, "log-packets", false, "log every frame and packet at Info level.")
}

// Execute implements subcommands.Command.Execute.
func (c *Capture) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if !c.logPackets {
		atomic.StoreUint32(&sniffer.LogPackets, 0)
	}

	lock := flock.New(c.lockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return Errorf("locking %s: %v", c.lockFile, err)
	}
	if !locked {
		return Errorf("another capture holds %s", c.lockFile)
	}
	defer lock.Unlock()

	ctx, stop := signal.NotifyContext(ctx, unix.SIGINT, unix.SIGTERM)
	defer stop()
	if err := c.run(ctx, conf); err != nil {
		return Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}

// capture is a radio reading from a packet socket.
type capture struct {
	*radio
	fd int
	ep *fdbased.Endpoint
}

func (c *Capture) run(ctx context.Context, conf *config.Config) error {
	table := station.NewTable()
	if err := conf.InstallStations(table); err != nil {
		return err
	}
	if c.outDir != "" {
		if err := os.MkdirAll(c.outDir, 0755); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := stack.New(table, stack.Options{})
	var captures []*capture
	defer func() {
		for _, cp := range captures {
			if cp.ep != nil && cp.ep.IsAttached() {
				cp.ep.Stop()
			}
			if cp.ep != nil {
				cp.ep.Close()
			}
			unix.Close(cp.fd)
			if err := cp.close(); err != nil {
				log.Warningf("Hardware %d: %v", cp.conf.ID, err)
			}
			log.Infof("Hardware %d: %d packets, %d bytes delivered", cp.conf.ID, cp.host.Packets.Value(), cp.host.Bytes.Value())
		}
	}()

	for i := range conf.Hardware {
		h := &conf.Hardware[i]
		if h.Device == "" {
			log.Infof("Hardware %d has no device, skipping", h.ID)
			continue
		}
		rd, err := newRadio(conf, h, c.outDir, nil)
		if err != nil {
			return err
		}
		fd, err := openPacketSocket(ctx, h.Device, c.linkWait)
		if err != nil {
			rd.close()
			return fmt.Errorf("hardware %d: %w", h.ID, err)
		}
		cp := &capture{radio: rd, fd: fd}
		captures = append(captures, cp)

		cp.ep, err = fdbased.New(&fdbased.Options{
			FD:             fd,
			MaxFrameSize:   c.maxFrameSize,
			MsgsPerRecv:    c.msgsPerRecv,
			Flags:          stack.FlagRadiotap,
			MinFrameSize:   minCaptureSize,
			ExpireInterval: time.Duration(conf.ReassemblyFor(h).ExpireInterval),
			ClosedFunc: func(err error) {
				if err != nil {
					log.Warningf("Hardware %d: %s: %v", h.ID, h.Device, err)
				} else {
					log.Warningf("Hardware %d: %s closed", h.ID, h.Device)
				}
				cancel()
			},
		})
		if err != nil {
			return fmt.Errorf("hardware %d: %w", h.ID, err)
		}
	}
	if len(captures) == 0 {
		return errors.New("no hardware has a device to capture from")
	}
	for _, cp := range captures {
		cp.ep.Attach(d, cp.hw)
		log.Infof("Hardware %d: capturing on %s", cp.conf.ID, cp.conf.Device)
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr := conf.Metrics.Address; addr != "" {
		radios := make([]*radio, len(captures))
		for i, cp := range captures {
			radios[i] = cp.radio
		}
		m, err := newMetricServer(conf.Metrics.Prefix, radios)
		if err != nil {
			return err
		}
		listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("cannot listen on TCP address %q: %w", addr, err)
		}
		g.Go(func() error {
			return m.serve(gctx, listener)
		})
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warningf("Notifying readiness: %v", err)
	} else if sent {
		log.Debugf("Notified readiness")
	}
	<-gctx.Done()
	log.Infof("Stopping capture")
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Warningf("Notifying stop: %v", err)
	}
	cancel()
	return g.Wait()
}

// openPacketSocket opens a packet socket bound to device, waiting up to
// timeout for the device to appear.
func openPacketSocket(ctx context.Context, device string, timeout time.Duration) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = timeout

	var link netlink.Link
	op := func() error {
		l, err := netlink.LinkByName(device)
		if err != nil {
			var notFound netlink.LinkNotFoundError
			if errors.As(err, &notFound) {
				log.Debugf("Waiting for %s", device)
				return err
			}
			return backoff.Permanent(err)
		}
		link = l
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return -1, fmt.Errorf("finding device %s: %w", device, err)
	}
	attrs := link.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		log.Warningf("Device %s is down; no frames will be received until it is up", device)
	}

	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(proto))
	if err != nil {
		return -1, fmt.Errorf("packet socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrLinklayer{Protocol: proto, Ifindex: attrs.Index}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("binding packet socket to %s: %w", device, err)
	}
	return fd, nil
}

// htons converts a short from host to network byte order.
func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
