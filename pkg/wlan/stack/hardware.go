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
	"fmt"
	"sync/atomic"
	"time"

	"gvisor.dev/wlan/pkg/atomicbitops"
	"gvisor.dev/wlan/pkg/log"
	"gvisor.dev/wlan/pkg/sync"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/crypto"
	"gvisor.dev/wlan/pkg/wlan/fragmentation"
	"gvisor.dev/wlan/pkg/wlan/station"
)

// Errors returned by interface management.
var (
	ErrDuplicateInterface = errors.New("duplicate interface")
	ErrUnknownInterface   = errors.New("unknown interface")
)

// dropLogInterval bounds the rate of drop debug logs.
const dropLogInterval = time.Second

// Options configures a Dispatcher.
type Options struct {
	// Decrypter decrypts protected frames. Defaults to GCMP.
	Decrypter Decrypter

	// Clock timestamps pending reassemblies. Defaults to the system clock.
	Clock wlan.Clock

	// Logger receives drop logs at Debug level. Defaults to the global
	// logger, rate limited.
	Logger log.Logger
}

// Dispatcher runs the receive path of any number of radios that share one
// station table.
type Dispatcher struct {
	stations  *station.Table
	decrypter Decrypter
	clock     wlan.Clock
	logger    log.Logger
}

// New returns a Dispatcher reading stations and keys from stations.
func New(stations *station.Table, opts Options) *Dispatcher {
	if opts.Decrypter == nil {
		opts.Decrypter = crypto.GCMP{}
	}
	if opts.Clock == nil {
		opts.Clock = wlan.StdClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.BasicRateLimitedLogger(dropLogInterval)
	}
	return &Dispatcher{
		stations:  stations,
		decrypter: opts.Decrypter,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
}

// Stations returns the station table.
func (d *Dispatcher) Stations() *station.Table {
	return d.stations
}

// HardwareOptions configures a Hardware.
type HardwareOptions struct {
	// ID identifies the radio. Stations are bound to it.
	ID wlan.HardwareID

	// NetworkDispatcher is the stack Receive and ReceivePolling deliver to.
	NetworkDispatcher NetworkDispatcher

	// Monitor, if set, sees every frame before validation.
	Monitor MonitorTap

	// Management, if set, consumes management frames.
	Management ManagementHandler

	// FragmentTimeout is the age after which ExpireFragments discards a
	// pending reassembly. Defaults to fragmentation.DefaultTimeout.
	FragmentTimeout time.Duration

	// MaxReassemblySize bounds the size of a reassembled MSDU. Defaults to
	// fragmentation.DefaultMaxSize.
	MaxReassemblySize int

	// DesyncPolicy handles fragments that break a pending reassembly.
	DesyncPolicy fragmentation.DesyncPolicy

	// Stats holds counters to use. Nil counters are allocated.
	Stats wlan.Stats
}

// Interface is a virtual interface of a radio.
type Interface struct {
	// ID identifies the interface on its radio.
	ID wlan.InterfaceID

	// Address is the interface address. Unicast frames are delivered to the
	// interface whose address is their receiver address.
	Address wlan.Address

	up atomicbitops.Bool
}

// Up returns true if the interface receives frames.
func (i *Interface) Up() bool {
	return i.up.Load()
}

// Hardware is one radio. Receive calls for a Hardware must be serialized by
// the caller; different Hardware may receive in parallel.
type Hardware struct {
	id    wlan.HardwareID
	opts  HardwareOptions
	stats wlan.Stats

	// mu serializes interface list updates. Readers load ifaces without it.
	mu     sync.Mutex
	ifaces atomic.Pointer[[]*Interface]

	fragParams fragmentation.Params

	// fragCache is only accessed by the serialized receive path.
	fragCache fragmentation.Cache

	sentinel rxSentinel
}

// NewHardware returns a radio with no interfaces.
func NewHardware(opts HardwareOptions) (*Hardware, error) {
	if opts.FragmentTimeout < 0 {
		return nil, fmt.Errorf("negative fragment timeout %s", opts.FragmentTimeout)
	}
	if opts.MaxReassemblySize < 0 {
		return nil, fmt.Errorf("negative maximum reassembly size %d", opts.MaxReassemblySize)
	}
	if opts.FragmentTimeout == 0 {
		opts.FragmentTimeout = fragmentation.DefaultTimeout
	}
	if opts.MaxReassemblySize == 0 {
		opts.MaxReassemblySize = fragmentation.DefaultMaxSize
	}
	h := &Hardware{
		id:    opts.ID,
		opts:  opts,
		stats: opts.Stats.FillIn(),
	}
	h.fragParams = fragmentation.Params{
		Policy:  opts.DesyncPolicy,
		MaxSize: opts.MaxReassemblySize,
		Timeout: opts.FragmentTimeout,
		Stats:   &h.stats.Rx.Reassembly,
	}
	h.ifaces.Store(&[]*Interface{})
	return h, nil
}

// ID returns the radio identifier.
func (h *Hardware) ID() wlan.HardwareID {
	return h.id
}

// Stats returns the radio statistics.
func (h *Hardware) Stats() *wlan.Stats {
	return &h.stats
}

// NetworkDispatcher returns the stack the radio delivers to.
func (h *Hardware) NetworkDispatcher() NetworkDispatcher {
	return h.opts.NetworkDispatcher
}

// PendingUnknownFragments returns the number of reassemblies pending for
// transmitters without a station.
//
// It must be called under the receive serialization of h.
func (h *Hardware) PendingUnknownFragments() int {
	return h.fragCache.Len()
}

// Interfaces returns the interfaces of the radio.
func (h *Hardware) Interfaces() []*Interface {
	return *h.ifaces.Load()
}

// AddInterface adds an interface. New interfaces are up.
func (h *Hardware) AddInterface(id wlan.InterfaceID, addr wlan.Address) (*Interface, error) {
	if addr.IsGroup() {
		return nil, fmt.Errorf("interface address %s is a group address", addr)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	old := *h.ifaces.Load()
	for _, i := range old {
		if i.ID == id || i.Address == addr {
			return nil, fmt.Errorf("add interface %d (%s): %w", id, addr, ErrDuplicateInterface)
		}
	}
	ifc := &Interface{ID: id, Address: addr}
	ifc.up.Store(true)
	ifaces := make([]*Interface, 0, len(old)+1)
	ifaces = append(ifaces, old...)
	ifaces = append(ifaces, ifc)
	h.ifaces.Store(&ifaces)
	return ifc, nil
}

// RemoveInterface removes an interface.
func (h *Hardware) RemoveInterface(id wlan.InterfaceID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := *h.ifaces.Load()
	ifaces := make([]*Interface, 0, len(old))
	for _, i := range old {
		if i.ID != id {
			ifaces = append(ifaces, i)
		}
	}
	if len(ifaces) == len(old) {
		return fmt.Errorf("remove interface %d: %w", id, ErrUnknownInterface)
	}
	h.ifaces.Store(&ifaces)
	return nil
}

// SetUp brings an interface up or down.
func (h *Hardware) SetUp(id wlan.InterfaceID, up bool) error {
	for _, i := range h.Interfaces() {
		if i.ID == id {
			i.up.Store(up)
			return nil
		}
	}
	return fmt.Errorf("set interface %d up: %w", id, ErrUnknownInterface)
}
