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

// Package config holds the configuration of the wlanrx tool: the radios,
// their interfaces, the stations and keys to install, and the reassembly
// policy. Configuration files are TOML or YAML, chosen by file extension.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"
	"gvisor.dev/wlan/pkg/log"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/fragmentation"
	"gvisor.dev/wlan/pkg/wlan/stack"
	"gvisor.dev/wlan/pkg/wlan/station"
)

// Duration is a time.Duration written as a string such as "1500ms".
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Reassembly configures fragment reassembly.
type Reassembly struct {
	// FragmentTimeout is the age after which a pending reassembly is
	// discarded.
	FragmentTimeout Duration `toml:"fragment_timeout" yaml:"fragment_timeout"`

	// MaxSize bounds the size of a reassembled MSDU.
	MaxSize int `toml:"max_size" yaml:"max_size"`

	// DesyncPolicy is "restart" or "drop-both".
	DesyncPolicy fragmentation.DesyncPolicy `toml:"desync_policy" yaml:"desync_policy"`

	// ExpireInterval is how often stale fragments are discarded.
	ExpireInterval Duration `toml:"expire_interval" yaml:"expire_interval"`
}

// Interface is a virtual interface of a radio.
type Interface struct {
	ID      uint32       `toml:"id" yaml:"id"`
	Address wlan.Address `toml:"address" yaml:"address"`

	// Down creates the interface administratively down.
	Down bool `toml:"down" yaml:"down"`
}

// Hardware is a radio.
type Hardware struct {
	ID uint32 `toml:"id" yaml:"id"`

	// Pcap is the radiotap capture replayed for this radio.
	Pcap string `toml:"pcap" yaml:"pcap"`

	// Device is the monitor mode network interface captured from.
	Device string `toml:"device" yaml:"device"`

	// Monitor, if set, is a pcap file receiving a copy of every frame.
	Monitor string `toml:"monitor" yaml:"monitor"`

	// Reassembly overrides the global reassembly settings. Zero fields
	// keep the global value.
	Reassembly *Reassembly `toml:"reassembly" yaml:"reassembly"`

	Interfaces []Interface `toml:"interface" yaml:"interfaces"`
}

// Key is a temporal key.
type Key struct {
	ID     uint8  `toml:"id" yaml:"id"`
	Cipher string `toml:"cipher" yaml:"cipher"`

	// Material is the key in hexadecimal.
	Material string `toml:"material" yaml:"material"`
}

// New validates k and returns the key to install.
func (k *Key) New() (*station.Key, error) {
	c, err := station.ParseCipher(k.Cipher)
	if err != nil {
		return nil, err
	}
	material, err := hex.DecodeString(k.Material)
	if err != nil {
		return nil, fmt.Errorf("key %d material: %w", k.ID, err)
	}
	return station.NewKey(k.ID, c, material)
}

// Station is a peer station and its keys.
type Station struct {
	Address   wlan.Address `toml:"address" yaml:"address"`
	Hardware  uint32       `toml:"hardware" yaml:"hardware"`
	Interface uint32       `toml:"interface" yaml:"interface"`

	PairwiseKey *Key  `toml:"pairwise_key" yaml:"pairwise_key"`
	GroupKeys   []Key `toml:"group_key" yaml:"group_keys"`
}

// Metrics configures statistics export.
type Metrics struct {
	// Prefix is prepended to exported metric names.
	Prefix string `toml:"prefix" yaml:"prefix"`

	// Address, if set, is the TCP address the capture command serves
	// /metrics on.
	Address string `toml:"address" yaml:"address"`
}

// Config is the wlanrx configuration.
type Config struct {
	// LogLevel is "warning", "info" or "debug".
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `toml:"log_format" yaml:"log_format"`

	Reassembly Reassembly `toml:"reassembly" yaml:"reassembly"`
	Metrics    Metrics    `toml:"metrics" yaml:"metrics"`
	Hardware   []Hardware `toml:"hardware" yaml:"hardware"`
	Stations   []Station  `toml:"station" yaml:"stations"`
}

// Default is the configuration files are applied on top of.
var Default = Config{
	LogLevel:  "info",
	LogFormat: "text",
	Reassembly: Reassembly{
		FragmentTimeout: Duration(fragmentation.DefaultTimeout),
		MaxSize:         fragmentation.DefaultMaxSize,
		DesyncPolicy:    fragmentation.DesyncRestart,
		ExpireInterval:  Duration(time.Second),
	},
	Metrics: Metrics{
		Prefix: "wlan_",
	},
}

// NewDefault returns a copy of Default.
func NewDefault() *Config {
	return deepcopy.Copy(&Default).(*Config)
}

// Load reads and validates a configuration file. Files ending in .yaml or
// .yml are YAML, anything else is TOML. Unknown keys are errors.
func Load(path string) (*Config, error) {
	c := NewDefault()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parsing %s: unknown keys %v", path, undecoded)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if err := c.Reassembly.validate(); err != nil {
		return err
	}

	ifaces := make(map[uint32]map[uint32]bool)
	for _, h := range c.Hardware {
		if _, ok := ifaces[h.ID]; ok {
			return fmt.Errorf("hardware %d defined twice", h.ID)
		}
		if h.Reassembly != nil {
			if err := h.Reassembly.validate(); err != nil {
				return fmt.Errorf("hardware %d: %w", h.ID, err)
			}
		}
		ids := make(map[uint32]bool)
		for _, i := range h.Interfaces {
			if ids[i.ID] {
				return fmt.Errorf("hardware %d: interface %d defined twice", h.ID, i.ID)
			}
			if i.Address.IsGroup() {
				return fmt.Errorf("hardware %d: interface %d has group address %s", h.ID, i.ID, i.Address)
			}
			ids[i.ID] = true
		}
		ifaces[h.ID] = ids
	}

	addrs := make(map[wlan.Address]bool)
	for _, s := range c.Stations {
		if addrs[s.Address] {
			return fmt.Errorf("station %s defined twice", s.Address)
		}
		addrs[s.Address] = true
		ids, ok := ifaces[s.Hardware]
		if !ok {
			return fmt.Errorf("station %s: unknown hardware %d", s.Address, s.Hardware)
		}
		if !ids[s.Interface] {
			return fmt.Errorf("station %s: unknown interface %d on hardware %d", s.Address, s.Interface, s.Hardware)
		}
		if s.PairwiseKey != nil {
			if _, err := s.PairwiseKey.New(); err != nil {
				return fmt.Errorf("station %s pairwise key: %w", s.Address, err)
			}
		}
		for _, k := range s.GroupKeys {
			if _, err := k.New(); err != nil {
				return fmt.Errorf("station %s group key: %w", s.Address, err)
			}
		}
	}
	return nil
}

func (r *Reassembly) validate() error {
	if r.FragmentTimeout < 0 {
		return errors.New("negative fragment timeout")
	}
	if r.MaxSize < 0 {
		return errors.New("negative maximum reassembly size")
	}
	if r.ExpireInterval < 0 {
		return errors.New("negative expire interval")
	}
	return nil
}

// ReassemblyFor returns the reassembly settings of h: the global settings
// with the non-zero fields of the override of h applied.
func (c *Config) ReassemblyFor(h *Hardware) Reassembly {
	r := c.Reassembly
	if o := h.Reassembly; o != nil {
		if o.FragmentTimeout != 0 {
			r.FragmentTimeout = o.FragmentTimeout
		}
		if o.MaxSize != 0 {
			r.MaxSize = o.MaxSize
		}
		if o.DesyncPolicy != fragmentation.DesyncRestart {
			r.DesyncPolicy = o.DesyncPolicy
		}
		if o.ExpireInterval != 0 {
			r.ExpireInterval = o.ExpireInterval
		}
	}
	return r
}

// NewHardware creates the radio h with its interfaces. The caller fills in
// the delivery targets of opts; the remaining fields are set from the
// configuration.
func (c *Config) NewHardware(h *Hardware, opts stack.HardwareOptions) (*stack.Hardware, error) {
	r := c.ReassemblyFor(h)
	opts.ID = wlan.HardwareID(h.ID)
	opts.FragmentTimeout = time.Duration(r.FragmentTimeout)
	opts.MaxReassemblySize = r.MaxSize
	opts.DesyncPolicy = r.DesyncPolicy
	hw, err := stack.NewHardware(opts)
	if err != nil {
		return nil, fmt.Errorf("hardware %d: %w", h.ID, err)
	}
	for _, i := range h.Interfaces {
		if _, err := hw.AddInterface(wlan.InterfaceID(i.ID), i.Address); err != nil {
			return nil, fmt.Errorf("hardware %d: %w", h.ID, err)
		}
		if i.Down {
			if err := hw.SetUp(wlan.InterfaceID(i.ID), false); err != nil {
				return nil, fmt.Errorf("hardware %d: %w", h.ID, err)
			}
		}
	}
	return hw, nil
}

// InstallStations adds the configured stations and their keys to t.
func (c *Config) InstallStations(t *station.Table) error {
	for _, s := range c.Stations {
		if _, err := t.Add(s.Address, wlan.HardwareID(s.Hardware), wlan.InterfaceID(s.Interface)); err != nil {
			return err
		}
		if s.PairwiseKey != nil {
			k, err := s.PairwiseKey.New()
			if err != nil {
				return fmt.Errorf("station %s pairwise key: %w", s.Address, err)
			}
			if err := t.SetKey(s.Address, k, true); err != nil {
				return err
			}
		}
		for _, gk := range s.GroupKeys {
			k, err := gk.New()
			if err != nil {
				return fmt.Errorf("station %s group key: %w", s.Address, err)
			}
			if err := t.SetKey(s.Address, k, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// Log logs the configuration at info level.
func (c *Config) Log() {
	log.Infof("Config:")
	log.Infof("\t%d hardware, %d stations, log level %s", len(c.Hardware), len(c.Stations), c.LogLevel)
	log.Infof("\treassembly: timeout %s, max size %d, desync policy %s, expire every %s",
		time.Duration(c.Reassembly.FragmentTimeout), c.Reassembly.MaxSize, c.Reassembly.DesyncPolicy, time.Duration(c.Reassembly.ExpireInterval))
	for _, h := range c.Hardware {
		log.Infof("\thardware %d: %d interfaces, pcap %q, device %q", h.ID, len(h.Interfaces), h.Pcap, h.Device)
	}
}
