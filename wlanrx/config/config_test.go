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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/fragmentation"
	"gvisor.dev/wlan/pkg/wlan/stack"
	"gvisor.dev/wlan/pkg/wlan/station"
)

const tomlConfig = `
log_level = "debug"

[reassembly]
fragment_timeout = "500ms"
desync_policy = "drop-both"

[metrics]
address = "localhost:9090"

[[hardware]]
id = 1
pcap = "radio1.pcap"

  [hardware.reassembly]
  max_size = 4096

  [[hardware.interface]]
  id = 1
  address = "02:00:00:00:00:01"

  [[hardware.interface]]
  id = 2
  address = "02:00:00:00:00:02"
  down = true

[[station]]
address = "02:00:00:00:00:aa"
hardware = 1
interface = 1

  [station.pairwise_key]
  id = 0
  cipher = "gcmp-128"
  material = "000102030405060708090a0b0c0d0e0f"

  [[station.group_key]]
  id = 1
  cipher = "gcmp-256"
  material = "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"
`

const yamlConfig = `
log_level: debug
reassembly:
  fragment_timeout: 500ms
  desync_policy: drop-both
metrics:
  address: "localhost:9090"
hardware:
  - id: 1
    pcap: radio1.pcap
    reassembly:
      max_size: 4096
    interfaces:
      - id: 1
        address: "02:00:00:00:00:01"
      - id: 2
        address: "02:00:00:00:00:02"
        down: true
stations:
  - address: "02:00:00:00:00:aa"
    hardware: 1
    interface: 1
    pairwise_key:
      id: 0
      cipher: gcmp-128
      material: "000102030405060708090a0b0c0d0e0f"
    group_keys:
      - id: 1
        cipher: gcmp-256
        material: "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"
`

var (
	ifAddr1 = wlan.Address{0x02, 0, 0, 0, 0, 0x01}
	ifAddr2 = wlan.Address{0x02, 0, 0, 0, 0, 0x02}
	apAddr  = wlan.Address{0x02, 0, 0, 0, 0, 0xaa}
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("os.WriteFile(%q) = %v", path, err)
	}
	return path
}

func wantConfig() *Config {
	want := NewDefault()
	want.LogLevel = "debug"
	want.Reassembly.FragmentTimeout = Duration(500 * time.Millisecond)
	want.Reassembly.DesyncPolicy = fragmentation.DesyncDropBoth
	want.Metrics.Address = "localhost:9090"
	want.Hardware = []Hardware{{
		ID:         1,
		Pcap:       "radio1.pcap",
		Reassembly: &Reassembly{MaxSize: 4096},
		Interfaces: []Interface{
			{ID: 1, Address: ifAddr1},
			{ID: 2, Address: ifAddr2, Down: true},
		},
	}}
	want.Stations = []Station{{
		Address:   apAddr,
		Hardware:  1,
		Interface: 1,
		PairwiseKey: &Key{
			ID:       0,
			Cipher:   "gcmp-128",
			Material: "000102030405060708090a0b0c0d0e0f",
		},
		GroupKeys: []Key{{
			ID:       1,
			Cipher:   "gcmp-256",
			Material: "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f",
		}},
	}}
	return want
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
	}{
		{name: "wlanrx.toml", content: tomlConfig},
		{name: "wlanrx.yaml", content: yamlConfig},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Load(writeFile(t, tc.name, tc.content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if diff := cmp.Diff(wantConfig(), got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadKeepsDefault(t *testing.T) {
	if _, err := Load(writeFile(t, "wlanrx.toml", tomlConfig)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if Default.LogLevel != "info" || Default.Hardware != nil {
		t.Errorf("Load modified Default: %+v", Default)
	}
}

func TestLoadUnknownKeys(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
	}{
		{name: "bad.toml", content: "log_levl = \"debug\"\n"},
		{name: "bad.yml", content: "log_levl: debug\n"},
	} {
		if _, err := Load(writeFile(t, tc.name, tc.content)); err == nil {
			t.Errorf("Load(%s) succeeded with an unknown key", tc.name)
		}
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "log level",
			mutate: func(c *Config) { c.LogLevel = "loud" },
			want:   "unknown log level",
		},
		{
			name:   "log format",
			mutate: func(c *Config) { c.LogFormat = "xml" },
			want:   "invalid log format",
		},
		{
			name:   "negative timeout",
			mutate: func(c *Config) { c.Reassembly.FragmentTimeout = -1 },
			want:   "negative fragment timeout",
		},
		{
			name:   "duplicate hardware",
			mutate: func(c *Config) { c.Hardware = append(c.Hardware, Hardware{ID: 1}) },
			want:   "hardware 1 defined twice",
		},
		{
			name:   "duplicate interface",
			mutate: func(c *Config) { c.Hardware[0].Interfaces[1].ID = 1 },
			want:   "interface 1 defined twice",
		},
		{
			name:   "group interface address",
			mutate: func(c *Config) { c.Hardware[0].Interfaces[0].Address = wlan.BroadcastAddress },
			want:   "group address",
		},
		{
			name:   "unknown station hardware",
			mutate: func(c *Config) { c.Stations[0].Hardware = 7 },
			want:   "unknown hardware 7",
		},
		{
			name:   "unknown station interface",
			mutate: func(c *Config) { c.Stations[0].Interface = 7 },
			want:   "unknown interface 7",
		},
		{
			name:   "duplicate station",
			mutate: func(c *Config) { c.Stations = append(c.Stations, c.Stations[0]) },
			want:   "defined twice",
		},
		{
			name:   "short key",
			mutate: func(c *Config) { c.Stations[0].PairwiseKey.Material = "0001" },
			want:   "key material",
		},
		{
			name:   "bad hex",
			mutate: func(c *Config) { c.Stations[0].GroupKeys[0].Material = "zz" },
			want:   "material",
		},
		{
			name:   "unknown cipher",
			mutate: func(c *Config) { c.Stations[0].PairwiseKey.Cipher = "wep" },
			want:   "unknown cipher",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := wantConfig()
			if err := c.Validate(); err != nil {
				t.Fatalf("Validate() of the base config = %v", err)
			}
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestReassemblyFor(t *testing.T) {
	c := wantConfig()
	got := c.ReassemblyFor(&c.Hardware[0])
	want := Reassembly{
		FragmentTimeout: Duration(500 * time.Millisecond),
		MaxSize:         4096,
		DesyncPolicy:    fragmentation.DesyncDropBoth,
		ExpireInterval:  Duration(time.Second),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReassemblyFor mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild(t *testing.T) {
	c := wantConfig()
	hw, err := c.NewHardware(&c.Hardware[0], stack.HardwareOptions{})
	if err != nil {
		t.Fatalf("NewHardware failed: %v", err)
	}
	if hw.ID() != 1 {
		t.Errorf("got hardware ID %d, want 1", hw.ID())
	}
	var up []bool
	for _, i := range hw.Interfaces() {
		up = append(up, i.Up())
	}
	if diff := cmp.Diff([]bool{true, false}, up); diff != "" {
		t.Errorf("interface state mismatch (-want +got):\n%s", diff)
	}

	table := station.NewTable()
	if err := c.InstallStations(table); err != nil {
		t.Fatalf("InstallStations failed: %v", err)
	}
	g := table.ReadLock()
	defer g.Release()
	s := g.Lookup(apAddr)
	if s == nil {
		t.Fatalf("station %s not installed", apAddr)
	}
	if k := s.PairwiseKey(); k == nil || k.Cipher != station.CipherGCMP128 {
		t.Errorf("got pairwise key %+v, want a gcmp-128 key", k)
	}
	if k := s.GroupKey(1); k == nil || k.Cipher != station.CipherGCMP256 {
		t.Errorf("got group key 1 %+v, want a gcmp-256 key", k)
	}
}
