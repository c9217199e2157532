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
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/station"
	"gvisor.dev/wlan/wlanrx/config"
)

func stationsTable(t *testing.T) *station.Table {
	t.Helper()
	conf := config.NewDefault()
	conf.Hardware = []config.Hardware{
		{ID: 1, Interfaces: []config.Interface{{ID: 1, Address: ifAddr}}},
		{ID: 2, Interfaces: []config.Interface{{ID: 7, Address: wlan.Address{0x02, 0, 0, 0, 0, 0x02}}}},
	}
	conf.Stations = []config.Station{
		{
			Address:     apAddr,
			Hardware:    1,
			Interface:   1,
			PairwiseKey: &config.Key{ID: 0, Cipher: "gcmp-128", Material: strings.Repeat("00", 16)},
			GroupKeys: []config.Key{
				{ID: 2, Cipher: "gcmp-256", Material: strings.Repeat("11", 32)},
				{ID: 1, Cipher: "gcmp-128", Material: strings.Repeat("22", 16)},
			},
		},
		{Address: srcAddr, Hardware: 2, Interface: 7},
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	table := station.NewTable()
	if err := conf.InstallStations(table); err != nil {
		t.Fatalf("InstallStations(_) = %v", err)
	}
	return table
}

func TestListStations(t *testing.T) {
	table := stationsTable(t)
	for _, tc := range []struct {
		name string
		hw   int64
		want string
	}{
		{
			name: "all",
			hw:   -1,
			want: "ADDRESS\tHW\tIFACE\tPAIRWISE\tGROUP\n" +
				"02:00:00:00:00:50\t2\t7\t-\t-\n" +
				"02:00:00:00:00:aa\t1\t1\t0:gcmp-128\t1:gcmp-128,2:gcmp-256\n",
		},
		{
			name: "one hardware",
			hw:   1,
			want: "ADDRESS\tHW\tIFACE\tPAIRWISE\tGROUP\n" +
				"02:00:00:00:00:aa\t1\t1\t0:gcmp-128\t1:gcmp-128,2:gcmp-256\n",
		},
		{
			name: "no stations",
			hw:   3,
			want: "ADDRESS\tHW\tIFACE\tPAIRWISE\tGROUP\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := listStations(&buf, table, tc.hw, false); err != nil {
				t.Fatalf("listStations(_) = %v", err)
			}
			if diff := cmp.Diff(tc.want, buf.String()); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListStationsAligned(t *testing.T) {
	var buf bytes.Buffer
	if err := listStations(&buf, stationsTable(t), 2, true); err != nil {
		t.Fatalf("listStations(_) = %v", err)
	}
	want := "ADDRESS            HW  IFACE  PAIRWISE  GROUP\n" +
		"02:00:00:00:00:50  2   7      -         -\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}
