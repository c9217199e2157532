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
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"golang.org/x/term"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/station"
	"gvisor.dev/wlan/wlanrx/config"
)

// Stations implements subcommands.Command for the "stations" command.
type Stations struct {
	hw     int64
	format string
}

// Name implements subcommands.Command.Name.
func (*Stations) Name() string {
	return "stations"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stations) Synopsis() string {
	return "list the configured stations and their keys"
}

// Usage implements subcommands.Command.Usage.
func (*Stations) Usage() string {
	return `stations [-hw <id>] [-format=table|tsv] - lists stations in address order.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stations) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&s.hw, "hw", -1, "only list the stations of this hardware.")
	f.StringVar(&s.format, "format", "", "output format: table or tsv. Defaults to table on a terminal and tsv otherwise.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stations) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	table := station.NewTable()
	if err := conf.InstallStations(table); err != nil {
		return Errorf("%v", err)
	}

	aligned := term.IsTerminal(int(os.Stdout.Fd()))
	switch s.format {
	case "":
	case "table":
		aligned = true
	case "tsv":
		aligned = false
	default:
		return Errorf("invalid format %q, must be 'table' or 'tsv'", s.format)
	}
	if err := listStations(os.Stdout, table, s.hw, aligned); err != nil {
		return Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}

// listStations writes the stations of t on hardware hw, or all stations if
// hw is negative, one per line.
func listStations(out io.Writer, t *station.Table, hw int64, aligned bool) error {
	w := out
	var tw *tabwriter.Writer
	if aligned {
		tw = tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
		w = tw
	}
	fmt.Fprintln(w, "ADDRESS\tHW\tIFACE\tPAIRWISE\tGROUP")

	g := t.ReadLock()
	fn := func(s *station.Station) bool {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", s.Address(), s.Hardware(), s.Interface(), keyString(s.PairwiseKey()), groupKeys(s))
		return true
	}
	if hw < 0 {
		g.AscendAll(fn)
	} else {
		g.Ascend(wlan.HardwareID(hw), fn)
	}
	g.Release()

	if tw != nil {
		return tw.Flush()
	}
	return nil
}

func keyString(k *station.Key) string {
	if k == nil {
		return "-"
	}
	return fmt.Sprintf("%d:%s", k.ID, k.Cipher)
}

func groupKeys(s *station.Station) string {
	var keys []string
	for id := uint8(0); id <= station.MaxKeyID; id++ {
		if k := s.GroupKey(id); k != nil {
			keys = append(keys, keyString(k))
		}
	}
	if len(keys) == 0 {
		return "-"
	}
	return strings.Join(keys, ",")
}
