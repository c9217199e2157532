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

package prometheus

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"gvisor.dev/wlan/pkg/wlan"
)

// numStatCounters is the number of counters in wlan.Stats.
const numStatCounters = 26

func newStats() *wlan.Stats {
	s := wlan.Stats{}.FillIn()
	return &s
}

func parse(t *testing.T, text string) map[string]*dto.MetricFamily {
	t.Helper()
	parsed, err := (&expfmt.TextParser{}).TextToMetricFamilies(strings.NewReader(text))
	if err != nil {
		t.Fatalf("failed to parse exported metrics: %v\n%s", err, text)
	}
	return parsed
}

func TestMetricName(t *testing.T) {
	for _, tc := range []struct {
		fields []string
		want   string
	}{
		{fields: []string{"Rx", "Frames"}, want: "rx_frames"},
		{fields: []string{"Rx", "Dropped", "BadFCS"}, want: "rx_dropped_bad_fcs"},
		{fields: []string{"Rx", "Dropped", "BadPLCP"}, want: "rx_dropped_bad_plcp"},
		{fields: []string{"Rx", "PacketBytes"}, want: "rx_packet_bytes"},
		{fields: []string{"FCSErrors"}, want: "fcs_errors"},
		{fields: []string{"Rx", "Reassembly", "Desync"}, want: "rx_reassembly_desync"},
	} {
		if got := MetricName(tc.fields...); got != tc.want {
			t.Errorf("MetricName(%q) = %q, want %q", tc.fields, got, tc.want)
		}
	}
}

func TestStatsSnapshot(t *testing.T) {
	stats := newStats()
	stats.Rx.Frames.IncrementBy(10)
	stats.Rx.Dropped.BadFCS.IncrementBy(3)

	s := StatsSnapshot(1, stats)
	if got := len(s.Data); got != numStatCounters {
		t.Errorf("got %d data points, want %d", got, numStatCounters)
	}

	var buf bytes.Buffer
	if _, err := Write(&buf, ExportOptions{CommentHeader: "radio statistics"}, map[*Snapshot]SnapshotExportOptions{
		s: {ExporterPrefix: DefaultExporterPrefix},
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "# radio statistics\n") {
		t.Errorf("export does not start with the comment header:\n%s", buf.String())
	}
	parsed := parse(t, buf.String())
	if got := len(parsed); got != numStatCounters {
		t.Errorf("got %d metric families, want %d", got, numStatCounters)
	}

	for name, want := range map[string]float64{
		"wlan_rx_frames_total":             10,
		"wlan_rx_dropped_bad_fcs_total":    3,
		"wlan_rx_reassembly_expired_total": 0,
	} {
		mf, ok := parsed[name]
		if !ok {
			t.Errorf("metric %s not exported", name)
			continue
		}
		if mf.GetType() != dto.MetricType_COUNTER {
			t.Errorf("metric %s has type %v, want counter", name, mf.GetType())
		}
		if len(mf.GetMetric()) != 1 {
			t.Errorf("metric %s has %d values, want 1", name, len(mf.GetMetric()))
			continue
		}
		m := mf.GetMetric()[0]
		if got := m.GetCounter().GetValue(); got != want {
			t.Errorf("metric %s = %v, want %v", name, got, want)
		}
		if len(m.GetLabel()) != 1 || m.GetLabel()[0].GetName() != HardwareLabel || m.GetLabel()[0].GetValue() != "1" {
			t.Errorf("metric %s has labels %v, want hw=\"1\"", name, m.GetLabel())
		}
	}
}

func TestWriteMergesRadios(t *testing.T) {
	first, second := newStats(), newStats()
	first.Rx.Packets.IncrementBy(5)
	second.Rx.Packets.IncrementBy(7)

	var buf bytes.Buffer
	if _, err := Write(&buf, ExportOptions{}, map[*Snapshot]SnapshotExportOptions{
		StatsSnapshot(2, second): {ExporterPrefix: DefaultExporterPrefix, ExtraLabels: map[string]string{"host": "a"}},
		StatsSnapshot(1, first):  {ExporterPrefix: DefaultExporterPrefix, ExtraLabels: map[string]string{"host": "a"}},
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	mf := parse(t, buf.String())["wlan_rx_packets_total"]
	type value struct {
		HW    string
		Host  string
		Value float64
	}
	var got []value
	for _, m := range mf.GetMetric() {
		v := value{Value: m.GetCounter().GetValue()}
		for _, l := range m.GetLabel() {
			switch l.GetName() {
			case HardwareLabel:
				v.HW = l.GetValue()
			case "host":
				v.Host = l.GetValue()
			}
		}
		got = append(got, v)
	}
	want := []value{{HW: "1", Host: "a", Value: 5}, {HW: "2", Host: "a", Value: 7}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged metric mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDuplicateLabel(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, ExportOptions{}, map[*Snapshot]SnapshotExportOptions{
		StatsSnapshot(1, newStats()): {ExtraLabels: map[string]string{HardwareLabel: "other"}},
	})
	if err == nil {
		t.Errorf("Write succeeded with a duplicate label")
	}
}

func TestVerifier(t *testing.T) {
	now := time.Unix(1700000000, 0)
	timeNow = func() time.Time { return now }
	defer func() { timeNow = time.Now }()

	v, err := NewVerifier(StatsSnapshot(1, newStats()))
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}

	stats := newStats()
	stats.Rx.Frames.IncrementBy(4)
	if err := v.Verify(StatsSnapshot(1, stats)); err != nil {
		t.Fatalf("Verify of a valid snapshot failed: %v", err)
	}

	now = now.Add(time.Second)
	if err := v.Verify(StatsSnapshot(1, newStats())); err == nil {
		t.Errorf("Verify accepted a decreasing counter")
	}

	twice := StatsSnapshot(1, stats)
	twice.Add(twice.Data[0])
	if err := v.Verify(twice); err == nil {
		t.Errorf("Verify accepted the same labels twice")
	}

	unknown := NewSnapshot().Add(LabeledData(&Metric{Name: "unknown_total", Type: TypeCounter}, nil, 1))
	if err := v.Verify(unknown); err == nil {
		t.Errorf("Verify accepted an unknown metric")
	}

	stale := StatsSnapshot(1, stats)
	stale.When = now.Add(-time.Hour)
	if err := v.Verify(stale); err == nil {
		t.Errorf("Verify accepted a snapshot older than the last one")
	}
}

func TestNewVerifierRejectsBadNames(t *testing.T) {
	s := NewSnapshot().Add(LabeledData(&Metric{Name: "bad-name", Type: TypeCounter}, nil, 0))
	if _, err := NewVerifier(s); err == nil {
		t.Errorf("NewVerifier accepted an invalid metric name")
	}
}
