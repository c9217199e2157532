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

// Package prometheus exports receive path statistics in the Prometheus text
// exposition format, documented at:
// https://prometheus.io/docs/instrumenting/exposition_formats/
//
// Statistics are first captured into Snapshots, which are then converted to
// client_model metric families and encoded with expfmt.
package prometheus

import (
	"bufio"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
	"gvisor.dev/wlan/pkg/wlan"
)

// timeNow is the time.Now() function. Can be mocked in tests.
var timeNow = time.Now

const (
	// DefaultExporterPrefix is prepended to the names of exported statistics.
	DefaultExporterPrefix = "wlan_"

	// HardwareLabel is the label identifying the radio a statistic belongs
	// to.
	HardwareLabel = "hw"
)

// Type is a Prometheus metric type.
type Type int

// List of supported Prometheus metric types.
const (
	TypeUntyped = Type(iota)
	TypeGauge
	TypeCounter
)

func (t Type) dto() dto.MetricType {
	switch t {
	case TypeGauge:
		return dto.MetricType_GAUGE
	case TypeCounter:
		return dto.MetricType_COUNTER
	default:
		return dto.MetricType_UNTYPED
	}
}

// Metric is a Prometheus metric metadata.
type Metric struct {
	// Name is the Prometheus metric name.
	Name string `json:"name"`

	// Type is the type of the metric.
	Type Type `json:"type"`

	// Help is an optional helpful string explaining what the metric is about.
	Help string `json:"help"`
}

// Data is an observation of the value of a single metric at a certain point in time.
type Data struct {
	// Metric is the metric for which the value is being reported.
	Metric *Metric `json:"metric"`

	// Labels is a key-value pair representing the labels set on this metric.
	// This may be merged with other labels during export.
	Labels map[string]string `json:"labels,omitempty"`

	// Value is the observed value. Prometheus values are all float64s.
	Value float64 `json:"val"`
}

// LabeledData returns a new Data struct with the given metric, labels, and value.
func LabeledData(metric *Metric, labels map[string]string, val float64) *Data {
	return &Data{Metric: metric, Labels: labels, Value: val}
}

// Snapshot is a snapshot of the values of all the metrics at a certain point in time.
type Snapshot struct {
	// When is the timestamp at which the snapshot was taken.
	// Note that Prometheus ultimately encodes timestamps as millisecond-precision int64s from epoch.
	When time.Time `json:"when,omitempty"`

	// Data is the whole snapshot data.
	// Each Data must be a unique combination of (Metric, Labels) within a Snapshot.
	Data []*Data `json:"data,omitempty"`
}

// NewSnapshot returns a new Snapshot at the current time.
func NewSnapshot() *Snapshot {
	return &Snapshot{When: timeNow()}
}

// Add data point(s) to the snapshot.
// Returns itself for chainability.
func (s *Snapshot) Add(data ...*Data) *Snapshot {
	s.Data = append(s.Data, data...)
	return s
}

// StatsSnapshot captures every counter of stats, labeled with the radio they
// belong to. Counter names follow the field path, so Rx.Dropped.BadFCS is
// exported as rx_dropped_bad_fcs_total.
func StatsSnapshot(hw wlan.HardwareID, stats *wlan.Stats) *Snapshot {
	s := NewSnapshot()
	labels := map[string]string{HardwareLabel: strconv.FormatUint(uint64(hw), 10)}
	walkStats(reflect.ValueOf(stats).Elem(), nil, func(path []string, c *wlan.StatCounter) {
		if c == nil {
			return
		}
		s.Add(LabeledData(&Metric{
			Name: MetricName(path...) + "_total",
			Type: TypeCounter,
			Help: fmt.Sprintf("Receive path statistic %s.", strings.Join(path, ".")),
		}, labels, float64(c.Value())))
	})
	return s
}

func walkStats(v reflect.Value, path []string, fn func([]string, *wlan.StatCounter)) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		p := append(path[:len(path):len(path)], t.Field(i).Name)
		if c, ok := f.Interface().(*wlan.StatCounter); ok {
			fn(p, c)
			continue
		}
		if f.Kind() == reflect.Struct {
			walkStats(f, p, fn)
		}
	}
}

// MetricName converts Go field names to a snake case metric name. Runs of
// capitals are treated as one word, so "BadFCS" becomes "bad_fcs".
func MetricName(fields ...string) string {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte('_')
		}
		rs := []rune(field)
		for j, r := range rs {
			if j > 0 && unicode.IsUpper(r) {
				prevLower := unicode.IsLower(rs[j-1]) || unicode.IsDigit(rs[j-1])
				nextLower := j+1 < len(rs) && unicode.IsLower(rs[j+1])
				if prevLower || (unicode.IsUpper(rs[j-1]) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// ExportOptions contains options that control how metric data is exported in Prometheus format.
type ExportOptions struct {
	// CommentHeader is prepended as a comment before any metric data is exported.
	CommentHeader string
}

// SnapshotExportOptions contains options that control how metric data is exported for an
// individual Snapshot.
type SnapshotExportOptions struct {
	// ExporterPrefix is prepended to all metric names.
	ExporterPrefix string

	// ExtraLabels is added as labels for all metric values.
	ExtraLabels map[string]string
}

// OrderedLabels returns the list of 'label_key="label_value"' in sorted order.
func OrderedLabels(labels ...map[string]string) ([]string, error) {
	totalLabels := 0
	for _, labelMap := range labels {
		totalLabels += len(labelMap)
	}
	keys := make(map[string]struct{}, totalLabels)
	orderedKeys := make([]string, 0, totalLabels)
	for _, labelMap := range labels {
		for k, v := range labelMap {
			if _, found := keys[k]; found {
				return nil, fmt.Errorf("duplicate label name %q", k)
			}
			keys[k] = struct{}{}
			orderedKeys = append(orderedKeys, fmt.Sprintf("%s=%q", k, v))
		}
	}
	sort.Strings(orderedKeys)
	return orderedKeys, nil
}

// labelPairs merges labels into sorted label pairs.
func labelPairs(labels ...map[string]string) ([]*dto.LabelPair, error) {
	if _, err := OrderedLabels(labels...); err != nil {
		return nil, err
	}
	var pairs []*dto.LabelPair
	for _, labelMap := range labels {
		for k, v := range labelMap {
			pairs = append(pairs, &dto.LabelPair{Name: proto.String(k), Value: proto.String(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].GetName() < pairs[j].GetName()
	})
	return pairs, nil
}

// metric converts d into a client_model metric.
func (d *Data) metric(when time.Time, options SnapshotExportOptions) (*dto.Metric, error) {
	pairs, err := labelPairs(d.Labels, options.ExtraLabels)
	if err != nil {
		return nil, fmt.Errorf("metric %s: %w", d.Metric.Name, err)
	}
	m := &dto.Metric{
		Label:       pairs,
		TimestampMs: proto.Int64(when.UnixMilli()),
	}
	switch d.Metric.Type {
	case TypeCounter:
		m.Counter = &dto.Counter{Value: proto.Float64(d.Value)}
	case TypeGauge:
		m.Gauge = &dto.Gauge{Value: proto.Float64(d.Value)}
	case TypeUntyped:
		m.Untyped = &dto.Untyped{Value: proto.Float64(d.Value)}
	default:
		return nil, fmt.Errorf("unknown metric type for metric %s: %v", d.Metric.Name, d.Metric.Type)
	}
	return m, nil
}

// MetricFamilies converts one or more snapshots to metric families, sorted by
// name. Same-name metrics across different snapshots land in one family.
func MetricFamilies(snapshotsToOptions map[*Snapshot]SnapshotExportOptions) ([]*dto.MetricFamily, error) {
	families := make(map[string]*dto.MetricFamily)
	for snapshot, options := range snapshotsToOptions {
		for _, d := range snapshot.Data {
			name := options.ExporterPrefix + d.Metric.Name
			mf, ok := families[name]
			if !ok {
				mf = &dto.MetricFamily{
					Name: proto.String(name),
					Type: d.Metric.Type.dto().Enum(),
				}
				if d.Metric.Help != "" {
					mf.Help = proto.String(d.Metric.Help)
				}
				families[name] = mf
			} else if mf.GetType() != d.Metric.Type.dto() {
				return nil, fmt.Errorf("metric %s exported with types %v and %v", name, mf.GetType(), d.Metric.Type.dto())
			}
			m, err := d.metric(snapshot.When, options)
			if err != nil {
				return nil, err
			}
			mf.Metric = append(mf.Metric, m)
		}
	}

	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		mf := families[name]
		// Provide a consistent ordering of metrics from different snapshots.
		sort.SliceStable(mf.Metric, func(i, j int) bool {
			return labelString(mf.Metric[i]) < labelString(mf.Metric[j])
		})
		out = append(out, mf)
	}
	return out, nil
}

func labelString(m *dto.Metric) string {
	var b strings.Builder
	for _, p := range m.GetLabel() {
		fmt.Fprintf(&b, "%s=%q,", p.GetName(), p.GetValue())
	}
	return b.String()
}

// countingWriter implements io.Writer, and counts the number of bytes written to it.
type countingWriter struct {
	w       *bufio.Writer
	written int
}

// Write implements io.Writer.Write.
func (w *countingWriter) Write(b []byte) (int, error) {
	written, err := w.w.Write(b)
	w.written += written
	return written, err
}

// Written returns the number of bytes written to the underlying writer (minus buffered writes).
func (w *countingWriter) Written() int {
	return w.written - w.w.Buffered()
}

// Write writes one or more snapshots to the writer and returns the number of
// bytes written.
func Write(w io.Writer, options ExportOptions, snapshotsToOptions map[*Snapshot]SnapshotExportOptions) (int, error) {
	if len(snapshotsToOptions) == 0 {
		return 0, nil
	}
	families, err := MetricFamilies(snapshotsToOptions)
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: bufio.NewWriter(w)}
	if options.CommentHeader != "" {
		for _, commentLine := range strings.Split(options.CommentHeader, "\n") {
			if _, err := io.WriteString(cw, "# "+commentLine+"\n"); err != nil {
				return cw.Written(), err
			}
		}
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cw, mf); err != nil {
			return cw.Written(), err
		}
	}
	if err := cw.w.Flush(); err != nil {
		return cw.Written(), err
	}
	return cw.Written(), nil
}
