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
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"gvisor.dev/wlan/pkg/sync"
)

// verifiableMetric verifies a single metric within a Verifier.
type verifiableMetric struct {
	wantMetric Metric

	// lastCounterValue is used for counter metrics to verify that values
	// are actually increasing monotonically. It is mapped by label values
	// and only read and modified when the parent Verifier.mu is held.
	lastCounterValue map[string]float64
}

func newVerifiableMetric(m *Metric) (*verifiableMetric, error) {
	if m.Name == "" {
		return nil, errors.New("metric has no name")
	}
	if !model.IsValidMetricName(model.LabelValue(m.Name)) {
		return nil, fmt.Errorf("invalid prometheus metric name %q", m.Name)
	}
	switch m.Type {
	case TypeCounter, TypeGauge, TypeUntyped:
	default:
		return nil, fmt.Errorf("invalid type: %v", m.Type)
	}
	return &verifiableMetric{
		wantMetric:       *m,
		lastCounterValue: make(map[string]float64),
	}, nil
}

// verify does read-only checks on data. labelsSeen is passed across calls to
// verify and holds the canonical label string of every data point of the
// metric seen so far.
func (v *verifiableMetric) verify(data *Data, labelsSeen map[string]struct{}) (string, error) {
	if *data.Metric != v.wantMetric {
		return "", fmt.Errorf("invalid metric definition: got %+v want %+v", data.Metric, v.wantMetric)
	}
	for name := range data.Labels {
		if !model.LabelName(name).IsValid() {
			return "", fmt.Errorf("invalid label name %q", name)
		}
	}
	ordered, err := OrderedLabels(data.Labels)
	if err != nil {
		return "", err
	}
	labels := strings.Join(ordered, ",")
	if _, alreadySeen := labelsSeen[labels]; alreadySeen {
		return "", fmt.Errorf("combination of labels %q was already seen", labels)
	}
	if math.IsNaN(data.Value) {
		return "", errors.New("value is NaN")
	}
	if v.wantMetric.Type == TypeCounter && (data.Value < 0 || math.Trunc(data.Value) != data.Value) {
		return "", fmt.Errorf("counter got non-integer or negative value: %v", data.Value)
	}
	labelsSeen[labels] = struct{}{}
	return labels, nil
}

// verifyIncrement verifies that counters are monotonically increasing.
// Preconditions: verify has succeeded on the given data, and Verifier.mu is
// held.
func (v *verifiableMetric) verifyIncrement(data *Data, labels string) error {
	if v.wantMetric.Type != TypeCounter {
		return nil
	}
	if last := v.lastCounterValue[labels]; last > data.Value {
		return fmt.Errorf("counter value decreased from %v to %v", last, data.Value)
	}
	return nil
}

// update updates counters' "last seen" data.
// Preconditions: verifyIncrement has succeeded on the given data, and
// Verifier.mu is held.
func (v *verifiableMetric) update(data *Data, labels string) {
	if v.wantMetric.Type == TypeCounter {
		v.lastCounterValue[labels] = data.Value
	}
}

// Verifier checks snapshots against a fixed set of metrics before they are
// exported. It is expected to be reused across exports such that it can
// enforce the export snapshot timestamp is monotonically increasing and
// counters never go backwards.
type Verifier struct {
	knownMetrics  map[string]*verifiableMetric
	mu            sync.Mutex
	lastTimestamp time.Time
}

// NewVerifier returns a new metric verifier that knows the metrics of
// template, typically a snapshot of zeroed statistics.
func NewVerifier(template *Snapshot) (*Verifier, error) {
	knownMetrics := make(map[string]*verifiableMetric)
	for _, data := range template.Data {
		metricName := data.Metric.Name
		if known, alreadyExists := knownMetrics[metricName]; alreadyExists {
			if known.wantMetric != *data.Metric {
				return nil, fmt.Errorf("metric %q registered twice with different definitions", metricName)
			}
			continue
		}
		verifiableM, err := newVerifiableMetric(data.Metric)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %v", metricName, err)
		}
		knownMetrics[metricName] = verifiableM
	}
	return &Verifier{
		knownMetrics: knownMetrics,
	}, nil
}

// Verify verifies the integrity of a snapshot against the metrics known to
// the Verifier. It assumes that it will be called on snapshots obtained
// chronologically over time.
func (v *Verifier) Verify(snapshot *Snapshot) error {
	labelsSeen := make(map[string]map[string]struct{}, len(v.knownMetrics))
	dataLabels := make(map[*Data]string, len(snapshot.Data))
	for _, data := range snapshot.Data {
		metricName := data.Metric.Name
		verifiableM, found := v.knownMetrics[metricName]
		if !found {
			return fmt.Errorf("snapshot contains unknown metric %q", metricName)
		}
		seen, found := labelsSeen[metricName]
		if !found {
			seen = make(map[string]struct{})
			labelsSeen[metricName] = seen
		}
		labels, err := verifiableM.verify(data, seen)
		if err != nil {
			return fmt.Errorf("metric %q: %v", metricName, err)
		}
		dataLabels[data] = labels
	}

	// Start the critical section.
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lastTimestamp.After(snapshot.When) {
		return fmt.Errorf("consecutive snapshots are not chronologically ordered: last verified snapshot was exported at %v, this one is from %v", v.lastTimestamp, snapshot.When)
	}
	for _, data := range snapshot.Data {
		if err := v.knownMetrics[data.Metric.Name].verifyIncrement(data, dataLabels[data]); err != nil {
			return fmt.Errorf("metric %q: %v", data.Metric.Name, err)
		}
	}

	// All checks succeeded, update last-seen data.
	v.lastTimestamp = snapshot.When
	for _, data := range snapshot.Data {
		v.knownMetrics[data.Metric.Name].update(data, dataLabels[data])
	}
	return nil
}
