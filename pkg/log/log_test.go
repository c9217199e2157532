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

package log

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

// messages joins everything written and splits it into newline terminated
// messages.
func (w *testWriter) messages() []string {
	out := strings.Join(w.lines, "")
	msgs := strings.SplitAfter(out, "\n")
	if msgs[len(msgs)-1] == "" {
		msgs = msgs[:len(msgs)-1]
	}
	return msgs
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	expected := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if len(tw.lines) != len(expected) {
		t.Fatalf("Writer should have logged %d lines, got: %v, expected: %v", len(expected), tw.lines, expected)
	}
	for i, l := range tw.lines {
		if l != expected[i] {
			t.Fatalf("line %d doesn't match, got: %q, expected: %q", i, l, expected[i])
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Warningf("shown %d", 3)
	if got, want := len(tw.messages()), 2; got != want {
		t.Fatalf("got %d messages (%q), want %d", got, tw.messages(), want)
	}
	l.SetLevel(Debug)
	l.Debugf("now shown")
	if got, want := len(tw.messages()), 3; got != want {
		t.Errorf("got %d lines after SetLevel(Debug), want %d", got, want)
	}
}

func TestGoogleEmitter(t *testing.T) {
	tw := &testWriter{}
	g := GoogleEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.May, 7, 8, 9, 10, 11000, time.UTC)
	g.Emit(0, Warning, ts, "frame %d dropped", 7)
	msgs := tw.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	line := msgs[0]
	if !strings.HasPrefix(line, "W0507 08:09:10.000011 ") {
		t.Errorf("line %q has wrong header", line)
	}
	if !strings.HasSuffix(line, "] frame 7 dropped\n") {
		t.Errorf("line %q has wrong message", line)
	}
	if !strings.Contains(line, "log_test.go:") {
		t.Errorf("line %q does not name the caller", line)
	}
}

// Tests that Level can marshal/unmarshal properly.
func TestLevelMarshal(t *testing.T) {
	lvs := []Level{Warning, Info, Debug}
	for _, lv := range lvs {
		bs, err := lv.MarshalJSON()
		if err != nil {
			t.Errorf("error marshaling %v: %v", lv, err)
		}
		var lv2 Level
		if err := lv2.UnmarshalJSON(bs); err != nil {
			t.Errorf("error unmarshaling %v: %v", bs, err)
		}
		if lv != lv2 {
			t.Errorf("marshal/unmarshal level got %v wanted %v", lv2, lv)
		}
	}
}

func TestJSONEmitter(t *testing.T) {
	tw := &testWriter{}
	e := JSONEmitter{&Writer{Next: tw}}
	e.Emit(0, Info, time.Unix(0, 0).UTC(), "hw%d up", 3)
	if len(tw.lines) == 0 {
		t.Fatalf("nothing written")
	}
	var got jsonLog
	if err := json.Unmarshal([]byte(tw.lines[0]), &got); err != nil {
		t.Fatalf("json.Unmarshal(%q): %v", tw.lines[0], err)
	}
	if got.Level != Info || got.Msg != "hw3 up" {
		t.Errorf("got %+v, want level info and message \"hw3 up\"", got)
	}
	if !strings.HasPrefix(got.Caller, "log_test.go:") {
		t.Errorf("got caller %q, want log_test.go:<line>", got.Caller)
	}
}

func TestLevelUnmarshalJSON(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "1", want: Info},
		{in: `"warn"`, want: Warning},
		{in: `"DEBUG"`, want: Debug},
		{in: "7", wantErr: true},
		{in: `""`, wantErr: true},
		{in: "debug", wantErr: true},
	} {
		var got Level
		err := got.UnmarshalJSON([]byte(tc.in))
		if (err != nil) != tc.wantErr || (err == nil && got != tc.want) {
			t.Errorf("UnmarshalJSON(%s) = %v, %v; want %v, err=%t", tc.in, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: Debug},
		{in: "WARNING", want: Warning},
		{in: "", want: Info},
		{in: "verbose", want: Info, wantErr: true},
	} {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, err=%t", tc.in, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}, time.Hour)
	for i := 0; i < 10; i++ {
		l.Debugf("drop %d", i)
	}
	if got, want := len(tw.messages()), 1; got != want {
		t.Errorf("rate limited logger wrote %d messages, want %d", got, want)
	}
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = false, want true")
	}

	// Lift the limit: the next message reports the suppressed ones.
	l.(*rateLimitedLogger).limit.SetLimit(rate.Inf)
	l.Debugf("drop %d", 10)
	msgs := tw.messages()
	if got, want := msgs[len(msgs)-1], "drop 10 (9 messages suppressed)\n"; got != want {
		t.Errorf("got message %q, want %q", got, want)
	}
}
