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
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gvisor.dev/wlan/pkg/wlan/stack"
	"gvisor.dev/wlan/pkg/wlan/station"
)

func newTestRadio(t *testing.T) *radio {
	t.Helper()
	conf := replayConfig("")
	rd, err := newRadio(conf, &conf.Hardware[0], "", nil)
	if err != nil {
		t.Fatalf("newRadio(_) = %v", err)
	}
	t.Cleanup(func() { rd.close() })
	return rd
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("http.Get(%q) = %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading %q: %v", url, err)
	}
	return resp.StatusCode, string(b)
}

func TestMetricServer(t *testing.T) {
	rd := newTestRadio(t)
	m, err := newMetricServer("wlan_", []*radio{rd})
	if err != nil {
		t.Fatalf("newMetricServer(_) = %v", err)
	}
	srv := httptest.NewServer(m.srv.Handler)
	defer srv.Close()

	d := stack.New(station.NewTable(), stack.Options{})
	for i := uint16(0); i < 3; i++ {
		d.Receive(rd.hw, nil, stack.NewFrame(dataFrame(i, "payload"), stack.RxInfo{}, nil))
	}

	for _, path := range []string{"/metrics", "/metrics%3Fquery"} {
		code, body := get(t, srv.URL+path)
		if code != http.StatusOK {
			t.Fatalf("GET %s: got status %d, want %d: %s", path, code, http.StatusOK, body)
		}
		for _, want := range []string{
			`wlan_rx_frames_total{hw="1"} 3`,
			`wlan_rx_packets_total{hw="1"} 3`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("GET %s: body does not contain %q:\n%s", path, want, body)
			}
		}
	}

	if code, _ := get(t, srv.URL+"/wlanrx-metrics/healthcheck"); code != http.StatusOK {
		t.Errorf("GET healthcheck: got status %d, want %d", code, http.StatusOK)
	}
	if code, _ := get(t, srv.URL+"/nope"); code != http.StatusNotFound {
		t.Errorf("GET /nope: got status %d, want %d", code, http.StatusNotFound)
	}
}

func TestMetricServerShutdown(t *testing.T) {
	m, err := newMetricServer("wlan_", []*radio{newTestRadio(t)})
	if err != nil {
		t.Fatalf("newMetricServer(_) = %v", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen(_) = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.serve(ctx, listener)
	}()

	if code, _ := get(t, "http://"+listener.Addr().String()+"/wlanrx-metrics/healthcheck"); code != http.StatusOK {
		t.Errorf("GET healthcheck: got status %d, want %d", code, http.StatusOK)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve(_) = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after cancellation")
	}
}
