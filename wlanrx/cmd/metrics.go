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
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"gvisor.dev/wlan/pkg/log"
	"gvisor.dev/wlan/pkg/prometheus"
	"gvisor.dev/wlan/pkg/sync"
)

// httpTimeout is the timeout used for all connect/read/write operations of the HTTP server.
const httpTimeout = 1 * time.Minute

// httpResult is returned by HTTP handlers.
type httpResult struct {
	code int
	err  error
}

// httpOK is the "everything went fine" HTTP result.
var httpOK = httpResult{code: http.StatusOK}

// metricServer serves the statistics of a set of radios.
type metricServer struct {
	radios []*radio
	prefix string
	srv    http.Server

	// mu serializes verification so that snapshots are verified in the
	// order they were taken.
	mu       sync.Mutex
	verifier *prometheus.Verifier

	// shuttingDown is set once the server stops serving.
	shuttingDown bool
}

func newMetricServer(prefix string, radios []*radio) (*metricServer, error) {
	verifier, err := prometheus.NewVerifier(snapshot(radios))
	if err != nil {
		return nil, err
	}
	m := &metricServer{
		radios:   radios,
		prefix:   prefix,
		verifier: verifier,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/wlanrx-metrics/healthcheck", logRequest(m.serveHealthCheck))
	mux.HandleFunc("/metrics", logRequest(m.serveMetrics))
	mux.HandleFunc("/", logRequest(m.serveIndex))
	m.srv.Handler = mux
	m.srv.ReadTimeout = httpTimeout
	m.srv.WriteTimeout = httpTimeout
	return m, nil
}

// serve serves on listener until ctx is done.
func (m *metricServer) serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.shuttingDown = true
		m.mu.Unlock()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := m.srv.Shutdown(shutdownCtx); err != nil {
			log.Warningf("Metric server shutdown: %v", err)
		}
	})
	defer stop()

	log.Infof("Metric server serving on %s.", listener.Addr())
	serveErr := m.srv.Serve(listener)
	log.Infof("Metric server has stopped accepting requests.")
	if serveErr == http.ErrServerClosed {
		return nil
	}
	return fmt.Errorf("cannot serve on address %s: %w", listener.Addr(), serveErr)
}

// serveIndex serves the index page.
func (m *metricServer) serveIndex(w http.ResponseWriter, req *http.Request) httpResult {
	if req.URL.Path != "/" {
		if strings.HasPrefix(req.URL.Path, "/metrics?") {
			// Scrapers escape "?" in the metrics path; undo it.
			req.URL.RawQuery = strings.TrimPrefix(req.URL.Path, "/metrics?")
			req.URL.Path = "/metrics"
			return m.serveMetrics(w, req)
		}
		return httpResult{http.StatusNotFound, errors.New("path not found")}
	}
	fmt.Fprintf(w, "<html><head><title>wlanrx metrics</title></head><body>")
	fmt.Fprintf(w, `<p>Receive path statistics are at <a href="/metrics">/metrics</a>.</p>`)
	fmt.Fprintf(w, "</body></html>")
	return httpOK
}

// serveMetrics serves a verified snapshot of every radio.
func (m *metricServer) serveMetrics(w http.ResponseWriter, req *http.Request) httpResult {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return httpResult{http.StatusServiceUnavailable, errors.New("server is shutting down")}
	}
	s := snapshot(m.radios)
	err := m.verifier.Verify(s)
	m.mu.Unlock()
	if err != nil {
		return httpResult{http.StatusInternalServerError, fmt.Errorf("snapshot failed verification: %w", err)}
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := prometheus.Write(w, prometheus.ExportOptions{
		CommentHeader: fmt.Sprintf("wlanrx statistics of %d radios", len(m.radios)),
	}, map[*prometheus.Snapshot]prometheus.SnapshotExportOptions{
		s: {ExporterPrefix: m.prefix},
	}); err != nil {
		// Headers are already sent, so only log.
		log.Warningf("Writing metrics: %v", err)
	}
	return httpOK
}

// serveHealthCheck reports whether the server is serving.
func (m *metricServer) serveHealthCheck(w http.ResponseWriter, req *http.Request) httpResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shuttingDown {
		return httpResult{http.StatusServiceUnavailable, errors.New("server is shutting down")}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "wlanrx-metrics:OK")
	return httpOK
}

// logRequest wraps an HTTP handler and adds logging to it.
func logRequest(f func(w http.ResponseWriter, req *http.Request) httpResult) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		log.Debugf("Request: %s %s", req.Method, req.URL.Path)
		defer func() {
			if r := recover(); r != nil {
				log.Warningf("Request: %s %s: Panic:\n%v", req.Method, req.URL.Path, r)
			}
		}()
		result := f(w, req)
		if result.err != nil {
			http.Error(w, result.err.Error(), result.code)
			log.Warningf("Request: %s %s: Failed with HTTP code %d: %v", req.Method, req.URL.Path, result.code, result.err)
		}
	}
}
