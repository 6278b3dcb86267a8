package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Monitor captures browser-side signals for one session: console errors and
// request outcomes. Runners attach the snapshot to case diagnostics.
type Monitor struct {
	mu sync.Mutex

	totalRequests  int
	failedRequests []FailedRequest
	consoleErrors  []string

	cancel context.CancelFunc
	done   chan struct{}
}

// FailedRequest is a request that errored or returned a 4xx/5xx status.
type FailedRequest struct {
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

const maxMonitorEntries = 200

func newMonitor(page *rod.Page, logger *zap.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{cancel: cancel, done: make(chan struct{})}

	requests := make(map[proto.NetworkRequestID]FailedRequest)
	var reqMu sync.Mutex

	wait := page.Context(ctx).EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			reqMu.Lock()
			requests[ev.RequestID] = FailedRequest{URL: ev.Request.URL, Method: ev.Request.Method}
			reqMu.Unlock()
			m.mu.Lock()
			m.totalRequests++
			m.mu.Unlock()
		},
		func(ev *proto.NetworkResponseReceived) {
			if ev.Response == nil || ev.Response.Status < 400 {
				return
			}
			reqMu.Lock()
			fr := requests[ev.RequestID]
			reqMu.Unlock()
			fr.Status = ev.Response.Status
			if fr.URL == "" {
				fr.URL = ev.Response.URL
			}
			m.record(fr)
		},
		func(ev *proto.NetworkLoadingFailed) {
			if ev.Canceled {
				return
			}
			reqMu.Lock()
			fr := requests[ev.RequestID]
			reqMu.Unlock()
			fr.Error = ev.ErrorText
			m.record(fr)
		},
		func(ev *proto.RuntimeConsoleAPICalled) {
			if ev.Type != proto.RuntimeConsoleAPICalledTypeError {
				return
			}
			parts := make([]string, 0, len(ev.Args))
			for _, a := range ev.Args {
				if a == nil {
					continue
				}
				if !a.Value.Nil() {
					parts = append(parts, a.Value.String())
				} else if a.Description != "" {
					parts = append(parts, a.Description)
				}
			}
			m.mu.Lock()
			if len(m.consoleErrors) < maxMonitorEntries {
				m.consoleErrors = append(m.consoleErrors, strings.Join(parts, " "))
			}
			m.mu.Unlock()
		},
	)

	go func() {
		defer close(m.done)
		wait()
	}()
	_ = logger
	return m
}

func (m *Monitor) record(fr FailedRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.failedRequests) < maxMonitorEntries {
		m.failedRequests = append(m.failedRequests, fr)
	}
}

// Stop detaches the event stream.
func (m *Monitor) Stop() {
	m.cancel()
	<-m.done
}

// Snapshot returns the monitoring state in the shape case messages carry:
// a "network" entry with request counts and failures, and a "console" entry
// with error lines.
func (m *Monitor) Snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	failed := make([]FailedRequest, len(m.failedRequests))
	copy(failed, m.failedRequests)
	console := make([]string, len(m.consoleErrors))
	copy(console, m.consoleErrors)

	return map[string]interface{}{
		"network": map[string]interface{}{
			"total_requests_count":  m.totalRequests,
			"failed_requests_count": len(failed),
			"failed_requests":       failed,
		},
		"console": map[string]interface{}{
			"error_count": len(console),
			"errors":      console,
		},
	}
}
