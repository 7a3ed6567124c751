// Package testutil provides testing utilities and helpers for backend tests.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Epoch is the fixed start time of every ManualClock.
var Epoch = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// ManualClock is a resilience.Clock whose time only moves when Sleep or
// Advance is called. Sleeps return immediately and are recorded.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewManualClock creates a clock starting at Epoch.
func NewManualClock() *ManualClock {
	return &ManualClock{now: Epoch}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d and records the duration.
func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Advance moves the clock forward without recording a sleep.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns a copy of every recorded sleep.
func (c *ManualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// RecordedRequest is one request captured by a ScriptedServer.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
	At     time.Time
}

// Reply is a canned response. Delay holds the reply back on the wall clock.
type Reply struct {
	Status int
	Body   string
	Header map[string]string
	Delay  time.Duration
}

// ScriptedServer replays replies in order and repeats the last one once the
// script runs out. Every request is recorded.
type ScriptedServer struct {
	*httptest.Server

	mu       sync.Mutex
	script   []Reply
	requests []RecordedRequest
}

// NewScriptedServer starts a server that is closed when the test ends.
func NewScriptedServer(t *testing.T, script ...Reply) *ScriptedServer {
	t.Helper()

	s := &ScriptedServer{script: script}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *ScriptedServer) handle(w http.ResponseWriter, r *http.Request) {
	at := time.Now()
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	idx := len(s.requests)
	s.requests = append(s.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
		At:     at,
	})
	reply := Reply{Status: http.StatusOK, Body: "{}"}
	if len(s.script) > 0 {
		if idx >= len(s.script) {
			idx = len(s.script) - 1
		}
		reply = s.script[idx]
	}
	s.mu.Unlock()

	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for k, v := range reply.Header {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	_, _ = io.WriteString(w, reply.Body)
}

// Requests returns a copy of the recorded requests.
func (s *ScriptedServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Hits returns how many requests reached the server.
func (s *ScriptedServer) Hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
