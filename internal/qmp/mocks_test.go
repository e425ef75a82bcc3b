package qmp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// call is one command seen by mockExecutor.
type call struct {
	Command string
	Args    any
}

// mockExecutor records commands. MockExecute decides the outcome when set.
type mockExecutor struct {
	mu    sync.Mutex
	calls []call

	MockExecute func(ctx context.Context, command string, args any, out any) error
}

func (m *mockExecutor) Execute(ctx context.Context, command string, args any, out any) error {
	m.mu.Lock()
	m.calls = append(m.calls, call{Command: command, Args: args})
	m.mu.Unlock()
	if m.MockExecute != nil {
		return m.MockExecute(ctx, command, args, out)
	}
	return nil
}

func (m *mockExecutor) recorded() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]call, len(m.calls))
	copy(out, m.calls)
	return out
}

// mockPublisher keeps every published frame.
type mockPublisher struct {
	mu     sync.Mutex
	frames []*schemas.Frame
}

func (m *mockPublisher) Publish(f *schemas.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// fakeServer speaks QMP on one end of a pipe. handle returns the raw JSON
// lines to send back for each request.
type fakeServer struct {
	greeting string
	handle   func(req map[string]any) []string

	mu       sync.Mutex
	requests []map[string]any
}

func (s *fakeServer) received() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.requests))
	copy(out, s.requests)
	return out
}

// start serves until the client side closes. The returned conn is the client end.
func (s *fakeServer) start(t *testing.T) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.serve(server)
	}()
	t.Cleanup(func() {
		client.Close()
		<-done
	})
	return client
}

// listenAfter starts listening on a unix socket at path once delay has passed
// and serves the first connection it accepts.
func (s *fakeServer) listenAfter(t *testing.T, path string, delay time.Duration) {
	t.Helper()
	done := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-time.After(delay):
		case <-stop:
			return
		}
		ln, err := net.Listen("unix", path)
		if err != nil {
			t.Errorf("listen: %v", err)
			return
		}
		go func() {
			<-stop
			ln.Close()
		}()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.serve(conn)
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
	})
}

func (s *fakeServer) serve(server net.Conn) {
	defer server.Close()
	if _, err := server.Write([]byte(s.greeting + "\n")); err != nil {
		return
	}
	dec := json.NewDecoder(server)
	for {
		var req map[string]any
		if err := dec.Decode(&req); err != nil {
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		var replies []string
		if req["execute"] == "qmp_capabilities" {
			replies = []string{`{"return": {}}`}
		} else if s.handle != nil {
			replies = s.handle(req)
		}
		for _, r := range replies {
			if _, err := server.Write([]byte(r + "\n")); err != nil {
				return
			}
		}
	}
}

const greeting = `{"QMP": {"version": {"qemu": {"micro": 0, "minor": 2, "major": 9}}, "capabilities": ["oob"]}}`
