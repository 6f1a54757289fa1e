package engine

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-process Transport: the test plays the server side
// by invoking the handlers directly.
type fakeTransport struct {
	mu        sync.Mutex
	handlers  TransportHandlers
	dialErr   error
	dials     int
	sent      []any
	connected bool
}

func (f *fakeTransport) Connect(h TransportHandlers) error {
	f.mu.Lock()
	f.dials++
	f.handlers = h
	err := f.dialErr
	if err == nil {
		f.connected = true
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if h.OnOpen != nil {
		h.OnOpen()
	}
	return nil
}

func (f *fakeTransport) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.New("fake transport not connected")
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeTransport) sentMessages() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.sent))
	copy(out, f.sent)
	return out
}

// dropConnection simulates the server closing the socket.
func (f *fakeTransport) dropConnection(err error) {
	f.mu.Lock()
	f.connected = false
	h := f.handlers
	f.mu.Unlock()
	if h.OnClose != nil {
		h.OnClose(err)
	}
}

// deliver feeds one server frame through the read path.
func (f *fakeTransport) deliver(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	if h.OnMessage == nil {
		t.Fatalf("transport has no message handler")
	}
	h.OnMessage(data)
}

// waitUntil polls cond with a real-time deadline, so tests stay correct
// whether fake timer callbacks fire synchronously or on their own goroutine.
func waitUntil(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition never held: %s", msg)
}
