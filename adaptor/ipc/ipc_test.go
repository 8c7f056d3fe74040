package ipc

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestQueueOrdering(t *testing.T) {
	q := NewQueue()
	q.Enqueue(NewAction("scene_file", nil))
	q.Enqueue(NewAction("start_render", nil))
	q.EnqueueFront(NewAction(ActionClose, nil))

	expected := []string{ActionClose, "scene_file", "start_render"}
	for _, name := range expected {
		a, ok := q.Pop()
		if !ok {
			t.Fatalf("Queue empty, expected %s", name)
		}
		if a.Name != name {
			t.Fatalf("Expected %s, got %s", name, a.Name)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("Expected empty queue")
	}
}

func TestQueueIdleTracksInFlight(t *testing.T) {
	q := NewQueue()
	q.Enqueue(NewAction("scene_file", nil))
	if q.Idle() {
		t.Fatalf("Queue with pending action should not be idle")
	}
	q.Pop()
	if q.Idle() {
		t.Fatalf("Queue with in flight action should not be idle")
	}
	q.Done()
	if !q.Idle() {
		t.Fatalf("Drained queue should be idle")
	}
}

func TestServerClientRoundTrip(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "adaptor.sock")
	q := NewQueue()
	q.Enqueue(NewAction("renderer", map[string]interface{}{"renderer": "Default_Scanline_Renderer"}))
	q.Enqueue(NewAction("scene_file", map[string]interface{}{"scene_file": "/tmp/scene.max"}))

	s := NewServer(q)
	if err := s.Listen(socket); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go s.Serve()
	defer s.Stop()

	c, err := Dial(socket, 5*time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	a, ok, err := c.Next()
	if err != nil || !ok {
		t.Fatalf("Next failed: ok=%v err=%v", ok, err)
	}
	if a.Name != "renderer" {
		t.Fatalf("Expected renderer action first, got %s", a.Name)
	}
	if err := c.Done(a.ID, ""); err != nil {
		t.Fatalf("Done failed: %v", err)
	}

	a, ok, err = c.Next()
	if err != nil || !ok || a.Name != "scene_file" {
		t.Fatalf("Expected scene_file action, got %+v ok=%v err=%v", a, ok, err)
	}
	if got := a.Params["scene_file"]; got != "/tmp/scene.max" {
		t.Fatalf("Unexpected params: %v", a.Params)
	}
	if err := c.Done(a.ID, "scene missing"); err != nil {
		t.Fatalf("Done failed: %v", err)
	}

	select {
	case err := <-s.ActionErrors:
		if err == nil {
			t.Fatalf("Expected an action error")
		}
	case <-time.After(time.Second):
		t.Fatalf("Timed out waiting for the action error")
	}

	if _, ok, err := c.Next(); err != nil || ok {
		t.Fatalf("Expected empty queue, got ok=%v err=%v", ok, err)
	}
	if !q.Idle() {
		t.Fatalf("Queue should be idle after the client drained it")
	}
}

func TestStopClosesActionErrors(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "adaptor.sock")
	s := NewServer(NewQueue())
	if err := s.Listen(socket); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go s.Serve()

	s.Stop()
	select {
	case _, ok := <-s.ActionErrors:
		if ok {
			t.Fatalf("Expected ActionErrors to be closed, got a value")
		}
	case <-time.After(time.Second):
		t.Fatalf("ActionErrors still open after Stop")
	}

	// A second Stop and a late error report are both no-ops.
	s.Stop()
	s.reportActionError(os.ErrClosed)
}

func TestStaleSocketReplaced(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "adaptor.sock")

	first := NewServer(NewQueue())
	if err := first.Listen(socket); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	// Simulate a crash: close the listener but leave the socket file behind.
	first.listener.Close()
	if _, err := os.Stat(socket); err != nil {
		// Go removes the socket file on Close; recreate the stale file.
		if err := os.WriteFile(socket, nil, 0600); err != nil {
			t.Fatalf("Could not plant stale socket: %v", err)
		}
	}

	second := NewServer(NewQueue())
	if err := second.Listen(socket); err != nil {
		t.Fatalf("Listen over stale socket failed: %v", err)
	}
	second.Stop()
}

func TestConnectionFileLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.json")
	cf := ConnectionFile{Socket: "/tmp/s.sock", PID: 42, Session: "abc"}
	if err := WriteConnectionFile(path, cf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := WriteConnectionFile(path, cf); err == nil {
		t.Fatalf("Expected error overwriting connection file")
	}
	got, err := ReadConnectionFile(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != cf {
		t.Fatalf("Round trip mismatch: %+v vs %+v", got, cf)
	}
	if err := RemoveConnectionFile(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := RemoveConnectionFile(path); err != nil {
		t.Fatalf("Remove of missing file should be nil, got %v", err)
	}
}
