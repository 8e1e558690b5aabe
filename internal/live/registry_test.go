package live

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	conn := &websocket.Conn{}

	r.Register("user123", "tab-1", conn)

	if active := r.Get("user123", "tab-1"); active != conn {
		t.Errorf("Expected connection %v, got %v", conn, active)
	}
	if r.Count() != 1 {
		t.Errorf("Expected 1 socket, got %d", r.Count())
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	conn := &websocket.Conn{}

	r.Register("user123", "tab-1", conn)
	r.Unregister("user123", "tab-1", conn)

	if active := r.Get("user123", "tab-1"); active != nil {
		t.Errorf("Expected nil connection, got %v", active)
	}
	if r.Count() != 0 {
		t.Errorf("Expected 0 sockets, got %d", r.Count())
	}
}

func TestRegistry_UnregisterStale(t *testing.T) {
	r := NewRegistry()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	r.Register("user123", "tab-1", conn1)
	r.Register("user123", "tab-2", conn2)

	// A stale unregister for another conn must not drop the active one.
	r.Unregister("user123", "tab-2", conn1)
	r.Unregister("user123", "tab-1", conn1)

	if active := r.Get("user123", "tab-2"); active != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, active)
	}
}

func TestRegistry_CloseMissingIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Close("nobody", "tab")
	r.CloseUser("nobody")
	if r.Count() != 0 {
		t.Errorf("Expected 0 sockets, got %d", r.Count())
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Register("concurrentUser", "tab-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Get("concurrentUser", "tab-"+strconv.Itoa(i))
		}
	}()

	wg.Wait()
	if r.Count() != 1000 {
		t.Errorf("Expected 1000 sockets, got %d", r.Count())
	}
}
