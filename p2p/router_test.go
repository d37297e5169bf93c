package p2p

import (
	"testing"
	"time"

	"github.com/xaichain/xaid/wire"
)

func TestRouterDispatchesByCommand(t *testing.T) {
	router := NewRouter(wire.CmdPing, wire.CmdPong)

	if err := router.Dispatch(&wire.MsgPing{Nonce: 7}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	route, ok := router.RouteTo(wire.CmdPing)
	if !ok {
		t.Fatal("expected a route registered for CmdPing")
	}
	msg, err := route.DequeueWithTimeout(time.Second)
	if err != nil {
		t.Fatalf("DequeueWithTimeout: %v", err)
	}
	ping, ok := msg.(*wire.MsgPing)
	if !ok || ping.Nonce != 7 {
		t.Fatalf("expected to dequeue the dispatched ping, got %#v", msg)
	}
}

func TestRouterRejectsUnregisteredCommand(t *testing.T) {
	router := NewRouter(wire.CmdPing)
	if err := router.Dispatch(&wire.MsgPong{Nonce: 1}); err == nil {
		t.Fatal("expected dispatch of an unregistered command to fail")
	}
}

func TestRouteDequeueTimesOutWhenEmpty(t *testing.T) {
	route := NewRoute()
	if _, err := route.DequeueWithTimeout(10 * time.Millisecond); err == nil {
		t.Fatal("expected a timeout on an empty route")
	}
}

func TestRouterCloseUnblocksDequeue(t *testing.T) {
	router := NewRouter(wire.CmdPing)
	route, _ := router.RouteTo(wire.CmdPing)

	done := make(chan error, 1)
	go func() {
		_, err := route.Dequeue()
		done <- err
	}()

	router.Close()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a closed route to unblock Dequeue with an error")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock a pending Dequeue")
	}
}
