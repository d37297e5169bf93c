package p2p

import (
	"time"

	"github.com/pkg/errors"

	"github.com/xaichain/xaid/wire"
)

// ErrTimeout signifies that a Route wait expired.
var ErrTimeout = errors.New("timeout expired")

// ErrRouteClosed indicates a Route was closed while reading or writing.
var ErrRouteClosed = errors.New("route is closed")

const defaultRouteCapacity = 100

// Route is a single command's inbound message queue: the router hands
// every verified envelope to the route matching its payload's command,
// and the protocol handler (request/response or sync) reads off that
// route at its own pace.
type Route struct {
	channel chan wire.Message
	closed  bool
}

// NewRoute returns an empty route with the default capacity.
func NewRoute() *Route {
	return &Route{channel: make(chan wire.Message, defaultRouteCapacity)}
}

// Enqueue pushes a message onto the route, returning ErrRouteClosed if
// the route has already been closed.
func (r *Route) Enqueue(msg wire.Message) error {
	if r.closed {
		return errors.WithStack(ErrRouteClosed)
	}
	select {
	case r.channel <- msg:
		return nil
	default:
		return errors.Errorf("route for %s is at capacity", msg.Command())
	}
}

// Dequeue blocks until a message is available or the route closes.
func (r *Route) Dequeue() (wire.Message, error) {
	msg, open := <-r.channel
	if !open {
		return nil, errors.WithStack(ErrRouteClosed)
	}
	return msg, nil
}

// DequeueWithTimeout is Dequeue bounded by timeout, the
// PeerRPCTimeout ceiling every request/response round trip is held to.
func (r *Route) DequeueWithTimeout(timeout time.Duration) (wire.Message, error) {
	select {
	case <-time.After(timeout):
		return nil, errors.Wrapf(ErrTimeout, "no message within %s", timeout)
	case msg, open := <-r.channel:
		if !open {
			return nil, errors.WithStack(ErrRouteClosed)
		}
		return msg, nil
	}
}

// Close closes the route; any blocked Dequeue returns ErrRouteClosed.
func (r *Route) Close() {
	if r.closed {
		return
	}
	r.closed = true
	close(r.channel)
}

// Router demultiplexes an authenticated peer connection's inbound
// messages by command into per-command Routes, grounded on the
// teacher's netadapter/router split between transport and protocol
// handling.
type Router struct {
	routes map[wire.MessageCommand]*Route
}

// NewRouter allocates a route for every command this peer connection
// may legitimately receive.
func NewRouter(commands ...wire.MessageCommand) *Router {
	r := &Router{routes: make(map[wire.MessageCommand]*Route, len(commands))}
	for _, cmd := range commands {
		r.routes[cmd] = NewRoute()
	}
	return r
}

// RouteTo returns the route registered for cmd, if any.
func (r *Router) RouteTo(cmd wire.MessageCommand) (*Route, bool) {
	route, ok := r.routes[cmd]
	return route, ok
}

// AddRoute registers route under cmd, replacing whatever NewRouter
// allocated for it. Registering the same *Route under more than one
// command lets a caller fan several reply commands into one channel —
// a sync.Flow reads a single ordered stream of "whatever this peer
// sent back", which may be a MsgHeaders or a MsgIBDBlock depending on
// which request is outstanding.
func (r *Router) AddRoute(cmd wire.MessageCommand, route *Route) {
	r.routes[cmd] = route
}

// Dispatch enqueues msg onto the route matching its command.
func (r *Router) Dispatch(msg wire.Message) error {
	route, ok := r.routes[msg.Command()]
	if !ok {
		return errors.Errorf("no route registered for command %s", msg.Command())
	}
	return route.Enqueue(msg)
}

// Close closes every registered route.
func (r *Router) Close() {
	for _, route := range r.routes {
		route.Close()
	}
}
