// File: reactor/reactor.go
package reactor

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/adamnew123456/tabserver/api"
	"github.com/rs/zerolog"
)

// Stats is a point-in-time snapshot of reactor-wide counters.
type Stats struct {
	Accepted int64
	Closed   int64
	Open     int64
}

// Reactor implements api.Reactor.
type Reactor struct {
	log zerolog.Logger

	mu        sync.Mutex
	listeners []net.Listener
	conns     map[*connection]struct{}
	closed    bool

	accepted int64
	closedN  int64
}

// New constructs a Reactor. log is attached to every accept/close/error
// line the reactor emits.
func New(log zerolog.Logger) *Reactor {
	return &Reactor{
		log:   log.With().Str("component", "reactor").Logger(),
		conns: make(map[*connection]struct{}),
	}
}

// Bind opens a TCP listener at address and starts accepting connections
// on a dedicated goroutine, handing each to factory.
func (r *Reactor) Bind(address string, factory api.HandlerFactory) (string, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return "", err
	}
	applyListenerOptions(ln, r.log)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		ln.Close()
		return "", api.ErrTransportClosed
	}
	r.listeners = append(r.listeners, ln)
	r.mu.Unlock()

	go r.acceptLoop(ln, factory)
	return ln.Addr().String(), nil
}

func (r *Reactor) acceptLoop(ln net.Listener, factory api.HandlerFactory) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if r.isClosed() {
				return
			}
			r.log.Warn().Err(err).Msg("accept error")
			continue
		}

		local := nc.LocalAddr().String()
		remote := nc.RemoteAddr().String()
		handler, admit := factory(local, remote)
		if !admit {
			nc.Close()
			continue
		}
		if tc, ok := nc.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}

		atomic.AddInt64(&r.accepted, 1)
		c := newConnection(r, nc, remote)
		c.handler = handler
		r.track(c)
		c.fire(func() { handler.OnConnected(c) })
	}
}

// ChangeHandler atomically substitutes conn's handler and invokes
// OnConnected on the new one. Must be called from within a callback for
// conn (the only place the reactor's per-connection serialization lock
// is already held by the caller), which is how every spec-mandated call
// site uses it (the handshake handler swaps itself for the upstream
// handler from inside its own OnSend completion).
func (r *Reactor) ChangeHandler(conn api.Conn, h api.ConnHandler) {
	c, ok := conn.(*connection)
	if !ok {
		return
	}
	c.handler = h
	h.OnConnected(c)
}

// CloseAll closes every listener and every accepted connection.
func (r *Reactor) CloseAll() {
	r.mu.Lock()
	r.closed = true
	listeners := r.listeners
	r.listeners = nil
	conns := make([]*connection, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
}

// Stats returns a snapshot of accept/close counters and the number of
// connections currently open.
func (r *Reactor) Stats() Stats {
	r.mu.Lock()
	open := len(r.conns)
	r.mu.Unlock()
	return Stats{
		Accepted: atomic.LoadInt64(&r.accepted),
		Closed:   atomic.LoadInt64(&r.closedN),
		Open:     int64(open),
	}
}

func (r *Reactor) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Reactor) track(c *connection) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

func (r *Reactor) untrack(c *connection) {
	r.mu.Lock()
	_, existed := r.conns[c]
	delete(r.conns, c)
	r.mu.Unlock()
	if existed {
		atomic.AddInt64(&r.closedN, 1)
	}
}
