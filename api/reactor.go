// File: api/reactor.go
// Package api defines the reactor-facing contract: bind a listener behind
// a factory, and swap a connection's handler in place.
package api

// HandlerFactory is invoked once per accepted connection with the local
// and remote addresses. Returning (nil, false) refuses the connection;
// the reactor closes it immediately without ever calling OnConnected.
type HandlerFactory func(local, remote string) (ConnHandler, bool)

// Reactor binds listeners and accepts connections, dispatching I/O
// completions to a per-connection ConnHandler. Handler callbacks may run
// on any reactor worker goroutine, but the reactor guarantees at most one
// callback in flight per connection at a time.
type Reactor interface {
	// Bind opens a TCP listener at address and starts accepting
	// connections, handing each to factory. Returns the address actually
	// bound (useful when address ends in ":0").
	Bind(address string, factory HandlerFactory) (string, error)

	// ChangeHandler atomically substitutes conn's handler and invokes
	// OnConnected on the new one. The caller must ensure no receive/send
	// is outstanding at swap time, or that the new handler can absorb it.
	ChangeHandler(conn Conn, h ConnHandler)

	// CloseAll closes every listener and every accepted connection.
	CloseAll()
}
