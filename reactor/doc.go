// File: reactor/doc.go
//
// Package reactor implements the broker's async socket layer: it binds
// listeners, accepts connections, and dispatches receive/send/close
// completions to a per-connection api.ConnHandler, guaranteeing at most
// one callback in flight per connection at a time.
//
// Each accepted connection is driven by blocking net.Conn I/O parked on
// its own goroutine; the Go runtime's netpoller (epoll on Linux, IOCP on
// Windows, kqueue on BSD/Darwin) is what actually multiplexes the
// underlying file descriptors across a small number of OS threads, which
// is exactly the "parallel reactor workers" model this package's API is
// shaped for — see DESIGN.md for why a second, hand-rolled epoll loop on
// top of net.Conn is not duplicated here.
package reactor
