// File: reactor/connection.go
package reactor

import (
	"io"
	"sync/atomic"

	"github.com/adamnew123456/tabserver/api"
)

// connection implements api.Conn. A single channel-based gate (cbMu,
// acquired only inside fire) guarantees that OnConnected/OnReceive/
// OnSend/OnClose for this connection never run concurrently, regardless
// of which goroutine — an accept, a read, a write, or a close — produced
// the completion.
type connection struct {
	r      *Reactor
	nc     netConn
	remote string

	handler api.ConnHandler
	cbMu    chan struct{} // 1-buffered channel used as a non-reentrant gate

	closed atomic.Bool
}

// netConn is the subset of net.Conn the connection type drives.
type netConn interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}

func newConnection(r *Reactor, nc netConn, remote string) *connection {
	c := &connection{
		r:      r,
		nc:     nc,
		remote: remote,
		cbMu:   make(chan struct{}, 1),
	}
	c.cbMu <- struct{}{}
	return c
}

// fire runs f on a fresh goroutine after acquiring the per-connection
// gate, guaranteeing serialization without risking self-deadlock when a
// handler calls back into the reactor (e.g. ChangeHandler, or Close)
// from within its own callback.
func (c *connection) fire(f func()) {
	go func() {
		<-c.cbMu
		defer func() { c.cbMu <- struct{}{} }()
		f()
	}()
}

// Receive schedules a single asynchronous read into dst.
func (c *connection) Receive(dst []byte) {
	go func() {
		n, err := c.nc.Read(dst)
		if err != nil || n == 0 {
			c.shutdown()
			return
		}
		data := dst[:n]
		c.fire(func() { c.handler.OnReceive(c, data) })
	}()
}

// SendAll writes every byte of src, looping across partial writes.
func (c *connection) SendAll(src []byte) {
	go func() {
		if err := writeFull(c.nc, src); err != nil {
			c.shutdown()
			return
		}
		c.fire(func() { c.handler.OnSend(c) })
	}()
}

func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Close closes the underlying socket; OnClose fires exactly once no
// matter how many times Close is called or how it was triggered.
func (c *connection) Close() {
	c.shutdown()
}

func (c *connection) shutdown() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	_ = c.nc.Close()
	c.r.untrack(c)
	c.fire(func() { c.handler.OnClose(c) })
}

// RemoteAddr returns the peer address captured at accept time.
func (c *connection) RemoteAddr() string { return c.remote }
