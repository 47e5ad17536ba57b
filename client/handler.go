// File: client/handler.go
package client

import (
	"bytes"

	"github.com/adamnew123456/tabserver/api"
	"github.com/adamnew123456/tabserver/dispatcher"
	"github.com/adamnew123456/tabserver/outbound"
	"github.com/rs/zerolog"
)

// MaxLineBuffer is the receive buffer capacity: the same 65535-byte
// ceiling as a Send command's payload, since every forwarded chunk
// ends up inside one (§9 "source ambiguity" picks 65535 over the
// source's inconsistent 4096/65535 split).
const MaxLineBuffer = 65535

var helloPrefix = []byte("HELLO\n")

type state int

const (
	stateAwaitHello state = iota
	stateAwaitIntro
	stateForward
)

// Handler implements api.ConnHandler for a tabserver client
// connection: HELLO gate, then verbatim forwarding.
type Handler struct {
	pool   api.BufferPool
	poster dispatcher.Poster
	log    zerolog.Logger

	conn api.Conn
	buf  api.Buffer

	filled    int
	lineStart int
	state     state
	closing   bool

	out *outbound.Queue
}

// New constructs a client Handler. poster receives ClientConnected,
// ClientDisconnected, and ForwardToUpstream events.
func New(pool api.BufferPool, poster dispatcher.Poster, log zerolog.Logger) *Handler {
	return &Handler{
		pool:   pool,
		poster: poster,
		log:    log.With().Str("component", "client").Logger(),
		out:    outbound.New(),
	}
}

func (h *Handler) OnConnected(c api.Conn) {
	h.conn = c
	h.buf = h.pool.Get(MaxLineBuffer)
	h.filled = 0
	h.lineStart = 0
	h.state = stateAwaitHello
	h.closing = false
	c.Receive(h.buf.Data[h.filled:])
}

func (h *Handler) OnReceive(c api.Conn, data []byte) {
	h.filled += len(data)

	switch h.state {
	case stateAwaitHello:
		h.scanHello()
	case stateAwaitIntro:
		h.scanIntro()
	}
	if h.state == stateForward {
		h.forward()
	}
	if h.closing {
		return
	}

	h.compact()
	if h.state != stateForward && h.filled == len(h.buf.Data) {
		// HELLO/name sequence never fit: protocol violation (§4.5).
		h.log.Warn().Err(api.ErrLineTooLong).Msg("closing client connection")
		h.conn.Close()
		return
	}

	c.Receive(h.buf.Data[h.filled:])
}

func (h *Handler) scanHello() {
	if h.filled < len(helloPrefix) {
		return
	}
	if !bytes.Equal(h.buf.Data[:len(helloPrefix)], helloPrefix) {
		h.closing = true
		h.conn.Close()
		return
	}
	h.lineStart = len(helloPrefix)
	h.state = stateAwaitIntro
	h.scanIntro()
}

func (h *Handler) scanIntro() {
	idx := bytes.IndexByte(h.buf.Data[h.lineStart:h.filled], '\n')
	if idx < 0 {
		return
	}
	nameEnd := h.lineStart + idx
	name := append([]byte(nil), h.buf.Data[h.lineStart:nameEnd]...)
	h.lineStart = nameEnd + 1
	h.state = stateForward
	h.poster.Post(dispatcher.ClientConnectedEvent(h, name))
}

func (h *Handler) forward() {
	if h.lineStart >= h.filled {
		return
	}
	payload := append([]byte(nil), h.buf.Data[h.lineStart:h.filled]...)
	h.lineStart = h.filled
	h.poster.Post(dispatcher.ForwardToUpstreamEvent(h, payload))
}

func (h *Handler) compact() {
	if h.lineStart == 0 {
		return
	}
	remaining := h.filled - h.lineStart
	copy(h.buf.Data, h.buf.Data[h.lineStart:h.filled])
	h.filled = remaining
	h.lineStart = 0
}

func (h *Handler) OnSend(c api.Conn) {
	next, ok := h.out.Completed()
	if !ok {
		return
	}
	c.SendAll(next.Data)
}

func (h *Handler) OnClose(api.Conn) {
	if h.buf.Data != nil {
		h.buf.Release()
		h.buf = api.Buffer{}
	}
	if h.state == stateForward {
		h.poster.Post(dispatcher.ClientDisconnectedEvent(h))
	}
}

// SendMessage implements dispatcher.Handle: enqueue buf (already
// containing the exact bytes to write) and start a send if idle.
func (h *Handler) SendMessage(buf api.Buffer) {
	head, start := h.out.Enqueue(buf)
	if start {
		h.conn.SendAll(head.Data)
	}
}

// Close implements dispatcher.Handle.
func (h *Handler) Close() {
	h.conn.Close()
}
