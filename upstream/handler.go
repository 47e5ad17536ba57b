// File: upstream/handler.go
package upstream

import (
	"sync/atomic"

	"github.com/adamnew123456/tabserver/api"
	"github.com/adamnew123456/tabserver/dispatcher"
	"github.com/adamnew123456/tabserver/outbound"
	"github.com/adamnew123456/tabserver/protocol"
	"github.com/rs/zerolog"
)

// recvChunkSize is the size of the fixed read buffer re-armed after
// every completed receive; the frame parser owns any buffering needed
// across chunk boundaries, so this handler never compacts or resizes
// it.
const recvChunkSize = 65536

// Handler implements api.ConnHandler for the single upstream WebSocket
// connection, taking ownership of the socket once the handshake handler
// swaps it in.
type Handler struct {
	pool   api.BufferPool
	poster dispatcher.Poster
	log    zerolog.Logger

	conn   api.Conn
	parser *protocol.Parser
	out    *outbound.Queue

	recvBuf      api.Buffer
	sendingClose atomic.Bool
}

// New constructs an upstream Handler. poster receives UpstreamConnected,
// UpstreamDisconnected, and ForwardToClient events.
func New(pool api.BufferPool, poster dispatcher.Poster, log zerolog.Logger) *Handler {
	return &Handler{
		pool:   pool,
		poster: poster,
		log:    log.With().Str("component", "upstream").Logger(),
		out:    outbound.New(),
	}
}

func (h *Handler) OnConnected(c api.Conn) {
	h.conn = c
	h.parser = protocol.NewParser(h.pool)
	h.recvBuf = h.pool.Get(recvChunkSize)
	h.sendingClose.Store(false)
	h.poster.Post(dispatcher.UpstreamConnectedEvent(h))
	c.Receive(h.recvBuf.Data)
}

func (h *Handler) OnReceive(c api.Conn, data []byte) {
	if err := h.parser.Feed(data, h.onFrame); err != nil {
		h.log.Warn().Err(err).Msg("upstream protocol violation, closing")
		c.Close()
		return
	}
	if h.sendingClose.Load() {
		// Close already enqueued; no further receives per §4.4.
		return
	}
	c.Receive(h.recvBuf.Data)
}

// onFrame is the parser delivery callback: decode broker commands out
// of binary frames and answer control frames.
func (h *Handler) onFrame(f protocol.Frame) error {
	switch f.Type {
	case protocol.FrameBinary:
		cmd, err := protocol.Decode(f.Payload)
		if err != nil {
			return err
		}
		if cmd.Kind == protocol.CommandSend {
			payload := append([]byte(nil), cmd.Payload...)
			h.poster.Post(dispatcher.ForwardToClientEvent(cmd.ID, payload))
		}
		// Hello/Goodbye from the upstream are binds we never issue; discard.
	case protocol.FrameText:
		// ignored
	case protocol.FramePing:
		h.sendControl(protocol.FramePong, f.Payload)
	case protocol.FrameClose:
		h.sendControl(protocol.FrameClose, nil)
		h.sendingClose.Store(true)
	case protocol.FramePong:
		// ignored
	}
	return nil
}

// sendControl frames and enqueues a Pong or Close reply directly,
// bypassing the sendingClose gate that guards dispatcher-originated
// sends: the Close reply itself is what sets that flag.
func (h *Handler) sendControl(t protocol.FrameType, payload []byte) {
	buf := protocol.EmitInto(h.pool, t, payload)
	head, start := h.out.Enqueue(buf)
	if start {
		h.conn.SendAll(head.Data)
	}
}

func (h *Handler) OnSend(c api.Conn) {
	next, ok := h.out.Completed()
	if ok {
		c.SendAll(next.Data)
		return
	}
	if h.sendingClose.Load() {
		c.Close()
	}
}

func (h *Handler) OnClose(api.Conn) {
	if h.recvBuf.Data != nil {
		h.recvBuf.Release()
		h.recvBuf = api.Buffer{}
	}
	h.poster.Post(dispatcher.UpstreamDisconnectedEvent())
}

// SendMessage implements dispatcher.Handle: buf already carries a
// complete, framed WebSocket binary message (see Dispatcher.sendToUpstream).
// A no-op once a Close reply is in flight.
func (h *Handler) SendMessage(buf api.Buffer) {
	if h.sendingClose.Load() {
		buf.Release()
		return
	}
	head, start := h.out.Enqueue(buf)
	if start {
		h.conn.SendAll(head.Data)
	}
}

// Close implements dispatcher.Handle.
func (h *Handler) Close() {
	h.conn.Close()
}
