// File: handshake/handshake.go
package handshake

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/adamnew123456/tabserver/api"
	"github.com/rs/zerolog"
)

// webSocketGUID is appended to the client's key before hashing, per
// RFC 6455 §1.3. Grounded on the teacher's native_handshake.go, which
// defines the same constant for the same purpose.
const webSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// MaxLineBuffer bounds a single request-line or header line; exceeding
// it without finding a newline is a protocol violation. Grounded on
// the teacher's MaxHandshakeHeadersSize (8192), reinterpreted here as a
// per-line rather than a whole-headers-block limit since this state
// machine processes one line at a time.
const MaxLineBuffer = 8192

type state int

const (
	stateRequestLine state = iota
	stateHeaders
	stateSent
	stateClosed
)

// NextHandlerFunc builds the handler that takes over conn once the
// handshake completes successfully.
type NextHandlerFunc func(conn api.Conn) api.ConnHandler

// changer is the subset of api.Reactor the handshake handler needs to
// hand control to the upstream WebSocket handler.
type changer interface {
	ChangeHandler(conn api.Conn, h api.ConnHandler)
}

// Handler implements api.ConnHandler for the upstream listener's first
// accepted connection: it speaks exactly enough HTTP/1.1 to validate
// and reply to a WebSocket upgrade request, then swaps itself out.
type Handler struct {
	pool     api.BufferPool
	reactor  changer
	next     NextHandlerFunc
	log      zerolog.Logger

	conn api.Conn
	buf  api.Buffer

	filled  int
	scanned int

	state   state
	headers map[string]string

	respBuf     api.Buffer
	pendingSwap bool
	swapped     bool
	onAbort     func()
}

// New constructs a handshake Handler. reactor is used for the final
// ChangeHandler handoff; next builds the handler that receives it.
// onAbort, if non-nil, fires from OnClose whenever the connection closes
// without ever completing a successful upgrade — the upstream listener
// uses it to release the admission slot reserved at accept time.
func New(pool api.BufferPool, reactor changer, next NextHandlerFunc, onAbort func(), log zerolog.Logger) *Handler {
	return &Handler{
		pool:    pool,
		reactor: reactor,
		next:    next,
		onAbort: onAbort,
		log:     log.With().Str("component", "handshake").Logger(),
	}
}

func (h *Handler) OnConnected(c api.Conn) {
	h.conn = c
	h.buf = h.pool.Get(MaxLineBuffer)
	h.filled = 0
	h.scanned = 0
	h.state = stateRequestLine
	h.headers = make(map[string]string, 5)
	c.Receive(h.buf.Data[h.filled:])
}

func (h *Handler) OnReceive(c api.Conn, data []byte) {
	h.filled += len(data)

	for h.state != stateSent {
		idx := bytes.IndexByte(h.buf.Data[h.scanned:h.filled], '\n')
		if idx < 0 {
			break
		}
		lineEnd := h.scanned + idx
		line := h.buf.Data[h.scanned:lineEnd]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		h.scanned = lineEnd + 1
		h.processLine(line)
	}
	if h.state == stateSent {
		return
	}

	if h.scanned == 0 && h.filled == len(h.buf.Data) {
		h.log.Warn().Err(api.ErrLineTooLong).Msg("rejecting handshake request")
		h.fail(400, "line too long")
		return
	}

	h.compact()
	c.Receive(h.buf.Data[h.filled:])
}

func (h *Handler) compact() {
	if h.scanned == 0 {
		return
	}
	remaining := h.filled - h.scanned
	copy(h.buf.Data, h.buf.Data[h.scanned:h.filled])
	h.filled = remaining
	h.scanned = 0
}

func (h *Handler) processLine(line []byte) {
	switch h.state {
	case stateRequestLine:
		h.processRequestLine(line)
	case stateHeaders:
		h.processHeaderLine(line)
	}
}

func (h *Handler) processRequestLine(line []byte) {
	parts := strings.Split(string(line), " ")
	if len(parts) != 3 {
		h.fail(400, "Bad Request")
		return
	}
	method, path, version := parts[0], parts[1], parts[2]
	if method != "GET" {
		h.fail(405, "Method Not Allowed")
		return
	}
	if path != "/" {
		h.fail(404, "Not Found")
		return
	}
	if version != "HTTP/1.1" {
		h.fail(400, "Bad Request")
		return
	}
	h.state = stateHeaders
}

func (h *Handler) processHeaderLine(line []byte) {
	if len(line) == 0 {
		h.finishHeaders()
		return
	}
	if line[0] == ' ' || line[0] == '\t' {
		h.fail(501, "Not Implemented")
		return
	}
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		h.fail(400, "Bad Request")
		return
	}
	name := strings.ToLower(strings.TrimSpace(string(line[:colon])))
	value := strings.TrimSpace(string(line[colon+1:]))

	if !isRecognizedHeader(name) {
		return
	}
	if _, exists := h.headers[name]; exists {
		return
	}
	h.headers[name] = value
}

func isRecognizedHeader(name string) bool {
	switch name {
	case "host", "upgrade", "connection", "sec-websocket-key", "sec-websocket-version":
		return true
	default:
		return false
	}
}

func (h *Handler) finishHeaders() {
	if _, ok := h.headers["host"]; !ok {
		h.fail(400, "Bad Request")
		return
	}
	if !containsToken(h.headers["upgrade"], "websocket") {
		h.fail(400, "Bad Request")
		return
	}
	if !containsToken(h.headers["connection"], "upgrade") {
		h.fail(400, "Bad Request")
		return
	}
	key, ok := h.headers["sec-websocket-key"]
	if !ok {
		h.fail(400, "Bad Request")
		return
	}
	if strings.TrimSpace(h.headers["sec-websocket-version"]) != "13" {
		h.fail(400, "Bad Request")
		return
	}

	accept := computeAcceptKey(key)
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	h.sendResponse(resp, true)
}

// containsToken reports whether value is a comma-delimited list
// containing token as a case-insensitive, whitespace-trimmed entry.
func containsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

func computeAcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + webSocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (h *Handler) fail(code int, reason string) {
	resp := httpStatusLine(code, reason)
	h.sendResponse(resp, false)
}

func httpStatusLine(code int, reason string) string {
	return "HTTP/1.1 " + strconv.Itoa(code) + " " + reason + "\r\n"
}

func (h *Handler) sendResponse(resp string, swap bool) {
	h.state = stateSent
	h.pendingSwap = swap
	h.respBuf = h.pool.Get(len(resp))
	copy(h.respBuf.Data, resp)
	h.buf.Release()
	h.buf = api.Buffer{}
	h.conn.SendAll(h.respBuf.Data)
}

func (h *Handler) OnSend(c api.Conn) {
	h.respBuf.Release()
	h.respBuf = api.Buffer{}
	if h.pendingSwap {
		h.state = stateClosed
		h.swapped = true
		h.reactor.ChangeHandler(c, h.next(c))
		return
	}
	h.state = stateClosed
	c.Close()
}

func (h *Handler) OnClose(api.Conn) {
	if h.buf.Data != nil {
		h.buf.Release()
		h.buf = api.Buffer{}
	}
	if h.respBuf.Data != nil {
		h.respBuf.Release()
		h.respBuf = api.Buffer{}
	}
	if !h.swapped && h.onAbort != nil {
		h.onAbort()
	}
}
