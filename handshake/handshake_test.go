// File: handshake/handshake_test.go
package handshake

import (
	"strings"
	"testing"

	"github.com/adamnew123456/tabserver/api"
	"github.com/adamnew123456/tabserver/pool"
	"github.com/rs/zerolog"
)

type fakeConn struct {
	sent   [][]byte
	closed bool
}

func (f *fakeConn) Receive([]byte)     {}
func (f *fakeConn) SendAll(src []byte) { f.sent = append(f.sent, append([]byte(nil), src...)) }
func (f *fakeConn) Close()             { f.closed = true }
func (f *fakeConn) RemoteAddr() string { return "127.0.0.1:1234" }

type fakeReactor struct {
	swapped api.ConnHandler
}

func (r *fakeReactor) ChangeHandler(conn api.Conn, h api.ConnHandler) { r.swapped = h }

type markerHandler struct{}

func (markerHandler) OnConnected(api.Conn)       {}
func (markerHandler) OnReceive(api.Conn, []byte) {}
func (markerHandler) OnSend(api.Conn)            {}
func (markerHandler) OnClose(api.Conn)           {}

// feed copies chunk into h's internal receive buffer at the current
// write offset and invokes OnReceive, mirroring what the reactor does
// when it completes a real socket read into that same buffer region.
func feed(h *Handler, chunk []byte) {
	dst := h.buf.Data[h.filled : h.filled+len(chunk)]
	copy(dst, chunk)
	h.OnReceive(h.conn, dst)
}

func newTestHandler() (*Handler, *fakeConn, *fakeReactor) {
	h, fc, r, _ := newTestHandlerWithAbort()
	return h, fc, r
}

func newTestHandlerWithAbort() (*Handler, *fakeConn, *fakeReactor, *int) {
	r := &fakeReactor{}
	aborts := new(int)
	h := New(pool.New(), r, func(api.Conn) api.ConnHandler { return markerHandler{} }, func() { *aborts++ }, zerolog.Nop())
	fc := &fakeConn{}
	h.OnConnected(fc)
	return h, fc, r, aborts
}

func TestHandshakeMinimalSuccess(t *testing.T) {
	h, fc, r := newTestHandler()
	req := "GET / HTTP/1.1\r\n" +
		"Host: x\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: AAAAAAAAAAAAAAAAAAAAAA==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"
	feed(h, []byte(req))

	if len(fc.sent) != 1 {
		t.Fatalf("expected exactly one response write, got %d", len(fc.sent))
	}
	want := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: ICX+Yqv66kxgM0FcWaLWlFLwTAI=\r\n\r\n"
	if string(fc.sent[0]) != want {
		t.Fatalf("got %q, want %q", fc.sent[0], want)
	}

	h.OnSend(fc)
	if r.swapped == nil {
		t.Fatal("expected ChangeHandler to be invoked on success")
	}
	if fc.closed {
		t.Fatal("connection must not be closed on successful handshake")
	}
}

func TestHandshakeWrongMethod(t *testing.T) {
	h, fc, _ := newTestHandler()
	feed(h, []byte("POST / HTTP/1.1\r\n"))
	if len(fc.sent) != 1 || !strings.HasPrefix(string(fc.sent[0]), "HTTP/1.1 405") {
		t.Fatalf("got %q", fc.sent)
	}
}

func TestHandshakeWrongPath(t *testing.T) {
	h, fc, _ := newTestHandler()
	feed(h, []byte("GET /ws HTTP/1.1\r\n"))
	if len(fc.sent) != 1 || !strings.HasPrefix(string(fc.sent[0]), "HTTP/1.1 404") {
		t.Fatalf("got %q", fc.sent)
	}
}

func TestHandshakeHeaderFolding(t *testing.T) {
	h, fc, _ := newTestHandler()
	feed(h, []byte("GET / HTTP/1.1\r\nHost: x\r\n Folded: yes\r\n"))
	if len(fc.sent) != 1 || !strings.HasPrefix(string(fc.sent[0]), "HTTP/1.1 501") {
		t.Fatalf("got %q", fc.sent)
	}
}

func TestHandshakeMissingHeaderFailsAtTerminator(t *testing.T) {
	h, fc, _ := newTestHandler()
	feed(h, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	if len(fc.sent) != 1 || !strings.HasPrefix(string(fc.sent[0]), "HTTP/1.1 400") {
		t.Fatalf("got %q", fc.sent)
	}
}

func TestHandshakeDuplicateHeaderIgnored(t *testing.T) {
	h, fc, _ := newTestHandler()
	req := "GET / HTTP/1.1\r\n" +
		"Host: x\r\n" +
		"Upgrade: websocket\r\n" +
		"Upgrade: garbage\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: AAAAAAAAAAAAAAAAAAAAAA==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"
	feed(h, []byte(req))
	if len(fc.sent) != 1 || !strings.HasPrefix(string(fc.sent[0]), "HTTP/1.1 101") {
		t.Fatalf("duplicate header should have been ignored, got %q", fc.sent)
	}
}

func TestHandshakeLineTooLong(t *testing.T) {
	h, fc, _ := newTestHandler()
	longLine := strings.Repeat("a", MaxLineBuffer)
	feed(h, []byte(longLine))
	if len(fc.sent) != 1 || !strings.HasPrefix(string(fc.sent[0]), "HTTP/1.1 400") {
		t.Fatalf("got %q", fc.sent)
	}
}

func TestHandshakeOnCloseFiresAbortUnlessSwapped(t *testing.T) {
	h, fc, _, aborts := newTestHandlerWithAbort()
	feed(h, []byte("POST / HTTP/1.1\r\n"))
	h.OnSend(fc)
	h.OnClose(fc)
	if *aborts != 1 {
		t.Fatalf("expected onAbort to fire once after a failed handshake, got %d", *aborts)
	}
}

func TestHandshakeOnCloseDoesNotAbortAfterSuccessfulSwap(t *testing.T) {
	h, fc, _, aborts := newTestHandlerWithAbort()
	req := "GET / HTTP/1.1\r\n" +
		"Host: x\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: AAAAAAAAAAAAAAAAAAAAAA==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"
	feed(h, []byte(req))
	h.OnSend(fc)
	h.OnClose(fc)
	if *aborts != 0 {
		t.Fatalf("expected onAbort to stay unfired after a successful upgrade, got %d", *aborts)
	}
}
