// File: broker/e2e_test.go
package broker_test

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adamnew123456/tabserver/broker"
	"github.com/adamnew123456/tabserver/dispatcher"
	"github.com/adamnew123456/tabserver/pool"
	"github.com/adamnew123456/tabserver/protocol"
	"github.com/adamnew123456/tabserver/reactor"
)

// newBrokerUnderTest wires a fresh reactor + dispatcher + listener pair
// on ephemeral ports and starts the dispatcher loop, returning dial
// targets for both listeners and a function to stop everything.
func newBrokerUnderTest(t *testing.T) (clientAddr, upstreamAddr string, stop func()) {
	t.Helper()
	log := zerolog.Nop()
	p := pool.New()
	r := reactor.New(log)
	disp := dispatcher.New(p, log)
	listeners := broker.New(r, p, disp, log)

	done := make(chan struct{})
	go func() {
		disp.Run()
		close(done)
	}()

	upAddr, err := listeners.BindUpstream("127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind upstream: %v", err)
	}
	cliAddr, err := listeners.BindClients("127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind clients: %v", err)
	}

	return cliAddr, upAddr, func() {
		disp.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("dispatcher did not stop")
		}
		r.CloseAll()
	}
}

func dialUpstream(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		t.Fatalf("dial upstream: %v", err)
	}
	if resp.StatusCode != 101 {
		t.Fatalf("expected HTTP 101, got %d", resp.StatusCode)
	}
	return conn
}

func readCommand(t *testing.T, conn *websocket.Conn) protocol.Command {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read upstream message: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("expected a binary message, got type %d", mt)
	}
	cmd, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("decode command: %v", err)
	}
	return cmd
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd protocol.Command) {
	t.Helper()
	buf := make([]byte, protocol.EncodedSize(cmd))
	protocol.Encode(buf, cmd)
	if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		t.Fatalf("write upstream command: %v", err)
	}
}

func readAll(t *testing.T, c net.Conn, n int) []byte {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	read := 0
	for read < n {
		k, err := c.Read(buf[read:])
		if err != nil {
			t.Fatalf("read client socket: %v", err)
		}
		read += k
	}
	return buf
}

func TestEndToEndHelloForwardAndReply(t *testing.T) {
	clientAddr, upstreamAddr, stop := newBrokerUnderTest(t)
	defer stop()

	up := dialUpstream(t, upstreamAddr)
	defer up.Close()

	cli, err := net.Dial("tcp", clientAddr)
	if err != nil {
		t.Fatalf("dial client listener: %v", err)
	}
	defer cli.Close()

	if _, err := cli.Write([]byte("HELLO\ntest client\nmessage 1\nmessage 2\n")); err != nil {
		t.Fatalf("write client intro: %v", err)
	}

	hello := readCommand(t, up)
	if hello.Kind != protocol.CommandHello || hello.ID != 1 || string(hello.Name) != "test client" {
		t.Fatalf("unexpected hello command: %+v", hello)
	}

	send := readCommand(t, up)
	if send.Kind != protocol.CommandSend || send.ID != 1 || string(send.Payload) != "message 1\nmessage 2\n" {
		t.Fatalf("unexpected send command: %+v", send)
	}

	sendCommand(t, up, protocol.Send(1, []byte("reply payload\n")))

	got := readAll(t, cli, len("reply payload\n"))
	if string(got) != "reply payload\n" {
		t.Fatalf("got %q", got)
	}

	cli.Close()
	goodbye := readCommand(t, up)
	if goodbye.Kind != protocol.CommandGoodbye || goodbye.ID != 1 {
		t.Fatalf("unexpected goodbye command: %+v", goodbye)
	}
}

func TestEndToEndSecondUpstreamRefused(t *testing.T) {
	_, upstreamAddr, stop := newBrokerUnderTest(t)
	defer stop()

	up := dialUpstream(t, upstreamAddr)
	defer up.Close()

	if _, _, err := websocket.DefaultDialer.Dial("ws://"+upstreamAddr+"/", nil); err == nil {
		t.Fatal("expected the second upstream connection attempt to be refused")
	}
}

func TestEndToEndClientRefusedBeforeUpstreamConnected(t *testing.T) {
	clientAddr, _, stop := newBrokerUnderTest(t)
	defer stop()

	cli, err := net.Dial("tcp", clientAddr)
	if err != nil {
		t.Fatalf("dial client listener: %v", err)
	}
	defer cli.Close()

	cli.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := cli.Read(buf); err == nil {
		t.Fatal("expected the connection to be closed before any upstream is connected")
	}
}

func TestEndToEndUpstreamPingAnsweredWithPong(t *testing.T) {
	_, upstreamAddr, stop := newBrokerUnderTest(t)
	defer stop()

	up := dialUpstream(t, upstreamAddr)
	defer up.Close()

	pong := make(chan string, 1)
	up.SetPongHandler(func(appData string) error {
		pong <- appData
		return nil
	})

	if err := up.WriteMessage(websocket.PingMessage, []byte("ping-body")); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	up.SetReadDeadline(time.Now().Add(2 * time.Second))
	go up.ReadMessage() //nolint:errcheck // only draining to let the pong handler fire

	select {
	case got := <-pong:
		if got != "ping-body" {
			t.Fatalf("got pong payload %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a pong reply")
	}
}

func TestEndToEndUpstreamCloseEchoed(t *testing.T) {
	_, upstreamAddr, stop := newBrokerUnderTest(t)
	defer stop()

	up := dialUpstream(t, upstreamAddr)

	if err := up.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatalf("write close: %v", err)
	}

	up.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := up.ReadMessage()
	if err == nil {
		t.Fatal("expected the close handshake to end the connection")
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !strings.Contains(err.Error(), "close") {
		t.Fatalf("expected a close-related error, got %v", err)
	}
	up.Close()
}
