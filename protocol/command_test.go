// File: protocol/command_test.go
package protocol_test

import (
	"testing"

	"github.com/adamnew123456/tabserver/protocol"
)

func TestCommandRoundTripHello(t *testing.T) {
	cmd := protocol.Hello(42, []byte("alice"))
	buf := make([]byte, protocol.EncodedSize(cmd))
	n := protocol.Encode(buf, cmd)
	if n != len(buf) {
		t.Fatalf("Encode wrote %d, EncodedSize said %d", n, len(buf))
	}

	got, err := protocol.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != protocol.CommandHello || got.ID != 42 || string(got.Name) != "alice" {
		t.Fatalf("got %+v", got)
	}
}

func TestCommandRoundTripGoodbye(t *testing.T) {
	cmd := protocol.Goodbye(7)
	buf := make([]byte, protocol.EncodedSize(cmd))
	protocol.Encode(buf, cmd)
	if len(buf) != 5 {
		t.Fatalf("goodbye encoded size = %d, want 5", len(buf))
	}

	got, err := protocol.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != protocol.CommandGoodbye || got.ID != 7 {
		t.Fatalf("got %+v", got)
	}
}

func TestCommandRoundTripSend(t *testing.T) {
	cmd := protocol.Send(99, []byte("payload bytes"))
	buf := make([]byte, protocol.EncodedSize(cmd))
	protocol.Encode(buf, cmd)

	got, err := protocol.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != protocol.CommandSend || got.ID != 99 || string(got.Payload) != "payload bytes" {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	if _, err := protocol.Decode([]byte{0xFF, 0, 0, 0, 0}); err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestDecodeRejectsShortHeader(t *testing.T) {
	if _, err := protocol.Decode([]byte{0x00, 1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestDecodeRejectsDeclaredLengthExceedingBuffer(t *testing.T) {
	buf := []byte{0x02, 0, 0, 0, 0, 10, 0} // declares 10 bytes of payload, has 0
	if _, err := protocol.Decode(buf); err == nil {
		t.Fatal("expected error for declared length exceeding buffer")
	}
}

func TestDecodeRejectsEmptyBuffer(t *testing.T) {
	if _, err := protocol.Decode(nil); err == nil {
		t.Fatal("expected error for empty buffer")
	}
}
