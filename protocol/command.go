// File: protocol/command.go
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/adamnew123456/tabserver/api"
)

// CommandKind tags the variant of a broker command.
type CommandKind int

const (
	CommandHello CommandKind = iota
	CommandGoodbye
	CommandSend
)

const (
	cmdOpHello   byte = 0x00
	cmdOpGoodbye byte = 0x01
	cmdOpSend    byte = 0x02
)

// maxCommandPayload is the largest length field a Hello/Send command
// can declare (16-bit length prefix).
const maxCommandPayload = 65535

// Command is a tagged variant over Hello, Goodbye, and Send. Name is
// populated only for Hello; Payload only for Send; neither for
// Goodbye.
type Command struct {
	Kind    CommandKind
	ID      int32
	Name    []byte
	Payload []byte
}

// Hello builds a Hello command.
func Hello(id int32, name []byte) Command {
	return Command{Kind: CommandHello, ID: id, Name: name}
}

// Goodbye builds a Goodbye command.
func Goodbye(id int32) Command {
	return Command{Kind: CommandGoodbye, ID: id}
}

// Send builds a Send command.
func Send(id int32, payload []byte) Command {
	return Command{Kind: CommandSend, ID: id, Payload: payload}
}

// EncodedSize returns the number of bytes Encode will write for cmd,
// letting callers size an outbound buffer before framing it.
func EncodedSize(cmd Command) int {
	switch cmd.Kind {
	case CommandHello:
		return 7 + len(cmd.Name)
	case CommandGoodbye:
		return 5
	case CommandSend:
		return 7 + len(cmd.Payload)
	default:
		return 0
	}
}

// Encode writes cmd into dst, which must be at least EncodedSize(cmd)
// bytes, and returns the number of bytes written.
func Encode(dst []byte, cmd Command) int {
	switch cmd.Kind {
	case CommandHello:
		return encodeLengthPrefixed(dst, cmdOpHello, cmd.ID, cmd.Name)
	case CommandGoodbye:
		dst[0] = cmdOpGoodbye
		binary.LittleEndian.PutUint32(dst[1:5], uint32(cmd.ID))
		return 5
	case CommandSend:
		return encodeLengthPrefixed(dst, cmdOpSend, cmd.ID, cmd.Payload)
	default:
		panic("protocol: Encode: unknown command kind")
	}
}

func encodeLengthPrefixed(dst []byte, opcode byte, id int32, body []byte) int {
	dst[0] = opcode
	binary.LittleEndian.PutUint32(dst[1:5], uint32(id))
	binary.LittleEndian.PutUint16(dst[5:7], uint16(len(body)))
	copy(dst[7:7+len(body)], body)
	return 7 + len(body)
}

func invalidCommand(why string) error {
	return fmt.Errorf("%w: %s", api.ErrInvalidCommand, why)
}

// Decode parses a single command from buf. The returned Command's Name
// and Payload slices alias buf; callers that need to retain them past
// buf's lifetime must copy.
func Decode(buf []byte) (Command, error) {
	if len(buf) < 1 {
		return Command{}, invalidCommand("empty buffer")
	}
	switch buf[0] {
	case cmdOpHello:
		return decodeLengthPrefixed(buf, CommandHello)
	case cmdOpGoodbye:
		if len(buf) < 5 {
			return Command{}, invalidCommand("goodbye shorter than 5 bytes")
		}
		id := int32(binary.LittleEndian.Uint32(buf[1:5]))
		return Command{Kind: CommandGoodbye, ID: id}, nil
	case cmdOpSend:
		return decodeLengthPrefixed(buf, CommandSend)
	default:
		return Command{}, invalidCommand("unknown opcode")
	}
}

func decodeLengthPrefixed(buf []byte, kind CommandKind) (Command, error) {
	if len(buf) < 7 {
		return Command{}, invalidCommand("header shorter than 7 bytes")
	}
	id := int32(binary.LittleEndian.Uint32(buf[1:5]))
	declared := int(binary.LittleEndian.Uint16(buf[5:7]))
	if len(buf) < 7+declared {
		return Command{}, invalidCommand("declared length exceeds buffer")
	}
	body := buf[7 : 7+declared]
	if kind == CommandHello {
		return Command{Kind: CommandHello, ID: id, Name: body}, nil
	}
	return Command{Kind: CommandSend, ID: id, Payload: body}, nil
}
