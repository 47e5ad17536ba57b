// File: protocol/emitter.go
package protocol

import "github.com/adamnew123456/tabserver/api"

// HeaderSize returns the number of bytes a frame header occupies for
// payloadLen, not counting any mask key. The broker never masks
// outbound frames (it is the WebSocket server half of the link), so
// callers never add the 4-byte mask allowance.
func HeaderSize(payloadLen int) int {
	switch {
	case payloadLen <= 125:
		return 2
	case payloadLen <= 65535:
		return 4
	default:
		return 10
	}
}

// MessageCapacity returns the total buffer size needed to hold a frame
// header followed by payloadLen bytes of payload.
func MessageCapacity(payloadLen int) int {
	return HeaderSize(payloadLen) + payloadLen
}

// frameOpcode maps a FrameType to its wire opcode. Continuation is
// never emitted; the broker always sends whole, unfragmented frames.
func frameOpcode(t FrameType) byte {
	switch t {
	case FrameText:
		return opText
	case FrameBinary:
		return opBinary
	case FrameClose:
		return opClose
	case FramePing:
		return opPing
	case FramePong:
		return opPong
	default:
		return opBinary
	}
}

// Emit writes a complete, unmasked frame of type t carrying payload
// into dst, returning the number of bytes written. len(dst) must be at
// least MessageCapacity(len(payload)) or Emit panics; the payload is
// appended after the header without being copied into a temporary.
func Emit(dst []byte, t FrameType, payload []byte) int {
	n := len(payload)
	hdrLen := HeaderSize(n)
	if len(dst) < hdrLen+n {
		panic("protocol: Emit: destination buffer too small")
	}

	dst[0] = 0x80 | frameOpcode(t) // FIN=1, no fragmentation ever emitted

	switch {
	case n <= 125:
		dst[1] = byte(n)
	case n <= 65535:
		dst[1] = 126
		dst[2] = byte(n >> 8)
		dst[3] = byte(n)
	default:
		dst[1] = 127
		for i := 0; i < 8; i++ {
			dst[2+i] = 0
		}
		dst[6] = byte(n >> 24)
		dst[7] = byte(n >> 16)
		dst[8] = byte(n >> 8)
		dst[9] = byte(n)
	}

	copy(dst[hdrLen:hdrLen+n], payload)
	return hdrLen + n
}

// EmitInto rents a buffer from pool sized MessageCapacity(len(payload))
// and emits a complete frame into it, returning the buffer ready for
// handoff to a connection's outbound queue.
func EmitInto(pool api.BufferPool, t FrameType, payload []byte) api.Buffer {
	buf := pool.Get(MessageCapacity(len(payload)))
	n := Emit(buf.Data, t, payload)
	buf.Data = buf.Data[:n]
	return buf
}
