// Package protocol implements the WebSocket framing layer (a streaming
// masked-frame parser and a zero-allocation frame emitter) and the
// little-endian broker command codec layered on top of it.
package protocol
