// Package upstream implements the WebSocket-side handler installed on
// the single upstream connection once the HTTP handshake completes: it
// decodes broker commands out of binary frames, answers Ping/Close
// control frames, and queues outbound broker commands that the
// dispatcher has already framed as binary WebSocket messages.
package upstream
