// Package handshake implements the HTTP/1.1 WebSocket upgrade exchange
// as an incremental, receive-callback-driven state machine: the
// reactor never blocks waiting for a full request, so the handshake
// cannot use net/http.ReadRequest's synchronous io.Reader contract and
// instead scans complete lines out of a pooled receive buffer as they
// arrive.
package handshake
