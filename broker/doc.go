// Package broker wires the reactor's two listeners — the upstream
// WebSocket port and the tabserver client port — to the dispatcher's
// admission gate and to the handshake, upstream and client handler
// constructors.
package broker
