// File: dispatcher/event.go
package dispatcher

import "github.com/adamnew123456/tabserver/api"

// Handle is the capability the dispatcher needs on a connection's
// handler to route traffic to it: enqueue an already-framed outbound
// buffer, or tear the connection down. Both client.Handler and
// upstream.Handler satisfy it without either package importing this
// one's concrete types.
type Handle interface {
	SendMessage(buf api.Buffer)
	Close()
}

// Poster is the narrow view of the dispatcher that connection handlers
// depend on, so client/upstream packages never import the dispatcher's
// internals, only this interface.
type Poster interface {
	Post(e Event)
}

// EventKind tags the variant of a dispatcher Event.
type EventKind int

const (
	EventStop EventKind = iota
	EventUpstreamConnected
	EventUpstreamDisconnected
	EventClientConnected
	EventClientDisconnected
	EventForwardToClient
	EventForwardToUpstream
)

// Event is the single message type flowing through the dispatcher's
// MPSC queue. Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Handle Handle // client or upstream handle this event concerns
	Name   []byte // ClientConnected: the registered client name

	TargetID int32  // ForwardToClient: destination client id
	Payload  []byte // ForwardToClient / ForwardToUpstream: message bytes
}

func StopEvent() Event { return Event{Kind: EventStop} }

func UpstreamConnectedEvent(h Handle) Event {
	return Event{Kind: EventUpstreamConnected, Handle: h}
}

func UpstreamDisconnectedEvent() Event {
	return Event{Kind: EventUpstreamDisconnected}
}

func ClientConnectedEvent(h Handle, name []byte) Event {
	return Event{Kind: EventClientConnected, Handle: h, Name: name}
}

func ClientDisconnectedEvent(h Handle) Event {
	return Event{Kind: EventClientDisconnected, Handle: h}
}

func ForwardToClientEvent(id int32, payload []byte) Event {
	return Event{Kind: EventForwardToClient, TargetID: id, Payload: payload}
}

func ForwardToUpstreamEvent(h Handle, payload []byte) Event {
	return Event{Kind: EventForwardToUpstream, Handle: h, Payload: payload}
}
