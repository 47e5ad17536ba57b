// File: dispatcher/dispatcher.go
package dispatcher

import (
	"sync"

	"github.com/adamnew123456/tabserver/api"
	"github.com/adamnew123456/tabserver/protocol"
	"github.com/rs/zerolog"
)

type upstreamState int32

const (
	upstreamNone upstreamState = iota
	upstreamHandshaking
	upstreamConnected
)

// clientRecord is the per-client bookkeeping the dispatcher owns
// exclusively; see the data model's "Client record".
type clientRecord struct {
	id     int32
	handle Handle
}

// Dispatcher is the single-threaded event consumer that owns the
// upstream state machine and the table of live clients. Every field
// below except admitMu/state is touched only from the goroutine
// running Run; admitMu/state additionally gate connection admission
// from reactor accept-time goroutines, which is why they carry their
// own lock instead of living inside the single-threaded section.
type Dispatcher struct {
	pool api.BufferPool
	log  zerolog.Logger
	eq   *eventQueue

	admitMu sync.Mutex
	state   upstreamState

	upstreamHandle Handle
	clients        map[int32]*clientRecord
	byHandle       map[Handle]int32
	nextID         int32
}

// New constructs a Dispatcher. pool supplies buffers for outbound
// broker commands and forwarded client payloads.
func New(pool api.BufferPool, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		pool:     pool,
		log:      log.With().Str("component", "dispatcher").Logger(),
		eq:       newEventQueue(),
		clients:  make(map[int32]*clientRecord),
		byHandle: make(map[Handle]int32),
		nextID:   1,
	}
}

// Post enqueues e for processing by Run. Safe to call from any
// goroutine, including reactor callbacks.
func (d *Dispatcher) Post(e Event) {
	d.eq.push(e)
}

// Stop posts a Stop event and returns immediately; callers that need
// to know when shutdown has finished should wait on Run returning
// (e.g. via a WaitGroup or done channel in the caller).
func (d *Dispatcher) Stop() {
	d.Post(StopEvent())
}

// TryAdmitUpstream is called from the upstream listener's accept-time
// factory. It admits exactly one upstream connection at a time,
// transitioning None -> Handshaking.
func (d *Dispatcher) TryAdmitUpstream() bool {
	d.admitMu.Lock()
	defer d.admitMu.Unlock()
	if d.state != upstreamNone {
		return false
	}
	d.state = upstreamHandshaking
	return true
}

// AbortUpstreamHandshake reverts Handshaking back to None. Called by
// the handshake handler's OnClose when the handshake fails or the
// socket drops before a WebSocket upgrade completes.
func (d *Dispatcher) AbortUpstreamHandshake() {
	d.admitMu.Lock()
	defer d.admitMu.Unlock()
	if d.state == upstreamHandshaking {
		d.state = upstreamNone
	}
}

// TryAdmitClient is called from the client listener's accept-time
// factory; clients are admitted only while the upstream is Connected.
func (d *Dispatcher) TryAdmitClient() bool {
	d.admitMu.Lock()
	defer d.admitMu.Unlock()
	return d.state == upstreamConnected
}

func (d *Dispatcher) setState(s upstreamState) {
	d.admitMu.Lock()
	d.state = s
	d.admitMu.Unlock()
}

// Run consumes events until a Stop event is processed or the queue is
// closed with nothing left to drain. It must run on its own goroutine
// and must be the only goroutine touching the client table and
// upstream handle.
func (d *Dispatcher) Run() {
	for {
		ev, ok := d.eq.pop()
		if !ok {
			return
		}
		if d.handle(ev) {
			d.eq.close()
			return
		}
	}
}

// handle processes one event, returning true if the loop should stop.
func (d *Dispatcher) handle(ev Event) bool {
	switch ev.Kind {
	case EventStop:
		d.onStop()
		return true
	case EventUpstreamConnected:
		d.onUpstreamConnected(ev)
	case EventUpstreamDisconnected:
		d.onUpstreamDisconnected()
	case EventClientConnected:
		d.onClientConnected(ev)
	case EventClientDisconnected:
		d.onClientDisconnected(ev)
	case EventForwardToClient:
		d.onForwardToClient(ev)
	case EventForwardToUpstream:
		d.onForwardToUpstream(ev)
	}
	return false
}

func (d *Dispatcher) onStop() {
	d.log.Info().Msg("dispatcher stopping, closing all connections")
	for _, rec := range d.clients {
		rec.handle.Close()
	}
	if d.upstreamHandle != nil {
		d.upstreamHandle.Close()
	}
	d.clients = make(map[int32]*clientRecord)
	d.byHandle = make(map[Handle]int32)
	d.upstreamHandle = nil
	d.setState(upstreamNone)
}

func (d *Dispatcher) onUpstreamConnected(ev Event) {
	d.upstreamHandle = ev.Handle
	d.setState(upstreamConnected)
	d.log.Info().Msg("upstream connected")
}

func (d *Dispatcher) onUpstreamDisconnected() {
	d.log.Info().Int("clients", len(d.clients)).Msg("upstream disconnected, closing all clients")
	for _, rec := range d.clients {
		rec.handle.Close()
	}
	d.clients = make(map[int32]*clientRecord)
	d.byHandle = make(map[Handle]int32)
	d.upstreamHandle = nil
	d.setState(upstreamNone)
}

func (d *Dispatcher) onClientConnected(ev Event) {
	if d.currentState() != upstreamConnected {
		return
	}
	id := d.nextID
	d.nextID++
	d.clients[id] = &clientRecord{id: id, handle: ev.Handle}
	d.byHandle[ev.Handle] = id
	d.sendToUpstream(protocol.Hello(id, ev.Name))
}

func (d *Dispatcher) onClientDisconnected(ev Event) {
	if d.currentState() != upstreamConnected {
		return
	}
	id, ok := d.byHandle[ev.Handle]
	if !ok {
		return
	}
	delete(d.byHandle, ev.Handle)
	delete(d.clients, id)
	d.sendToUpstream(protocol.Goodbye(id))
}

func (d *Dispatcher) onForwardToClient(ev Event) {
	rec, ok := d.clients[ev.TargetID]
	if !ok {
		return
	}
	buf := d.pool.Get(len(ev.Payload))
	copy(buf.Data, ev.Payload)
	rec.handle.SendMessage(buf)
}

func (d *Dispatcher) onForwardToUpstream(ev Event) {
	if d.currentState() != upstreamConnected {
		return
	}
	id, ok := d.byHandle[ev.Handle]
	if !ok {
		return
	}
	d.sendToUpstream(protocol.Send(id, ev.Payload))
}

// currentState reads state through the same lock accept-time factories
// use, even though it is only ever called from the Run goroutine,
// keeping every access to the field race-free.
func (d *Dispatcher) currentState() upstreamState {
	d.admitMu.Lock()
	defer d.admitMu.Unlock()
	return d.state
}

// sendToUpstream frames cmd as a binary WebSocket message and hands it
// to the upstream handle. A no-op if there is no upstream.
func (d *Dispatcher) sendToUpstream(cmd protocol.Command) {
	if d.upstreamHandle == nil {
		return
	}
	n := protocol.EncodedSize(cmd)
	buf := d.pool.Get(protocol.MessageCapacity(n))
	hdrLen := protocol.HeaderSize(n)
	protocol.Encode(buf.Data[hdrLen:hdrLen+n], cmd)
	total := protocol.Emit(buf.Data, protocol.FrameBinary, buf.Data[hdrLen:hdrLen+n])
	buf.Data = buf.Data[:total]
	d.upstreamHandle.SendMessage(buf)
}
