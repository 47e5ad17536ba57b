// File: broker/broker.go
package broker

import (
	"github.com/adamnew123456/tabserver/api"
	"github.com/adamnew123456/tabserver/client"
	"github.com/adamnew123456/tabserver/dispatcher"
	"github.com/adamnew123456/tabserver/handshake"
	"github.com/adamnew123456/tabserver/reactor"
	"github.com/adamnew123456/tabserver/upstream"
	"github.com/rs/zerolog"
)

// Listeners binds the broker's two TCP listeners onto a shared reactor,
// pool and dispatcher. It holds no connection state of its own; every
// admission decision and lifecycle transition lives in the dispatcher.
type Listeners struct {
	reactor *reactor.Reactor
	pool    api.BufferPool
	disp    *dispatcher.Dispatcher
	log     zerolog.Logger
}

// New constructs a Listeners wiring helper.
func New(r *reactor.Reactor, pool api.BufferPool, disp *dispatcher.Dispatcher, log zerolog.Logger) *Listeners {
	return &Listeners{reactor: r, pool: pool, disp: disp, log: log}
}

// BindUpstream opens the upstream WebSocket listener. The factory admits
// exactly one connection at a time (state None -> Handshaking); every
// other concurrent attempt is refused and the socket closed immediately
// per the "refuse second upstream" invariant.
func (l *Listeners) BindUpstream(address string) (string, error) {
	factory := func(_, remote string) (api.ConnHandler, bool) {
		if !l.disp.TryAdmitUpstream() {
			l.log.Debug().Err(api.ErrUpstreamPresent).Str("remote", remote).Msg("refusing upstream connection")
			return nil, false
		}
		hlog := l.log.With().Str("remote", remote).Logger()
		next := func(api.Conn) api.ConnHandler {
			return upstream.New(l.pool, l.disp, hlog)
		}
		return handshake.New(l.pool, l.reactor, next, l.disp.AbortUpstreamHandshake, hlog), true
	}
	return l.reactor.Bind(address, factory)
}

// BindClients opens the tabserver client listener. The factory admits a
// connection only while the dispatcher reports the upstream Connected.
func (l *Listeners) BindClients(address string) (string, error) {
	factory := func(_, remote string) (api.ConnHandler, bool) {
		if !l.disp.TryAdmitClient() {
			return nil, false
		}
		hlog := l.log.With().Str("remote", remote).Logger()
		return client.New(l.pool, l.disp, hlog), true
	}
	return l.reactor.Bind(address, factory)
}
