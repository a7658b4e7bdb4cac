package orch

import (
	"github.com/dkeye/Dispatch/internal/app"
	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
	"github.com/dkeye/Dispatch/internal/metrics"
)

// Connect attaches a new transport session and sends it the current
// presence snapshot.
func (o *Orchestrator) Connect(id core.ConnID, sig core.SignalConnection, clientToken string) error {
	return o.do(func() {
		o.Registry.Attach(id, sig, clientToken)
		metrics.ActiveConnections.Inc()
		metrics.TotalConnections.Inc()
		o.send(sig, core.OnlineUsers{Type: core.TypeOnlineUsers, Users: o.Registry.Snapshot()})
	})
}

// Join binds user to the connection and broadcasts presence. Joining again
// under another identity first ends the calls of the previous one.
func (o *Orchestrator) Join(id core.ConnID, user domain.User) error {
	var err error
	if derr := o.do(func() {
		if prev, ok := o.Registry.Identity(id); ok && prev.ID != user.ID {
			o.endConnCalls(id, prev)
		}
		var superseded core.ConnID
		superseded, err = o.Registry.Register(id, user)
		if err != nil {
			return
		}
		if superseded != "" {
			o.logger.Info().Str("user", string(user.ID)).Str("conn", string(id)).Str("superseded", string(superseded)).Msg("newer connection took over identity")
		}
		o.publishPresence(true)
	}); derr != nil {
		return derr
	}
	return err
}

// Leave drops the identity of the connection but keeps the socket open.
// Returns false when the connection had not joined.
func (o *Orchestrator) Leave(id core.ConnID) (bool, error) {
	var left bool
	err := o.do(func() {
		user, ok := o.Registry.Unbind(id)
		if !ok {
			return
		}
		left = true
		o.endConnCalls(id, *user)
		o.publishPresence(true)
	})
	return left, err
}

// Disconnect tears the connection down: registry entries, calls pinned to
// it and a final presence broadcast, in one step. Safe to call twice.
func (o *Orchestrator) Disconnect(id core.ConnID) error {
	return o.do(func() {
		user, ok := o.Registry.Unregister(id)
		if !ok {
			return
		}
		metrics.ActiveConnections.Dec()
		if user == nil {
			return
		}
		o.endConnCalls(id, *user)
		o.publishPresence(true)
	})
}

// WhoAmI reports what the registry knows about a connection.
func (o *Orchestrator) WhoAmI(id core.ConnID) (app.ConnInfo, bool) {
	return o.Registry.Info(id)
}

// OnLocationUpdate hands a position to the relay. It never blocks on the
// coordinator.
func (o *Orchestrator) OnLocationUpdate(id core.ConnID, lat, lng float64) bool {
	return o.Locations.OnLocationUpdate(id, lat, lng)
}

func (o *Orchestrator) endConnCalls(id core.ConnID, user domain.User) {
	for _, s := range o.Calls.OfConn(id) {
		peer := s.Peer(user.ID)
		if !o.terminate(s, domain.CallEnded) {
			continue
		}
		o.sendTo(peer, core.CallEnded{Type: core.TypeCallEnded, From: user.ID})
	}
}
