package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
	"github.com/dkeye/Dispatch/internal/metrics"
	"github.com/rs/zerolog/log"
)

var ErrUnknownConn = errors.New("unknown connection")

type connEntry struct {
	Signal      core.SignalConnection
	ClientToken string
	User        *domain.User
	Location    *domain.Location
	ConnectedAt time.Time
	JoinedAt    time.Time
}

// Registry is the single owner of the identity -> connection mapping.
// Every attached transport session has an entry; only joined ones that
// won the route for their identity show up in presence.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnID]*connEntry
	routes map[domain.UserID]core.ConnID
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnID]*connEntry),
		routes: make(map[domain.UserID]core.ConnID),
	}
}

// Attach records a freshly connected transport with no identity yet.
func (r *Registry) Attach(id core.ConnID, sig core.SignalConnection, clientToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{
		Signal:      sig,
		ClientToken: clientToken,
		ConnectedAt: time.Now(),
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("attached connection")
}

// Register binds user to the connection. A previous connection of the same
// user stays open but loses the route. Returns the superseded connection, if any.
func (r *Registry) Register(id core.ConnID, user domain.User) (core.ConnID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return "", ErrUnknownConn
	}
	if e.User != nil && e.User.ID != user.ID {
		if r.routes[e.User.ID] == id {
			delete(r.routes, e.User.ID)
		}
		// a position belongs to the identity that reported it
		e.Location = nil
	}

	var superseded core.ConnID
	if prev, ok := r.routes[user.ID]; ok && prev != id {
		superseded = prev
		if pe, ok := r.conns[prev]; ok && e.Location == nil && pe.Location != nil {
			loc := *pe.Location
			e.Location = &loc
		}
	}

	u := user
	e.User = &u
	e.JoinedAt = time.Now()
	r.routes[user.ID] = id
	metrics.OnlineUsers.Set(float64(len(r.routes)))

	ev := log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(user.ID))
	if superseded != "" {
		ev = ev.Str("superseded", string(superseded))
	}
	ev.Msg("registered user")
	return superseded, nil
}

// Unbind drops the identity of a connection but keeps it attached.
// Returns the user that was bound, if any.
func (r *Registry) Unbind(id core.ConnID) (*domain.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok || e.User == nil {
		return nil, false
	}
	u := *e.User
	r.dropRouteLocked(id, e)
	e.User = nil
	e.Location = nil
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(u.ID)).Msg("unbound user")
	return &u, true
}

// Unregister removes every entry referencing the connection. Idempotent.
func (r *Registry) Unregister(id core.ConnID) (*domain.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	r.dropRouteLocked(id, e)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
	if e.User == nil {
		return nil, true
	}
	u := *e.User
	return &u, true
}

func (r *Registry) dropRouteLocked(id core.ConnID, e *connEntry) {
	if e.User == nil {
		return
	}
	if r.routes[e.User.ID] == id {
		delete(r.routes, e.User.ID)
		metrics.OnlineUsers.Set(float64(len(r.routes)))
	}
}

// UpdateLocation merges loc into the live entry of uid. A miss is an
// expected race with a disconnect, not an error.
func (r *Registry) UpdateLocation(uid domain.UserID, loc domain.Location) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.routes[uid]
	if !ok {
		return false
	}
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	l := loc
	e.Location = &l
	return true
}

// Lookup resolves the current connection for uid. The result is only good
// for the immediate send.
func (r *Registry) Lookup(uid domain.UserID) (core.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.routes[uid]
	if !ok {
		return core.Target{}, false
	}
	e, ok := r.conns[id]
	if !ok {
		return core.Target{}, false
	}
	return core.Target{ID: id, Signal: e.Signal}, true
}

// Identity returns the user bound to a connection.
func (r *Registry) Identity(id core.ConnID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.User == nil {
		return domain.User{}, false
	}
	return *e.User, true
}

// Signal returns the transport of an attached connection.
func (r *Registry) Signal(id core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.Signal, true
}

type ConnInfo struct {
	ClientToken string
	User        *domain.User
	ConnectedAt time.Time
	JoinedAt    time.Time
}

func (r *Registry) Info(id core.ConnID) (ConnInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return ConnInfo{}, false
	}
	info := ConnInfo{ClientToken: e.ClientToken, ConnectedAt: e.ConnectedAt, JoinedAt: e.JoinedAt}
	if e.User != nil {
		u := *e.User
		info.User = &u
	}
	return info, true
}

// Snapshot returns the presence set. Order is not stable.
func (r *Registry) Snapshot() []core.PresenceDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.PresenceDTO, 0, len(r.routes))
	for _, id := range r.routes {
		e, ok := r.conns[id]
		if !ok || e.User == nil {
			continue
		}
		out = append(out, core.NewPresenceDTO(*e.User, e.Location))
	}
	return out
}

// Targets lists every attached connection, joined or not.
func (r *Registry) Targets() []core.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Target, 0, len(r.conns))
	for id, e := range r.conns {
		out = append(out, core.Target{ID: id, Signal: e.Signal})
	}
	return out
}

func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
