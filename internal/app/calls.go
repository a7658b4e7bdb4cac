package app

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/segmentio/ksuid"

	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
	"github.com/dkeye/Dispatch/internal/metrics"
)

// CallSession is the broker's record of one call attempt. The connection ids
// say which transport sessions the call is pinned to; routing still goes
// through the Registry by identity.
type CallSession struct {
	domain.Call
	CallerConn core.ConnID
	TargetConn core.ConnID
	Offer      core.Signal
}

// Calls indexes live call sessions by id, participant and connection.
type Calls struct {
	mu     sync.RWMutex
	byID   map[domain.CallID]*CallSession
	byUser map[domain.UserID]mapset.Set[domain.CallID]
	byConn map[core.ConnID]mapset.Set[domain.CallID]
}

func NewCalls() *Calls {
	return &Calls{
		byID:   make(map[domain.CallID]*CallSession),
		byUser: make(map[domain.UserID]mapset.Set[domain.CallID]),
		byConn: make(map[core.ConnID]mapset.Set[domain.CallID]),
	}
}

func (c *Calls) Create(caller, target domain.UserID, callerConn, targetConn core.ConnID, offer core.Signal) *CallSession {
	id := domain.CallID(ksuid.New().String())
	s := &CallSession{
		Call:       *domain.NewCall(id, caller, target),
		CallerConn: callerConn,
		TargetConn: targetConn,
		Offer:      offer,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = s
	index(c.byUser, caller, id)
	index(c.byUser, target, id)
	index(c.byConn, callerConn, id)
	index(c.byConn, targetConn, id)
	metrics.CallsActive.Set(float64(len(c.byID)))
	return s
}

func (c *Calls) Get(id domain.CallID) (*CallSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[id]
	return s, ok
}

// Between returns the live session of the unordered pair (a, b).
func (c *Calls) Between(a, b domain.UserID) (*CallSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids, ok := c.byUser[a]
	if !ok {
		return nil, false
	}
	var found *CallSession
	ids.Each(func(id domain.CallID) bool {
		s := c.byID[id]
		if s != nil && s.State.Live() && s.Involves(b) {
			found = s
			return true
		}
		return false
	})
	return found, found != nil
}

// OfUser lists the live sessions uid takes part in.
func (c *Calls) OfUser(uid domain.UserID) []*CallSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collectLocked(c.byUser[uid])
}

// OfConn lists the sessions pinned to a connection.
func (c *Calls) OfConn(id core.ConnID) []*CallSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collectLocked(c.byConn[id])
}

func (c *Calls) collectLocked(ids mapset.Set[domain.CallID]) []*CallSession {
	if ids == nil {
		return nil
	}
	out := make([]*CallSession, 0, ids.Cardinality())
	for _, id := range ids.ToSlice() {
		if s, ok := c.byID[id]; ok && s.State.Live() {
			out = append(out, s)
		}
	}
	return out
}

// RebindTarget pins the session to the connection that answered.
func (c *Calls) RebindTarget(id domain.CallID, conn core.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[id]
	if !ok || s.TargetConn == conn {
		return
	}
	if s.TargetConn != s.CallerConn {
		unindex(c.byConn, s.TargetConn, id)
	}
	s.TargetConn = conn
	index(c.byConn, conn, id)
}

func (c *Calls) Remove(id domain.CallID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	unindex(c.byUser, s.Caller, id)
	unindex(c.byUser, s.Target, id)
	unindex(c.byConn, s.CallerConn, id)
	unindex(c.byConn, s.TargetConn, id)
	metrics.CallsActive.Set(float64(len(c.byID)))
}

func (c *Calls) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

func index[K comparable](m map[K]mapset.Set[domain.CallID], key K, id domain.CallID) {
	set, ok := m[key]
	if !ok {
		set = mapset.NewThreadUnsafeSet[domain.CallID]()
		m[key] = set
	}
	set.Add(id)
}

func unindex[K comparable](m map[K]mapset.Set[domain.CallID], key K, id domain.CallID) {
	set, ok := m[key]
	if !ok {
		return
	}
	set.Remove(id)
	if set.Cardinality() == 0 {
		delete(m, key)
	}
}
