package orch

import (
	"errors"
	"time"

	"github.com/dkeye/Dispatch/internal/app"
	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
	"github.com/dkeye/Dispatch/internal/metrics"
)

var (
	ErrNotJoined     = errors.New("connection has not joined")
	ErrSelfCall      = errors.New("cannot call yourself")
	ErrTargetOffline = errors.New("target offline")
	ErrBusy          = errors.New("target busy")
	ErrNoSession     = errors.New("no matching call")
	ErrRateLimited   = errors.New("too many calls")
)

// Admit decides whether caller may open one more call. It is consulted on
// the coordinator, and only for offers that would create a session.
type Admit func(caller domain.UserID) bool

// Initiate opens a call from the identity on conn to target and forwards the
// offer. An offline target gets the caller a call-unavailable, an occupied
// pair a call-busy. Re-sending the offer while still ringing refreshes it.
func (o *Orchestrator) Initiate(conn core.ConnID, target domain.UserID, signal core.Signal) (domain.Call, error) {
	return o.InitiateAdmitted(conn, target, signal, nil)
}

// InitiateAdmitted is Initiate with a budget check. Refreshed offers,
// unavailable targets and busy pairs never reach admit.
func (o *Orchestrator) InitiateAdmitted(conn core.ConnID, target domain.UserID, signal core.Signal, admit Admit) (domain.Call, error) {
	var (
		call domain.Call
		err  error
	)
	if derr := o.do(func() { call, err = o.initiate(conn, target, signal, admit) }); derr != nil {
		return domain.Call{}, derr
	}
	return call, err
}

func (o *Orchestrator) initiate(conn core.ConnID, target domain.UserID, signal core.Signal, admit Admit) (domain.Call, error) {
	caller, ok := o.Registry.Identity(conn)
	if !ok {
		return domain.Call{}, ErrNotJoined
	}
	if caller.ID == target {
		return domain.Call{}, ErrSelfCall
	}
	callerSig, _ := o.Registry.Signal(conn)

	route, ok := o.Registry.Lookup(target)
	if !ok {
		metrics.CallsUnavailable.Inc()
		o.send(callerSig, core.CallUnavailable{Type: core.TypeCallUnavailable, To: target})
		return domain.Call{}, ErrTargetOffline
	}

	if s, ok := o.Calls.Between(caller.ID, target); ok {
		if s.State == domain.CallRinging && s.Caller == caller.ID && s.CallerConn == conn {
			s.Offer = signal
			o.send(route.Signal, incoming(caller, signal))
			o.armRing(s.ID)
			o.logger.Debug().Str("call", string(s.ID)).Msg("offer refreshed")
			return s.Call, nil
		}
		return domain.Call{}, o.busy(callerSig, target)
	}
	if o.cfg.RejectBusy && len(o.Calls.OfUser(target)) > 0 {
		return domain.Call{}, o.busy(callerSig, target)
	}
	if admit != nil && !admit(caller.ID) {
		return domain.Call{}, ErrRateLimited
	}

	s := o.Calls.Create(caller.ID, target, conn, route.ID, signal)
	metrics.CallsStarted.Inc()
	o.logger.Info().Str("call", string(s.ID)).Str("caller", string(caller.ID)).Str("target", string(target)).Msg("call ringing")
	if !o.send(route.Signal, incoming(caller, signal)) {
		o.logger.Warn().Str("call", string(s.ID)).Msg("offer not delivered")
	}
	o.armRing(s.ID)
	return s.Call, nil
}

func (o *Orchestrator) busy(callerSig core.SignalConnection, target domain.UserID) error {
	metrics.CallsBusy.Inc()
	o.send(callerSig, core.CallBusy{Type: core.TypeCallBusy, To: target})
	return ErrBusy
}

func incoming(caller domain.User, signal core.Signal) core.CallIncoming {
	return core.CallIncoming{
		Type:   core.TypeCallIncoming,
		From:   caller.ID,
		Name:   caller.Name,
		Email:  caller.Email,
		Avatar: caller.Avatar,
		Signal: signal,
	}
}

// Answer accepts the ringing call from `to` and relays the answer blob.
func (o *Orchestrator) Answer(conn core.ConnID, to domain.UserID, signal core.Signal) error {
	return o.exchange(conn, to, func(me domain.User, s *app.CallSession) error {
		if s.Caller != to {
			return ErrNoSession
		}
		if err := s.Transition(domain.CallAccepted); err != nil {
			return errors.Join(ErrNoSession, err)
		}
		o.disarmRing(s.ID)
		o.Calls.RebindTarget(s.ID, conn)
		o.logger.Info().Str("call", string(s.ID)).Msg("call accepted")
		if !o.sendTo(to, core.CallAccepted{Type: core.TypeCallAccepted, From: me.ID, Signal: signal}) {
			o.logger.Debug().Str("call", string(s.ID)).Msg("answer not delivered")
		}
		return nil
	})
}

// Reject declines a ringing call from `to`.
func (o *Orchestrator) Reject(conn core.ConnID, to domain.UserID) error {
	return o.exchange(conn, to, func(me domain.User, s *app.CallSession) error {
		if s.Caller != to || s.State != domain.CallRinging {
			return ErrNoSession
		}
		if !o.terminate(s, domain.CallRejected) {
			return ErrNoSession
		}
		o.sendTo(to, core.CallRejected{Type: core.TypeCallRejected, From: me.ID, Name: me.Name, Avatar: me.Avatar})
		return nil
	})
}

// End hangs up the live call with `to`, from either side. Ending a call
// that is already over is a no-op.
func (o *Orchestrator) End(conn core.ConnID, to domain.UserID) error {
	return o.exchange(conn, to, func(me domain.User, s *app.CallSession) error {
		if !o.terminate(s, domain.CallEnded) {
			return ErrNoSession
		}
		o.sendTo(to, core.CallEnded{Type: core.TypeCallEnded, From: me.ID})
		return nil
	})
}

// Candidate relays a trickled ICE candidate while the pair has a live call.
func (o *Orchestrator) Candidate(conn core.ConnID, to domain.UserID, signal core.Signal) error {
	return o.exchange(conn, to, func(me domain.User, s *app.CallSession) error {
		o.sendTo(to, core.CallCandidate{Type: core.TypeCallCandidate, From: me.ID, Signal: signal})
		return nil
	})
}

// exchange resolves the caller identity and the live session with `to`,
// then runs fn on the coordinator.
func (o *Orchestrator) exchange(conn core.ConnID, to domain.UserID, fn func(me domain.User, s *app.CallSession) error) error {
	var err error
	if derr := o.do(func() {
		me, ok := o.Registry.Identity(conn)
		if !ok {
			err = ErrNotJoined
			return
		}
		s, ok := o.Calls.Between(me.ID, to)
		if !ok {
			err = ErrNoSession
			return
		}
		err = fn(me, s)
	}); derr != nil {
		return derr
	}
	return err
}

// terminate moves s into a terminal state and forgets it. False means the
// transition was not allowed and nothing changed.
func (o *Orchestrator) terminate(s *app.CallSession, state domain.CallState) bool {
	if err := s.Transition(state); err != nil {
		o.logger.Debug().Err(err).Str("call", string(s.ID)).Msg("transition ignored")
		return false
	}
	o.disarmRing(s.ID)
	o.Calls.Remove(s.ID)
	metrics.CallsFinished.WithLabelValues(state.String()).Inc()

	ev := o.logger.Info().Str("call", string(s.ID)).Str("state", state.String())
	if !s.AnsweredAt.IsZero() {
		ev = ev.Dur("duration", s.EndedAt.Sub(s.AnsweredAt))
	}
	ev.Msg("call finished")
	return true
}

func (o *Orchestrator) armRing(id domain.CallID) {
	if o.cfg.RingTimeout <= 0 {
		return
	}
	o.disarmRing(id)
	var t *time.Timer
	t = time.AfterFunc(o.cfg.RingTimeout, func() {
		o.submit(func() {
			if o.ringTimers[id] != t {
				return
			}
			delete(o.ringTimers, id)
			o.expire(id)
		})
	})
	o.ringTimers[id] = t
}

func (o *Orchestrator) disarmRing(id domain.CallID) {
	if t, ok := o.ringTimers[id]; ok {
		t.Stop()
		delete(o.ringTimers, id)
	}
}

// expire turns a call nobody answered into a missed one.
func (o *Orchestrator) expire(id domain.CallID) {
	s, ok := o.Calls.Get(id)
	if !ok || s.State != domain.CallRinging {
		return
	}
	if !o.terminate(s, domain.CallMissed) {
		return
	}
	o.sendTo(s.Caller, core.CallMissed{Type: core.TypeCallMissed, From: s.Target})
	o.sendTo(s.Target, core.CallEnded{Type: core.TypeCallEnded, From: s.Caller})
}
