package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTerminalState     = errors.New("call already in terminal state")
	ErrInvalidTransition = errors.New("invalid call transition")
)

type CallID string

type CallState int

const (
	CallRinging CallState = iota
	CallAccepted
	CallRejected
	CallEnded
	// CallMissed is the ring-timeout outcome, a rejection nobody sent.
	CallMissed
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallAccepted:
		return "accepted"
	case CallRejected:
		return "rejected"
	case CallEnded:
		return "ended"
	case CallMissed:
		return "missed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s CallState) Terminal() bool {
	return s == CallRejected || s == CallEnded || s == CallMissed
}

// Live reports whether the call still occupies the pair.
func (s CallState) Live() bool {
	return s == CallRinging || s == CallAccepted
}

var callTransitions = map[CallState][]CallState{
	CallRinging:  {CallAccepted, CallRejected, CallEnded, CallMissed},
	CallAccepted: {CallEnded},
}

// Call is one call attempt between two identities.
type Call struct {
	ID         CallID
	Caller     UserID
	Target     UserID
	State      CallState
	CreatedAt  time.Time
	AnsweredAt time.Time
	EndedAt    time.Time
}

func NewCall(id CallID, caller, target UserID) *Call {
	return &Call{
		ID:        id,
		Caller:    caller,
		Target:    target,
		State:     CallRinging,
		CreatedAt: time.Now(),
	}
}

// Transition moves the call to next. Terminal calls accept nothing.
func (c *Call) Transition(next CallState) error {
	if c.State.Terminal() {
		return ErrTerminalState
	}
	for _, allowed := range callTransitions[c.State] {
		if allowed != next {
			continue
		}
		c.State = next
		now := time.Now()
		if next == CallAccepted {
			c.AnsweredAt = now
		}
		if next.Terminal() {
			c.EndedAt = now
		}
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.State, next)
}

// Involves reports whether uid is the caller or the target.
func (c *Call) Involves(uid UserID) bool {
	return c.Caller == uid || c.Target == uid
}

// Peer returns the other participant.
func (c *Call) Peer(uid UserID) UserID {
	if c.Caller == uid {
		return c.Target
	}
	return c.Caller
}
