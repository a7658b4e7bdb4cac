package app

import (
	"fmt"

	"github.com/dkeye/Dispatch/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickConn
)

// Policy decides what happens to a connection whose queue was full
// during a presence fan-out.
type Policy interface {
	OnBackPressure(conn core.ConnID) BackpressureAction
}

// DropPolicy drops the frame; the next snapshot will catch the client up.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.ConnID) BackpressureAction {
	return DropFrame
}

// KickPolicy closes slow connections.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.ConnID) BackpressureAction {
	return KickConn
}

func PolicyFromString(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown slow consumer policy %q", name)
	}
}
