package core

// ConnID identifies one live transport session. A user may own several
// (duplicate tabs) but only the most recently joined one is routable.
type ConnID string

// Target is a connection a frame can be fanned out to.
type Target struct {
	ID     ConnID
	Signal SignalConnection
}
