package core

import (
	"github.com/goccy/go-json"

	"github.com/dkeye/Dispatch/internal/domain"
)

// Message types on the signaling socket.
const (
	TypeJoin           = "join"
	TypeLeave          = "leave"
	TypeLeft           = "left"
	TypePing           = "ping"
	TypePong           = "pong"
	TypeWhoAmI         = "whoami"
	TypeError          = "error"
	TypeLocationUpdate = "location-update"
	TypeOnlineUsers    = "online-users"

	TypeCallInitiate    = "call-initiate"
	TypeCallIncoming    = "call-incoming"
	TypeCallAnswer      = "call-answer"
	TypeCallAccepted    = "call-accepted"
	TypeCallReject      = "call-reject"
	TypeCallRejected    = "call-rejected"
	TypeCallEnd         = "call-end"
	TypeCallEnded       = "call-ended"
	TypeCallCandidate   = "call-candidate"
	TypeCallUnavailable = "call-unavailable"
	TypeCallBusy        = "call-busy"
	TypeCallMissed      = "call-missed"
)

// Signal is the browser's WebRTC blob. It is forwarded verbatim.
type Signal = json.RawMessage

type OnlineUsers struct {
	Type  string        `json:"type"`
	Users []PresenceDTO `json:"users"`
}

type CallIncoming struct {
	Type   string        `json:"type"`
	From   domain.UserID `json:"from"`
	Name   string        `json:"name"`
	Email  string        `json:"email,omitempty"`
	Avatar string        `json:"avatar,omitempty"`
	Signal Signal        `json:"signal"`
}

type CallAccepted struct {
	Type   string        `json:"type"`
	From   domain.UserID `json:"from"`
	Signal Signal        `json:"signal"`
}

type CallRejected struct {
	Type   string        `json:"type"`
	From   domain.UserID `json:"from"`
	Name   string        `json:"name,omitempty"`
	Avatar string        `json:"avatar,omitempty"`
}

type CallEnded struct {
	Type string        `json:"type"`
	From domain.UserID `json:"from,omitempty"`
}

type CallCandidate struct {
	Type   string        `json:"type"`
	From   domain.UserID `json:"from"`
	Signal Signal        `json:"signal"`
}

// CallUnavailable tells a caller the target is not online.
type CallUnavailable struct {
	Type string        `json:"type"`
	To   domain.UserID `json:"to"`
}

type CallBusy struct {
	Type string        `json:"type"`
	To   domain.UserID `json:"to"`
}

type CallMissed struct {
	Type string        `json:"type"`
	From domain.UserID `json:"from"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func Encode(v any) (Frame, error) {
	return json.Marshal(v)
}
