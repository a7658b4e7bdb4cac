package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dispatch/internal/app/orch"
	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
	"github.com/dkeye/Dispatch/internal/metrics"
)

type initiatePayload struct {
	Type         string      `json:"type"`
	TargetUserID string      `json:"targetUserId" validate:"required,max=64"`
	Signal       core.Signal `json:"signal" validate:"required"`
}

// peerPayload covers call-reject and call-end.
type peerPayload struct {
	Type string `json:"type"`
	To   string `json:"to" validate:"required,max=64"`
}

// signalPayload covers call-answer and call-candidate.
type signalPayload struct {
	Type   string      `json:"type"`
	To     string      `json:"to" validate:"required,max=64"`
	Signal core.Signal `json:"signal" validate:"required"`
}

func (ctl *SignalWSController) handleInitiate(
	id core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p initiatePayload
	if !ctl.decode(id, conn, data, &p) {
		return
	}
	var admit orch.Admit
	if ctl.initiates != nil {
		admit = ctl.initiates.Allow
	}
	call, err := ctl.Orch.InitiateAdmitted(id, domain.UserID(p.TargetUserID), p.Signal, admit)
	if ctl.replyCallError(id, conn, err) {
		return
	}
	log.Debug().Str("module", "signal").Str("conn", string(id)).Str("call", string(call.ID)).Msg("call-initiate handled")
}

func (ctl *SignalWSController) handleAnswer(
	id core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p signalPayload
	if !ctl.decode(id, conn, data, &p) {
		return
	}
	ctl.replyCallError(id, conn, ctl.Orch.Answer(id, domain.UserID(p.To), p.Signal))
}

func (ctl *SignalWSController) handleReject(
	id core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p peerPayload
	if !ctl.decode(id, conn, data, &p) {
		return
	}
	ctl.replyCallError(id, conn, ctl.Orch.Reject(id, domain.UserID(p.To)))
}

func (ctl *SignalWSController) handleEnd(
	id core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p peerPayload
	if !ctl.decode(id, conn, data, &p) {
		return
	}
	ctl.replyCallError(id, conn, ctl.Orch.End(id, domain.UserID(p.To)))
}

func (ctl *SignalWSController) handleCandidate(
	id core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p signalPayload
	if !ctl.decode(id, conn, data, &p) {
		return
	}
	ctl.replyCallError(id, conn, ctl.Orch.Candidate(id, domain.UserID(p.To), p.Signal))
}

// replyCallError reports whether err stopped the operation. Only errors the
// client can act on produce a frame; the coordinator already told the caller
// about offline and busy targets, and late or stale call messages are
// ignored.
func (ctl *SignalWSController) replyCallError(id core.ConnID, conn *WsSignalConn, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, orch.ErrNotJoined):
		ctl.sendError(conn, errNotJoined)
	case errors.Is(err, orch.ErrSelfCall):
		ctl.sendError(conn, errBadPayload)
	case errors.Is(err, orch.ErrRateLimited):
		metrics.RateLimited.WithLabelValues("initiate").Inc()
		log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("call initiate rate exceeded")
		ctl.sendError(conn, errRateLimited)
	case errors.Is(err, orch.ErrTargetOffline), errors.Is(err, orch.ErrBusy), errors.Is(err, orch.ErrNoSession):
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("call message not applied")
	default:
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("call message failed")
	}
	return true
}
