package signal

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
)

type joinPayload struct {
	Type   string `json:"type"`
	UserID string `json:"userId" validate:"required,max=64"`
	Name   string `json:"name" validate:"max=64"`
	Email  string `json:"email,omitempty" validate:"omitempty,max=254"`
	Avatar string `json:"avatar,omitempty" validate:"omitempty,max=2048"`
}

func (ctl *SignalWSController) handleJoin(
	id core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p joinPayload
	if !ctl.decode(id, conn, data, &p) {
		return
	}
	uid := domain.UserID(p.UserID)
	if conn.subject != "" && conn.subject != uid {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Str("user", p.UserID).Str("subject", string(conn.subject)).Msg("join identity does not match token")
		ctl.sendError(conn, errIdentityMismatch)
		return
	}
	user, err := domain.NewUser(uid, p.Name, p.Email, p.Avatar)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad join identity")
		ctl.sendError(conn, errBadPayload)
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(id)).Str("user", p.UserID).Msg("join")
	if err := ctl.Orch.Join(id, *user); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("join failed")
	}
}

// handleLeave drops the identity; the socket stays open.
func (ctl *SignalWSController) handleLeave(
	id core.ConnID,
	conn *WsSignalConn,
) {
	left, err := ctl.Orch.Leave(id)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("leave failed")
		return
	}
	if !left {
		ctl.sendError(conn, errNotJoined)
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("leave")
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{Type: core.TypeLeft})
}

func (ctl *SignalWSController) handleWhoAmI(
	id core.ConnID,
	conn *WsSignalConn,
) {
	info, ok := ctl.Orch.WhoAmI(id)
	if !ok || info.User == nil {
		ctl.sendError(conn, errNotJoined)
		return
	}

	resp := struct {
		Type     string        `json:"type"`
		UserID   domain.UserID `json:"userId"`
		Name     string        `json:"name"`
		JoinedAt time.Time     `json:"joinedAt"`
	}{
		Type:     core.TypeWhoAmI,
		UserID:   info.User.ID,
		Name:     info.User.Name,
		JoinedAt: info.JoinedAt,
	}
	ctl.sendJSON(conn, resp)
}
