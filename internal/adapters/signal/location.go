package signal

import (
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/metrics"
)

type locationPayload struct {
	Type   string   `json:"type"`
	UserID string   `json:"userId,omitempty"`
	Lat    *float64 `json:"lat" validate:"required"`
	Lng    *float64 `json:"lng" validate:"required"`
}

// handleLocation forwards a position to the relay. Malformed updates are
// dropped without a reply; the identity is always the one bound to the
// connection.
func (ctl *SignalWSController) handleLocation(
	id core.ConnID,
	_ *WsSignalConn,
	data []byte,
) {
	var p locationPayload
	if err := json.Unmarshal(data, &p); err != nil || ctl.validate.Struct(&p) != nil {
		metrics.LocationUpdates.WithLabelValues("invalid").Inc()
		log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("malformed location dropped")
		return
	}
	if p.UserID != "" {
		if user, ok := ctl.Orch.Registry.Identity(id); ok && string(user.ID) != p.UserID {
			metrics.LocationUpdates.WithLabelValues("mismatch").Inc()
			log.Debug().Str("module", "signal").Str("conn", string(id)).Str("claimed", p.UserID).Msg("location for foreign identity dropped")
			return
		}
	}
	ctl.Orch.OnLocationUpdate(id, *p.Lat, *p.Lng)
}
