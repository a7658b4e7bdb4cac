package app

import (
	"errors"

	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/metrics"
	"github.com/rs/zerolog/log"
)

// TargetSource lists the connections a snapshot goes to.
type TargetSource interface {
	Targets() []core.Target
}

// Presence fans the online-users snapshot out to every attached connection.
// Delivery is best effort: last snapshot wins.
type Presence struct {
	targets TargetSource
}

func NewPresence(targets TargetSource) *Presence {
	return &Presence{targets: targets}
}

func (p *Presence) Publish(snapshot []core.PresenceDTO) core.PublishResult {
	res := core.PublishResult{}
	frame, err := core.Encode(core.OnlineUsers{Type: core.TypeOnlineUsers, Users: snapshot})
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("encode snapshot")
		metrics.FramesDropped.WithLabelValues(metrics.DropEncode).Inc()
		return res
	}
	for _, t := range p.targets.Targets() {
		if err := t.Signal.TrySend(frame); err != nil {
			if errors.Is(err, core.ErrBackpressure) {
				metrics.FramesDropped.WithLabelValues(metrics.DropBackpressure).Inc()
				res.Dropped = append(res.Dropped, t.ID)
			} else {
				metrics.FramesDropped.WithLabelValues(metrics.DropClosed).Inc()
			}
			continue
		}
		res.SentTo++
	}
	metrics.FramesSent.Add(float64(res.SentTo))
	metrics.PresenceBroadcasts.Inc()
	log.Debug().Str("module", "app.presence").Int("users", len(snapshot)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
