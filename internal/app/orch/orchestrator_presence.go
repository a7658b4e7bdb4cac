package orch

import (
	"time"

	"github.com/dkeye/Dispatch/internal/app"
)

// publishPresence broadcasts now, or within the coalesce window when the
// change came from a location update. The window always ends in a flush of
// the state at that moment.
func (o *Orchestrator) publishPresence(immediate bool) {
	if immediate || o.cfg.CoalesceWindow <= 0 {
		if o.flushTimer != nil {
			o.flushTimer.Stop()
			o.flushTimer = nil
		}
		o.flushPresence()
		return
	}
	if o.flushPending {
		return
	}
	o.flushPending = true
	o.flushTimer = time.AfterFunc(o.cfg.CoalesceWindow, func() {
		o.submit(func() {
			if !o.flushPending {
				return
			}
			o.flushPresence()
		})
	})
}

func (o *Orchestrator) flushPresence() {
	o.flushPending = false
	o.flushTimer = nil
	res := o.Presence.Publish(o.Registry.Snapshot())
	for _, id := range res.Dropped {
		switch o.Policy.OnBackPressure(id) {
		case app.KickConn:
			if sig, ok := o.Registry.Signal(id); ok {
				o.logger.Warn().Str("conn", string(id)).Msg("kicking slow connection")
				sig.Close()
			}
		case app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) applyLocations() {
	changed := false
	for uid, loc := range o.Locations.Drain() {
		if !o.Registry.UpdateLocation(uid, loc) {
			o.logger.Debug().Str("user", string(uid)).Msg("location for offline user ignored")
			continue
		}
		changed = true
	}
	if changed {
		o.publishPresence(false)
	}
}
