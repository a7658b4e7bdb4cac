package app

import (
	"sync"

	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
	"github.com/dkeye/Dispatch/internal/metrics"
	"github.com/rs/zerolog/log"
)

// IdentitySource resolves the identity bound to a connection.
type IdentitySource interface {
	Identity(id core.ConnID) (domain.User, bool)
}

// LocationRelay buffers the latest position per user until the
// orchestrator drains it. A flood of updates from one client overwrites a
// single slot instead of queueing.
type LocationRelay struct {
	ids IdentitySource

	mu      sync.Mutex
	pending map[domain.UserID]domain.Location
	notify  chan struct{}
}

func NewLocationRelay(ids IdentitySource) *LocationRelay {
	return &LocationRelay{
		ids:     ids,
		pending: make(map[domain.UserID]domain.Location),
		notify:  make(chan struct{}, 1),
	}
}

// OnLocationUpdate accepts a position from a connection. Connections without
// an identity and invalid coordinates are ignored.
func (l *LocationRelay) OnLocationUpdate(id core.ConnID, lat, lng float64) bool {
	user, ok := l.ids.Identity(id)
	if !ok {
		metrics.LocationUpdates.WithLabelValues("anonymous").Inc()
		log.Debug().Str("module", "app.location").Str("conn", string(id)).Msg("location from unbound connection")
		return false
	}
	loc, err := domain.NewLocation(lat, lng)
	if err != nil {
		metrics.LocationUpdates.WithLabelValues("invalid").Inc()
		log.Debug().Str("module", "app.location").Str("conn", string(id)).Float64("lat", lat).Float64("lng", lng).Msg("dropped invalid location")
		return false
	}

	l.mu.Lock()
	l.pending[user.ID] = loc
	l.mu.Unlock()
	metrics.LocationUpdates.WithLabelValues("accepted").Inc()

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return true
}

// Ready fires when at least one position is waiting.
func (l *LocationRelay) Ready() <-chan struct{} {
	return l.notify
}

// Drain hands over every pending position and resets the buffer.
func (l *LocationRelay) Drain() map[domain.UserID]domain.Location {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil
	}
	out := l.pending
	l.pending = make(map[domain.UserID]domain.Location, len(out))
	return out
}
