package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/Dispatch/internal/app"
	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
	"github.com/dkeye/Dispatch/internal/metrics"
)

var ErrStopped = errors.New("orchestrator stopped")

const defaultInboxSize = 1024

type Config struct {
	// RingTimeout turns an unanswered call into a missed one. Zero disables it.
	RingTimeout time.Duration
	// CoalesceWindow batches presence broadcasts caused by location updates.
	CoalesceWindow time.Duration
	// RejectBusy refuses calls to a user who is already in a live call.
	RejectBusy bool
	InboxSize  int
}

// Orchestrator owns all shared hub state. Registry, call table and timers
// are mutated only from the Run goroutine; connection goroutines talk to it
// through the inbox.
type Orchestrator struct {
	Registry  *app.Registry
	Presence  *app.Presence
	Calls     *app.Calls
	Locations *app.LocationRelay
	Policy    app.Policy

	cfg    Config
	inbox  chan func()
	done   chan struct{}
	logger zerolog.Logger

	ringTimers   map[domain.CallID]*time.Timer
	flushTimer   *time.Timer
	flushPending bool
}

func New(reg *app.Registry, calls *app.Calls, policy app.Policy, cfg Config) *Orchestrator {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if policy == nil {
		policy = app.DropPolicy{}
	}
	return &Orchestrator{
		Registry:   reg,
		Presence:   app.NewPresence(reg),
		Calls:      calls,
		Locations:  app.NewLocationRelay(reg),
		Policy:     policy,
		cfg:        cfg,
		inbox:      make(chan func(), cfg.InboxSize),
		done:       make(chan struct{}),
		logger:     log.With().Str("module", "orch").Logger(),
		ringTimers: make(map[domain.CallID]*time.Timer),
	}
}

// Run processes commands until ctx is done. It must be called exactly once.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info().Dur("ring_timeout", o.cfg.RingTimeout).Dur("coalesce_window", o.cfg.CoalesceWindow).Msg("orchestrator started")
	defer func() {
		close(o.done)
		o.stopTimers()
		o.logger.Info().Msg("orchestrator stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-o.inbox:
			o.exec(fn)
		case <-o.Locations.Ready():
			o.exec(o.applyLocations)
		}
	}
}

// Done is closed once Run has returned.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) exec(fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		metrics.HandlerPanics.WithLabelValues("orchestrator").Inc()
		o.logger.Error().Str("panic", fmt.Sprint(r.Value)).Bytes("stack", r.Stack).Msg("recovered panic in command")
	}
}

// do runs fn on the Run goroutine and waits for it.
func (o *Orchestrator) do(fn func()) error {
	ack := make(chan struct{})
	select {
	case o.inbox <- func() {
		defer close(ack)
		fn()
	}:
	case <-o.done:
		return ErrStopped
	}
	select {
	case <-ack:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

// submit queues fn without waiting. Used by timers.
func (o *Orchestrator) submit(fn func()) {
	select {
	case o.inbox <- fn:
	case <-o.done:
	}
}

func (o *Orchestrator) stopTimers() {
	for id, t := range o.ringTimers {
		t.Stop()
		delete(o.ringTimers, id)
	}
	if o.flushTimer != nil {
		o.flushTimer.Stop()
		o.flushTimer = nil
	}
}

// send encodes v and enqueues it without blocking.
func (o *Orchestrator) send(sig core.SignalConnection, v any) bool {
	if sig == nil {
		return false
	}
	frame, err := core.Encode(v)
	if err != nil {
		metrics.FramesDropped.WithLabelValues(metrics.DropEncode).Inc()
		o.logger.Error().Err(err).Msg("encode frame")
		return false
	}
	if err := sig.TrySend(frame); err != nil {
		reason := metrics.DropClosed
		if errors.Is(err, core.ErrBackpressure) {
			reason = metrics.DropBackpressure
		}
		metrics.FramesDropped.WithLabelValues(reason).Inc()
		o.logger.Debug().Err(err).Msg("frame dropped")
		return false
	}
	metrics.FramesSent.Inc()
	return true
}

// sendTo re-resolves uid and sends. A routing miss is an expected race.
func (o *Orchestrator) sendTo(uid domain.UserID, v any) bool {
	route, ok := o.Registry.Lookup(uid)
	if !ok {
		o.logger.Debug().Str("user", string(uid)).Msg("routing miss")
		return false
	}
	return o.send(route.Signal, v)
}
