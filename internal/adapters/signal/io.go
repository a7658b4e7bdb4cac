package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/time/rate"

	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/metrics"
)

const (
	errBadPayload       = "bad_payload"
	errRateLimited      = "rate_limited"
	errNotJoined        = "not_joined"
	errIdentityMismatch = "identity_mismatch"
)

func (ctl *SignalWSController) writePump(ctx context.Context, id core.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id core.ConnID, c *WsSignalConn) {
	defer func() {
		cancel()
		c.Close()
		if err := ctl.Orch.Disconnect(id); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("disconnect after shutdown")
		}
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if ctl.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ctl.opts.MessagesPerSecond), ctl.opts.Burst)
	}

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		if !limiter.Allow() {
			metrics.RateLimited.WithLabelValues("inbound").Inc()
			log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("inbound rate exceeded, closing")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, errRateLimited),
				time.Now().Add(ctl.opts.WriteTimeout))
			return
		}
		ctl.dispatch(id, c, data)
	}
}

// dispatch isolates a panicking handler to the message that caused it.
func (ctl *SignalWSController) dispatch(id core.ConnID, c *WsSignalConn, data []byte) {
	var pc panics.Catcher
	pc.Try(func() { ctl.handleSignal(id, c, data) })
	if r := pc.Recovered(); r != nil {
		metrics.HandlerPanics.WithLabelValues("signal").Inc()
		log.Error().Str("module", "signal").Str("conn", string(id)).Str("panic", fmt.Sprint(r.Value)).Bytes("stack", r.Stack).Msg("recovered panic in handler")
	}
}

func (ctl *SignalWSController) handleSignal(id core.ConnID, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad json")
		metrics.MessagesReceived.WithLabelValues("invalid").Inc()
		ctl.sendError(c, errBadPayload)
		return
	}

	label := env.Type
	switch env.Type {
	case core.TypeJoin:
		ctl.handleJoin(id, c, data)
	case core.TypeLeave:
		ctl.handleLeave(id, c)
	case core.TypePing:
		ctl.handlePing(c)
	case core.TypeWhoAmI:
		ctl.handleWhoAmI(id, c)
	case core.TypeLocationUpdate:
		ctl.handleLocation(id, c, data)
	case core.TypeCallInitiate:
		ctl.handleInitiate(id, c, data)
	case core.TypeCallAnswer:
		ctl.handleAnswer(id, c, data)
	case core.TypeCallReject:
		ctl.handleReject(id, c, data)
	case core.TypeCallEnd:
		ctl.handleEnd(id, c, data)
	case core.TypeCallCandidate:
		ctl.handleCandidate(id, c, data)
	default:
		label = "unknown"
		log.Warn().Str("module", "signal").Str("conn", string(id)).Str("type", env.Type).Msg("unknown signal")
	}
	metrics.MessagesReceived.WithLabelValues(label).Inc()
}

// decode unmarshals and validates a payload, replying bad_payload on failure.
func (ctl *SignalWSController) decode(id core.ConnID, c *WsSignalConn, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad payload")
		ctl.sendError(c, errBadPayload)
		return false
	}
	if err := ctl.validate.Struct(v); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("invalid payload")
		ctl.sendError(c, errBadPayload)
		return false
	}
	return true
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		reason := metrics.DropClosed
		if errors.Is(err, core.ErrBackpressure) {
			reason = metrics.DropBackpressure
		}
		metrics.FramesDropped.WithLabelValues(reason).Inc()
		return
	}
	metrics.FramesSent.Inc()
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code string) {
	ctl.sendJSON(c, core.ErrorMessage{Type: core.TypeError, Error: code})
}
