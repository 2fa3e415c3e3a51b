package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ventline/ventline/internal/core"
	"github.com/ventline/ventline/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump owns cleanup: whatever ends the loop, the connection is
// unregistered exactly once and the pairing torn down with it.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(sid, c)
		ctl.limiter.Forget(sid)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleEvent(sid, c, data)
		}
	}
}

func (ctl *Controller) handleEvent(sid core.SessionID, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	if !ctl.limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).
			Str("type", env.Type).Msg("rate limited")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(sid, c, data)
	case "findMatch":
		ctl.handleFindMatch(sid, c, data)
	case "rolechange":
		ctl.handleRoleChange(sid, c, data)
	case "shuffle":
		ctl.handleShuffle(sid, c)
	case "message":
		ctl.handleMessage(sid, c, data)
	case "initiateCall", "acceptCall", "declineCall", "endCall":
		ctl.handleCallSignal(sid, c, core.CallSignal(env.Type))
	case "webrtcOffer", "webrtcAnswer":
		ctl.handleSDP(sid, c, env.Type, data)
	case "webrtcCandidate":
		ctl.handleCandidate(sid, c, data)
	case "leave":
		ctl.handleLeave(sid, c)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsConn, code string) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": code,
	})
}

// reportError maps the domain taxonomy to wire error codes. Everything here
// is local to the offending connection; the partner never sees it.
func (ctl *Controller) reportError(c *wsConn, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		ctl.sendError(c, "not_found")
	case errors.Is(err, domain.ErrAlreadyMatched):
		ctl.sendError(c, "already_matched")
	case errors.Is(err, domain.ErrNotPaired):
		ctl.sendError(c, "not_paired")
	case errors.Is(err, domain.ErrInvalidTransition):
		ctl.sendError(c, "invalid_call_state")
	case errors.Is(err, domain.ErrUnknownRole):
		ctl.sendError(c, "unknown_role")
	default:
		ctl.sendError(c, "internal")
	}
}
