package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ventline/ventline/internal/core"
	"github.com/ventline/ventline/internal/domain"
)

func (ctl *Controller) handleJoin(
	sid core.SessionID,
	conn *wsConn,
	data []byte,
) {
	type joinPayload struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	role, err := domain.ParseRole(p.Role)
	if err != nil {
		ctl.reportError(conn, err)
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).
		Str("username", p.Username).Str("role", p.Role).Msg("join")
	ctl.Orch.Join(sid, p.Username, role, conn)
}

// handleLeave removes the connection from matchmaking without closing the
// socket; the client may join again.
func (ctl *Controller) handleLeave(
	sid core.SessionID,
	conn *wsConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid, conn)
	ctl.sendJSON(conn, map[string]any{
		"type": "left",
	})
}

func (ctl *Controller) handleFindMatch(
	sid core.SessionID,
	conn *wsConn,
	data []byte,
) {
	type findPayload struct {
		Type string `json:"type"`
		Role string `json:"role,omitempty"`
	}
	var p findPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad findMatch payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	// An explicit role on findMatch doubles as a role change.
	if p.Role != "" {
		role, err := domain.ParseRole(p.Role)
		if err != nil {
			ctl.reportError(conn, err)
			return
		}
		if err := ctl.Orch.ChangeRole(sid, role); err != nil {
			ctl.reportError(conn, err)
			return
		}
	}

	if err := ctl.Orch.FindMatch(sid); err != nil {
		ctl.reportError(conn, err)
	}
}

func (ctl *Controller) handleRoleChange(
	sid core.SessionID,
	conn *wsConn,
	data []byte,
) {
	type rolePayload struct {
		Type string `json:"type"`
		Role string `json:"role"`
	}
	var p rolePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rolechange payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	role, err := domain.ParseRole(p.Role)
	if err != nil {
		ctl.reportError(conn, err)
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("role", p.Role).Msg("rolechange")
	if err := ctl.Orch.ChangeRole(sid, role); err != nil {
		ctl.reportError(conn, err)
	}
}

func (ctl *Controller) handleShuffle(
	sid core.SessionID,
	conn *wsConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("shuffle")
	if err := ctl.Orch.Shuffle(sid); err != nil {
		ctl.reportError(conn, err)
	}
}
