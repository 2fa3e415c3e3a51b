package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ventline/ventline/internal/core"
)

func (ctl *Controller) handleMessage(
	sid core.SessionID,
	conn *wsConn,
	data []byte,
) {
	type messagePayload struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.Content == "" {
		return
	}
	if len(p.Content) > ctl.Cfg.MaxMessageLen {
		ctl.sendError(conn, "message_too_long")
		return
	}

	if err := ctl.Orch.SendMessage(sid, p.Content); err != nil {
		ctl.reportError(conn, err)
	}
}
