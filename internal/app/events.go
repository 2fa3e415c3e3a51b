package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ventline/ventline/internal/core"
	"github.com/ventline/ventline/internal/domain"
)

// Outbound wire events. Every frame is a JSON object with a "type"
// discriminator, matching what the client renders.

func encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("encode event")
		return nil
	}
	return b
}

func onlineCountEvent(count int) core.Frame {
	return encode(struct {
		Type  string `json:"type"`
		Count int    `json:"count"`
	}{Type: "online-count", Count: count})
}

func matchedEvent(partner domain.User) core.Frame {
	return encode(struct {
		Type     string      `json:"type"`
		Username string      `json:"username"`
		Role     domain.Role `json:"role"`
	}{Type: "matched", Username: partner.Username, Role: partner.Role})
}

func unmatchedEvent() core.Frame {
	return encode(struct {
		Type string `json:"type"`
	}{Type: "unmatched"})
}

// messageEvent is always tagged sender "match": the recipient only ever
// sees partner messages, local echo is the sender's own UI's job.
func messageEvent(id, content string) core.Frame {
	return encode(struct {
		Type    string `json:"type"`
		ID      string `json:"id"`
		Content string `json:"content"`
		Sender  string `json:"sender"`
	}{Type: "message", ID: id, Content: content, Sender: "match"})
}

func callEvent(ev core.CallEvent) core.Frame {
	return encode(struct {
		Type string `json:"type"`
	}{Type: string(ev)})
}
