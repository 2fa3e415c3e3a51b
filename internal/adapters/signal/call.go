package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/ventline/ventline/internal/core"
)

func (ctl *Controller) handleCallSignal(
	sid core.SessionID,
	conn *wsConn,
	sig core.CallSignal,
) {
	if err := ctl.Orch.CallSignal(sid, sig); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).
			Str("signal", string(sig)).Msg("rejected call signal")
		ctl.reportError(conn, err)
	}
}

// handleSDP relays an offer or answer to the partner once call signaling is
// established. The SDP itself is opaque to the server; the peers negotiate
// media directly.
func (ctl *Controller) handleSDP(
	sid core.SessionID,
	conn *wsConn,
	kind string,
	data []byte,
) {
	type sdpPayload struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	var p sdpPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SDP == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad sdp payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	sdpType := webrtc.SDPTypeOffer
	if kind == "webrtcAnswer" {
		sdpType = webrtc.SDPTypeAnswer
	}
	desc := webrtc.SessionDescription{Type: sdpType, SDP: p.SDP}

	out, err := json.Marshal(struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}{Type: kind, SDP: desc.SDP})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode sdp relay")
		return
	}

	if err := ctl.Orch.RelayWebRTC(sid, out); err != nil {
		ctl.reportError(conn, err)
	}
}

// candidatePayload mirrors RTCIceCandidateInit. sdpMid and sdpMLineIndex
// are pointers: index 0 is the usual value for an audio-only call and must
// survive the relay, so absent and zero have to stay distinguishable.
type candidatePayload struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func (ctl *Controller) handleCandidate(
	sid core.SessionID,
	conn *wsConn,
	data []byte,
) {
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Candidate == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	cand := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}

	out, err := json.Marshal(candidatePayload{
		Type:          "webrtcCandidate",
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode candidate relay")
		return
	}

	if err := ctl.Orch.RelayWebRTC(sid, out); err != nil {
		ctl.reportError(conn, err)
	}
}
