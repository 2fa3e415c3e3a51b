package app

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ventline/ventline/internal/core"
	"github.com/ventline/ventline/internal/domain"
)

// Orchestrator mediates between connection handlers and the registry. All
// registry mutations happen inside the registry's own critical section;
// the orchestrator only sends frames afterwards, so a slow client can
// never stall matchmaking for anyone else. Sends go through the
// non-blocking TrySend and a failure just drops the frame for that client.
type Orchestrator struct {
	Registry *Registry
}

func NewOrchestrator(reg *Registry) *Orchestrator {
	return &Orchestrator{Registry: reg}
}

// Join registers a connection as searching and immediately attempts a
// match. A re-join on the same session id replaces the previous state, with
// the abandoned ex-partner notified and put back in rotation.
func (o *Orchestrator) Join(sid core.SessionID, username string, role domain.Role, conn core.SignalConnection) *domain.User {
	user, err := domain.NewUser(username, role)
	if err != nil {
		// Bad display names fall back to a generated one rather than
		// bouncing the connection.
		user, _ = domain.NewUser(domain.GuestName(), role)
		log.Warn().Err(err).Str("module", "app.orch").Str("sid", string(sid)).
			Str("fallback", user.Username).Msg("invalid username on join")
	}

	sess := core.NewMemberSession(user, conn)
	count, old := o.Registry.Register(sid, user, sess)
	o.notifyTeardown(old)
	o.broadcastCount(count)
	o.tryMatchAndNotify(sid)
	return user
}

// OnDisconnect is the single cleanup path for a closed transport. It is
// idempotent: a second call for the same id is a safe no-op. owner, when
// non-nil, is the connection the caller was serving; a stale pump whose
// registration was already replaced by a re-join must not evict the
// replacement.
func (o *Orchestrator) OnDisconnect(sid core.SessionID, owner core.SignalConnection) {
	td, count, existed := o.Registry.Unregister(sid, owner)
	if !existed {
		return
	}
	o.notifyTeardown(td)
	o.broadcastCount(count)
	if td != nil {
		o.tryMatchAndNotify(td.Ex)
	}
}

// Leave mirrors disconnect semantics without closing the socket; the
// client may re-join afterwards.
func (o *Orchestrator) Leave(sid core.SessionID, owner core.SignalConnection) {
	o.OnDisconnect(sid, owner)
}

// notifyTeardown tells the abandoned partner its match is gone.
func (o *Orchestrator) notifyTeardown(td *Teardown) {
	if td == nil {
		return
	}
	o.push(td.ExSess, unmatchedEvent())
}

// broadcastCount fans the presence count out to every live connection.
// The count was snapshotted inside the mutation that changed it.
func (o *Orchestrator) broadcastCount(count int) {
	frame := onlineCountEvent(count)
	for _, sess := range o.Registry.Sessions() {
		o.push(sess, frame)
	}
}

func (o *Orchestrator) push(sess core.MemberSession, frame core.Frame) {
	if sess == nil || frame == nil {
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").
			Str("user", string(sess.Meta().ID)).Msg("dropped outbound frame")
	}
}

// SendMessage relays a chat message to the partner. Nothing is echoed to
// the sender. Without an active pairing the message is a no-op surfaced as
// ErrNotPaired.
func (o *Orchestrator) SendMessage(sid core.SessionID, content string) error {
	_, partner, ok := o.Registry.PairingOf(sid)
	if !ok {
		return domain.ErrNotPaired
	}
	o.push(partner, messageEvent(uuid.NewString(), content))
	log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Msg("relayed message")
	return nil
}

// CallSignal feeds one call-signaling event into the pairing's state
// machine and delivers the resulting event to the partner. Invalid
// transitions are returned to the caller and never reach the partner.
func (o *Orchestrator) CallSignal(sid core.SessionID, sig core.CallSignal) error {
	pair, partner, ok := o.Registry.PairingOf(sid)
	if !ok {
		return domain.ErrNotPaired
	}
	ev, err := pair.Call.Apply(sid, sig)
	if err != nil {
		return err
	}
	if ev != core.EventNone {
		o.push(partner, callEvent(ev))
	}
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).
		Str("signal", string(sig)).Str("event", string(ev)).Msg("call signal")
	return nil
}

// RelayWebRTC forwards an SDP/ICE frame verbatim to the partner. Allowed
// only while the pairing's call signaling is established; media itself
// stays peer-to-peer.
func (o *Orchestrator) RelayWebRTC(sid core.SessionID, raw core.Frame) error {
	pair, partner, ok := o.Registry.PairingOf(sid)
	if !ok {
		return domain.ErrNotPaired
	}
	if !pair.Call.Connected() {
		return domain.ErrInvalidTransition
	}
	o.push(partner, raw)
	return nil
}

func (o *Orchestrator) Stats() Stats {
	return o.Registry.Snapshot()
}
