package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventline/ventline/internal/core"
	"github.com/ventline/ventline/internal/domain"
)

func newTestOrchestrator() *Orchestrator {
	return NewOrchestrator(newTestRegistry())
}

func TestJoinMatchesCompatiblePair(t *testing.T) {
	o := newTestOrchestrator()

	venter := join(o, "v", "BraveTiger", domain.RoleVenter)
	listener := join(o, "l", "QuietOwl", domain.RoleListener)

	ev, ok := venter.lastOfType("matched")
	require.True(t, ok)
	assert.Equal(t, "QuietOwl", ev["username"])
	assert.Equal(t, "listener", ev["role"])

	ev, ok = listener.lastOfType("matched")
	require.True(t, ok)
	assert.Equal(t, "BraveTiger", ev["username"])
	assert.Equal(t, "venter", ev["role"])
}

func TestJoinBroadcastsOnlineCount(t *testing.T) {
	o := newTestOrchestrator()

	a := join(o, "a", "Alice", domain.RoleChat)
	ev, ok := a.lastOfType("online-count")
	require.True(t, ok)
	assert.EqualValues(t, 1, ev["count"])

	b := join(o, "b", "Bob", domain.RoleChat)
	for _, conn := range []*fakeConn{a, b} {
		ev, ok := conn.lastOfType("online-count")
		require.True(t, ok)
		assert.EqualValues(t, 2, ev["count"])
	}

	o.OnDisconnect("b", nil)
	ev, ok = a.lastOfType("online-count")
	require.True(t, ok)
	assert.EqualValues(t, 1, ev["count"])
	assert.Equal(t, 1, o.Registry.Count())
}

func TestJoinInvalidUsernameFallsBackToGuest(t *testing.T) {
	o := newTestOrchestrator()
	conn := &fakeConn{}
	user := o.Join("a", "", domain.RoleChat, conn)
	require.NotNil(t, user)
	assert.NotEmpty(t, user.Username)
	assert.Equal(t, 1, o.Registry.Count())
}

func TestMessageRelayedToPartnerOnly(t *testing.T) {
	o := newTestOrchestrator()
	venter := join(o, "v", "Venter", domain.RoleVenter)
	listener := join(o, "l", "Listener", domain.RoleListener)
	venter.reset()
	listener.reset()

	require.NoError(t, o.SendMessage("v", "hi"))

	ev, ok := listener.lastOfType("message")
	require.True(t, ok)
	assert.Equal(t, "hi", ev["content"])
	assert.Equal(t, "match", ev["sender"])
	assert.NotEmpty(t, ev["id"])

	// No echo to the sender.
	assert.Empty(t, venter.ofType("message"))
}

func TestMessageWithoutPairing(t *testing.T) {
	o := newTestOrchestrator()
	join(o, "v", "Venter", domain.RoleVenter)

	err := o.SendMessage("v", "hello?")
	assert.ErrorIs(t, err, domain.ErrNotPaired)

	err = o.SendMessage("ghost", "hello?")
	assert.ErrorIs(t, err, domain.ErrNotPaired)
}

func TestShuffleNotifiesExExactlyOnce(t *testing.T) {
	o := newTestOrchestrator()
	join(o, "v", "Venter", domain.RoleVenter)
	l1 := join(o, "l1", "First", domain.RoleListener)
	join(o, "l2", "Second", domain.RoleListener)
	l1.reset()

	require.NoError(t, o.Shuffle("v"))

	assert.Len(t, l1.ofType("unmatched"), 1)

	// The shuffler prefers the fresh listener over the ex.
	pair, _, ok := o.Registry.PairingOf("v")
	require.True(t, ok)
	other, _ := pair.Other("v")
	assert.Equal(t, core.SessionID("l2"), other)

	// The ex is searching again.
	_, _, paired := o.Registry.PairingOf("l1")
	assert.False(t, paired)
}

func TestShuffleWithLoneExRematches(t *testing.T) {
	o := newTestOrchestrator()
	venter := join(o, "v", "Venter", domain.RoleVenter)
	listener := join(o, "l", "Listener", domain.RoleListener)
	venter.reset()
	listener.reset()

	require.NoError(t, o.Shuffle("v"))

	// Only two users online: after the unmatched notice they pair again.
	assert.Len(t, listener.ofType("unmatched"), 1)
	_, ok := venter.lastOfType("matched")
	assert.True(t, ok)
	_, _, paired := o.Registry.PairingOf("v")
	assert.True(t, paired)
}

func TestShuffleWhileUnpairedJustSearches(t *testing.T) {
	o := newTestOrchestrator()
	join(o, "v", "Venter", domain.RoleVenter)

	require.NoError(t, o.Shuffle("v"))
	_, _, paired := o.Registry.PairingOf("v")
	assert.False(t, paired)

	listener := join(o, "l", "Listener", domain.RoleListener)
	_, ok := listener.lastOfType("matched")
	assert.True(t, ok)
}

func TestShuffleRacingDisconnectDoesNotStrandEx(t *testing.T) {
	o := newTestOrchestrator()
	join(o, "v", "Venter", domain.RoleVenter)
	join(o, "l", "Listener", domain.RoleListener)
	join(o, "v2", "Backup", domain.RoleVenter)

	// The shuffler disconnects while its shuffle is in flight. Whichever
	// side wins, the abandoned listener must end up with the waiting
	// venter, not stranded in its bucket.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = o.Shuffle("v")
	}()
	go func() {
		defer wg.Done()
		o.OnDisconnect("v", nil)
	}()
	wg.Wait()

	assert.Equal(t, 2, o.Registry.Count())
	pair, _, ok := o.Registry.PairingOf("l")
	require.True(t, ok)
	other, _ := pair.Other("l")
	assert.Equal(t, core.SessionID("v2"), other)
}

func TestChangeRoleTriggersRematch(t *testing.T) {
	o := newTestOrchestrator()
	a := join(o, "a", "Alice", domain.RoleVenter)
	b := join(o, "b", "Bob", domain.RoleVenter)

	// Two venters sit unmatched until one becomes a listener.
	assert.Empty(t, a.ofType("matched"))

	require.NoError(t, o.ChangeRole("b", domain.RoleListener))

	ev, ok := a.lastOfType("matched")
	require.True(t, ok)
	assert.Equal(t, "Bob", ev["username"])
	assert.Equal(t, "listener", ev["role"])
	_, ok = b.lastOfType("matched")
	assert.True(t, ok)
}

func TestCallScenario(t *testing.T) {
	o := newTestOrchestrator()
	venter := join(o, "v", "Venter", domain.RoleVenter)
	listener := join(o, "l", "Listener", domain.RoleListener)
	venter.reset()
	listener.reset()

	// A initiates, B rings.
	require.NoError(t, o.CallSignal("v", core.SignalInitiate))
	_, ok := listener.lastOfType("incomingCall")
	require.True(t, ok)
	assert.Empty(t, venter.events())

	// B declines, A is told, and after the grace window both are idle.
	require.NoError(t, o.CallSignal("l", core.SignalDecline))
	_, ok = venter.lastOfType("callDeclined")
	require.True(t, ok)

	pair, _, _ := o.Registry.PairingOf("v")
	require.Eventually(t, func() bool {
		return pair.Call.StateFor("v") == core.CallIdle
	}, time.Second, 5*time.Millisecond)

	// No further events accompanied the auto-revert.
	assert.Len(t, venter.ofType("callDeclined"), 1)
	assert.Len(t, listener.events(), 1)

	// Accept path.
	require.NoError(t, o.CallSignal("v", core.SignalInitiate))
	require.NoError(t, o.CallSignal("l", core.SignalAccept))
	_, ok = venter.lastOfType("callAccepted")
	require.True(t, ok)

	require.NoError(t, o.CallSignal("v", core.SignalEnd))
	_, ok = listener.lastOfType("callEnded")
	require.True(t, ok)
}

func TestInvalidCallSignalDoesNotReachPartner(t *testing.T) {
	o := newTestOrchestrator()
	venter := join(o, "v", "Venter", domain.RoleVenter)
	listener := join(o, "l", "Listener", domain.RoleListener)
	venter.reset()
	listener.reset()

	err := o.CallSignal("v", core.SignalAccept)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, listener.events())

	err = o.CallSignal("ghost", core.SignalInitiate)
	assert.ErrorIs(t, err, domain.ErrNotPaired)
}

func TestDisconnectDuringCallTearsDownCleanly(t *testing.T) {
	o := newTestOrchestrator()
	join(o, "v", "Venter", domain.RoleVenter)
	listener := join(o, "l", "Listener", domain.RoleListener)

	require.NoError(t, o.CallSignal("v", core.SignalInitiate))
	require.NoError(t, o.CallSignal("l", core.SignalDecline))
	pair, _, _ := o.Registry.PairingOf("v")
	listener.reset()

	o.OnDisconnect("v", nil)

	assert.Len(t, listener.ofType("unmatched"), 1)
	_, _, paired := o.Registry.PairingOf("l")
	assert.False(t, paired, "remaining member is searching again")

	// The decline revert timer died with the pairing.
	time.Sleep(50 * time.Millisecond)
	_, err := pair.Call.Apply("v", core.SignalInitiate)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Idempotent disconnect.
	o.OnDisconnect("v", nil)
	assert.Equal(t, 1, o.Registry.Count())
}

func TestWebRTCRelayGatedOnConnectedCall(t *testing.T) {
	o := newTestOrchestrator()
	venter := join(o, "v", "Venter", domain.RoleVenter)
	listener := join(o, "l", "Listener", domain.RoleListener)

	frame := core.Frame(`{"type":"webrtcOffer","sdp":"v=0"}`)

	err := o.RelayWebRTC("v", frame)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "no call yet")

	require.NoError(t, o.CallSignal("v", core.SignalInitiate))
	err = o.RelayWebRTC("v", frame)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "still ringing")

	require.NoError(t, o.CallSignal("l", core.SignalAccept))
	venter.reset()
	listener.reset()

	require.NoError(t, o.RelayWebRTC("v", frame))
	ev, ok := listener.lastOfType("webrtcOffer")
	require.True(t, ok)
	assert.Equal(t, "v=0", ev["sdp"])
	assert.Empty(t, venter.events())
}

func TestLeaveThenRejoin(t *testing.T) {
	o := newTestOrchestrator()
	join(o, "v", "Venter", domain.RoleVenter)
	listener := join(o, "l", "Listener", domain.RoleListener)
	listener.reset()

	o.Leave("v", nil)
	assert.Len(t, listener.ofType("unmatched"), 1)
	assert.Equal(t, 1, o.Registry.Count())

	// Rejoining yields a fresh searching connection that matches again.
	join(o, "v", "Venter", domain.RoleVenter)
	_, ok := listener.lastOfType("matched")
	assert.True(t, ok)
	assert.Equal(t, 2, o.Registry.Count())
}

func TestRejoinReplacesOldState(t *testing.T) {
	o := newTestOrchestrator()
	join(o, "v", "Venter", domain.RoleVenter)
	listener := join(o, "l", "Listener", domain.RoleListener)
	listener.reset()

	// Same session id joins again (e.g. page reload before the old socket
	// read loop noticed): the old pairing dies, the ex is notified and
	// becomes matchable again.
	join(o, "v", "VenterReborn", domain.RoleVenter)

	assert.Len(t, listener.ofType("unmatched"), 1)
	ev, ok := listener.lastOfType("matched")
	require.True(t, ok)
	assert.Equal(t, "VenterReborn", ev["username"])
	assert.Equal(t, 2, o.Registry.Count())
}

func TestDisconnectFromReplacedSocketIsNoOp(t *testing.T) {
	o := newTestOrchestrator()
	stale := join(o, "v", "Venter", domain.RoleVenter)
	listener := join(o, "l", "Listener", domain.RoleListener)

	// A re-join replaces the registration while the old socket is still
	// draining; its deferred cleanup fires after the replacement is live.
	replacement := join(o, "v", "Venter", domain.RoleVenter)
	listener.reset()

	o.OnDisconnect("v", stale)

	assert.Equal(t, 2, o.Registry.Count())
	assert.Empty(t, listener.ofType("unmatched"))
	require.NoError(t, o.SendMessage("v", "still here"))
	require.Len(t, listener.ofType("message"), 1)
	assert.Equal(t, "still here", listener.ofType("message")[0]["content"])

	// The replacement's own cleanup still works.
	o.OnDisconnect("v", replacement)
	assert.Equal(t, 1, o.Registry.Count())
	assert.Len(t, listener.ofType("unmatched"), 1)
}

func TestStats(t *testing.T) {
	o := newTestOrchestrator()
	join(o, "v", "Venter", domain.RoleVenter)
	join(o, "l", "Listener", domain.RoleListener)
	join(o, "c", "Chatter", domain.RoleChat)

	s := o.Stats()
	assert.Equal(t, 3, s.Online)
	assert.Equal(t, 1, s.Pairings)
	assert.Equal(t, 1, s.Waiting[domain.RoleChat])
}
