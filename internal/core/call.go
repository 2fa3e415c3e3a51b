package core

import (
	"sync"
	"time"

	"github.com/ventline/ventline/internal/domain"
)

// CallState is the shared call-signaling state of a pairing. One state is
// kept per pairing; CallCalling is reported as CallRinging from the callee's
// perspective (see StateFor).
type CallState int32

const (
	CallIdle CallState = iota
	CallCalling
	CallRinging
	CallConnected
	CallDeclined
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallCalling:
		return "calling"
	case CallRinging:
		return "ringing"
	case CallConnected:
		return "connected"
	case CallDeclined:
		return "declined"
	}
	return "unknown"
}

// CallSignal is a user-triggered input to the machine.
type CallSignal string

const (
	SignalInitiate CallSignal = "initiateCall"
	SignalAccept   CallSignal = "acceptCall"
	SignalDecline  CallSignal = "declineCall"
	SignalEnd      CallSignal = "endCall"
)

// CallEvent is what a transition pushes to the other member.
type CallEvent string

const (
	EventNone         CallEvent = ""
	EventIncomingCall CallEvent = "incomingCall"
	EventCallAccepted CallEvent = "callAccepted"
	EventCallDeclined CallEvent = "callDeclined"
	EventCallEnded    CallEvent = "callEnded"
)

// CallSession drives call signaling for one pairing. Only the two pairing
// members feed it; membership is checked by the relay layer before Apply.
// The Declined state reverts to Idle on its own after the grace period,
// silently, unless the session is closed first.
type CallSession struct {
	mu     sync.Mutex
	state  CallState
	caller SessionID
	grace  time.Duration
	revert *time.Timer
	closed bool
}

func NewCallSession(grace time.Duration) *CallSession {
	return &CallSession{state: CallIdle, grace: grace}
}

// Apply runs one signal from a member through the machine. It returns the
// event to deliver to the other member, or ErrInvalidTransition for signals
// inconsistent with the current state. Invalid signals never mutate state.
func (c *CallSession) Apply(from SessionID, sig CallSignal) (CallEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return EventNone, domain.ErrInvalidTransition
	}

	switch sig {
	case SignalInitiate:
		if c.state != CallIdle {
			return EventNone, domain.ErrInvalidTransition
		}
		c.state = CallCalling
		c.caller = from
		return EventIncomingCall, nil

	case SignalAccept:
		if c.state != CallCalling || from == c.caller {
			return EventNone, domain.ErrInvalidTransition
		}
		c.state = CallConnected
		return EventCallAccepted, nil

	case SignalDecline:
		if c.state != CallCalling || from == c.caller {
			return EventNone, domain.ErrInvalidTransition
		}
		c.state = CallDeclined
		c.scheduleRevert()
		return EventCallDeclined, nil

	case SignalEnd:
		if c.state != CallConnected {
			return EventNone, domain.ErrInvalidTransition
		}
		c.state = CallIdle
		c.caller = ""
		return EventCallEnded, nil
	}
	return EventNone, domain.ErrInvalidTransition
}

// scheduleRevert arms the Declined -> Idle timer. Caller holds c.mu.
func (c *CallSession) scheduleRevert() {
	if c.revert != nil {
		c.revert.Stop()
	}
	c.revert = time.AfterFunc(c.grace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.state != CallDeclined {
			return
		}
		c.state = CallIdle
		c.caller = ""
	})
}

// StateFor reports the state from one member's perspective: a pending call
// is Calling for the initiator and Ringing for the callee.
func (c *CallSession) StateFor(sid SessionID) CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CallCalling && sid != c.caller {
		return CallRinging
	}
	return c.state
}

// Connected reports whether call signaling is established, which gates the
// WebRTC offer/answer/candidate relay.
func (c *CallSession) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == CallConnected
}

// Close tears the machine down with its pairing. The revert timer is
// stopped so it can never fire against a destroyed pairing. Idempotent.
func (c *CallSession) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.revert != nil {
		c.revert.Stop()
		c.revert = nil
	}
	c.state = CallIdle
	c.caller = ""
}
