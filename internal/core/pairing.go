package core

import (
	"time"

	"github.com/google/uuid"
)

// Pairing is one active two-party match. It holds session ids rather than
// live handles so teardown of one side can never dangle on the other.
type Pairing struct {
	ID        string
	A, B      SessionID
	CreatedAt time.Time
	Call      *CallSession
}

func NewPairing(a, b SessionID, grace time.Duration) *Pairing {
	return &Pairing{
		ID:        uuid.NewString(),
		A:         a,
		B:         b,
		CreatedAt: time.Now(),
		Call:      NewCallSession(grace),
	}
}

func (p *Pairing) Has(sid SessionID) bool {
	return sid == p.A || sid == p.B
}

// Other returns the partner of sid within the pairing.
func (p *Pairing) Other(sid SessionID) (SessionID, bool) {
	switch sid {
	case p.A:
		return p.B, true
	case p.B:
		return p.A, true
	}
	return "", false
}

// Close destroys the call state with the pairing; no call state outlives it.
func (p *Pairing) Close() {
	p.Call.Close()
}
