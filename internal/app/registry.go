package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ventline/ventline/internal/core"
	"github.com/ventline/ventline/internal/domain"
)

// entry is the registry's record of one live connection.
type entry struct {
	user      *domain.User
	sess      core.MemberSession
	pairing   *core.Pairing
	lastMatch core.SessionID
	joinedAt  time.Time
}

// Registry tracks every live connection, the per-role FIFO wait buckets,
// and active pairings. One mutex serializes every mutation; matchmaking
// races on the same bucket must never produce overlapping pairings, so
// nothing here performs transport I/O while the lock is held. Invariant:
// a registered connection sits in exactly one role bucket or holds a
// pairing, never both, and partner links are always mutual.
type Registry struct {
	mu      sync.Mutex
	grace   time.Duration
	conns   map[core.SessionID]*entry
	buckets map[domain.Role][]core.SessionID
}

func NewRegistry(declineGrace time.Duration) *Registry {
	return &Registry{
		grace:   declineGrace,
		conns:   make(map[core.SessionID]*entry),
		buckets: make(map[domain.Role][]core.SessionID),
	}
}

// Teardown reports a destroyed pairing so the caller can notify the
// abandoned partner outside the lock. Ex fields are zero when the removed
// connection was unmatched.
type Teardown struct {
	Ex     core.SessionID
	ExSess core.MemberSession
}

// MatchResult carries the snapshots needed to notify both members of a
// fresh pairing outside the lock.
type MatchResult struct {
	Pair          *core.Pairing
	Requester     core.SessionID
	RequesterSess core.MemberSession
	RequesterUser domain.User
	Partner       core.SessionID
	PartnerSess   core.MemberSession
	PartnerUser   domain.User
}

// Register adds a connection as searching in its role bucket. A re-join on
// an existing session id tears the previous state down first; the returned
// Teardown (if any) names the abandoned ex-partner. The returned count is
// the live-connection total at the linearization point of this mutation.
func (r *Registry) Register(sid core.SessionID, user *domain.User, sess core.MemberSession) (count int, old *Teardown) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[sid]; ok {
		old = r.teardownLocked(sid, prev)
		delete(r.conns, sid)
	}

	r.conns[sid] = &entry{user: user, sess: sess, joinedAt: time.Now()}
	r.enqueueLocked(user.Role, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).
		Str("username", user.Username).Str("role", string(user.Role)).Msg("registered")
	return len(r.conns), old
}

// Unregister removes a connection, tearing down its pairing first so the
// partner is returned to its bucket as searching. Safe to call for an
// already-removed id; existed reports whether anything happened. A non-nil
// owner makes the removal ownership-checked: when the current entry's
// transport is a different connection, the caller is a stale socket whose
// registration was already replaced and the removal is skipped.
func (r *Registry) Unregister(sid core.SessionID, owner core.SignalConnection) (td *Teardown, count int, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[sid]
	if !ok {
		return nil, len(r.conns), false
	}
	if owner != nil && e.sess.Signal() != owner {
		log.Debug().Str("module", "app.registry").Str("sid", string(sid)).
			Msg("stale unregister ignored")
		return nil, len(r.conns), false
	}
	td = r.teardownLocked(sid, e)
	delete(r.conns, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unregistered")
	return td, len(r.conns), true
}

// teardownLocked detaches sid from its bucket or pairing. With a pairing it
// closes the call machine (stopping the decline revert timer) and returns
// the ex-partner to its bucket as searching.
func (r *Registry) teardownLocked(sid core.SessionID, e *entry) *Teardown {
	if e.pairing == nil {
		r.dequeueLocked(e.user.Role, sid)
		return nil
	}

	pair := e.pairing
	pair.Close()
	exID, _ := pair.Other(sid)
	e.pairing = nil

	ex, ok := r.conns[exID]
	if !ok {
		return nil
	}
	ex.pairing = nil
	r.enqueueLocked(ex.user.Role, exID)
	return &Teardown{Ex: exID, ExSess: ex.sess}
}

// TryMatch atomically claims the oldest compatible searching connection and
// forms a pairing. A nil result with nil error means no candidate was
// available and the requester stays queued in its own bucket.
func (r *Registry) TryMatch(sid core.SessionID) (*MatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[sid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if e.pairing != nil {
		return nil, domain.ErrAlreadyMatched
	}

	partnerID, ok := r.pickLocked(sid, e)
	if !ok {
		return nil, nil
	}
	partner := r.conns[partnerID]

	r.dequeueLocked(e.user.Role, sid)
	r.dequeueLocked(partner.user.Role, partnerID)

	pair := core.NewPairing(sid, partnerID, r.grace)
	e.pairing = pair
	partner.pairing = pair
	e.lastMatch = partnerID
	partner.lastMatch = sid

	log.Info().Str("module", "app.registry").Str("sid", string(sid)).
		Str("partner", string(partnerID)).Str("pairing", pair.ID).Msg("matched")

	return &MatchResult{
		Pair:          pair,
		Requester:     sid,
		RequesterSess: e.sess,
		RequesterUser: *e.user,
		Partner:       partnerID,
		PartnerSess:   partner.sess,
		PartnerUser:   *partner.user,
	}, nil
}

// pickLocked scans the compatible bucket oldest-first. The requester's
// previous partner is skipped when any other candidate waits, so a shuffle
// does not bounce straight back; with no one else it is still eligible,
// which keeps two lone users matchable.
func (r *Registry) pickLocked(sid core.SessionID, e *entry) (core.SessionID, bool) {
	bucket := r.buckets[e.user.Role.Complement()]
	var fallback core.SessionID
	for _, cand := range bucket {
		if cand == sid {
			continue
		}
		if cand == e.lastMatch {
			fallback = cand
			continue
		}
		return cand, true
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

// Break tears down sid's pairing for a shuffle: both members go back to
// their buckets as searching. Reports the ex-partner, or ok=false when the
// connection is unknown or was not paired.
func (r *Registry) Break(sid core.SessionID) (td *Teardown, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.conns[sid]
	if !found || e.pairing == nil {
		return nil, false
	}
	td = r.teardownLocked(sid, e)
	r.enqueueLocked(e.user.Role, sid)
	return td, true
}

// SetRole records the new role. A searching connection moves to the new
// bucket (re-entering at the tail); a matched one keeps its pairing and the
// role only affects future matches.
func (r *Registry) SetRole(sid core.SessionID, role domain.Role) (wasSearching bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[sid]
	if !ok {
		return false, domain.ErrNotFound
	}
	if e.user.Role == role {
		return e.pairing == nil, nil
	}
	if e.pairing == nil {
		r.dequeueLocked(e.user.Role, sid)
		e.user.Role = role
		r.enqueueLocked(role, sid)
		wasSearching = true
	} else {
		e.user.Role = role
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).
		Str("role", string(role)).Bool("searching", wasSearching).Msg("role changed")
	return wasSearching, nil
}

// PairingOf returns sid's active pairing and the partner's session.
func (r *Registry) PairingOf(sid core.SessionID) (pair *core.Pairing, partner core.MemberSession, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.conns[sid]
	if !found || e.pairing == nil {
		return nil, nil, false
	}
	exID, _ := e.pairing.Other(sid)
	ex, found := r.conns[exID]
	if !found {
		return nil, nil, false
	}
	return e.pairing, ex.sess, true
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Sessions snapshots every live session for presence fan-out.
func (r *Registry) Sessions() []core.MemberSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.MemberSession, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.sess)
	}
	return out
}

// Stats is a consistent point-in-time view for the stats endpoint.
type Stats struct {
	Online   int                 `json:"online"`
	Waiting  map[domain.Role]int `json:"waiting"`
	Pairings int                 `json:"pairings"`
}

func (r *Registry) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Online: len(r.conns), Waiting: make(map[domain.Role]int)}
	for role, bucket := range r.buckets {
		s.Waiting[role] = len(bucket)
	}
	seen := make(map[string]struct{})
	for _, e := range r.conns {
		if e.pairing != nil {
			seen[e.pairing.ID] = struct{}{}
		}
	}
	s.Pairings = len(seen)
	return s
}

func (r *Registry) enqueueLocked(role domain.Role, sid core.SessionID) {
	r.buckets[role] = append(r.buckets[role], sid)
}

func (r *Registry) dequeueLocked(role domain.Role, sid core.SessionID) {
	bucket := r.buckets[role]
	for i, id := range bucket {
		if id == sid {
			r.buckets[role] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}
