package app

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/ventline/ventline/internal/core"
	"github.com/ventline/ventline/internal/domain"
)

// Matchmaking entry points. Retry is event-driven: every mutation that puts
// someone back in a bucket (join, shuffle, rolechange, partner loss) runs a
// fresh TryMatch for them, so an empty-bucket search simply waits for the
// next arrival instead of polling.

// FindMatch pairs sid with the oldest compatible searching connection, if
// any. ErrAlreadyMatched for a redundant request; with no candidate the
// requester just stays queued.
func (o *Orchestrator) FindMatch(sid core.SessionID) error {
	res, err := o.Registry.TryMatch(sid)
	if err != nil {
		return err
	}
	o.notifyMatch(res)
	return nil
}

// Shuffle abandons the current pairing and searches again. The ex-partner
// gets exactly one unmatched notification and is put back in rotation with
// its own retry. Unpaired connections shuffle straight into a search.
func (o *Orchestrator) Shuffle(sid core.SessionID) error {
	td, broke := o.Registry.Break(sid)
	if broke {
		o.notifyTeardown(td)
	}

	err := o.FindMatch(sid)
	if errors.Is(err, domain.ErrAlreadyMatched) {
		err = nil
	}
	// The ex's retry runs even when the requester's own search failed
	// (the id may have raced a disconnect); the ex must not stay
	// stranded in its bucket until the next unrelated arrival.
	if broke && td != nil {
		o.tryMatchAndNotify(td.Ex)
	}
	return err
}

// ChangeRole updates the connection's role. A searching connection moves
// buckets and retries immediately since its compatibility set changed; a
// matched one keeps its pairing, the role only shapes future matches.
func (o *Orchestrator) ChangeRole(sid core.SessionID, role domain.Role) error {
	wasSearching, err := o.Registry.SetRole(sid, role)
	if err != nil {
		return err
	}
	if wasSearching {
		o.tryMatchAndNotify(sid)
	}
	return nil
}

// tryMatchAndNotify is the retry path: errors here mean a stale id or a
// race already resolved elsewhere, both safe to drop.
func (o *Orchestrator) tryMatchAndNotify(sid core.SessionID) {
	res, err := o.Registry.TryMatch(sid)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.match").Str("sid", string(sid)).Msg("retry skipped")
		return
	}
	o.notifyMatch(res)
}

// notifyMatch delivers matched events to both members, each carrying the
// other's display name and role.
func (o *Orchestrator) notifyMatch(res *MatchResult) {
	if res == nil {
		return
	}
	o.push(res.RequesterSess, matchedEvent(res.PartnerUser))
	o.push(res.PartnerSess, matchedEvent(res.RequesterUser))
}
