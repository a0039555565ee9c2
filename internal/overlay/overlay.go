// Package overlay stages not-yet-committed match edits on top of the last
// server-confirmed match list for a session.
package overlay

import (
	"sort"
	"time"

	"github.com/rallyhq/courtside/internal/models"
)

// Patch carries the fields of a staged match update. Nil fields are left
// untouched by the merge.
type Patch struct {
	Team1Player1 *int64
	Team1Player2 *int64
	Team2Player1 *int64
	Team2Player2 *int64
	Team1Score   *int
	Team2Score   *int
}

// Draft is a staged match addition awaiting a server-assigned ID.
type Draft struct {
	Team1Player1 int64
	Team1Player2 int64
	Team2Player1 int64
	Team2Player2 int64
	Team1Score   int
	Team2Score   int
}

// ChangeSet holds one session's staged additions, updates, and deletions.
// A match ID appears in at most one of updates and deletions; deletion
// takes precedence.
type ChangeSet struct {
	updates   map[int64]Patch
	additions []Draft
	deletions map[int64]struct{}
}

// NewChangeSet returns an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		updates:   make(map[int64]Patch),
		deletions: make(map[int64]struct{}),
	}
}

// StageUpdate records a partial update for a confirmed match. Staging an
// update for an already-deleted match is ignored. A second update for the
// same match replaces the first.
func (c *ChangeSet) StageUpdate(matchID int64, p Patch) {
	if _, deleted := c.deletions[matchID]; deleted {
		return
	}
	c.updates[matchID] = p
}

// StageAddition appends a draft match to the ordered additions list and
// returns the index assigned to it.
func (c *ChangeSet) StageAddition(d Draft) int {
	c.additions = append(c.additions, d)
	return len(c.additions) - 1
}

// StageDelete marks a confirmed match for deletion, dropping any staged
// update for the same ID.
func (c *ChangeSet) StageDelete(matchID int64) {
	delete(c.updates, matchID)
	c.deletions[matchID] = struct{}{}
}

// Empty reports whether the change set stages nothing.
func (c *ChangeSet) Empty() bool {
	return len(c.updates) == 0 && len(c.additions) == 0 && len(c.deletions) == 0
}

// Deletions returns the staged deletions in ascending ID order.
func (c *ChangeSet) Deletions() []int64 {
	ids := make([]int64, 0, len(c.deletions))
	for id := range c.deletions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Updates returns a copy of the staged updates keyed by match ID.
func (c *ChangeSet) Updates() map[int64]Patch {
	out := make(map[int64]Patch, len(c.updates))
	for id, p := range c.updates {
		out[id] = p
	}
	return out
}

// Additions returns a copy of the ordered additions list.
func (c *ChangeSet) Additions() []Draft {
	out := make([]Draft, len(c.additions))
	copy(out, c.additions)
	return out
}

// Snapshot returns a deep copy of the change set. Callers must hold
// whatever lock guards staged mutations while copying; the copy itself
// can then be read while staging continues on the original.
func (c *ChangeSet) Snapshot() *ChangeSet {
	deletions := make(map[int64]struct{}, len(c.deletions))
	for id := range c.deletions {
		deletions[id] = struct{}{}
	}
	return &ChangeSet{
		updates:   c.Updates(),
		additions: c.Additions(),
		deletions: deletions,
	}
}

// Apply layers the staged change sets over the base match list and returns
// the merged view. It is pure and idempotent: the same inputs always yield
// the same output, and neither base nor the change sets are mutated.
//
// Per session with a pending set: matches staged for deletion are removed;
// staged updates are merged field-by-field with the winner recomputed from
// the merged scores (an update whose base match is gone is silently
// dropped); additions are appended as synthetic matches carrying a
// deterministic placeholder ID, date = now in the local zone, and the
// owning session's name and status for display. The relative order of
// unaffected matches is preserved.
func Apply(base []models.Match, overlays map[int64]*ChangeSet, sessions map[int64]models.Session, now time.Time) []models.Match {
	out := make([]models.Match, 0, len(base))

	for _, m := range base {
		cs := changeSetFor(overlays, m.SessionID)
		if cs == nil {
			out = append(out, m)
			continue
		}
		id, confirmed := m.ID.Confirmed()
		if !confirmed {
			out = append(out, m)
			continue
		}
		if _, deleted := cs.deletions[id]; deleted {
			continue
		}
		if p, ok := cs.updates[id]; ok {
			m = mergePatch(m, p)
		}
		out = append(out, m)
	}

	for _, sessionID := range sessionIDsWithAdditions(overlays) {
		cs := overlays[sessionID]
		meta, hasMeta := sessions[sessionID]
		for i, d := range cs.additions {
			sid := sessionID
			m := models.Match{
				ID:           models.PendingID(sessionID, i),
				SessionID:    &sid,
				Team1Player1: d.Team1Player1,
				Team1Player2: d.Team1Player2,
				Team2Player1: d.Team2Player1,
				Team2Player2: d.Team2Player2,
				Team1Score:   d.Team1Score,
				Team2Score:   d.Team2Score,
				Winner:       models.ComputeWinner(d.Team1Score, d.Team2Score),
				Date:         now.Local().Format(time.RFC3339),
			}
			if hasMeta {
				m.SessionName = meta.Name
				m.SessionStatus = meta.Status
			}
			out = append(out, m)
		}
	}

	return out
}

func changeSetFor(overlays map[int64]*ChangeSet, sessionID *int64) *ChangeSet {
	if sessionID == nil {
		return nil
	}
	return overlays[*sessionID]
}

// sessionIDsWithAdditions orders the append phase so Apply stays
// deterministic across map iteration order.
func sessionIDsWithAdditions(overlays map[int64]*ChangeSet) []int64 {
	ids := make([]int64, 0, len(overlays))
	for id, cs := range overlays {
		if cs != nil && len(cs.additions) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func mergePatch(m models.Match, p Patch) models.Match {
	if p.Team1Player1 != nil {
		m.Team1Player1 = *p.Team1Player1
	}
	if p.Team1Player2 != nil {
		m.Team1Player2 = *p.Team1Player2
	}
	if p.Team2Player1 != nil {
		m.Team2Player1 = *p.Team2Player1
	}
	if p.Team2Player2 != nil {
		m.Team2Player2 = *p.Team2Player2
	}
	if p.Team1Score != nil {
		m.Team1Score = *p.Team1Score
	}
	if p.Team2Score != nil {
		m.Team2Score = *p.Team2Score
	}
	m.Winner = models.ComputeWinner(m.Team1Score, m.Team2Score)
	return m
}
