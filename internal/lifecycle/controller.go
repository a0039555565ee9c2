// Package lifecycle drives the session state machine: when a session
// accepts new matches, when it locks, and when an admin may reopen it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rallyhq/courtside/internal/models"
	"github.com/rallyhq/courtside/internal/overlay"
)

var (
	ErrSessionUnknown = errors.New("session is not loaded")
	ErrNotEditable    = errors.New("only a submitted session can be reopened for edit")
	ErrAdminRequired  = errors.New("admin rights are required to reopen a session")
	ErrNotEditing     = errors.New("session is not in edit mode")
	ErrReadOnly       = errors.New("session is not accepting match changes")
	ErrLockInFlight   = errors.New("a lock-in for this session is still in flight")
)

// Backend is the slice of the remote API the controller drives.
type Backend interface {
	LockInSession(ctx context.Context, sessionID int64) error
	CreateMatch(ctx context.Context, sessionID int64, d overlay.Draft) (models.Match, error)
	UpdateMatch(ctx context.Context, matchID int64, p overlay.Patch) (models.Match, error)
	DeleteMatch(ctx context.Context, matchID int64) error
	DeleteSession(ctx context.Context, sessionID int64) error
}

// Controller owns the per-session change sets, the explicit set of
// sessions currently reopened for edit, and the metadata snapshots the
// feed renders from. All session status transitions go through it.
//
// States move ACTIVE → SUBMITTED → EDITED → SUBMITTED. Only an ACTIVE or
// EDITED session accepts staged match changes; a SUBMITTED session is
// read-only until reopened. At most one change set exists per session.
type Controller struct {
	backend Backend

	mu       sync.Mutex
	sessions map[int64]models.Session
	overlays map[int64]*overlay.ChangeSet
	editing  map[int64]struct{}
	locking  map[int64]struct{}
}

// NewController returns a controller bound to the given backend.
func NewController(backend Backend) *Controller {
	return &Controller{
		backend:  backend,
		sessions: make(map[int64]models.Session),
		overlays: make(map[int64]*overlay.ChangeSet),
		editing:  make(map[int64]struct{}),
		locking:  make(map[int64]struct{}),
	}
}

// Track records or refreshes a session's metadata snapshot. The snapshot
// is what lets an edited-but-empty session still render a correct group
// header. A session mid-edit keeps its EDITED status even if a refetch
// reports SUBMITTED.
func (c *Controller) Track(s models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, editing := c.editing[s.ID]; editing {
		s.Status = models.StatusEdited
	}
	c.sessions[s.ID] = s
}

// Session returns the tracked snapshot for the given ID.
func (c *Controller) Session(id int64) (models.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return s, ok
}

// Sessions returns a copy of every tracked session snapshot.
func (c *Controller) Sessions() map[int64]models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]models.Session, len(c.sessions))
	for id, s := range c.sessions {
		out[id] = s
	}
	return out
}

// Editable reports whether the session could enter edit mode right now.
func (c *Controller) Editable(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return ok && s.Status == models.StatusSubmitted
}

// Editing returns the IDs of sessions currently reopened for edit.
func (c *Controller) Editing() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.editing))
	for id := range c.editing {
		out = append(out, id)
	}
	return out
}

// Overlays returns a deep snapshot of the change sets keyed by session
// ID. Staging keeps mutating the live sets, so overlay application must
// read the snapshot, never the originals.
func (c *Controller) Overlays() map[int64]*overlay.ChangeSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]*overlay.ChangeSet, len(c.overlays))
	for id, cs := range c.overlays {
		out[id] = cs.Snapshot()
	}
	return out
}

// StageAddition stages a draft match for an ACTIVE or EDITED session and
// returns the addition's index within the change set.
func (c *Controller) StageAddition(sessionID int64, d overlay.Draft) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, err := c.changeSetForWrite(sessionID)
	if err != nil {
		return 0, err
	}
	return cs.StageAddition(d), nil
}

// StageUpdate stages a partial match update.
func (c *Controller) StageUpdate(sessionID, matchID int64, p overlay.Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, err := c.changeSetForWrite(sessionID)
	if err != nil {
		return err
	}
	cs.StageUpdate(matchID, p)
	return nil
}

// StageDelete stages a match deletion.
func (c *Controller) StageDelete(sessionID, matchID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, err := c.changeSetForWrite(sessionID)
	if err != nil {
		return err
	}
	cs.StageDelete(matchID)
	return nil
}

// DiscardChangeSet drops a session's staged changes, e.g. after the staged
// mutation was committed individually and a refetch made it authoritative.
func (c *Controller) DiscardChangeSet(sessionID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.overlays, sessionID)
}

// LockIn finalizes an ACTIVE session: the server recomputes ratings and
// the session becomes read-only. Any staged changes are cleared; the
// caller is expected to refetch, since the server is the source of truth
// after lock. Locking an already-SUBMITTED session is a no-op. While the
// remote call is in flight no new staged mutation is accepted for the
// session.
func (c *Controller) LockIn(ctx context.Context, sessionID int64) error {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return ErrSessionUnknown
	}
	if s.Status == models.StatusSubmitted {
		c.mu.Unlock()
		return nil
	}
	if s.Status != models.StatusActive {
		c.mu.Unlock()
		return fmt.Errorf("lock in session %d: status %s: %w", sessionID, s.Status, ErrReadOnly)
	}
	if _, inFlight := c.locking[sessionID]; inFlight {
		c.mu.Unlock()
		return ErrLockInFlight
	}
	c.locking[sessionID] = struct{}{}
	c.mu.Unlock()

	err := c.backend.LockInSession(ctx, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locking, sessionID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("session_id", sessionID).Msg("Lock-in failed")
		return fmt.Errorf("lock in session %d: %w", sessionID, err)
	}
	s = c.sessions[sessionID]
	s.Status = models.StatusSubmitted
	c.sessions[sessionID] = s
	delete(c.overlays, sessionID)
	delete(c.editing, sessionID)
	log.Ctx(ctx).Info().Int64("session_id", sessionID).Msg("Session locked in")
	return nil
}

// EnterEdit reopens a SUBMITTED session for an admin. It creates an empty
// change set and keeps the metadata snapshot so the group renders
// correctly before any edit is made. Callers enforce the one-session-
// in-edit-per-view rule; Editable tells them whether a candidate
// qualifies.
func (c *Controller) EnterEdit(sessionID int64, isAdmin bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return ErrSessionUnknown
	}
	if !isAdmin {
		return ErrAdminRequired
	}
	if s.Status != models.StatusSubmitted {
		return fmt.Errorf("enter edit on session %d: status %s: %w", sessionID, s.Status, ErrNotEditable)
	}
	s.Status = models.StatusEdited
	c.sessions[sessionID] = s
	c.overlays[sessionID] = overlay.NewChangeSet()
	c.editing[sessionID] = struct{}{}
	return nil
}

// SaveEdit commits an EDITED session: staged deletions, updates, and
// additions are flushed through the remote API in that order, then the
// session is locked back in. On any failure the session stays EDITED with
// its change set intact so the user can retry or cancel.
func (c *Controller) SaveEdit(ctx context.Context, sessionID int64) error {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return ErrSessionUnknown
	}
	if s.Status != models.StatusEdited {
		c.mu.Unlock()
		return fmt.Errorf("save session %d: status %s: %w", sessionID, s.Status, ErrNotEditing)
	}
	if _, inFlight := c.locking[sessionID]; inFlight {
		c.mu.Unlock()
		return ErrLockInFlight
	}
	cs := c.overlays[sessionID]
	c.locking[sessionID] = struct{}{}
	c.mu.Unlock()

	err := c.flush(ctx, sessionID, cs)
	if err == nil {
		err = c.backend.LockInSession(ctx, sessionID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locking, sessionID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("session_id", sessionID).Msg("Save failed, session stays in edit mode")
		return fmt.Errorf("save session %d: %w", sessionID, err)
	}
	s = c.sessions[sessionID]
	s.Status = models.StatusSubmitted
	c.sessions[sessionID] = s
	delete(c.overlays, sessionID)
	delete(c.editing, sessionID)
	log.Ctx(ctx).Info().Int64("session_id", sessionID).Msg("Session edits saved and re-locked")
	return nil
}

func (c *Controller) flush(ctx context.Context, sessionID int64, cs *overlay.ChangeSet) error {
	if cs == nil {
		return nil
	}
	for _, matchID := range cs.Deletions() {
		if err := c.backend.DeleteMatch(ctx, matchID); err != nil {
			return fmt.Errorf("delete match %d: %w", matchID, err)
		}
	}
	for matchID, p := range cs.Updates() {
		if _, err := c.backend.UpdateMatch(ctx, matchID, p); err != nil {
			return fmt.Errorf("update match %d: %w", matchID, err)
		}
	}
	for i, d := range cs.Additions() {
		if _, err := c.backend.CreateMatch(ctx, sessionID, d); err != nil {
			return fmt.Errorf("create staged match %d: %w", i, err)
		}
	}
	return nil
}

// CancelEdit discards the change set without committing and returns the
// session to SUBMITTED.
func (c *Controller) CancelEdit(sessionID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return ErrSessionUnknown
	}
	if s.Status != models.StatusEdited {
		return fmt.Errorf("cancel edit on session %d: status %s: %w", sessionID, s.Status, ErrNotEditing)
	}
	s.Status = models.StatusSubmitted
	c.sessions[sessionID] = s
	delete(c.overlays, sessionID)
	delete(c.editing, sessionID)
	return nil
}

// Delete removes the session server-side (the server cascades matches and
// participants) and drops every piece of local state for that session in
// the same step.
func (c *Controller) Delete(ctx context.Context, sessionID int64) error {
	if err := c.backend.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session %d: %w", sessionID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	delete(c.overlays, sessionID)
	delete(c.editing, sessionID)
	delete(c.locking, sessionID)
	return nil
}

// changeSetForWrite gates staged mutations: only ACTIVE or EDITED sessions
// accept them, and never while a lock-in for the session is in flight.
// Callers must hold c.mu.
func (c *Controller) changeSetForWrite(sessionID int64) (*overlay.ChangeSet, error) {
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, ErrSessionUnknown
	}
	if _, inFlight := c.locking[sessionID]; inFlight {
		return nil, ErrLockInFlight
	}
	if s.Status != models.StatusActive && s.Status != models.StatusEdited {
		return nil, fmt.Errorf("session %d is %s: %w", sessionID, s.Status, ErrReadOnly)
	}
	cs, ok := c.overlays[sessionID]
	if !ok {
		cs = overlay.NewChangeSet()
		c.overlays[sessionID] = cs
	}
	return cs, nil
}
