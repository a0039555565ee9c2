// Package roster performs optimistic add/remove of session participants
// against the remote roster, with duplicate suppression and error
// classification.
package roster

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rallyhq/courtside/internal/models"
)

// AddFailurePolicy decides what happens to the optimistic roster entry
// when the server rejects an add. The original behavior kept the
// optimistic state in place; rollback reverts it and leaves only the
// classified error.
type AddFailurePolicy string

const (
	KeepOptimistic    AddFailurePolicy = "keep"
	RollbackOnFailure AddFailurePolicy = "rollback"
)

// Backend is the slice of the remote API the engine mutates through.
type Backend interface {
	GetSessionParticipants(ctx context.Context, sessionID int64) ([]models.Participant, error)
	InviteToSession(ctx context.Context, sessionID, playerID int64) error
	InviteToSessionBatch(ctx context.Context, sessionID int64, playerIDs []int64) error
	RemoveSessionParticipant(ctx context.Context, sessionID, playerID int64) error
}

// Notifier is told about confirmed invites, e.g. to send the new
// participant an email. Implementations must not block on the caller's
// critical path.
type Notifier interface {
	ParticipantInvited(ctx context.Context, sessionID int64, p models.Participant)
}

// Engine keeps the local roster for each loaded session and applies
// mutations optimistically: the local list reflects the requested state
// immediately, the remote call follows, and failures surface as
// classified errors rather than silent rollbacks.
//
// Duplicate in-flight mutations for the same (session, player) pair are
// suppressed through an idempotency-key set checked and set atomically,
// so a double-click or a re-fired effect issues exactly one network call.
type Engine struct {
	backend  Backend
	policy   AddFailurePolicy
	notifier Notifier

	mu         sync.Mutex
	rosters    map[int64][]models.Participant
	inflight   map[string]struct{}
	mutated    map[int64]bool
	autoJoined map[int64]bool
}

// NewEngine creates a roster engine. notifier may be nil.
func NewEngine(backend Backend, policy AddFailurePolicy, notifier Notifier) *Engine {
	if policy == "" {
		policy = KeepOptimistic
	}
	return &Engine{
		backend:    backend,
		policy:     policy,
		notifier:   notifier,
		rosters:    make(map[int64][]models.Participant),
		inflight:   make(map[string]struct{}),
		mutated:    make(map[int64]bool),
		autoJoined: make(map[int64]bool),
	}
}

// BeginVisit resets the per-visit guards for a session. Call it exactly
// when the loaded session identifier changes, never on a plain re-render;
// the guards are what keeps re-fired initialization from double-joining.
func (e *Engine) BeginVisit(sessionID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoJoined[sessionID] = false
	e.mutated[sessionID] = false
}

// LoadRoster replaces the local roster with the server's copy.
func (e *Engine) LoadRoster(ctx context.Context, sessionID int64) error {
	participants, err := e.backend.GetSessionParticipants(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load roster for session %d: %w", sessionID, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rosters[sessionID] = participants
	return nil
}

// Roster returns a copy of the session's local (optimistic) roster.
func (e *Engine) Roster(sessionID int64) []models.Participant {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Participant, len(e.rosters[sessionID]))
	copy(out, e.rosters[sessionID])
	return out
}

// Mutated reports whether any roster mutation succeeded since the visit
// began; parents listening for a close event use it to decide whether a
// refresh is needed.
func (e *Engine) Mutated(sessionID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutated[sessionID]
}

// AddParticipant optimistically appends the player and then confirms the
// add with the server. A duplicate call while the first is still in
// flight is ignored. On failure the optimistic entry is kept or rolled
// back per the engine's policy, and the classified error is returned.
func (e *Engine) AddParticipant(ctx context.Context, sessionID int64, p models.Participant) error {
	key := fmt.Sprintf("add:%d:%d", sessionID, p.PlayerID)

	e.mu.Lock()
	if _, busy := e.inflight[key]; busy {
		e.mu.Unlock()
		log.Ctx(ctx).Debug().
			Str("component", "roster_engine").
			Int64("session_id", sessionID).
			Int64("player_id", p.PlayerID).
			Msg("Suppressed duplicate in-flight add")
		return nil
	}
	e.inflight[key] = struct{}{}
	added := false
	if !e.contains(sessionID, p.PlayerID) {
		e.rosters[sessionID] = append(e.rosters[sessionID], p)
		added = true
	}
	e.mu.Unlock()

	err := e.backend.InviteToSession(ctx, sessionID, p.PlayerID)

	e.mu.Lock()
	delete(e.inflight, key)
	if err == nil {
		e.mutated[sessionID] = true
		e.mu.Unlock()
		if e.notifier != nil {
			e.notifier.ParticipantInvited(ctx, sessionID, p)
		}
		return nil
	}
	if added && e.policy == RollbackOnFailure {
		e.removeLocal(sessionID, p.PlayerID)
	}
	e.mu.Unlock()

	return e.classify(ctx, "add participant", sessionID, p.PlayerID, err)
}

// RemoveParticipant optimistically filters the player out and then
// confirms the removal with the server. The optimistic removal stays in
// place even when the server rejects it; the caller decides whether to
// reload from the classified error.
func (e *Engine) RemoveParticipant(ctx context.Context, sessionID, playerID int64) error {
	key := fmt.Sprintf("remove:%d:%d", sessionID, playerID)

	e.mu.Lock()
	if _, busy := e.inflight[key]; busy {
		e.mu.Unlock()
		log.Ctx(ctx).Debug().
			Str("component", "roster_engine").
			Int64("session_id", sessionID).
			Int64("player_id", playerID).
			Msg("Suppressed duplicate in-flight remove")
		return nil
	}
	e.inflight[key] = struct{}{}
	e.removeLocal(sessionID, playerID)
	e.mu.Unlock()

	err := e.backend.RemoveSessionParticipant(ctx, sessionID, playerID)

	e.mu.Lock()
	delete(e.inflight, key)
	if err == nil {
		e.mutated[sessionID] = true
	}
	e.mu.Unlock()

	if err != nil {
		return e.classify(ctx, "remove participant", sessionID, playerID, err)
	}
	return nil
}

// InviteMany optimistically appends a batch of players and confirms them
// with one server call.
func (e *Engine) InviteMany(ctx context.Context, sessionID int64, players []models.Participant) error {
	if len(players) == 0 {
		return nil
	}

	e.mu.Lock()
	ids := make([]int64, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.PlayerID)
		if !e.contains(sessionID, p.PlayerID) {
			e.rosters[sessionID] = append(e.rosters[sessionID], p)
		}
	}
	e.mu.Unlock()

	err := e.backend.InviteToSessionBatch(ctx, sessionID, ids)

	e.mu.Lock()
	if err == nil {
		e.mutated[sessionID] = true
	}
	e.mu.Unlock()

	if err != nil {
		return e.classify(ctx, "invite batch", sessionID, 0, err)
	}
	if e.notifier != nil {
		for _, p := range players {
			e.notifier.ParticipantInvited(ctx, sessionID, p)
		}
	}
	return nil
}

// AutoJoin issues at most one self-add per page visit: the current user
// must have a player identity, the session must be ACTIVE, and the player
// must not already be in the roster. The per-visit guard is set before
// the call and reset on failure so the next render may retry. It reports
// whether a join was attempted.
func (e *Engine) AutoJoin(ctx context.Context, sessionID int64, self models.Participant, status models.SessionStatus) (bool, error) {
	if self.PlayerID == 0 || status != models.StatusActive {
		return false, nil
	}

	e.mu.Lock()
	if e.autoJoined[sessionID] || e.contains(sessionID, self.PlayerID) {
		e.mu.Unlock()
		return false, nil
	}
	e.autoJoined[sessionID] = true
	e.mu.Unlock()

	if err := e.AddParticipant(ctx, sessionID, self); err != nil {
		e.mu.Lock()
		e.autoJoined[sessionID] = false
		e.mu.Unlock()
		return true, err
	}
	log.Ctx(ctx).Info().
		Str("component", "roster_engine").
		Int64("session_id", sessionID).
		Int64("player_id", self.PlayerID).
		Msg("Auto-joined session")
	return true, nil
}

func (e *Engine) classify(ctx context.Context, op string, sessionID, playerID int64, err error) error {
	detail := DetailFromError(err)
	message := Classify(detail)
	log.Ctx(ctx).Warn().
		Err(err).
		Str("component", "roster_engine").
		Int64("session_id", sessionID).
		Int64("player_id", playerID).
		Str("detail", detail).
		Msg("Roster mutation rejected")
	return &Error{Op: op, Detail: detail, Message: message, Err: err}
}

// contains must be called with e.mu held.
func (e *Engine) contains(sessionID, playerID int64) bool {
	for _, p := range e.rosters[sessionID] {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}

// removeLocal must be called with e.mu held.
func (e *Engine) removeLocal(sessionID, playerID int64) {
	kept := e.rosters[sessionID][:0:0]
	for _, p := range e.rosters[sessionID] {
		if p.PlayerID != playerID {
			kept = append(kept, p)
		}
	}
	e.rosters[sessionID] = kept
}

// detailer is any error exposing the server's detail string; the upstream
// client's APIError satisfies it.
type detailer interface {
	ErrorDetail() string
}

// DetailFromError pulls the server detail string out of an error chain,
// or returns "" when the failure carried none (e.g. a network error).
func DetailFromError(err error) string {
	for e := err; e != nil; {
		if d, ok := e.(detailer); ok {
			return d.ErrorDetail()
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		e = u.Unwrap()
	}
	return ""
}
