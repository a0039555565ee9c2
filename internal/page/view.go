// Package page orchestrates one loaded session page: the concurrent
// fetches on open, the per-visit guards, and the render-ready feed built
// from confirmed matches plus staged overlays.
package page

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rallyhq/courtside/internal/feed"
	"github.com/rallyhq/courtside/internal/lifecycle"
	"github.com/rallyhq/courtside/internal/models"
	"github.com/rallyhq/courtside/internal/overlay"
	"github.com/rallyhq/courtside/internal/roster"
)

// Clock supplies "now" for overlay application.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// MatchSource fetches a session's confirmed matches.
type MatchSource interface {
	GetSessionMatches(ctx context.Context, sessionID int64) ([]models.Match, error)
}

// View is the orchestrator for a session page. Open replaces the loaded
// session; fetches belonging to a superseded open are discarded through a
// generation counter instead of being applied, so a slow response for the
// previous session can never clobber the current one.
type View struct {
	source    MatchSource
	lifecycle *lifecycle.Controller
	roster    *roster.Engine
	clock     Clock
	self      models.Participant

	mu         sync.Mutex
	generation uint64
	sessionID  int64
	matches    []models.Match
}

// NewView wires a view over the lifecycle controller and roster engine.
// self identifies the current user for auto-join; a zero Participant
// disables it. A nil clock uses real time.
func NewView(source MatchSource, lc *lifecycle.Controller, re *roster.Engine, self models.Participant, clock Clock) *View {
	if clock == nil {
		clock = realClock{}
	}
	return &View{
		source:    source,
		lifecycle: lc,
		roster:    re,
		clock:     clock,
		self:      self,
	}
}

// Open loads a session page: it fetches the session's matches and roster
// concurrently and attempts the one auto-join the visit is allowed. The
// per-visit guards reset only when the loaded session identifier changes;
// re-opening the same session is a re-render, not a new visit. Opening a
// different session while a fetch is still in flight supersedes it; the
// stale results are dropped.
func (v *View) Open(ctx context.Context, s models.Session) error {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	changed := v.sessionID != s.ID
	v.sessionID = s.ID
	v.matches = nil
	v.mu.Unlock()

	v.lifecycle.Track(s)
	if changed {
		v.roster.BeginVisit(s.ID)
	}

	if err := v.fetch(ctx, s.ID, gen); err != nil {
		return err
	}

	tracked, ok := v.lifecycle.Session(s.ID)
	if !ok {
		tracked = s
	}
	if attempted, err := v.roster.AutoJoin(ctx, s.ID, v.self, tracked.Status); err != nil {
		// Auto-join failure never blocks the page; the guard has reset
		// so a later render retries.
		log.Ctx(ctx).Warn().Err(err).
			Str("component", "page_view").
			Int64("session_id", s.ID).
			Bool("attempted", attempted).
			Msg("Auto-join failed")
	}
	return nil
}

// Refresh refetches the loaded session's matches and roster without
// touching the per-visit guards. Callers run it after a lock-in, when the
// server has recomputed ratings and is the only source of truth.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	sessionID := v.sessionID
	gen := v.generation
	v.mu.Unlock()
	if sessionID == 0 {
		return nil
	}
	return v.fetch(ctx, sessionID, gen)
}

// fetch loads matches and roster concurrently and applies the match list
// only when the view still shows the generation the fetch was issued for.
func (v *View) fetch(ctx context.Context, sessionID int64, gen uint64) error {
	var matches []models.Match
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		matches, err = v.source.GetSessionMatches(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("fetch matches for session %d: %w", sessionID, err)
		}
		return nil
	})
	g.Go(func() error {
		return v.roster.LoadRoster(ctx, sessionID)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.generation != gen {
		log.Ctx(ctx).Debug().
			Str("component", "page_view").
			Int64("session_id", sessionID).
			Msg("Discarded stale fetch for superseded page")
		return nil
	}
	v.matches = matches
	return nil
}

// SessionID returns the currently loaded session, zero when none.
func (v *View) SessionID() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sessionID
}

// Matches returns a copy of the last confirmed match list.
func (v *View) Matches() []models.Match {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Match, len(v.matches))
	copy(out, v.matches)
	return out
}

// Feed builds the render-ready grouped feed: staged overlays applied over
// the confirmed matches, then grouped and sorted.
func (v *View) Feed() []feed.Group {
	merged := overlay.Apply(
		v.Matches(),
		v.lifecycle.Overlays(),
		v.lifecycle.Sessions(),
		v.clock.Now(),
	)
	return feed.BuildGroups(merged, v.lifecycle.Sessions(), v.lifecycle.Editing())
}

// LockIn finalizes the loaded session and refetches, since lock-in makes
// the server recompute ratings.
func (v *View) LockIn(ctx context.Context, sessionID int64) error {
	if err := v.lifecycle.LockIn(ctx, sessionID); err != nil {
		return err
	}
	return v.Refresh(ctx)
}

// SaveEdit commits the loaded session's staged edits and refetches.
func (v *View) SaveEdit(ctx context.Context, sessionID int64) error {
	if err := v.lifecycle.SaveEdit(ctx, sessionID); err != nil {
		return err
	}
	return v.Refresh(ctx)
}
