// Package matchform resolves which league season a new match belongs to
// and validates match drafts before submission.
package matchform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rallyhq/courtside/internal/models"
	"github.com/rallyhq/courtside/internal/overlay"
)

// Clock abstracts "today" for the active-season window check.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Backend is the slice of the remote API the resolver reads.
type Backend interface {
	GetLeagueSeasons(ctx context.Context, leagueID int64) ([]models.Season, error)
	GetActiveSession(ctx context.Context) (*models.Session, error)
}

// MatchType distinguishes league matches from free play.
type MatchType string

const (
	MatchTypeLeague    MatchType = "league"
	MatchTypeNonLeague MatchType = "non-league"
)

var (
	ErrLeagueRequired = errors.New("a league is required for a league match")
	// ErrNoSeasons blocks league-match creation until a season exists.
	ErrNoSeasons = errors.New("the league has no selectable season")
	// ErrSeasonChoiceRequired is the validation error for submitting
	// without an explicit choice when more than one season qualifies.
	ErrSeasonChoiceRequired = errors.New("Please select a season")
)

// Input is the match-creation context.
type Input struct {
	MatchType       MatchType
	LeagueID        *int64
	SessionSeasonID *int64
}

// Resolution is the season decision for a new match. Locked means the
// season came from the owning session and the user gets no choice;
// RequiresChoice means several seasons qualify and submission needs an
// explicit pick from Options.
type Resolution struct {
	SeasonID       *int64
	Locked         bool
	Options        []models.Season
	RequiresChoice bool
}

// Resolver applies the active-session and active-season-by-date-range
// rules.
type Resolver struct {
	backend Backend
	clock   Clock
}

// NewResolver creates a resolver. A nil clock uses real time.
func NewResolver(backend Backend, clock Clock) *Resolver {
	if clock == nil {
		clock = realClock{}
	}
	return &Resolver{backend: backend, clock: clock}
}

// Resolve picks the season for a new match:
//   - a match created inside an existing session is locked to that
//     session's season, no user choice;
//   - otherwise the league's seasons are fetched and "active" means the
//     [start, end] range contains today, inclusive, at day granularity in
//     local time;
//   - when the league currently has any active session the choice is
//     restricted to active seasons, otherwise every season qualifies;
//   - exactly one qualifying season auto-selects, several require an
//     explicit choice, zero blocks creation.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Resolution, error) {
	if in.MatchType != MatchTypeLeague {
		return Resolution{}, nil
	}
	if in.SessionSeasonID != nil {
		id := *in.SessionSeasonID
		return Resolution{SeasonID: &id, Locked: true}, nil
	}
	if in.LeagueID == nil {
		return Resolution{}, ErrLeagueRequired
	}

	seasons, err := r.backend.GetLeagueSeasons(ctx, *in.LeagueID)
	if err != nil {
		return Resolution{}, fmt.Errorf("fetch seasons for league %d: %w", *in.LeagueID, err)
	}

	activeSession, err := r.backend.GetActiveSession(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("check active session: %w", err)
	}

	today := r.clock.Now()
	options := seasons
	if activeSession != nil {
		active := make([]models.Season, 0, len(seasons))
		for _, s := range seasons {
			if seasonContains(s, today) {
				active = append(active, s)
			}
		}
		options = active
	}

	switch len(options) {
	case 0:
		return Resolution{}, ErrNoSeasons
	case 1:
		id := options[0].ID
		return Resolution{SeasonID: &id, Options: options}, nil
	default:
		return Resolution{Options: options, RequiresChoice: true}, nil
	}
}

// ValidateSeasonChoice enforces the explicit pick a multi-option
// resolution requires.
func ValidateSeasonChoice(res Resolution, chosen *int64) error {
	if res.RequiresChoice && chosen == nil {
		return ErrSeasonChoiceRequired
	}
	return nil
}

// ValidateDraft checks a match draft: four distinct player identifiers
// and two non-negative two-digit scores. It makes no assumption about
// tie legality.
func ValidateDraft(d overlay.Draft) error {
	players := [4]int64{d.Team1Player1, d.Team1Player2, d.Team2Player1, d.Team2Player2}
	seen := make(map[int64]struct{}, 4)
	for _, p := range players {
		if p == 0 {
			return errors.New("all four players are required")
		}
		if _, dup := seen[p]; dup {
			return errors.New("the four players must be distinct")
		}
		seen[p] = struct{}{}
	}
	for _, score := range [2]int{d.Team1Score, d.Team2Score} {
		if score < 0 || score > 99 {
			return errors.New("scores must be between 0 and 99")
		}
	}
	return nil
}

// seasonContains reports whether the season's inclusive [start, end]
// window contains the given day, compared at day granularity in the
// day's own location. Seasons with unparsable dates never qualify.
func seasonContains(s models.Season, day time.Time) bool {
	loc := day.Location()
	start, err := time.ParseInLocation(time.DateOnly, s.StartDate, loc)
	if err != nil {
		return false
	}
	end, err := time.ParseInLocation(time.DateOnly, s.EndDate, loc)
	if err != nil {
		return false
	}
	y, m, d := day.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return !dayStart.Before(start) && !dayStart.After(end)
}
