package matchform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rallyhq/courtside/internal/models"
	"github.com/rallyhq/courtside/internal/overlay"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seasonBackend struct {
	seasons       []models.Season
	seasonsErr    error
	activeSession *models.Session
	activeErr     error
}

func (b *seasonBackend) GetLeagueSeasons(ctx context.Context, leagueID int64) ([]models.Season, error) {
	return b.seasons, b.seasonsErr
}

func (b *seasonBackend) GetActiveSession(ctx context.Context) (*models.Session, error) {
	return b.activeSession, b.activeErr
}

func season(id int64, start, end string) models.Season {
	return models.Season{ID: id, Name: "Season", StartDate: start, EndDate: end}
}

func leagueInput(leagueID int64) Input {
	return Input{MatchType: MatchTypeLeague, LeagueID: &leagueID}
}

// mid-July 2026, well inside a summer season.
var today = time.Date(2026, time.July, 15, 14, 30, 0, 0, time.Local)

func TestResolve_NonLeagueSkipsSeasons(t *testing.T) {
	r := NewResolver(&seasonBackend{seasonsErr: errors.New("must not be called")}, fixedClock{today})

	res, err := r.Resolve(context.Background(), Input{MatchType: MatchTypeNonLeague})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.SeasonID != nil || res.RequiresChoice {
		t.Errorf("non-league resolution = %+v, want empty", res)
	}
}

func TestResolve_SessionSeasonLocks(t *testing.T) {
	sid := int64(9)
	leagueID := int64(1)
	r := NewResolver(&seasonBackend{seasonsErr: errors.New("must not be called")}, fixedClock{today})

	res, err := r.Resolve(context.Background(), Input{
		MatchType:       MatchTypeLeague,
		LeagueID:        &leagueID,
		SessionSeasonID: &sid,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Locked || res.SeasonID == nil || *res.SeasonID != 9 {
		t.Errorf("resolution = %+v, want locked to season 9", res)
	}
	if res.RequiresChoice {
		t.Error("locked resolution must not require a choice")
	}
}

func TestResolve_SingleSeasonAutoSelects(t *testing.T) {
	backend := &seasonBackend{
		seasons: []models.Season{season(1, "2026-06-01", "2026-08-31")},
	}
	r := NewResolver(backend, fixedClock{today})

	res, err := r.Resolve(context.Background(), leagueInput(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.SeasonID == nil || *res.SeasonID != 1 {
		t.Errorf("resolution = %+v, want auto-selected season 1", res)
	}
	if res.RequiresChoice || res.Locked {
		t.Errorf("auto-selection flags = %+v, want neither locked nor choice", res)
	}
}

func TestResolve_ActiveSessionRestrictsToDateActiveSeasons(t *testing.T) {
	winter := season(1, "2026-01-01", "2026-03-31")
	summer := season(2, "2026-06-01", "2026-08-31")
	fall := season(3, "2026-09-01", "2026-11-30")
	backend := &seasonBackend{
		seasons:       []models.Season{winter, summer, fall},
		activeSession: &models.Session{ID: 50, Status: models.StatusActive},
	}
	r := NewResolver(backend, fixedClock{today})

	res, err := r.Resolve(context.Background(), leagueInput(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Only the summer season contains today, so it auto-selects.
	if res.SeasonID == nil || *res.SeasonID != 2 {
		t.Errorf("resolution = %+v, want season 2 selected", res)
	}
	if len(res.Options) != 1 {
		t.Errorf("options = %v, want only the date-active season", res.Options)
	}
}

func TestResolve_NoActiveSessionKeepsAllSeasons(t *testing.T) {
	winter := season(1, "2026-01-01", "2026-03-31")
	summer := season(2, "2026-06-01", "2026-08-31")
	backend := &seasonBackend{seasons: []models.Season{winter, summer}}
	r := NewResolver(backend, fixedClock{today})

	res, err := r.Resolve(context.Background(), leagueInput(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Without an active session the expired winter season stays eligible,
	// so the user must choose.
	if !res.RequiresChoice {
		t.Errorf("resolution = %+v, want explicit choice", res)
	}
	if len(res.Options) != 2 {
		t.Errorf("options = %v, want both seasons", res.Options)
	}
	if res.SeasonID != nil {
		t.Error("multi-option resolution must not pre-select a season")
	}
}

func TestResolve_BoundaryDaysInclusive(t *testing.T) {
	s := season(1, "2026-07-15", "2026-07-15")
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"start of day", time.Date(2026, time.July, 15, 0, 0, 0, 0, time.Local), true},
		{"end of day", time.Date(2026, time.July, 15, 23, 59, 59, 0, time.Local), true},
		{"day before", time.Date(2026, time.July, 14, 23, 0, 0, 0, time.Local), false},
		{"day after", time.Date(2026, time.July, 16, 0, 0, 1, 0, time.Local), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := seasonContains(s, tt.now); got != tt.want {
				t.Errorf("seasonContains(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestResolve_NoSeasonsBlocks(t *testing.T) {
	r := NewResolver(&seasonBackend{}, fixedClock{today})

	_, err := r.Resolve(context.Background(), leagueInput(1))
	if !errors.Is(err, ErrNoSeasons) {
		t.Errorf("err = %v, want ErrNoSeasons", err)
	}
}

func TestResolve_ActiveSessionWithNoDateActiveSeasonBlocks(t *testing.T) {
	backend := &seasonBackend{
		seasons:       []models.Season{season(1, "2025-01-01", "2025-03-31")},
		activeSession: &models.Session{ID: 50, Status: models.StatusActive},
	}
	r := NewResolver(backend, fixedClock{today})

	_, err := r.Resolve(context.Background(), leagueInput(1))
	if !errors.Is(err, ErrNoSeasons) {
		t.Errorf("err = %v, want ErrNoSeasons when the active subset is empty", err)
	}
}

func TestResolve_MissingLeague(t *testing.T) {
	r := NewResolver(&seasonBackend{}, fixedClock{today})

	_, err := r.Resolve(context.Background(), Input{MatchType: MatchTypeLeague})
	if !errors.Is(err, ErrLeagueRequired) {
		t.Errorf("err = %v, want ErrLeagueRequired", err)
	}
}

func TestResolve_UnparsableSeasonDatesNeverQualify(t *testing.T) {
	backend := &seasonBackend{
		seasons: []models.Season{
			season(1, "June 2026", "August 2026"),
			season(2, "2026-06-01", "2026-08-31"),
		},
		activeSession: &models.Session{ID: 50, Status: models.StatusActive},
	}
	r := NewResolver(backend, fixedClock{today})

	res, err := r.Resolve(context.Background(), leagueInput(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.SeasonID == nil || *res.SeasonID != 2 {
		t.Errorf("resolution = %+v, want only the parsable season", res)
	}
}

func TestValidateSeasonChoice(t *testing.T) {
	chosen := int64(3)
	tests := []struct {
		name    string
		res     Resolution
		chosen  *int64
		wantErr error
	}{
		{"choice required and missing", Resolution{RequiresChoice: true}, nil, ErrSeasonChoiceRequired},
		{"choice required and made", Resolution{RequiresChoice: true}, &chosen, nil},
		{"no choice needed", Resolution{}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateSeasonChoice(tt.res, tt.chosen); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSeasonChoice = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDraft(t *testing.T) {
	valid := overlay.Draft{
		Team1Player1: 1, Team1Player2: 2,
		Team2Player1: 3, Team2Player2: 4,
		Team1Score: 11, Team2Score: 9,
	}

	tests := []struct {
		name    string
		mutate  func(*overlay.Draft)
		wantErr bool
	}{
		{"valid", func(d *overlay.Draft) {}, false},
		{"tie allowed", func(d *overlay.Draft) { d.Team2Score = 11 }, false},
		{"missing player", func(d *overlay.Draft) { d.Team2Player2 = 0 }, true},
		{"duplicate player", func(d *overlay.Draft) { d.Team2Player1 = 1 }, true},
		{"duplicate within team", func(d *overlay.Draft) { d.Team1Player2 = 1 }, true},
		{"negative score", func(d *overlay.Draft) { d.Team1Score = -1 }, true},
		{"score too large", func(d *overlay.Draft) { d.Team2Score = 100 }, true},
		{"zero-zero allowed", func(d *overlay.Draft) { d.Team1Score, d.Team2Score = 0, 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			err := ValidateDraft(d)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDraft = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
