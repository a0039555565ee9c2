// Package models holds the shared entity types for sessions, matches,
// rosters, and seasons.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SessionStatus tracks where a session sits in its lifecycle.
type SessionStatus string

const (
	StatusActive    SessionStatus = "ACTIVE"
	StatusSubmitted SessionStatus = "SUBMITTED"
	StatusEdited    SessionStatus = "EDITED"
)

// Winner identifies which side won a match. It is derived from the two
// scores and never authoritative on its own.
type Winner string

const (
	WinnerTeam1 Winner = "TEAM1"
	WinnerTeam2 Winner = "TEAM2"
	WinnerTie   Winner = "TIE"
)

// ComputeWinner maps the sign of team1Score-team2Score to a Winner. Callers
// must re-derive the winner whenever either score changes.
func ComputeWinner(team1Score, team2Score int) Winner {
	switch {
	case team1Score > team2Score:
		return WinnerTeam1
	case team1Score < team2Score:
		return WinnerTeam2
	default:
		return WinnerTie
	}
}

// MatchID is either a server-assigned numeric ID or a synthetic placeholder
// for a staged addition that the server has not confirmed yet. Keeping the
// two in one tagged value avoids overloading the numeric ID space, so a
// placeholder can never collide with a real ID during sorting.
type MatchID struct {
	num       int64
	sessionID int64
	index     int
	pending   bool
}

// ConfirmedID wraps a server-assigned match ID.
func ConfirmedID(id int64) MatchID {
	return MatchID{num: id}
}

// PendingID builds the placeholder ID for the index-th staged addition in a
// session's change set.
func PendingID(sessionID int64, index int) MatchID {
	return MatchID{sessionID: sessionID, index: index, pending: true}
}

// IsPending reports whether the ID is a local placeholder.
func (id MatchID) IsPending() bool { return id.pending }

// Confirmed returns the numeric server ID, or false for a placeholder.
func (id MatchID) Confirmed() (int64, bool) {
	if id.pending {
		return 0, false
	}
	return id.num, true
}

func (id MatchID) String() string {
	if id.pending {
		return fmt.Sprintf("pending-%d-%d", id.sessionID, id.index)
	}
	return strconv.FormatInt(id.num, 10)
}

// NewerThan orders match IDs newest-first within a group. Placeholders
// always rank above confirmed IDs because they represent the most recent
// unsaved action; their numeric suffix is never compared against real IDs.
func (id MatchID) NewerThan(other MatchID) bool {
	if id.pending != other.pending {
		return id.pending
	}
	if id.pending {
		return id.index > other.index
	}
	return id.num > other.num
}

// MarshalJSON renders confirmed IDs as numbers and placeholders as their
// "pending-{session}-{index}" string so clients can key rows either way.
func (id MatchID) MarshalJSON() ([]byte, error) {
	if id.pending {
		return json.Marshal(id.String())
	}
	return json.Marshal(id.num)
}

// UnmarshalJSON accepts the numeric IDs the server hands out. Placeholder
// IDs never round-trip through the wire; they exist only in-process.
func (id *MatchID) UnmarshalJSON(data []byte) error {
	var num int64
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("match id must be numeric: %w", err)
	}
	*id = ConfirmedID(num)
	return nil
}

// Session is a bounded batch of matches sharing a roster and a lock/unlock
// lifecycle. Status is mutated only through the lifecycle controller.
type Session struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Status    SessionStatus `json:"status"`
	CreatedAt *time.Time    `json:"createdAt,omitempty"`
	UpdatedAt *time.Time    `json:"updatedAt,omitempty"`
	CreatedBy string        `json:"createdBy,omitempty"`
	UpdatedBy string        `json:"updatedBy,omitempty"`
	LeagueID  *int64        `json:"leagueId,omitempty"`
	SeasonID  *int64        `json:"seasonId,omitempty"`
}

// LastUpdated is the session's freshness timestamp: updatedAt when set,
// otherwise createdAt, otherwise nil.
func (s Session) LastUpdated() *time.Time {
	if s.UpdatedAt != nil {
		return s.UpdatedAt
	}
	return s.CreatedAt
}

// Match is a single doubles game. SessionID is nil for free matches played
// outside any session. SessionName and SessionStatus are denormalized for
// display; the owning session record takes precedence when loaded.
type Match struct {
	ID            MatchID       `json:"id"`
	SessionID     *int64        `json:"sessionId,omitempty"`
	Team1Player1  int64         `json:"team1Player1"`
	Team1Player2  int64         `json:"team1Player2"`
	Team2Player1  int64         `json:"team2Player1"`
	Team2Player2  int64         `json:"team2Player2"`
	Team1Score    int           `json:"team1Score"`
	Team2Score    int           `json:"team2Score"`
	Winner        Winner        `json:"winner"`
	Date          string        `json:"date"`
	SessionName   string        `json:"sessionName,omitempty"`
	SessionStatus SessionStatus `json:"sessionStatus,omitempty"`
}

// Players returns the four player slots in a fixed order.
func (m Match) Players() [4]int64 {
	return [4]int64{m.Team1Player1, m.Team1Player2, m.Team2Player1, m.Team2Player2}
}

// Participant is a player on a session's roster.
type Participant struct {
	PlayerID     int64  `json:"playerId"`
	Name         string `json:"name"`
	Level        string `json:"level,omitempty"`
	Gender       string `json:"gender,omitempty"`
	LocationName string `json:"locationName,omitempty"`
	Email        string `json:"email,omitempty"`
}

// Season is a league's scoring window. Start and end dates arrive as plain
// calendar dates and are compared at day granularity.
type Season struct {
	ID        int64  `json:"id"`
	LeagueID  int64  `json:"league_id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}
