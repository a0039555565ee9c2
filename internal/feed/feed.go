// Package feed turns a flat match list into the ordered session/date
// groups the session feed renders.
package feed

import (
	"sort"
	"strconv"
	"time"

	"github.com/rallyhq/courtside/internal/models"
)

// GroupKind distinguishes session-owned groups from loose date buckets.
type GroupKind string

const (
	KindSession GroupKind = "session"
	KindDate    GroupKind = "date"
)

// Group is one render-ready bucket of matches. Session groups inherit
// their metadata from the owning session record; date groups carry only
// the date string as their name.
type Group struct {
	Kind        GroupKind            `json:"kind"`
	SessionID   *int64               `json:"sessionId,omitempty"`
	Name        string               `json:"name"`
	Status      models.SessionStatus `json:"status,omitempty"`
	IsActive    bool                 `json:"isActive"`
	CreatedAt   *time.Time           `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time           `json:"updatedAt,omitempty"`
	CreatedBy   string               `json:"createdBy,omitempty"`
	UpdatedBy   string               `json:"updatedBy,omitempty"`
	LastUpdated *time.Time           `json:"lastUpdated,omitempty"`
	Matches     []models.Match       `json:"matches"`
	GameCount   int                  `json:"gameCount"`
	PlayerCount int                  `json:"playerCount"`
}

// BuildGroups partitions matches into one group per session ID (falling
// back to exact date string for free matches), recomputes the derived
// aggregates, and sorts everything into render order. Sessions in the
// editing set get a group even when the overlay left them with zero
// matches. No match is lost or duplicated: the group sizes always sum to
// len(matches).
func BuildGroups(matches []models.Match, sessions map[int64]models.Session, editing []int64) []Group {
	groups := make(map[string]*Group)
	var order []string

	ensure := func(key string, make func() *Group) *Group {
		g, ok := groups[key]
		if !ok {
			g = make()
			groups[key] = g
			order = append(order, key)
		}
		return g
	}

	// Editing sessions exist as groups regardless of match count; entering
	// edit mode must not make the session vanish from the feed.
	for _, sessionID := range editing {
		id := sessionID
		ensure(sessionKey(id), func() *Group {
			return newSessionGroup(id, sessions)
		})
	}

	for _, m := range matches {
		var g *Group
		if m.SessionID != nil {
			id := *m.SessionID
			g = ensure(sessionKey(id), func() *Group {
				return newSessionGroup(id, sessions)
			})
			// Denormalized match fields only fill gaps the session record
			// did not cover.
			if g.Name == "" {
				g.Name = m.SessionName
			}
			if g.Status == "" {
				g.Status = m.SessionStatus
				g.IsActive = m.SessionStatus == models.StatusActive
			}
		} else {
			date := m.Date
			g = ensure(dateKey(date), func() *Group {
				return &Group{Kind: KindDate, Name: date}
			})
		}
		g.Matches = append(g.Matches, m)
	}

	out := make([]Group, 0, len(order))
	for _, key := range order {
		g := groups[key]
		sortMatches(g.Matches)
		g.GameCount = len(g.Matches)
		g.PlayerCount = countDistinctPlayers(g.Matches)
		out = append(out, *g)
	}

	sortGroups(out)
	return out
}

func sessionKey(id int64) string { return "session:" + strconv.FormatInt(id, 10) }
func dateKey(date string) string { return "date:" + date }

func newSessionGroup(id int64, sessions map[int64]models.Session) *Group {
	sid := id
	g := &Group{Kind: KindSession, SessionID: &sid}
	if s, ok := sessions[id]; ok {
		g.Name = s.Name
		g.Status = s.Status
		g.IsActive = s.Status == models.StatusActive
		g.CreatedAt = s.CreatedAt
		g.UpdatedAt = s.UpdatedAt
		g.CreatedBy = s.CreatedBy
		g.UpdatedBy = s.UpdatedBy
		g.LastUpdated = s.LastUpdated()
	}
	return g
}

// sortGroups orders groups newest first by LastUpdated. A group with a
// timestamp sorts before one without; when both lack timestamps the tie
// falls to descending name. Millisecond-equal timestamps keep insertion
// order (stable sort).
func sortGroups(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].LastUpdated, groups[j].LastUpdated
		switch {
		case a != nil && b != nil:
			return a.After(*b)
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return groups[i].Name > groups[j].Name
		}
	})
}

// sortMatches orders a group's matches newest-created first: staged
// pending matches above all confirmed ones, then descending numeric ID.
func sortMatches(matches []models.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].ID.NewerThan(matches[j].ID)
	})
}

// countDistinctPlayers unions the four player slots across the group's
// matches; a player appearing in several matches counts once.
func countDistinctPlayers(matches []models.Match) int {
	seen := make(map[int64]struct{})
	for _, m := range matches {
		for _, p := range m.Players() {
			if p != 0 {
				seen[p] = struct{}{}
			}
		}
	}
	return len(seen)
}
