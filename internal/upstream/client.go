// Package upstream is the HTTP/JSON client for the remote core API. The
// core API owns persistence and rating computation; this client only
// moves state back and forth and surfaces the server's error details.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rallyhq/courtside/internal/models"
	"github.com/rallyhq/courtside/internal/overlay"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx response from the core API. Detail carries the
// server's free-form explanation when the body had one; it is the only
// channel through which the server communicates error semantics.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("core api: %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("core api: %d", e.StatusCode)
}

// ErrorDetail returns the server's detail string for classification.
func (e *APIError) ErrorDetail() string { return e.Detail }

// Client talks to the core API. All methods honor the request context;
// the HTTP client's timeout bounds each call independently so a hung
// request blocks only its own operation.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends the token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient builds a client for the core API at baseURL. A zero timeout
// gets the default.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// matchPayload is the wire shape for match creation and update. Pointer
// fields are omitted when unset so updates stay partial.
type matchPayload struct {
	Team1Player1 *int64 `json:"team1Player1,omitempty"`
	Team1Player2 *int64 `json:"team1Player2,omitempty"`
	Team2Player1 *int64 `json:"team2Player1,omitempty"`
	Team2Player2 *int64 `json:"team2Player2,omitempty"`
	Team1Score   *int   `json:"team1Score,omitempty"`
	Team2Score   *int   `json:"team2Score,omitempty"`
}

func draftPayload(d overlay.Draft) matchPayload {
	return matchPayload{
		Team1Player1: &d.Team1Player1,
		Team1Player2: &d.Team1Player2,
		Team2Player1: &d.Team2Player1,
		Team2Player2: &d.Team2Player2,
		Team1Score:   &d.Team1Score,
		Team2Score:   &d.Team2Score,
	}
}

func patchPayload(p overlay.Patch) matchPayload {
	return matchPayload{
		Team1Player1: p.Team1Player1,
		Team1Player2: p.Team1Player2,
		Team2Player1: p.Team2Player1,
		Team2Player2: p.Team2Player2,
		Team1Score:   p.Team1Score,
		Team2Score:   p.Team2Score,
	}
}

// GetSessionMatches returns the server-confirmed matches of a session.
func (c *Client) GetSessionMatches(ctx context.Context, sessionID int64) ([]models.Match, error) {
	var out []models.Match
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%d/matches", sessionID), nil, &out)
	return out, err
}

// GetSessionParticipants returns a session's roster.
func (c *Client) GetSessionParticipants(ctx context.Context, sessionID int64) ([]models.Participant, error) {
	var out []models.Participant
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%d/participants", sessionID), nil, &out)
	return out, err
}

// CreateMatch records a new match in a session and returns it with the
// server-assigned ID.
func (c *Client) CreateMatch(ctx context.Context, sessionID int64, d overlay.Draft) (models.Match, error) {
	var out models.Match
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/matches", sessionID), draftPayload(d), &out)
	return out, err
}

// UpdateMatch applies a partial update to a confirmed match and returns
// the updated record.
func (c *Client) UpdateMatch(ctx context.Context, matchID int64, p overlay.Patch) (models.Match, error) {
	var out models.Match
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/matches/%d", matchID), patchPayload(p), &out)
	return out, err
}

// DeleteMatch removes a confirmed match.
func (c *Client) DeleteMatch(ctx context.Context, matchID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/matches/%d", matchID), nil, nil)
}

// LockInSession finalizes a session; the server recomputes ratings as a
// side effect, which is why callers refetch afterwards.
func (c *Client) LockInSession(ctx context.Context, sessionID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/lock-in", sessionID), nil, nil)
}

// DeleteSession removes a session and everything in it.
func (c *Client) DeleteSession(ctx context.Context, sessionID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/sessions/%d", sessionID), nil, nil)
}

// InviteToSession adds one player to a session's roster.
func (c *Client) InviteToSession(ctx context.Context, sessionID, playerID int64) error {
	body := struct {
		PlayerID int64 `json:"playerId"`
	}{PlayerID: playerID}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/participants", sessionID), body, nil)
}

// InviteToSessionBatch adds several players in one call.
func (c *Client) InviteToSessionBatch(ctx context.Context, sessionID int64, playerIDs []int64) error {
	body := struct {
		PlayerIDs []int64 `json:"playerIds"`
	}{PlayerIDs: playerIDs}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/participants/batch", sessionID), body, nil)
}

// RemoveSessionParticipant removes a player from a session's roster.
func (c *Client) RemoveSessionParticipant(ctx context.Context, sessionID, playerID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/sessions/%d/participants/%d", sessionID, playerID), nil, nil)
}

// GetLeagueSeasons returns a league's seasons.
func (c *Client) GetLeagueSeasons(ctx context.Context, leagueID int64) ([]models.Season, error) {
	var out []models.Season
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/leagues/%d/seasons", leagueID), nil, &out)
	return out, err
}

// GetActiveSession returns the caller's currently active session, or nil
// when there is none.
func (c *Client) GetActiveSession(ctx context.Context) (*models.Session, error) {
	var out models.Session
	err := c.do(ctx, http.MethodGet, "/sessions/active", nil, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// do runs one request against the core API. A non-2xx status becomes an
// *APIError carrying the body's "detail" field when present; out is
// decoded from 2xx bodies when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	log.Ctx(ctx).Debug().
		Str("component", "upstream_client").
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Core API call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// readDetail extracts the "detail" field from an error body, tolerating
// non-JSON bodies.
func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.Detail
}
