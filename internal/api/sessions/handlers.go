// internal/api/sessions/handlers.go
package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rallyhq/courtside/internal/lifecycle"
	"github.com/rallyhq/courtside/internal/matchform"
	"github.com/rallyhq/courtside/internal/models"
	"github.com/rallyhq/courtside/internal/overlay"
	"github.com/rallyhq/courtside/internal/page"
	"github.com/rallyhq/courtside/internal/roster"
)

// playerIDHeader identifies the caller. Authentication itself lives in
// the gateway in front of this service; the header is trusted here.
const playerIDHeader = "X-Player-Id"

var (
	view       *page.View
	controller *lifecycle.Controller
	rosterEng  *roster.Engine
	resolver   *matchform.Resolver
	adminIDs   map[int64]bool
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(v *page.View, c *lifecycle.Controller, r *roster.Engine, mf *matchform.Resolver, admins []int64) {
	view = v
	controller = c
	rosterEng = r
	resolver = mf
	adminIDs = make(map[int64]bool, len(admins))
	for _, id := range admins {
		adminIDs[id] = true
	}
}

func callerID(r *http.Request) int64 {
	raw := strings.TrimSpace(r.Header.Get(playerIDHeader))
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func isAdmin(r *http.Request) bool {
	return adminIDs[callerID(r)]
}

func sessionIDFromPath(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	return strconv.ParseInt(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeLifecycleError maps the controller's sentinel errors onto HTTP
// statuses.
func writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrSessionUnknown):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, lifecycle.ErrAdminRequired):
		writeError(w, http.StatusForbidden, "admin rights required")
	case errors.Is(err, lifecycle.ErrNotEditable),
		errors.Is(err, lifecycle.ErrNotEditing),
		errors.Is(err, lifecycle.ErrReadOnly),
		errors.Is(err, lifecycle.ErrLockInFlight):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadGateway, "the operation could not be completed")
	}
}

// GET /api/v1/feed
func HandleFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.Feed())
}

// POST /api/v1/sessions/open
func HandleOpenSession(w http.ResponseWriter, r *http.Request) {
	var s models.Session
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil || s.ID == 0 {
		writeError(w, http.StatusBadRequest, "a session with an id is required")
		return
	}
	if err := view.Open(r.Context(), s); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Int64("session_id", s.ID).Msg("Failed to open session page")
		writeError(w, http.StatusBadGateway, "failed to load the session")
		return
	}
	writeJSON(w, http.StatusOK, view.Feed())
}

// POST /api/v1/sessions/{id}/lock-in
func HandleLockIn(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := view.LockIn(r.Context(), sessionID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Feed())
}

// POST /api/v1/sessions/{id}/edit
func HandleEnterEdit(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := controller.EnterEdit(sessionID, isAdmin(r)); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Feed())
}

// POST /api/v1/sessions/{id}/save
func HandleSaveEdit(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := view.SaveEdit(r.Context(), sessionID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Feed())
}

// POST /api/v1/sessions/{id}/cancel-edit
func HandleCancelEdit(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := controller.CancelEdit(sessionID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Feed())
}

// DELETE /api/v1/sessions/{id}
func HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "admin rights required")
		return
	}
	if err := controller.Delete(r.Context(), sessionID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type stageMatchRequest struct {
	Team1Player1 int64 `json:"team1Player1"`
	Team1Player2 int64 `json:"team1Player2"`
	Team2Player1 int64 `json:"team2Player1"`
	Team2Player2 int64 `json:"team2Player2"`
	Team1Score   int   `json:"team1Score"`
	Team2Score   int   `json:"team2Score"`
}

// POST /api/v1/sessions/{id}/matches
func HandleStageMatch(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req stageMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid match payload")
		return
	}
	draft := overlay.Draft{
		Team1Player1: req.Team1Player1,
		Team1Player2: req.Team1Player2,
		Team2Player1: req.Team2Player1,
		Team2Player2: req.Team2Player2,
		Team1Score:   req.Team1Score,
		Team2Score:   req.Team2Score,
	}
	// Validation failures stay local; nothing is sent upstream.
	if err := matchform.ValidateDraft(draft); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	index, err := controller.StageAddition(sessionID, draft)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id": models.PendingID(sessionID, index).String(),
	})
}

type stageUpdateRequest struct {
	Team1Player1 *int64 `json:"team1Player1"`
	Team1Player2 *int64 `json:"team1Player2"`
	Team2Player1 *int64 `json:"team2Player1"`
	Team2Player2 *int64 `json:"team2Player2"`
	Team1Score   *int   `json:"team1Score"`
	Team2Score   *int   `json:"team2Score"`
}

// PATCH /api/v1/sessions/{id}/matches/{matchId}
func HandleStageUpdate(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	matchID, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("matchId")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	var req stageUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid match payload")
		return
	}
	patch := overlay.Patch{
		Team1Player1: req.Team1Player1,
		Team1Player2: req.Team1Player2,
		Team2Player1: req.Team2Player1,
		Team2Player2: req.Team2Player2,
		Team1Score:   req.Team1Score,
		Team2Score:   req.Team2Score,
	}
	if err := controller.StageUpdate(sessionID, matchID, patch); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// DELETE /api/v1/sessions/{id}/matches/{matchId}
func HandleStageDelete(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	matchID, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("matchId")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	if err := controller.StageDelete(sessionID, matchID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// GET /api/v1/sessions/{id}/participants
func HandleRoster(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	writeJSON(w, http.StatusOK, rosterEng.Roster(sessionID))
}

// POST /api/v1/sessions/{id}/participants
func HandleAddParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var p models.Participant
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.PlayerID == 0 {
		writeError(w, http.StatusBadRequest, "a participant with a playerId is required")
		return
	}
	if err := rosterEng.AddParticipant(r.Context(), sessionID, p); err != nil {
		writeRosterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterEng.Roster(sessionID))
}

type inviteBatchRequest struct {
	Participants []models.Participant `json:"participants"`
}

// POST /api/v1/sessions/{id}/participants/batch
func HandleInviteBatch(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req inviteBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Participants) == 0 {
		writeError(w, http.StatusBadRequest, "at least one participant is required")
		return
	}
	for _, p := range req.Participants {
		if p.PlayerID == 0 {
			writeError(w, http.StatusBadRequest, "every participant needs a playerId")
			return
		}
	}
	if err := rosterEng.InviteMany(r.Context(), sessionID, req.Participants); err != nil {
		writeRosterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterEng.Roster(sessionID))
}

// DELETE /api/v1/sessions/{id}/participants/{playerId}
func HandleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	playerID, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("playerId")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}
	if err := rosterEng.RemoveParticipant(r.Context(), sessionID, playerID); err != nil {
		writeRosterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterEng.Roster(sessionID))
}

// writeRosterError surfaces the classified, user-facing message for
// roster conflicts; anything unclassified gets the generic retryable one.
func writeRosterError(w http.ResponseWriter, err error) {
	var rerr *roster.Error
	if errors.As(err, &rerr) {
		writeError(w, http.StatusConflict, rerr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, roster.GenericFailureMessage)
}

type resolveRequest struct {
	MatchType       string `json:"matchType"`
	LeagueID        *int64 `json:"leagueId"`
	SessionSeasonID *int64 `json:"sessionSeasonId"`
	SeasonID        *int64 `json:"seasonId"`
}

type resolveResponse struct {
	SeasonID       *int64          `json:"seasonId,omitempty"`
	Locked         bool            `json:"locked"`
	RequiresChoice bool            `json:"requiresChoice"`
	Options        []models.Season `json:"options,omitempty"`
}

// POST /api/v1/match-form/resolve
func HandleResolveMatchForm(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	res, err := resolver.Resolve(r.Context(), matchform.Input{
		MatchType:       matchform.MatchType(req.MatchType),
		LeagueID:        req.LeagueID,
		SessionSeasonID: req.SessionSeasonID,
	})
	if err != nil {
		switch {
		case errors.Is(err, matchform.ErrNoSeasons), errors.Is(err, matchform.ErrLeagueRequired):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			log.Ctx(r.Context()).Error().Err(err).Msg("Season resolution failed")
			writeError(w, http.StatusBadGateway, "failed to resolve seasons")
		}
		return
	}
	if err := matchform.ValidateSeasonChoice(res, req.SeasonID); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		SeasonID:       res.SeasonID,
		Locked:         res.Locked,
		RequiresChoice: res.RequiresChoice,
		Options:        res.Options,
	})
}
