package stubapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rallyhq/courtside/internal/models"
)

// Detail strings of the real backend. The client classifies roster
// failures by matching these, so the stub must reproduce them verbatim.
const (
	detailAlreadyInSession = "player already in session"
	detailHasGames         = "player has games in this session"
	detailNotInRoster      = "not in roster"
	detailCreatorRemoval   = "session creator cannot remove themselves"
	detailNotFound         = "not found"
)

// Server serves the core API contract over the stub store.
type Server struct {
	store *Store
}

// NewServer wires a stub server over the store.
func NewServer(store *Store) *Server {
	return &Server{store: store}
}

// Handler returns the stub's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /sessions/active", s.handleActiveSession)
	mux.HandleFunc("GET /sessions/{id}/matches", s.handleSessionMatches)
	mux.HandleFunc("POST /sessions/{id}/matches", s.handleCreateMatch)
	mux.HandleFunc("POST /sessions/{id}/lock-in", s.handleLockIn)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /sessions/{id}/participants", s.handleListParticipants)
	mux.HandleFunc("POST /sessions/{id}/participants", s.handleAddParticipant)
	mux.HandleFunc("POST /sessions/{id}/participants/batch", s.handleAddParticipantBatch)
	mux.HandleFunc("DELETE /sessions/{id}/participants/{playerId}", s.handleRemoveParticipant)
	mux.HandleFunc("PATCH /matches/{id}", s.handleUpdateMatch)
	mux.HandleFunc("DELETE /matches/{id}", s.handleDeleteMatch)
	mux.HandleFunc("GET /leagues/{id}/seasons", s.handleLeagueSeasons)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func pathID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(r.PathValue(key)), 10, 64)
}

func (s *Server) sessionExists(id int64) (bool, error) {
	var one int
	err := s.store.QueryRow(`SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	row := s.store.QueryRowContext(r.Context(), `
		SELECT id, name, status, created_at, updated_at, created_by, updated_by, league_id, season_id
		FROM sessions WHERE status = 'ACTIVE' ORDER BY id LIMIT 1`)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to load active session")
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (models.Session, error) {
	var (
		s         models.Session
		createdAt time.Time
		updatedAt sql.NullTime
		leagueID  sql.NullInt64
		seasonID  sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.Name, &s.Status, &createdAt, &updatedAt, &s.CreatedBy, &s.UpdatedBy, &leagueID, &seasonID)
	if err != nil {
		return models.Session{}, err
	}
	s.CreatedAt = &createdAt
	if updatedAt.Valid {
		t := updatedAt.Time
		s.UpdatedAt = &t
	}
	if leagueID.Valid {
		v := leagueID.Int64
		s.LeagueID = &v
	}
	if seasonID.Valid {
		v := seasonID.Int64
		s.SeasonID = &v
	}
	return s, nil
}

func (s *Server) handleSessionMatches(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid session id")
		return
	}

	rows, err := s.store.QueryContext(r.Context(), `
		SELECT m.id, m.session_id, m.team1_player1, m.team1_player2, m.team2_player1, m.team2_player2,
		       m.team1_score, m.team2_score, m.winner, m.date, s.name, s.status
		FROM matches m JOIN sessions s ON s.id = m.session_id
		WHERE m.session_id = ? ORDER BY m.id`, sessionID)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to load matches")
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	defer rows.Close()

	matches := []models.Match{}
	for rows.Next() {
		var (
			m   models.Match
			id  int64
			sid int64
		)
		if err := rows.Scan(&id, &sid,
			&m.Team1Player1, &m.Team1Player2, &m.Team2Player1, &m.Team2Player2,
			&m.Team1Score, &m.Team2Score, &m.Winner, &m.Date,
			&m.SessionName, &m.SessionStatus); err != nil {
			writeDetail(w, http.StatusInternalServerError, "")
			return
		}
		m.ID = models.ConfirmedID(id)
		m.SessionID = &sid
		matches = append(matches, m)
	}
	writeJSON(w, http.StatusOK, matches)
}

type matchPayload struct {
	Team1Player1 *int64 `json:"team1Player1"`
	Team1Player2 *int64 `json:"team1Player2"`
	Team2Player1 *int64 `json:"team2Player1"`
	Team2Player2 *int64 `json:"team2Player2"`
	Team1Score   *int   `json:"team1Score"`
	Team2Score   *int   `json:"team2Score"`
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid session id")
		return
	}
	exists, err := s.sessionExists(sessionID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	if !exists {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}

	var p matchPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	intOr := func(v *int) int {
		if v == nil {
			return 0
		}
		return *v
	}
	int64Or := func(v *int64) int64 {
		if v == nil {
			return 0
		}
		return *v
	}

	t1, t2 := intOr(p.Team1Score), intOr(p.Team2Score)
	winner := models.ComputeWinner(t1, t2)
	date := time.Now().Local().Format(time.RFC3339)

	res, err := s.store.ExecContext(r.Context(), `
		INSERT INTO matches (session_id, team1_player1, team1_player2, team2_player1, team2_player2,
		                     team1_score, team2_score, winner, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int64Or(p.Team1Player1), int64Or(p.Team1Player2),
		int64Or(p.Team2Player1), int64Or(p.Team2Player2), t1, t2, string(winner), date)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to insert match")
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	id, _ := res.LastInsertId()
	s.touchSession(r, sessionID)

	writeJSON(w, http.StatusCreated, models.Match{
		ID:           models.ConfirmedID(id),
		SessionID:    &sessionID,
		Team1Player1: int64Or(p.Team1Player1),
		Team1Player2: int64Or(p.Team1Player2),
		Team2Player1: int64Or(p.Team2Player1),
		Team2Player2: int64Or(p.Team2Player2),
		Team1Score:   t1,
		Team2Score:   t2,
		Winner:       winner,
		Date:         date,
	})
}

func (s *Server) handleUpdateMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid match id")
		return
	}
	var p matchPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var m models.Match
	var id, sessionID int64
	row := s.store.QueryRowContext(r.Context(), `
		SELECT id, session_id, team1_player1, team1_player2, team2_player1, team2_player2,
		       team1_score, team2_score, date
		FROM matches WHERE id = ?`, matchID)
	if err := row.Scan(&id, &sessionID,
		&m.Team1Player1, &m.Team1Player2, &m.Team2Player1, &m.Team2Player2,
		&m.Team1Score, &m.Team2Score, &m.Date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeDetail(w, http.StatusNotFound, detailNotFound)
			return
		}
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}

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
	m.ID = models.ConfirmedID(id)
	m.SessionID = &sessionID

	if _, err := s.store.ExecContext(r.Context(), `
		UPDATE matches SET team1_player1 = ?, team1_player2 = ?, team2_player1 = ?, team2_player2 = ?,
		                   team1_score = ?, team2_score = ?, winner = ?
		WHERE id = ?`,
		m.Team1Player1, m.Team1Player2, m.Team2Player1, m.Team2Player2,
		m.Team1Score, m.Team2Score, string(m.Winner), matchID); err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	s.touchSession(r, sessionID)
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid match id")
		return
	}
	res, err := s.store.ExecContext(r.Context(), `DELETE FROM matches WHERE id = ?`, matchID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLockIn(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid session id")
		return
	}
	res, err := s.store.ExecContext(r.Context(),
		`UPDATE sessions SET status = 'SUBMITTED', updated_at = CURRENT_TIMESTAMP WHERE id = ?`, sessionID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}
	// Rating recomputation happens here in the real backend.
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid session id")
		return
	}
	res, err := s.store.ExecContext(r.Context(), `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid session id")
		return
	}
	rows, err := s.store.QueryContext(r.Context(),
		`SELECT player_id, name, email FROM session_participants WHERE session_id = ? ORDER BY player_id`, sessionID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.PlayerID, &p.Name, &p.Email); err != nil {
			writeDetail(w, http.StatusInternalServerError, "")
			return
		}
		participants = append(participants, p)
	}
	writeJSON(w, http.StatusOK, participants)
}

type invitePayload struct {
	PlayerID int64  `json:"playerId"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid session id")
		return
	}
	exists, err := s.sessionExists(sessionID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	if !exists {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}

	var p invitePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.PlayerID == 0 {
		writeDetail(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := s.insertParticipant(r, sessionID, p); err != nil {
		if isUniqueViolation(err) {
			writeDetail(w, http.StatusConflict, detailAlreadyInSession)
			return
		}
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteBatchPayload struct {
	PlayerIDs []int64 `json:"playerIds"`
}

func (s *Server) handleAddParticipantBatch(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var payload inviteBatchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	// Batch invites skip players already in the roster instead of
	// failing the whole request.
	for _, playerID := range payload.PlayerIDs {
		err := s.insertParticipant(r, sessionID, invitePayload{PlayerID: playerID})
		if err != nil && !isUniqueViolation(err) {
			writeDetail(w, http.StatusInternalServerError, "")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) insertParticipant(r *http.Request, sessionID int64, p invitePayload) error {
	_, err := s.store.ExecContext(r.Context(),
		`INSERT INTO session_participants (session_id, player_id, name, email) VALUES (?, ?, ?, ?)`,
		sessionID, p.PlayerID, p.Name, p.Email)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid session id")
		return
	}
	playerID, err := pathID(r, "playerId")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid player id")
		return
	}

	var creatorID int64
	err = s.store.QueryRowContext(r.Context(),
		`SELECT creator_player_id FROM sessions WHERE id = ?`, sessionID).Scan(&creatorID)
	if errors.Is(err, sql.ErrNoRows) {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	if creatorID != 0 && creatorID == playerID {
		writeDetail(w, http.StatusConflict, detailCreatorRemoval)
		return
	}

	var games int
	err = s.store.QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM matches
		WHERE session_id = ?
		  AND (team1_player1 = ? OR team1_player2 = ? OR team2_player1 = ? OR team2_player2 = ?)`,
		sessionID, playerID, playerID, playerID, playerID).Scan(&games)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	if games > 0 {
		writeDetail(w, http.StatusConflict, detailHasGames)
		return
	}

	res, err := s.store.ExecContext(r.Context(),
		`DELETE FROM session_participants WHERE session_id = ? AND player_id = ?`, sessionID, playerID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeDetail(w, http.StatusConflict, detailNotInRoster)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeagueSeasons(w http.ResponseWriter, r *http.Request) {
	leagueID, err := pathID(r, "id")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid league id")
		return
	}
	rows, err := s.store.QueryContext(r.Context(),
		`SELECT id, league_id, name, start_date, end_date FROM seasons WHERE league_id = ? ORDER BY start_date`, leagueID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "")
		return
	}
	defer rows.Close()

	seasons := []models.Season{}
	for rows.Next() {
		var season models.Season
		if err := rows.Scan(&season.ID, &season.LeagueID, &season.Name, &season.StartDate, &season.EndDate); err != nil {
			writeDetail(w, http.StatusInternalServerError, "")
			return
		}
		seasons = append(seasons, season)
	}
	writeJSON(w, http.StatusOK, seasons)
}

// touchSession bumps updated_at so the feed's freshness ordering tracks
// match activity.
func (s *Server) touchSession(r *http.Request, sessionID int64) {
	if _, err := s.store.ExecContext(r.Context(),
		`UPDATE sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, sessionID); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Int64("session_id", sessionID).Msg("Failed to touch session")
	}
}
