// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rallyhq/courtside/internal/api"
	"github.com/rallyhq/courtside/internal/api/sessions"
	"github.com/rallyhq/courtside/internal/config"
)

func newServer(cfg *config.Config) *http.Server {
	router := http.NewServeMux()

	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithJSON,
	)

	registerRoutes(router)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Feed and page lifecycle
	mux.HandleFunc("GET /api/v1/feed", sessions.HandleFeed)
	mux.HandleFunc("POST /api/v1/sessions/open", sessions.HandleOpenSession)

	// Session lifecycle
	mux.HandleFunc("POST /api/v1/sessions/{id}/lock-in", sessions.HandleLockIn)
	mux.HandleFunc("POST /api/v1/sessions/{id}/edit", sessions.HandleEnterEdit)
	mux.HandleFunc("POST /api/v1/sessions/{id}/save", sessions.HandleSaveEdit)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel-edit", sessions.HandleCancelEdit)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sessions.HandleDeleteSession)

	// Staged match changes
	mux.HandleFunc("POST /api/v1/sessions/{id}/matches", sessions.HandleStageMatch)
	mux.HandleFunc("PATCH /api/v1/sessions/{id}/matches/{matchId}", sessions.HandleStageUpdate)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/matches/{matchId}", sessions.HandleStageDelete)

	// Roster
	mux.HandleFunc("GET /api/v1/sessions/{id}/participants", sessions.HandleRoster)
	mux.HandleFunc("POST /api/v1/sessions/{id}/participants", sessions.HandleAddParticipant)
	mux.HandleFunc("POST /api/v1/sessions/{id}/participants/batch", sessions.HandleInviteBatch)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/participants/{playerId}", sessions.HandleRemoveParticipant)

	// Match form
	mux.HandleFunc("POST /api/v1/match-form/resolve", sessions.HandleResolveMatchForm)
}
