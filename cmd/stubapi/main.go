// cmd/stubapi/main.go
//
// A SQLite-backed stand-in for the remote core API, for local
// development against a realistic contract without the real backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rallyhq/courtside/internal/api"
	"github.com/rallyhq/courtside/internal/stubapi"
)

func main() {
	port := flag.Int("port", 9000, "listen port")
	dbPath := flag.String("db", "build/stubapi.db", "sqlite database path")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	store, err := stubapi.NewStore(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open stub store")
	}
	defer store.Close()

	handler := api.ChainMiddleware(
		stubapi.NewServer(store).Handler(),
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", *port).Str("db", *dbPath).Msg("Starting stub core API")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		log.Info().Msg("Shutting down stub core API")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Stub terminated with error")
		os.Exit(1)
	}
}
