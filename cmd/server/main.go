// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rallyhq/courtside/internal/api/sessions"
	"github.com/rallyhq/courtside/internal/config"
	"github.com/rallyhq/courtside/internal/email"
	"github.com/rallyhq/courtside/internal/lifecycle"
	"github.com/rallyhq/courtside/internal/matchform"
	"github.com/rallyhq/courtside/internal/models"
	"github.com/rallyhq/courtside/internal/page"
	"github.com/rallyhq/courtside/internal/refresh"
	"github.com/rallyhq/courtside/internal/roster"
	"github.com/rallyhq/courtside/internal/upstream"
)

const defaultShutdownTimeout = 30 * time.Second

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config/config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	client := upstream.NewClient(
		cfg.Upstream.BaseURL,
		cfg.Upstream.Timeout.Std(),
		upstream.WithToken(cfg.Upstream.APIToken),
	)

	var sender email.Sender = email.NoopSender{}
	if cfg.Email.Enabled {
		sesClient, err := email.NewSESClient(
			cfg.Email.AccessKeyID,
			cfg.Email.SecretAccessKey,
			cfg.Email.Region,
			cfg.Email.FromAddress,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize SES client")
		}
		sender = sesClient
	}

	controller := lifecycle.NewController(client)
	notifier := email.NewInviteNotifier(sender, controller)
	engine := roster.NewEngine(client, cfg.Roster.Policy(), notifier)

	// The current user's player identity drives auto-join; without one
	// the view never self-joins.
	self := models.Participant{PlayerID: getEnvAsInt64("SELF_PLAYER_ID", 0)}
	view := page.NewView(client, controller, engine, self, nil)
	resolver := matchform.NewResolver(client, nil)

	sessions.InitHandlers(view, controller, engine, resolver, cfg.App.AdminUsers)

	var refreshSvc *refresh.Service
	if cfg.Refresh.Enabled {
		refreshSvc, err = refresh.NewService()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize background scheduler")
		}
		if err := refresh.RegisterFeedRefreshJob(refreshSvc, view, cfg.Refresh.Interval.Std()); err != nil {
			log.Fatal().Err(err).Msg("Failed to register feed refresh job")
		}
		refreshSvc.Start()
	}

	server := newServer(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if refreshSvc != nil {
			if err := refreshSvc.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop background scheduler")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}
