package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"draw-engine/internal/bot"
	"draw-engine/internal/handler"
	"draw-engine/internal/httpapi"
	"draw-engine/internal/pkg/db"
	"draw-engine/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, publish workers, operator API and admin bot",
	Long: `Run the long-lived engine process:
  - cron jobs for generation, sweeps, pending publication and retries
  - publish workers fed by draws that reach DRAWN
  - the operator HTTP API with the /ws event stream
  - the Telegram admin bot when telegram_admin.token is set`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply database migrations before starting")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveMigrate {
		if err := db.Migrate(ctx, a.pool.Pool); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()
	if a.pusher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.pusher.Run(ctx)
		}()
	}

	a.lifecycle.SetHandoff(a.publisher)
	a.publisher.Start(ctx)

	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		sched, err = scheduler.New(scheduler.Specs{
			Generate:       cfg.Schedule.Generate,
			Sweep:          cfg.Schedule.Sweep,
			PublishPending: cfg.Schedule.PublishPending,
			RetryFailed:    cfg.Schedule.RetryFailed,
		}, a.location, cfg.Publication.OverallTimeout*2, a.generator, a.lifecycle, a.publisher)
		if err != nil {
			return err
		}
		sched.Start()
	}

	if cfg.TelegramAdmin.Token != "" {
		drawHandler := handler.NewDrawHandler(a.lifecycle, a.publisher, a.draws, a.catalog, a.system, a.location)
		adminBot, err := bot.New(cfg, drawHandler)
		if err != nil {
			return err
		}
		go adminBot.Start()
		defer adminBot.Stop()
	}

	api := httpapi.New(httpapi.Deps{
		Lifecycle:    a.lifecycle,
		Generator:    a.generator,
		Publisher:    a.publisher,
		Draws:        a.draws,
		Publications: a.publications,
		Audit:        a.audit,
		System:       a.system,
		Games:        a.games,
		Health:       a.pool.HealthCheck,
		Location:     a.location,
		Events:       a.hub,
		ImagesDir:    cfg.Images.Dir,
	})
	srv := httpapi.NewServer(cfg.HTTP.Address, api.Router(), cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, cfg.HTTP.IdleTimeout)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.HTTP.Address).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	case err = <-errCh:
		log.Error().Err(err).Msg("Server failed")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn().Err(shutdownErr).Msg("HTTP server shutdown failed")
	}
	a.publisher.Wait()
	wg.Wait()

	log.Info().Msg("Engine stopped gracefully")
	return err
}
