package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"draw-engine/internal/catalog"
	"draw-engine/internal/channel"
	"draw-engine/internal/config"
	"draw-engine/internal/notify"
	"draw-engine/internal/pkg/db"
	"draw-engine/internal/pkg/lock"
	"draw-engine/internal/render"
	"draw-engine/internal/repository"
	"draw-engine/internal/service"
)

// app holds the wired engine.
type app struct {
	cfg      *config.Config
	location *time.Location
	pool     *db.Pool

	draws        *repository.DrawRepository
	games        *repository.GameRepository
	channels     *repository.ChannelRepository
	publications *repository.PublicationRepository
	system       *repository.SystemRepository
	audit        *repository.AuditRepository
	catalog      *catalog.Catalog
	guard        *channel.Guard

	hub    *notify.Hub
	pusher *notify.Pusher

	generator *service.GeneratorService
	lifecycle *service.LifecycleService
	publisher *service.PublisherService
}

// newApp connects to PostgreSQL and wires every component. The WebSocket hub
// and the Pusher sink need a running process, so one-shot commands
// (serving=false) only log events.
func newApp(ctx context.Context, cfg *config.Config, serving bool) (*app, error) {
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &app{
		cfg:          cfg,
		location:     loc,
		pool:         pool,
		draws:        repository.NewDrawRepository(pool.Pool),
		games:        repository.NewGameRepository(pool.Pool),
		channels:     repository.NewChannelRepository(pool.Pool),
		publications: repository.NewPublicationRepository(pool.Pool),
		system:       repository.NewSystemRepository(pool.Pool),
		audit:        repository.NewAuditRepository(pool.Pool),
	}
	templates := repository.NewTemplateRepository(pool.Pool)
	a.catalog = catalog.New(a.games, 10*time.Minute)

	notifiers := notify.Multi{notify.Log{}}
	if serving {
		a.hub = notify.NewHub()
		notifiers = append(notifiers, a.hub)
	}
	if serving && cfg.Pusher.Enabled() {
		p := cfg.Pusher
		a.pusher = notify.NewPusher(notify.NewPusherClient(p.AppID, p.Key, p.Secret, p.Cluster), p.Channel)
		notifiers = append(notifiers, a.pusher)
	}

	images, err := render.NewImages(render.ImageConfig{
		Dir:           cfg.Images.Dir,
		PublicBaseURL: cfg.Images.PublicBaseURL,
		Width:         cfg.Images.Width,
		Height:        cfg.Images.Height,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	a.guard = channel.NewGuard(channel.GuardConfig{
		RatePerMinute:    cfg.Publication.RateLimitPerMinute,
		BreakerThreshold: cfg.Publication.BreakerThreshold,
		BreakerCooldown:  cfg.Publication.BreakerCooldown,
	})
	registry := channel.NewRegistry(a.channels, channel.Endpoints{
		WhatsAppURL:    cfg.WhatsApp.BaseURL,
		WhatsAppAPIKey: cfg.WhatsApp.APIKey,
		FacebookURL:    cfg.Meta.FacebookBaseURL,
		InstagramURL:   cfg.Meta.InstagramBaseURL,
		TikTokURL:      cfg.TikTok.BaseURL,
		Client:         &http.Client{Timeout: cfg.Publication.ChannelTimeout},
		Timeout:        cfg.Publication.ChannelTimeout,
	}, a.guard)

	machine, err := service.NewDrawMachine()
	if err != nil {
		pool.Close()
		return nil, err
	}
	locks := lock.NewKeyLock()

	a.generator = service.NewGeneratorService(templates, a.draws, a.system, a.audit, notifiers, loc)
	a.lifecycle = service.NewLifecycleService(a.draws, a.catalog, a.system, a.audit, notifiers, machine, locks, service.LifecycleConfig{
		Location:            loc,
		ClosingLeadTime:     cfg.Lifecycle.ClosingLeadTime,
		AvoidSameDayRepeats: cfg.Lifecycle.AvoidSameDayRepeats,
		PublishOnDraw:       cfg.Lifecycle.PublishOnDraw,
	})
	a.publisher = service.NewPublisherService(
		a.draws, a.catalog, registry, a.publications, a.lifecycle,
		render.NewMessages(), images, a.system, notifiers, locks,
		service.PublisherConfig{
			Location:         loc,
			ChannelTimeout:   cfg.Publication.ChannelTimeout,
			OverallTimeout:   cfg.Publication.OverallTimeout,
			MaxParallel:      cfg.Publication.MaxParallel,
			QueueSize:        cfg.Publication.QueueSize,
			Workers:          cfg.Publication.Workers,
			PendingBatch:     cfg.Publication.PendingBatch,
			RetryMaxAttempts: cfg.Publication.RetryMaxAttempts,
			RetryWindow:      cfg.Publication.RetryWindow,
		},
	)

	return a, nil
}

func (a *app) Close() {
	if err := a.guard.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close channel guard")
	}
	a.pool.Close()
}
