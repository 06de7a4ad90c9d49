// Package httpapi exposes the operator HTTP API.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"draw-engine/internal/model"
	"draw-engine/internal/service"
)

// Lifecycle is the part of the lifecycle manager driven by operators.
type Lifecycle interface {
	CloseDue(ctx context.Context, now time.Time) (*service.SweepResult, error)
	ProcessElapsed(ctx context.Context, now time.Time) (*service.SweepResult, error)
	Preselect(ctx context.Context, drawID string, itemID *string) (*model.Draw, error)
	ChangeWinner(ctx context.Context, drawID, itemID string) (*model.Draw, error)
	Cancel(ctx context.Context, drawID, reason string) (*model.Draw, error)
	CreateManual(ctx context.Context, gameID string, date time.Time, drawTime string) (*model.Draw, error)
}

// Generator creates the draws of a day.
type Generator interface {
	GenerateDaily(ctx context.Context, date time.Time) (*service.GenerateResult, error)
}

// Publisher publishes a drawn result.
type Publisher interface {
	Publish(ctx context.Context, drawID string, channelFilter []string) (*service.PublishResult, error)
}

// DrawReader reads draws.
type DrawReader interface {
	GetByID(ctx context.Context, id string) (*model.Draw, error)
	FindMany(ctx context.Context, f model.DrawFilter) ([]*model.Draw, error)
}

// PublicationReader reads the publication log.
type PublicationReader interface {
	ListByDraw(ctx context.Context, drawID string) ([]*model.Publication, error)
}

// AuditReader reads the audit trail.
type AuditReader interface {
	ListByEntity(ctx context.Context, entity, entityID string) ([]*model.AuditLog, error)
}

// SystemControl switches the emergency stop and creates pauses.
type SystemControl interface {
	Set(ctx context.Context, key, value string) error
	EmergencyStop(ctx context.Context) (bool, error)
	CreatePause(ctx context.Context, p *model.DrawPause) error
}

// GameLister lists the configured games.
type GameLister interface {
	ListGames(ctx context.Context) ([]*model.Game, error)
}

// Deps holds everything the API needs. Audit, Events, ImagesDir and Health are optional.
type Deps struct {
	Lifecycle    Lifecycle
	Generator    Generator
	Publisher    Publisher
	Draws        DrawReader
	Publications PublicationReader
	Audit        AuditReader
	System       SystemControl
	Games        GameLister
	Health       func(ctx context.Context) error
	Location     *time.Location
	Events       http.Handler
	ImagesDir    string
}

// Handler serves the operator API.
type Handler struct {
	deps      Deps
	validator *validator.Validate
	now       func() time.Time
}

// New creates a Handler.
func New(deps Deps) *Handler {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Handler{deps: deps, validator: validator.New(), now: time.Now}
}

// Router builds the chi router.
func (h *Handler) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/health", h.HealthCheck())

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/sweep", h.Sweep())
		r.Post("/draws/generate", h.Generate())
		r.Post("/draws", h.CreateManual())
		r.Get("/games", h.Games())
		r.Get("/draws", h.List())
		r.Get("/draws/{id}", h.Get())
		r.Get("/draws/{id}/publications", h.Publications())
		if h.deps.Audit != nil {
			r.Get("/draws/{id}/audit", h.Audit())
		}
		r.Post("/draws/{id}/preselect", h.Preselect())
		r.Post("/draws/{id}/change-winner", h.ChangeWinner())
		r.Post("/draws/{id}/publish", h.Publish())
		r.Post("/draws/{id}/cancel", h.Cancel())
		r.Get("/system/emergency-stop", h.EmergencyStop())
		r.Post("/system/emergency-stop", h.SetEmergencyStop())
		r.Post("/pauses", h.CreatePause())
	})

	if h.deps.Events != nil {
		router.Handle("/ws", h.deps.Events)
	}
	if h.deps.ImagesDir != "" {
		router.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(h.deps.ImagesDir))))
	}
	return router
}

// NewServer wraps the router in an http.Server.
func NewServer(addr string, handler http.Handler, read, write, idle time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}
}

// HealthCheck reports whether the database answers.
func (h *Handler) HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Health != nil {
			if err := h.deps.Health(r.Context()); err != nil {
				log.Warn().Err(err).Msg("Health check failed")
				fail(w, r, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		ok(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Games lists the configured games.
func (h *Handler) Games() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		games, err := h.deps.Games.ListGames(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list games")
			failErr(w, r, err)
			return
		}
		out := make([]gameView, 0, len(games))
		for _, g := range games {
			out = append(out, gameView{ID: g.ID, Name: g.Name, Slug: g.Slug, Type: g.Type, IsActive: g.IsActive})
		}
		ok(w, r, http.StatusOK, out)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("Request completed")
		}()
		next.ServeHTTP(ww, r)
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
