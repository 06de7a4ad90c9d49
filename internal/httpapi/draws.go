package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"draw-engine/internal/model"
	"draw-engine/internal/repository"
	"draw-engine/internal/service"
)

type generateRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type createRequest struct {
	GameID string `json:"gameId" validate:"required"`
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Time   string `json:"time" validate:"required"`
}

type preselectRequest struct {
	ItemID *string `json:"itemId"`
}

type changeWinnerRequest struct {
	ItemID string `json:"itemId" validate:"required"`
}

type publishRequest struct {
	ChannelIDs []string `json:"channelIds"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type sweepResponse struct {
	CloseDue       *service.SweepResult `json:"closeDue"`
	ProcessElapsed *service.SweepResult `json:"processElapsed"`
}

// decode reads an optional JSON body into dst and validates it.
// An empty body leaves dst at its zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil && !errors.Is(err, io.EOF) {
		log.Debug().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Failed to decode request body")
		fail(w, r, http.StatusBadRequest, "failed to decode request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		validationError(w, r, err)
		return false
	}
	return true
}

// Generate creates the draws of a date (default: today in the operating timezone).
func (h *Handler) Generate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if !h.decode(w, r, &req) {
			return
		}

		date := model.LocalDate(h.now(), h.deps.Location)
		if req.Date != "" {
			date, _ = model.ParseDate(req.Date)
		}

		res, err := h.deps.Generator.GenerateDaily(r.Context(), date)
		if err != nil {
			log.Error().Err(err).Str("date", req.Date).Msg("Failed to generate draws")
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, res)
	}
}

// Sweep closes due draws and draws elapsed ones.
func (h *Handler) Sweep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := h.now()
		closed, err := h.deps.Lifecycle.CloseDue(r.Context(), now)
		if err != nil {
			log.Error().Err(err).Msg("Failed to close due draws")
			failErr(w, r, err)
			return
		}
		drawn, err := h.deps.Lifecycle.ProcessElapsed(r.Context(), now)
		if err != nil {
			log.Error().Err(err).Msg("Failed to process elapsed draws")
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, sweepResponse{CloseDue: closed, ProcessElapsed: drawn})
	}
}

// CreateManual creates a draw outside any template.
func (h *Handler) CreateManual() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if !h.decode(w, r, &req) {
			return
		}
		date, _ := model.ParseDate(req.Date)

		d, err := h.deps.Lifecycle.CreateManual(r.Context(), req.GameID, date, req.Time)
		if err != nil {
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusCreated, viewDraw(d))
	}
}

// List returns draws filtered by date, game and status.
func (h *Handler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := model.DrawFilter{GameID: q.Get("game"), Limit: queryInt(r, "limit", 200)}

		if v := q.Get("date"); v != "" {
			date, err := model.ParseDate(v)
			if err != nil {
				fail(w, r, http.StatusBadRequest, err.Error())
				return
			}
			f.DrawDate = &date
		}
		if v := q.Get("status"); v != "" {
			for _, s := range strings.Split(v, ",") {
				status := model.DrawStatus(strings.ToUpper(strings.TrimSpace(s)))
				if !status.IsValid() {
					fail(w, r, http.StatusBadRequest, "unknown status "+strconv.Quote(s))
					return
				}
				f.Statuses = append(f.Statuses, status)
			}
		}

		draws, err := h.deps.Draws.FindMany(r.Context(), f)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list draws")
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, viewDraws(draws))
	}
}

// Get returns one draw.
func (h *Handler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := h.deps.Draws.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, repository.ErrDrawNotFound) {
				err = service.ErrDrawNotFound
			}
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, viewDraw(d))
	}
}

// Publications returns the dispatch history of a draw.
func (h *Handler) Publications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pubs, err := h.deps.Publications.ListByDraw(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to list publications")
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, viewPublications(pubs))
	}
}

// Audit returns the audit trail of a draw, newest first.
func (h *Handler) Audit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := h.deps.Audit.ListByEntity(r.Context(), model.EntityDraw, chi.URLParam(r, "id"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit trail")
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, viewAudit(logs))
	}
}

// Preselect stores the operator's winner choice; no itemId means random.
func (h *Handler) Preselect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req preselectRequest
		if !h.decode(w, r, &req) {
			return
		}
		d, err := h.deps.Lifecycle.Preselect(r.Context(), chi.URLParam(r, "id"), req.ItemID)
		if err != nil {
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, viewDraw(d))
	}
}

// ChangeWinner replaces the outcome of a closed or drawn draw.
func (h *Handler) ChangeWinner() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changeWinnerRequest
		if !h.decode(w, r, &req) {
			return
		}
		d, err := h.deps.Lifecycle.ChangeWinner(r.Context(), chi.URLParam(r, "id"), req.ItemID)
		if err != nil {
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, viewDraw(d))
	}
}

// Publish fans the result out, optionally to a subset of channels.
func (h *Handler) Publish() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req publishRequest
		if !h.decode(w, r, &req) {
			return
		}
		res, err := h.deps.Publisher.Publish(r.Context(), chi.URLParam(r, "id"), req.ChannelIDs)
		if err != nil {
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, res)
	}
}

// Cancel cancels a scheduled or closed draw.
func (h *Handler) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelRequest
		if !h.decode(w, r, &req) {
			return
		}
		d, err := h.deps.Lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
		if err != nil {
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, viewDraw(d))
	}
}
