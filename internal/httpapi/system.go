package httpapi

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"draw-engine/internal/model"
	"draw-engine/internal/repository"
)

type emergencyStopRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type pauseRequest struct {
	GameID    string `json:"gameId" validate:"required"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason"`
}

// EmergencyStop reports the emergency stop switch.
func (h *Handler) EmergencyStop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		on, err := h.deps.System.EmergencyStop(r.Context())
		if err != nil {
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, map[string]bool{"enabled": on})
	}
}

// SetEmergencyStop turns the emergency stop on or off.
func (h *Handler) SetEmergencyStop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emergencyStopRequest
		if !h.decode(w, r, &req) {
			return
		}
		if err := h.deps.System.Set(r.Context(), repository.KeyEmergencyStop, strconv.FormatBool(*req.Enabled)); err != nil {
			log.Error().Err(err).Msg("Failed to set emergency stop")
			failErr(w, r, err)
			return
		}
		log.Warn().Bool("enabled", *req.Enabled).Msg("Emergency stop switched")
		ok(w, r, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
	}
}

// CreatePause suspends generation for a game over a date range.
func (h *Handler) CreatePause() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pauseRequest
		if !h.decode(w, r, &req) {
			return
		}
		start, _ := model.ParseDate(req.StartDate)
		end, _ := model.ParseDate(req.EndDate)
		if end.Before(start) {
			fail(w, r, http.StatusBadRequest, "endDate is before startDate")
			return
		}

		p := &model.DrawPause{GameID: req.GameID, StartDate: start, EndDate: end, IsActive: true}
		if req.Reason != "" {
			p.Reason = &req.Reason
		}
		if err := h.deps.System.CreatePause(r.Context(), p); err != nil {
			log.Error().Err(err).Str("game_id", req.GameID).Msg("Failed to create pause")
			failErr(w, r, err)
			return
		}
		ok(w, r, http.StatusCreated, map[string]string{"id": p.ID})
	}
}
