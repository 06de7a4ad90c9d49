package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"draw-engine/internal/model"
	"draw-engine/internal/service"
)

// Response is the envelope of every API reply.
type Response struct {
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

func ok(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, Response{Status: status, Data: data})
}

func fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, Response{Status: status, Error: msg})
}

func validationError(w http.ResponseWriter, r *http.Request, err error) {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", e.Field()))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("field %s must match %s", e.Field(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}
	fail(w, r, http.StatusBadRequest, strings.Join(msgs, ", "))
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrDrawNotFound),
		errors.Is(err, service.ErrGameNotFound),
		errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidStateTransition),
		errors.Is(err, service.ErrConcurrentModification),
		errors.Is(err, service.ErrDuplicateDraw),
		errors.Is(err, service.ErrDrawBusy):
		return http.StatusConflict
	case errors.Is(err, service.ErrItemNotInGame),
		errors.Is(err, service.ErrNoEligibleOutcome),
		errors.Is(err, service.ErrConfigurationMissing),
		errors.Is(err, model.ErrInvalidDrawTime):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrEmergencyStop):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func failErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	fail(w, r, status, msg)
}
