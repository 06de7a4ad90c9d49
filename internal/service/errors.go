package service

import (
	"errors"
	"fmt"

	"draw-engine/internal/repository"
)

// Draw engine errors. Callers branch on them with errors.Is.
var (
	// ErrInvalidStateTransition is returned for an illegal lifecycle edge or an
	// operator action not allowed in the draw's current status.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNoEligibleOutcome is returned when a game has no active item to select.
	ErrNoEligibleOutcome = errors.New("no eligible outcome")

	// ErrChannelDispatchFailure wraps a per-channel send error. It is recorded,
	// never returned from Publish.
	ErrChannelDispatchFailure = errors.New("channel dispatch failed")

	// ErrConcurrentModification is returned when the status guard rejected an
	// update because the draw moved underneath.
	ErrConcurrentModification = errors.New("draw modified concurrently")

	// ErrConfigurationMissing is returned when a game has no active channels.
	ErrConfigurationMissing = errors.New("configuration missing")

	ErrDrawNotFound  = errors.New("draw not found")
	ErrGameNotFound  = errors.New("game not found")
	ErrItemNotFound  = errors.New("item not found")
	ErrItemNotInGame = errors.New("item is not an active item of the draw's game")
	ErrDuplicateDraw = errors.New("a draw already exists for this game, date and time")
	ErrEmergencyStop = errors.New("emergency stop is active")
	ErrDrawBusy      = errors.New("draw is being processed")
)

// mapStoreError translates repository sentinels into service errors.
func mapStoreError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDrawNotFound):
		return ErrDrawNotFound
	case errors.Is(err, repository.ErrStaleStatus):
		return ErrConcurrentModification
	case errors.Is(err, repository.ErrItemNotFound):
		return ErrItemNotFound
	case errors.Is(err, repository.ErrGameNotFound):
		return ErrGameNotFound
	case errors.Is(err, repository.ErrDuplicateDraw):
		return ErrDuplicateDraw
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

// BatchError is one per-item failure inside a batch operation.
type BatchError struct {
	DrawID string `json:"drawId,omitempty"`
	Slot   string `json:"slot,omitempty"`
	Error  string `json:"error"`
}
