// Package repository provides PostgreSQL-backed stores for the draw engine.
package repository

import "errors"

// Common errors for repository operations.
var (
	ErrDrawNotFound     = errors.New("draw not found")
	ErrGameNotFound     = errors.New("game not found")
	ErrItemNotFound     = errors.New("game item not found")
	ErrTemplateNotFound = errors.New("draw template not found")
	ErrChannelNotFound  = errors.New("channel not found")

	// ErrDuplicateDraw is returned when a draw already occupies the (game, date, time) slot.
	ErrDuplicateDraw = errors.New("draw slot already exists")

	// ErrStaleStatus is returned when a status-guarded update finds the draw
	// in a different status than expected.
	ErrStaleStatus = errors.New("draw status changed concurrently")
)
