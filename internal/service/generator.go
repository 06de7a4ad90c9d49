package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"draw-engine/internal/model"
)

// GenerateResult summarizes one generation run.
type GenerateResult struct {
	Date    string       `json:"date"`
	Created int          `json:"created"`
	Skipped int          `json:"skipped"`
	Paused  int          `json:"paused"`
	Errors  []BatchError `json:"errors"`
	Stopped bool         `json:"stopped,omitempty"`
}

// GeneratorService expands active templates into concrete draws.
type GeneratorService struct {
	templates TemplateStore
	draws     DrawStore
	system    SystemState
	audit     AuditLogger
	notifier  Notifier
	location  *time.Location
}

// NewGeneratorService creates a new GeneratorService instance.
func NewGeneratorService(
	templates TemplateStore,
	draws DrawStore,
	system SystemState,
	audit AuditLogger,
	notifier Notifier,
	location *time.Location,
) *GeneratorService {
	if location == nil {
		location = time.UTC
	}
	return &GeneratorService{
		templates: templates,
		draws:     draws,
		system:    system,
		audit:     audit,
		notifier:  notifier,
		location:  location,
	}
}

// GenerateDaily generates the draws of a calendar date.
func (s *GeneratorService) GenerateDaily(ctx context.Context, date time.Time) (*GenerateResult, error) {
	date = model.CalendarDate(date.Year(), date.Month(), date.Day())
	return s.Generate(ctx, date, model.ISOWeekday(date))
}

// Generate creates one SCHEDULED draw per (template, time) for every active
// template running on dayOfWeek. Slots that already have a draw are skipped,
// so repeated runs for the same date create nothing new. A failing slot is
// recorded and generation continues.
func (s *GeneratorService) Generate(ctx context.Context, targetDate time.Time, dayOfWeek int) (*GenerateResult, error) {
	targetDate = model.CalendarDate(targetDate.Year(), targetDate.Month(), targetDate.Day())
	result := &GenerateResult{Date: targetDate.Format(model.DateLayout), Errors: []BatchError{}}

	if s.system != nil {
		stop, err := s.system.EmergencyStop(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read emergency stop: %w", err)
		}
		if stop {
			log.Warn().Str("date", result.Date).Msg("Emergency stop active, skipping draw generation")
			result.Stopped = true
			return result, nil
		}
	}

	templates, err := s.templates.FindActiveForDay(ctx, dayOfWeek)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	paused := make(map[string]bool)
	for _, tmpl := range templates {
		if !tmpl.IsActive || !tmpl.RunsOn(dayOfWeek) {
			continue
		}

		isPaused, known := paused[tmpl.GameID]
		if !known && s.system != nil {
			isPaused, err = s.system.IsPaused(ctx, tmpl.GameID, targetDate)
			if err != nil {
				log.Error().Err(err).Str("game_id", tmpl.GameID).Msg("Failed to check draw pause")
				result.Errors = append(result.Errors, BatchError{Slot: tmpl.GameID, Error: err.Error()})
				continue
			}
			paused[tmpl.GameID] = isPaused
		}
		if isPaused {
			result.Paused += len(tmpl.DrawTimes)
			result.Skipped += len(tmpl.DrawTimes)
			continue
		}

		for _, raw := range tmpl.DrawTimes {
			created, err := s.generateSlot(ctx, tmpl, targetDate, raw)
			slot := fmt.Sprintf("%s %s %s", tmpl.GameID, result.Date, raw)
			switch {
			case err != nil:
				log.Error().Err(err).Str("slot", slot).Msg("Failed to create draw")
				result.Errors = append(result.Errors, BatchError{Slot: slot, Error: err.Error()})
			case created:
				result.Created++
			default:
				result.Skipped++
			}
		}
	}

	log.Info().
		Str("date", result.Date).
		Int("templates", len(templates)).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("Draw generation finished")

	if result.Created > 0 {
		recordAudit(ctx, s.audit, model.AuditDrawsGenerated, model.EntityDraws, result.Date, model.ActorSystem, map[string]any{
			"date":    result.Date,
			"created": result.Created,
			"skipped": result.Skipped,
		})
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, model.Event{
			Type: model.EventDrawsGenerated,
			At:   time.Now().UTC(),
			Payload: map[string]any{
				"date":    result.Date,
				"created": result.Created,
				"skipped": result.Skipped,
			},
		})
	}

	return result, nil
}

// generateSlot creates the draw of one (template, time) unless it exists.
// Existence is an exact match on (game, scheduledAt).
func (s *GeneratorService) generateSlot(ctx context.Context, tmpl *model.DrawTemplate, date time.Time, raw string) (bool, error) {
	drawTime, err := model.NormalizeDrawTime(raw)
	if err != nil {
		return false, err
	}
	at, err := model.ScheduledInstant(date, drawTime, s.location)
	if err != nil {
		return false, err
	}

	existing, err := s.draws.FindMany(ctx, model.DrawFilter{
		GameID:        tmpl.GameID,
		ScheduledFrom: &at,
		ScheduledTo:   &at,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check existing draw: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	templateID := tmpl.ID
	_, err = s.draws.Create(ctx, &model.Draw{
		GameID:      tmpl.GameID,
		TemplateID:  &templateID,
		DrawDate:    date,
		DrawTime:    drawTime,
		ScheduledAt: at,
		Status:      model.StatusScheduled,
	})
	if err != nil {
		err = mapStoreError(err, "create draw")
		// the slot constraint caught a concurrent run
		if errors.Is(err, ErrDuplicateDraw) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
