package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"draw-engine/internal/model"
	"draw-engine/internal/pkg/lock"
)

// LifecycleConfig holds the lifecycle policy.
type LifecycleConfig struct {
	Location *time.Location
	// ClosingLeadTime closes draws this long before scheduledAt in CloseDue.
	ClosingLeadTime     time.Duration
	AvoidSameDayRepeats bool
	// PublishOnDraw hands DRAWN draws to the publisher immediately.
	PublishOnDraw bool
	LockTimeout   time.Duration
}

// SweepResult summarizes a batch pass over due draws.
type SweepResult struct {
	Closed  int          `json:"closed"`
	Drawn   int          `json:"drawn"`
	Skipped int          `json:"skipped"`
	Errors  []BatchError `json:"errors"`
	Stopped bool         `json:"stopped,omitempty"`
}

func (r *SweepResult) fail(drawID string, err error) {
	r.Errors = append(r.Errors, BatchError{DrawID: drawID, Error: err.Error()})
}

// LifecycleService advances draws through SCHEDULED -> CLOSED -> DRAWN -> PUBLISHED
// and applies operator overrides.
type LifecycleService struct {
	draws    DrawStore
	catalog  Catalog
	system   SystemState
	audit    AuditLogger
	notifier Notifier
	machine  *DrawMachine
	locks    *lock.KeyLock
	handoff  Handoff
	cfg      LifecycleConfig

	now  func() time.Time
	intn func(n int) int
}

// NewLifecycleService creates a new LifecycleService instance.
func NewLifecycleService(
	draws DrawStore,
	catalog Catalog,
	system SystemState,
	audit AuditLogger,
	notifier Notifier,
	machine *DrawMachine,
	locks *lock.KeyLock,
	cfg LifecycleConfig,
) *LifecycleService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	return &LifecycleService{
		draws:    draws,
		catalog:  catalog,
		system:   system,
		audit:    audit,
		notifier: notifier,
		machine:  machine,
		locks:    locks,
		cfg:      cfg,
		now:      time.Now,
		intn:     rand.IntN,
	}
}

// SetHandoff registers the receiver of freshly drawn draws.
func (s *LifecycleService) SetHandoff(h Handoff) {
	s.handoff = h
}

// Close closes one SCHEDULED draw, selecting a random preselection if none is set.
func (s *LifecycleService) Close(ctx context.Context, drawID string) (*model.Draw, error) {
	var out *model.Draw
	err := s.withDraw(ctx, drawID, func(d *model.Draw) error {
		closed, err := s.closeDraw(ctx, d, model.ActorOperator)
		out = closed
		return err
	})
	return out, err
}

// Draw confirms the preselection of one CLOSED draw as its winner.
func (s *LifecycleService) Draw(ctx context.Context, drawID string) (*model.Draw, error) {
	var out *model.Draw
	err := s.withDraw(ctx, drawID, func(d *model.Draw) error {
		drawn, err := s.drawDraw(ctx, d, model.ActorOperator)
		out = drawn
		return err
	})
	return out, err
}

// CloseDue closes every SCHEDULED draw whose scheduledAt minus the closing
// lead time has passed. It does not draw them.
func (s *LifecycleService) CloseDue(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{Errors: []BatchError{}}
	if s.stopped(ctx) {
		result.Stopped = true
		return result, nil
	}

	cutoff := now.Add(s.cfg.ClosingLeadTime)
	due, err := s.draws.FindMany(ctx, model.DrawFilter{
		Statuses:    []model.DrawStatus{model.StatusScheduled},
		ScheduledTo: &cutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find due draws: %w", err)
	}

	for _, d := range due {
		if _, err := s.closeDraw(ctx, d, model.ActorSystem); err != nil {
			s.recordSweepError(result, d, err)
			continue
		}
		result.Closed++
	}

	log.Info().
		Int("closed", result.Closed).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("Close sweep finished")

	return result, nil
}

// ProcessElapsed closes and draws every SCHEDULED draw with scheduledAt <= now
// and draws every CLOSED draw with scheduledAt <= now. Per-draw failures are
// collected and never abort the sweep.
func (s *LifecycleService) ProcessElapsed(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{Errors: []BatchError{}}
	if s.stopped(ctx) {
		result.Stopped = true
		return result, nil
	}

	due, err := s.draws.FindMany(ctx, model.DrawFilter{
		Statuses:    []model.DrawStatus{model.StatusScheduled, model.StatusClosed},
		ScheduledTo: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find elapsed draws: %w", err)
	}

	for _, d := range due {
		if d.Status == model.StatusScheduled {
			closed, err := s.closeDraw(ctx, d, model.ActorSystem)
			if err != nil {
				s.recordSweepError(result, d, err)
				continue
			}
			result.Closed++
			d = closed
		}

		if _, err := s.drawDraw(ctx, d, model.ActorSystem); err != nil {
			s.recordSweepError(result, d, err)
			continue
		}
		result.Drawn++
	}

	log.Info().
		Int("closed", result.Closed).
		Int("drawn", result.Drawn).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("Elapsed sweep finished")

	return result, nil
}

// recordSweepError counts lost optimistic races as skips; anything else is a batch error.
func (s *LifecycleService) recordSweepError(result *SweepResult, d *model.Draw, err error) {
	if errors.Is(err, ErrConcurrentModification) {
		log.Debug().Str("draw_id", d.ID).Msg("Draw advanced by another sweep")
		result.Skipped++
		return
	}
	log.Error().Err(err).Str("draw_id", d.ID).Str("status", string(d.Status)).Msg("Failed to advance draw")
	result.fail(d.ID, err)
}

// Preselect sets the item a draw will close with. A nil or empty itemID
// selects one at random. Legal only while SCHEDULED or CLOSED.
func (s *LifecycleService) Preselect(ctx context.Context, drawID string, itemID *string) (*model.Draw, error) {
	var out *model.Draw
	err := s.withDraw(ctx, drawID, func(d *model.Draw) error {
		if !d.Status.AllowsPreselect() {
			return fmt.Errorf("%w: cannot preselect a %s draw", ErrInvalidStateTransition, d.Status)
		}

		outcome, err := s.resolve(ctx, d, model.OutcomeFromOptional(itemID))
		if err != nil {
			return err
		}

		updated, err := s.draws.Update(ctx, d.ID, d.Status, model.DrawPatch{
			PreselectedItemID:  &outcome.ItemID,
			PreselectionSource: &outcome.Source,
		})
		if err != nil {
			return mapStoreError(err, "preselect draw")
		}

		s.record(ctx, model.AuditDrawPreselected, d.ID, model.ActorOperator, map[string]any{
			"previousItemId": optional(d.PreselectedItemID),
			"itemId":         outcome.ItemID,
			"source":         outcome.Source,
		})
		log.Info().Str("draw_id", d.ID).Str("outcome", outcome.String()).Msg("Draw preselected")

		out = updated
		return nil
	})
	return out, err
}

// ChangeWinner overrides the outcome of a CLOSED or DRAWN draw. On a CLOSED
// draw it replaces the preselection; on a DRAWN draw it replaces both the
// preselection and the winner. The prior values are audited.
func (s *LifecycleService) ChangeWinner(ctx context.Context, drawID, itemID string) (*model.Draw, error) {
	if itemID == "" {
		return nil, ErrItemNotFound
	}
	var out *model.Draw
	err := s.withDraw(ctx, drawID, func(d *model.Draw) error {
		if !d.Status.AllowsWinnerChange() {
			return fmt.Errorf("%w: cannot change the winner of a %s draw", ErrInvalidStateTransition, d.Status)
		}

		outcome, err := s.resolve(ctx, d, model.ManualOutcome(itemID))
		if err != nil {
			return err
		}

		patch := model.DrawPatch{
			PreselectedItemID:  &outcome.ItemID,
			PreselectionSource: &outcome.Source,
		}
		if d.Status == model.StatusDrawn {
			patch.WinnerItemID = &outcome.ItemID
		}

		updated, err := s.draws.Update(ctx, d.ID, d.Status, patch)
		if err != nil {
			return mapStoreError(err, "change winner")
		}

		s.record(ctx, model.AuditWinnerChanged, d.ID, model.ActorOperator, map[string]any{
			"status":                d.Status,
			"previousPreselectedId": optional(d.PreselectedItemID),
			"previousWinnerItemId":  optional(d.WinnerItemID),
			"newItemId":             outcome.ItemID,
		})
		log.Info().
			Str("draw_id", d.ID).
			Str("status", string(d.Status)).
			Str("item_id", outcome.ItemID).
			Msg("Draw winner changed")

		if updated.Status == model.StatusDrawn {
			s.emitWinner(ctx, updated)
		}

		out = updated
		return nil
	})
	return out, err
}

// Cancel cancels a SCHEDULED or CLOSED draw, storing reason in notes.
func (s *LifecycleService) Cancel(ctx context.Context, drawID, reason string) (*model.Draw, error) {
	var out *model.Draw
	err := s.withDraw(ctx, drawID, func(d *model.Draw) error {
		next, err := s.machine.Next(d.Status, EventCancel)
		if err != nil {
			return err
		}

		notes := reason
		updated, err := s.draws.Update(ctx, d.ID, d.Status, model.DrawPatch{Status: &next, Notes: &notes})
		if err != nil {
			return mapStoreError(err, "cancel draw")
		}

		s.record(ctx, model.AuditDrawCancelled, d.ID, model.ActorOperator, map[string]any{
			"from":   d.Status,
			"reason": reason,
		})
		s.emit(ctx, model.Event{
			Type:    model.EventDrawCancelled,
			DrawID:  d.ID,
			GameID:  d.GameID,
			Payload: map[string]any{"reason": reason},
		})
		log.Info().Str("draw_id", d.ID).Str("reason", reason).Msg("Draw cancelled")

		out = updated
		return nil
	})
	return out, err
}

// CreateManual creates a draw without a template. The (game, date, time)
// slot must be free.
func (s *LifecycleService) CreateManual(ctx context.Context, gameID string, date time.Time, drawTime string) (*model.Draw, error) {
	canonical, err := model.NormalizeDrawTime(drawTime)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.Game(ctx, gameID); err != nil {
		return nil, mapStoreError(err, "get game")
	}

	date = model.CalendarDate(date.Year(), date.Month(), date.Day())
	at, err := model.ScheduledInstant(date, canonical, s.cfg.Location)
	if err != nil {
		return nil, err
	}

	existing, err := s.draws.FindMany(ctx, model.DrawFilter{GameID: gameID, DrawDate: &date, DrawTime: canonical})
	if err != nil {
		return nil, fmt.Errorf("failed to check slot: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrDuplicateDraw
	}

	notes := "manual"
	created, err := s.draws.Create(ctx, &model.Draw{
		GameID:      gameID,
		DrawDate:    date,
		DrawTime:    canonical,
		ScheduledAt: at,
		Status:      model.StatusScheduled,
		Notes:       &notes,
	})
	if err != nil {
		return nil, mapStoreError(err, "create draw")
	}

	s.record(ctx, model.AuditDrawCreated, created.ID, model.ActorOperator, map[string]any{
		"gameId":   gameID,
		"drawDate": created.DrawDateString(),
		"drawTime": canonical,
	})
	return created, nil
}

// MarkPublished moves a DRAWN draw to PUBLISHED. The update only applies
// while the stored winner is still the one d carries, so a result changed
// during the fan-out is never marked as announced.
func (s *LifecycleService) MarkPublished(ctx context.Context, d *model.Draw) (*model.Draw, error) {
	next, err := s.machine.Next(d.Status, EventPublish)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updated, err := s.draws.Update(ctx, d.ID, d.Status, model.DrawPatch{
		Status:         &next,
		PublishedAt:    &now,
		IfWinnerItemID: d.WinnerItemID,
	})
	if err != nil {
		return nil, mapStoreError(err, "mark draw published")
	}

	s.record(ctx, model.AuditDrawPublished, d.ID, model.ActorSystem, map[string]any{
		"publishedAt": now,
	})
	payload := map[string]any{"publishedAt": now}
	if updated.ImageURL != nil {
		payload["imageUrl"] = *updated.ImageURL
	}
	s.emit(ctx, model.Event{
		Type:    model.EventDrawPublished,
		DrawID:  d.ID,
		GameID:  d.GameID,
		Payload: payload,
	})
	return updated, nil
}

// closeDraw applies SCHEDULED -> CLOSED to a loaded draw.
func (s *LifecycleService) closeDraw(ctx context.Context, d *model.Draw, actor string) (*model.Draw, error) {
	next, err := s.machine.Next(d.Status, EventClose)
	if err != nil {
		return nil, err
	}

	outcome := model.RandomOutcome()
	if d.PreselectedItemID != nil && *d.PreselectedItemID != "" {
		outcome = model.InheritedOutcome(*d.PreselectedItemID)
	}
	outcome, err = s.resolve(ctx, d, outcome)
	if err != nil {
		return nil, err
	}
	// an earlier preselection keeps the source it was made with
	if outcome.Source == model.OutcomeInherited && d.PreselectionSource != nil {
		outcome.Source = *d.PreselectionSource
	}

	now := s.now().UTC()
	closed, err := s.draws.Update(ctx, d.ID, d.Status, model.DrawPatch{
		Status:             &next,
		PreselectedItemID:  &outcome.ItemID,
		PreselectionSource: &outcome.Source,
		ClosedAt:           &now,
	})
	if err != nil {
		return nil, mapStoreError(err, "close draw")
	}

	s.record(ctx, model.AuditDrawClosed, d.ID, actor, map[string]any{
		"preselectedItemId": outcome.ItemID,
		"source":            outcome.Source,
	})

	item, _ := s.catalog.Item(ctx, outcome.ItemID)
	s.emit(ctx, model.Event{
		Type:   model.EventDrawClosed,
		DrawID: d.ID,
		GameID: d.GameID,
		Payload: map[string]any{
			"preselectedItem": model.RefOf(item),
			"closedAt":        now,
		},
	})
	log.Info().Str("draw_id", d.ID).Str("outcome", outcome.String()).Msg("Draw closed")

	return closed, nil
}

// drawDraw applies CLOSED -> DRAWN: the preselection becomes the winner.
func (s *LifecycleService) drawDraw(ctx context.Context, d *model.Draw, actor string) (*model.Draw, error) {
	next, err := s.machine.Next(d.Status, EventDraw)
	if err != nil {
		return nil, err
	}

	// a CLOSED draw always carries a preselection unless it was edited out of band
	outcome := model.RandomOutcome()
	if d.PreselectedItemID != nil && *d.PreselectedItemID != "" {
		outcome = model.InheritedOutcome(*d.PreselectedItemID)
	}
	outcome, err = s.resolve(ctx, d, outcome)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if d.ClosedAt != nil && now.Before(*d.ClosedAt) {
		now = *d.ClosedAt
	}
	patch := model.DrawPatch{
		Status:       &next,
		WinnerItemID: &outcome.ItemID,
		DrawnAt:      &now,
	}
	if outcome.Source == model.OutcomeRandom {
		patch.PreselectedItemID = &outcome.ItemID
		patch.PreselectionSource = &outcome.Source
	}

	drawn, err := s.draws.Update(ctx, d.ID, d.Status, patch)
	if err != nil {
		return nil, mapStoreError(err, "draw")
	}

	s.record(ctx, model.AuditDrawExecuted, d.ID, actor, map[string]any{
		"winnerItemId": outcome.ItemID,
	})
	s.emitWinner(ctx, drawn)
	log.Info().Str("draw_id", d.ID).Str("winner_item_id", outcome.ItemID).Msg("Draw executed")

	if s.cfg.PublishOnDraw && s.handoff != nil {
		s.handoff.Enqueue(drawn.ID)
	}
	return drawn, nil
}

// resolve turns an outcome into a concrete active item of the draw's game.
func (s *LifecycleService) resolve(ctx context.Context, d *model.Draw, o model.Outcome) (model.Outcome, error) {
	if o.IsResolved() {
		item, err := s.catalog.Item(ctx, o.ItemID)
		if err != nil {
			return o, mapStoreError(err, "get item")
		}
		if item.GameID != d.GameID || !item.IsActive {
			return o, fmt.Errorf("%w: %s", ErrItemNotInGame, o.ItemID)
		}
		return o, nil
	}

	items, err := s.catalog.ActiveItems(ctx, d.GameID)
	if err != nil {
		return o, fmt.Errorf("failed to list items: %w", err)
	}
	if len(items) == 0 {
		return o, fmt.Errorf("%w: game %s has no active items", ErrNoEligibleOutcome, d.GameID)
	}

	candidates := items
	if s.cfg.AvoidSameDayRepeats {
		candidates = s.excludeUsed(ctx, d, items)
	}

	picked := candidates[s.intn(len(candidates))]
	return model.Outcome{Source: model.OutcomeRandom, ItemID: picked.ID}, nil
}

// excludeUsed drops items already preselected on other draws of the same
// game and day, falling back to the full set when every item is used.
func (s *LifecycleService) excludeUsed(ctx context.Context, d *model.Draw, items []*model.GameItem) []*model.GameItem {
	used, err := s.draws.UsedItemsOn(ctx, d.GameID, d.DrawDate, d.ID)
	if err != nil {
		log.Warn().Err(err).Str("draw_id", d.ID).Msg("Failed to load same-day items, using full set")
		return items
	}
	if len(used) == 0 {
		return items
	}

	seen := make(map[string]struct{}, len(used))
	for _, id := range used {
		seen[id] = struct{}{}
	}
	var free []*model.GameItem
	for _, it := range items {
		if _, ok := seen[it.ID]; !ok {
			free = append(free, it)
		}
	}
	if len(free) == 0 {
		return items
	}
	return free
}

// withDraw loads a draw under its per-draw lock and runs fn.
func (s *LifecycleService) withDraw(ctx context.Context, drawID string, fn func(d *model.Draw) error) error {
	err := s.locks.WithLockContext(ctx, drawID, s.cfg.LockTimeout, func() error {
		d, err := s.draws.GetByID(ctx, drawID)
		if err != nil {
			return mapStoreError(err, "get draw")
		}
		return fn(d)
	})
	if errors.Is(err, lock.ErrLockTimeout) {
		return ErrDrawBusy
	}
	return err
}

func (s *LifecycleService) stopped(ctx context.Context) bool {
	if s.system == nil {
		return false
	}
	stop, err := s.system.EmergencyStop(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read emergency stop, assuming off")
		return false
	}
	if stop {
		log.Warn().Msg("Emergency stop active, skipping sweep")
	}
	return stop
}

func (s *LifecycleService) emitWinner(ctx context.Context, d *model.Draw) {
	item, _ := s.catalog.Item(ctx, optional(d.WinnerItemID))
	s.emit(ctx, model.Event{
		Type:   model.EventWinnerSelected,
		DrawID: d.ID,
		GameID: d.GameID,
		Payload: map[string]any{
			"winnerItem": model.RefOf(item),
			"drawnAt":    d.DrawnAt,
		},
	})
}

func (s *LifecycleService) emit(ctx context.Context, ev model.Event) {
	if s.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}
	s.notifier.Notify(ctx, ev)
}

func (s *LifecycleService) record(ctx context.Context, action, drawID, actor string, changes map[string]any) {
	recordAudit(ctx, s.audit, action, model.EntityDraw, drawID, actor, changes)
}

// recordAudit writes an audit entry. Failures are logged, not returned.
func recordAudit(ctx context.Context, audit AuditLogger, action, entity, entityID, actor string, changes map[string]any) {
	if audit == nil {
		return
	}
	entry := &model.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Changes:  changes,
		Actor:    actor,
	}
	if err := audit.Record(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", action).Str("entity_id", entityID).Msg("Failed to record audit log")
	}
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
