package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"draw-engine/internal/model"
	"draw-engine/internal/pkg/lock"
)

// PublisherConfig holds fan-out limits.
type PublisherConfig struct {
	Location         *time.Location
	ChannelTimeout   time.Duration
	OverallTimeout   time.Duration
	MaxParallel      int
	QueueSize        int
	Workers          int
	PendingBatch     int
	RetryMaxAttempts int
	RetryWindow      time.Duration
	LockTimeout      time.Duration
}

// ChannelResult is the outcome of one channel dispatch.
type ChannelResult struct {
	ChannelID   string            `json:"channelId"`
	ChannelName string            `json:"channelName"`
	ChannelType model.ChannelType `json:"channelType"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
}

// PublishResult lists the per-channel outcomes of one publish call.
type PublishResult struct {
	DrawID      string           `json:"drawId"`
	Status      model.DrawStatus `json:"status"`
	Republished bool             `json:"republished"`
	PerChannel  []ChannelResult  `json:"perChannel"`
}

// Failed returns the channels whose dispatch failed.
func (r *PublishResult) Failed() []ChannelResult {
	var out []ChannelResult
	for _, c := range r.PerChannel {
		if !c.Success {
			out = append(out, c)
		}
	}
	return out
}

// PublishSweepResult summarizes PublishPending and RetryFailed.
type PublishSweepResult struct {
	Published int          `json:"published"`
	Skipped   int          `json:"skipped"`
	Errors    []BatchError `json:"errors"`
	Stopped   bool         `json:"stopped,omitempty"`
}

// PublisherService fans a drawn result out to every configured channel.
type PublisherService struct {
	draws        DrawStore
	catalog      Catalog
	channels     ChannelRegistry
	publications PublicationStore
	lifecycle    *LifecycleService
	messages     MessageRenderer
	images       ImageRenderer
	system       SystemState
	notifier     Notifier
	locks        *lock.KeyLock
	limiter      *semaphore.Weighted
	cfg          PublisherConfig

	queue   chan string
	workers sync.WaitGroup
	now     func() time.Time
}

// NewPublisherService creates a new PublisherService instance.
func NewPublisherService(
	draws DrawStore,
	catalog Catalog,
	channels ChannelRegistry,
	publications PublicationStore,
	lifecycle *LifecycleService,
	messages MessageRenderer,
	images ImageRenderer,
	system SystemState,
	notifier Notifier,
	locks *lock.KeyLock,
	cfg PublisherConfig,
) *PublisherService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 15 * time.Second
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.PendingBatch <= 0 {
		cfg.PendingBatch = 10
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = cfg.OverallTimeout
	}
	return &PublisherService{
		draws:        draws,
		catalog:      catalog,
		channels:     channels,
		publications: publications,
		lifecycle:    lifecycle,
		messages:     messages,
		images:       images,
		system:       system,
		notifier:     notifier,
		locks:        locks,
		limiter:      semaphore.NewWeighted(int64(cfg.MaxParallel)),
		cfg:          cfg,
		queue:        make(chan string, cfg.QueueSize),
		now:          time.Now,
	}
}

// Publish dispatches the result of a DRAWN or PUBLISHED draw to the game's
// active channels, optionally restricted to channelFilter (channel ids).
// Every dispatch is recorded as its own Publication row; a failed channel
// never fails the call. The first publish of a DRAWN draw moves it to
// PUBLISHED; publishing a PUBLISHED draw only appends rows.
func (s *PublisherService) Publish(ctx context.Context, drawID string, channelFilter []string) (*PublishResult, error) {
	if s.system != nil {
		stop, err := s.system.EmergencyStop(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read emergency stop: %w", err)
		}
		if stop {
			return nil, ErrEmergencyStop
		}
	}

	// same key as the lifecycle operations: no override while fanning out
	var result *PublishResult
	err := s.locks.WithLockContext(ctx, drawID, s.cfg.LockTimeout, func() error {
		var err error
		result, err = s.publish(ctx, drawID, channelFilter)
		return err
	})
	if errors.Is(err, lock.ErrLockTimeout) {
		return nil, ErrDrawBusy
	}
	return result, err
}

func (s *PublisherService) publish(ctx context.Context, drawID string, channelFilter []string) (*PublishResult, error) {
	d, err := s.draws.GetByID(ctx, drawID)
	if err != nil {
		return nil, mapStoreError(err, "get draw")
	}
	if d.Status != model.StatusDrawn && d.Status != model.StatusPublished {
		return nil, fmt.Errorf("%w: cannot publish a %s draw", ErrInvalidStateTransition, d.Status)
	}
	if d.WinnerItemID == nil {
		return nil, fmt.Errorf("%w: draw %s has no winner", ErrInvalidStateTransition, d.ID)
	}

	game, err := s.catalog.Game(ctx, d.GameID)
	if err != nil {
		return nil, mapStoreError(err, "get game")
	}
	winner, err := s.catalog.Item(ctx, *d.WinnerItemID)
	if err != nil {
		return nil, mapStoreError(err, "get winner")
	}

	channels, err := s.channels.FindActiveChannelsForGame(ctx, d.GameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	channels = filterChannels(channels, channelFilter)
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no active channels for game %s", ErrConfigurationMissing, game.Name)
	}

	card := &model.ResultCard{Game: game, Draw: d, Winner: winner, Location: s.cfg.Location}
	image := s.ensureImage(ctx, card)

	result := &PublishResult{
		DrawID:      d.ID,
		Status:      d.Status,
		Republished: d.Status == model.StatusPublished,
		PerChannel:  s.fanOut(ctx, card, image, channels),
	}

	if d.Status == model.StatusDrawn {
		published, err := s.lifecycle.MarkPublished(ctx, card.Draw)
		switch {
		case err == nil:
			result.Status = published.Status
		case errors.Is(err, ErrConcurrentModification):
			current, getErr := s.draws.GetByID(ctx, d.ID)
			if getErr != nil {
				return result, mapStoreError(getErr, "get draw")
			}
			if current.Status != model.StatusPublished || !sameItem(current.WinnerItemID, d.WinnerItemID) {
				log.Warn().
					Str("draw_id", d.ID).
					Str("status", string(current.Status)).
					Str("announced_item_id", *d.WinnerItemID).
					Str("stored_item_id", optional(current.WinnerItemID)).
					Msg("Draw changed during publication")
				result.Status = current.Status
				return result, fmt.Errorf("%w: draw %s changed during publication", ErrConcurrentModification, d.ID)
			}
			log.Debug().Str("draw_id", d.ID).Msg("Draw already marked published")
			result.Status = model.StatusPublished
		default:
			return result, err
		}
	}

	failed := len(result.Failed())
	log.Info().
		Str("draw_id", d.ID).
		Int("channels", len(result.PerChannel)).
		Int("failed", failed).
		Bool("republished", result.Republished).
		Msg("Draw publication finished")

	return result, nil
}

type dispatch struct {
	index  int
	result ChannelResult
}

// fanOut dispatches to every channel in parallel. Each dispatch has its own
// timeout and a failure never cancels its siblings.
func (s *PublisherService) fanOut(ctx context.Context, card *model.ResultCard, image model.Content, channels []Channel) []ChannelResult {
	globalCtx, cancel := context.WithTimeout(ctx, s.cfg.OverallTimeout)
	defer cancel()

	// rows are written even when the fan-out budget ran out
	persistCtx := context.WithoutCancel(ctx)

	resultsChan := make(chan dispatch, len(channels))
	g, gCtx := errgroup.WithContext(globalCtx)

	for i, ch := range channels {
		g.Go(func() error {
			res := ChannelResult{ChannelID: ch.ID(), ChannelName: ch.Name(), ChannelType: ch.Type()}

			err := s.limiter.Acquire(gCtx, 1)
			if err == nil {
				err = s.dispatch(gCtx, card, image, ch)
				s.limiter.Release(1)
			}

			if err != nil {
				res.Error = err.Error()
			} else {
				res.Success = true
			}
			s.recordDispatch(persistCtx, card.Draw, res)
			resultsChan <- dispatch{index: i, result: res}
			return nil
		})
	}

	_ = g.Wait()
	close(resultsChan)

	out := make([]ChannelResult, len(channels))
	for r := range resultsChan {
		out[r.index] = r.result
	}
	return out
}

// dispatch renders and sends the content of one channel under its own timeout.
func (s *PublisherService) dispatch(ctx context.Context, card *model.ResultCard, image model.Content, ch Channel) error {
	start := time.Now()
	chCtx, cancel := context.WithTimeout(ctx, s.cfg.ChannelTimeout)
	defer cancel()

	text, err := s.messages.Message(ch.MessageTemplate(), card, ch.Name())
	if err != nil {
		return fmt.Errorf("%w: render message: %v", ErrChannelDispatchFailure, err)
	}

	content := model.Content{Text: text, ImagePath: image.ImagePath, ImageURL: image.ImageURL}
	if ch.Type().RequiresImage() && !content.HasImage() {
		return fmt.Errorf("%w: %s requires an image", ErrChannelDispatchFailure, ch.Type())
	}

	err = ch.Send(chCtx, content)
	logEvent := log.Info()
	if err != nil {
		logEvent = log.Warn().Err(err)
	}
	logEvent.
		Str("draw_id", card.Draw.ID).
		Str("channel_id", ch.ID()).
		Str("channel_type", string(ch.Type())).
		Dur("elapsed", time.Since(start)).
		Msg("Channel dispatch finished")

	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelDispatchFailure, err)
	}
	return nil
}

func (s *PublisherService) recordDispatch(ctx context.Context, d *model.Draw, res ChannelResult) {
	pub := &model.Publication{
		DrawID:      d.ID,
		ChannelID:   res.ChannelID,
		ChannelType: res.ChannelType,
		ChannelName: res.ChannelName,
		Success:     res.Success,
	}
	if !res.Success {
		msg := res.Error
		pub.Error = &msg
	}
	if err := s.publications.Append(ctx, pub); err != nil {
		log.Error().Err(err).Str("draw_id", d.ID).Str("channel_id", res.ChannelID).Msg("Failed to record publication")
	}

	ev := model.Event{
		Type:   model.EventPublicationSuccess,
		DrawID: d.ID,
		GameID: d.GameID,
		At:     s.now().UTC(),
		Payload: map[string]any{
			"channel": map[string]any{"id": res.ChannelID, "name": res.ChannelName, "type": res.ChannelType},
		},
	}
	if !res.Success {
		ev.Type = model.EventPublicationFailed
		ev.Payload["error"] = res.Error
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, ev)
	}
}

// ensureImage renders the result image once and stores its URL on the draw.
// A failed render leaves the content text-only.
func (s *PublisherService) ensureImage(ctx context.Context, card *model.ResultCard) model.Content {
	if s.images == nil {
		return model.Content{}
	}

	path, url, err := s.images.Image(ctx, card)
	if err != nil {
		log.Error().Err(err).Str("draw_id", card.Draw.ID).Msg("Failed to render result image")
		return model.Content{}
	}

	d := card.Draw
	if url != "" && (d.ImageURL == nil || *d.ImageURL != url) {
		updated, err := s.draws.Update(ctx, d.ID, d.Status, model.DrawPatch{ImageURL: &url})
		if err != nil {
			log.Warn().Err(err).Str("draw_id", d.ID).Msg("Failed to store image url")
		} else {
			card.Draw = updated
		}
	}
	return model.Content{ImagePath: path, ImageURL: url}
}

func filterChannels(channels []Channel, ids []string) []Channel {
	if len(ids) == 0 {
		return channels
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []Channel
	for _, ch := range channels {
		if _, ok := want[ch.ID()]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Enqueue schedules an asynchronous publish. It never blocks; when the queue
// is full the draw is left for the pending sweep.
func (s *PublisherService) Enqueue(drawID string) bool {
	select {
	case s.queue <- drawID:
		return true
	default:
		log.Warn().Str("draw_id", drawID).Msg("Publish queue full, leaving draw for pending sweep")
		return false
	}
}

// Start launches the publish workers. They stop when ctx is cancelled.
func (s *PublisherService) Start(ctx context.Context) {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.workers.Add(1)
		go s.worker(ctx, i)
	}
	log.Info().Int("workers", workers).Msg("Publish workers started")
}

// Wait blocks until every worker has returned.
func (s *PublisherService) Wait() {
	s.workers.Wait()
}

func (s *PublisherService) worker(ctx context.Context, id int) {
	defer s.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case drawID := <-s.queue:
			if _, err := s.Publish(ctx, drawID, nil); err != nil {
				log.Error().Err(err).Int("worker", id).Str("draw_id", drawID).Msg("Async publish failed")
			}
		}
	}
}

// PublishPending publishes DRAWN draws that were never published, oldest
// drawnAt first, at most PendingBatch per call.
func (s *PublisherService) PublishPending(ctx context.Context) (*PublishSweepResult, error) {
	result := &PublishSweepResult{Errors: []BatchError{}}
	if s.emergencyStopped(ctx) {
		result.Stopped = true
		return result, nil
	}

	pending, err := s.draws.FindMany(ctx, model.DrawFilter{
		Statuses:       []model.DrawStatus{model.StatusDrawn},
		Unpublished:    true,
		OrderByDrawnAt: true,
		Limit:          s.cfg.PendingBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find pending draws: %w", err)
	}

	for _, d := range pending {
		s.sweepOne(ctx, result, d.ID, nil)
	}

	log.Info().
		Int("published", result.Published).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("Pending publication sweep finished")
	return result, nil
}

// RetryFailed re-publishes, for PUBLISHED draws drawn within the retry
// window, the channels whose latest attempt failed and that have attempts left.
func (s *PublisherService) RetryFailed(ctx context.Context, now time.Time) (*PublishSweepResult, error) {
	result := &PublishSweepResult{Errors: []BatchError{}}
	if s.emergencyStopped(ctx) {
		result.Stopped = true
		return result, nil
	}
	if s.cfg.RetryMaxAttempts <= 1 {
		return result, nil
	}

	since := now.Add(-s.cfg.RetryWindow)
	draws, err := s.draws.FindMany(ctx, model.DrawFilter{
		Statuses:       []model.DrawStatus{model.StatusPublished},
		DrawnSince:     &since,
		OrderByDrawnAt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find published draws: %w", err)
	}

	for _, d := range draws {
		attempts, err := s.publications.AttemptsByChannel(ctx, d.ID)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{DrawID: d.ID, Error: err.Error()})
			continue
		}

		var retry []string
		for _, a := range attempts {
			if !a.LastSuccess && a.Attempts < s.cfg.RetryMaxAttempts {
				retry = append(retry, a.ChannelID)
			}
		}
		if len(retry) == 0 {
			continue
		}
		s.sweepOne(ctx, result, d.ID, retry)
	}

	log.Info().
		Int("published", result.Published).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("Publication retry sweep finished")
	return result, nil
}

func (s *PublisherService) sweepOne(ctx context.Context, result *PublishSweepResult, drawID string, channelFilter []string) {
	_, err := s.Publish(ctx, drawID, channelFilter)
	switch {
	case err == nil:
		result.Published++
	case errors.Is(err, ErrConfigurationMissing), errors.Is(err, ErrDrawBusy):
		log.Warn().Err(err).Str("draw_id", drawID).Msg("Skipping publication")
		result.Skipped++
	default:
		log.Error().Err(err).Str("draw_id", drawID).Msg("Publication failed")
		result.Errors = append(result.Errors, BatchError{DrawID: drawID, Error: err.Error()})
	}
}

func (s *PublisherService) emergencyStopped(ctx context.Context) bool {
	if s.system == nil {
		return false
	}
	stop, err := s.system.EmergencyStop(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read emergency stop, assuming off")
		return false
	}
	if stop {
		log.Warn().Msg("Emergency stop active, skipping publication sweep")
	}
	return stop
}

func sameItem(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
