// Package scheduler runs the periodic draw jobs on cron specs evaluated in
// the operating timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"draw-engine/internal/model"
	"draw-engine/internal/service"
)

// Job names.
const (
	JobGenerate       = "generate"
	JobSweep          = "sweep"
	JobPublishPending = "publish_pending"
	JobRetryFailed    = "retry_failed"
)

// ErrUnknownJob is returned by Run for a name that is not registered.
var ErrUnknownJob = errors.New("unknown job")

// Generator creates the draws of a calendar day.
type Generator interface {
	GenerateDaily(ctx context.Context, date time.Time) (*service.GenerateResult, error)
}

// Lifecycle advances due draws.
type Lifecycle interface {
	CloseDue(ctx context.Context, now time.Time) (*service.SweepResult, error)
	ProcessElapsed(ctx context.Context, now time.Time) (*service.SweepResult, error)
}

// Publisher picks up drawn and failed publications.
type Publisher interface {
	PublishPending(ctx context.Context) (*service.PublishSweepResult, error)
	RetryFailed(ctx context.Context, now time.Time) (*service.PublishSweepResult, error)
}

// Specs holds a cron spec per job. An empty spec disables the job.
type Specs struct {
	Generate       string
	Sweep          string
	PublishPending string
	RetryFailed    string
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	timeout time.Duration
	jobs    map[string]func(ctx context.Context) error
	now     func() time.Time
}

// New registers every job with a non-empty spec. Overlapping runs of the
// same job are skipped.
func New(specs Specs, loc *time.Location, timeout time.Duration, gen Generator, lc Lifecycle, pub Publisher) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	logger := cronLogger{log.Logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		loc:     loc,
		timeout: timeout,
		jobs:    make(map[string]func(ctx context.Context) error),
		now:     time.Now,
	}

	s.jobs[JobGenerate] = func(ctx context.Context) error {
		res, err := gen.GenerateDaily(ctx, model.LocalDate(s.now(), s.loc))
		if err != nil {
			return err
		}
		log.Info().
			Str("date", res.Date).
			Int("created", res.Created).
			Int("skipped", res.Skipped).
			Int("errors", len(res.Errors)).
			Msg("Daily draws generated")
		return nil
	}
	s.jobs[JobSweep] = func(ctx context.Context) error {
		now := s.now()
		closed, err := lc.CloseDue(ctx, now)
		if err != nil {
			return err
		}
		drawn, err := lc.ProcessElapsed(ctx, now)
		if err != nil {
			return err
		}
		if closed.Closed+drawn.Closed+drawn.Drawn > 0 || len(closed.Errors)+len(drawn.Errors) > 0 {
			log.Info().
				Int("closed", closed.Closed+drawn.Closed).
				Int("drawn", drawn.Drawn).
				Int("errors", len(closed.Errors)+len(drawn.Errors)).
				Msg("Draw sweep finished")
		}
		return nil
	}
	s.jobs[JobPublishPending] = func(ctx context.Context) error {
		res, err := pub.PublishPending(ctx)
		if err != nil {
			return err
		}
		if res.Published > 0 || len(res.Errors) > 0 {
			log.Info().Int("published", res.Published).Int("errors", len(res.Errors)).Msg("Pending draws published")
		}
		return nil
	}
	s.jobs[JobRetryFailed] = func(ctx context.Context) error {
		res, err := pub.RetryFailed(ctx, s.now())
		if err != nil {
			return err
		}
		if res.Published > 0 || len(res.Errors) > 0 {
			log.Info().Int("retried", res.Published).Int("errors", len(res.Errors)).Msg("Failed publications retried")
		}
		return nil
	}

	for name, spec := range map[string]string{
		JobGenerate:       specs.Generate,
		JobSweep:          specs.Sweep,
		JobPublishPending: specs.PublishPending,
		JobRetryFailed:    specs.RetryFailed,
	} {
		if spec == "" {
			continue
		}
		name := name
		if _, err := s.cron.AddFunc(spec, func() { s.runLogged(name) }); err != nil {
			return nil, fmt.Errorf("failed to schedule %s %q: %w", name, spec, err)
		}
	}
	return s, nil
}

// Jobs returns the known job names.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one job immediately.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return job(ctx)
}

func (s *Scheduler) runLogged(name string) {
	start := time.Now()
	if err := s.Run(context.Background(), name); err != nil {
		log.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
		return
	}
	log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("Scheduled job done")
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("entries", len(s.cron.Entries())).Str("timezone", s.loc.String()).Msg("Scheduler started")
}

// Stop stops the cron loop and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("Scheduler stop timed out with jobs still running")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
