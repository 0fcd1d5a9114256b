// Package scheduler runs the recurring background jobs: the daily
// "internship starts tomorrow" reminder sweep and the hourly purge of expired
// admin notifications.
//
// The Scheduler is an explicit lifecycle component. It is started once by the
// serve command and stopped on shutdown; a second Start fails. Running more
// than one process still runs more than one cron, so the sweep takes an
// optional per-day lock (Redis SETNX) before sending anything.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/observability"
	"github.com/tbourn/internship-backend/internal/repo"
)

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler: already running")

// Reminder sends the "starts tomorrow" email for one application.
type Reminder interface {
	SendReminder(ctx context.Context, app *domain.Application) error
}

// Purger deletes expired notifications.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Options are the cron specs and timings. Empty specs disable a job.
type Options struct {
	ReminderSpec string
	PurgeSpec    string
	LockPrefix   string
	LockTTL      time.Duration
	SweepTimeout time.Duration
}

// SweepResult summarizes one reminder run.
type SweepResult struct {
	From    time.Time
	To      time.Time
	Found   int
	Sent    int
	Failed  int
	Skipped bool // another instance already holds the day's lock
}

// Scheduler owns the cron runner.
type Scheduler struct {
	DB        *gorm.DB
	Reminders Reminder
	Purger    Purger
	Locker    Locker
	Options   Options

	// TEST SEAM
	Now func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New returns a stopped Scheduler. A nil locker disables the day lock.
func New(db *gorm.DB, reminders Reminder, purger Purger, locker Locker, opts Options) *Scheduler {
	if locker == nil {
		locker = NoopLocker{}
	}
	if opts.SweepTimeout <= 0 {
		opts.SweepTimeout = 4 * time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 26 * time.Hour
	}
	return &Scheduler{
		DB:        db,
		Reminders: reminders,
		Purger:    purger,
		Locker:    locker,
		Options:   opts,
		Now:       time.Now,
	}
}

// Window returns the UTC calendar day after now as [from, to).
func Window(now time.Time) (from, to time.Time) {
	from = now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	return from, from.Add(24 * time.Hour)
}

// Sweep sends a reminder to every selected application whose program starts
// in the window after now. Individual send failures are logged and counted;
// only a failed lookup returns an error.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	from, to := Window(now)
	res := SweepResult{From: from, To: to}

	apps, err := repo.ListSelectedStartingBetween(ctx, s.DB, from, to)
	if err != nil {
		return res, err
	}
	res.Found = len(apps)
	for i := range apps {
		app := &apps[i]
		if err := s.Reminders.SendReminder(ctx, app); err != nil {
			res.Failed++
			log.Warn().Err(err).Str("application_id", app.ID).Str("code", app.Code).Msg("reminder not sent")
			continue
		}
		res.Sent++
	}
	return res, nil
}

// RunOnce takes the day lock and sweeps. It is what the cron job calls, and
// what the remind command runs by hand.
func (s *Scheduler) RunOnce(ctx context.Context) (SweepResult, error) {
	now := s.now()
	from, to := Window(now)

	key := s.Options.LockPrefix + from.Format("2006-01-02")
	ok, err := s.Locker.Acquire(ctx, key, s.Options.LockTTL)
	switch {
	case err != nil:
		// Sending twice beats not sending at all.
		log.Warn().Err(err).Str("key", key).Msg("reminder lock unavailable, sweeping anyway")
	case !ok:
		observability.ReminderSweeps.WithLabelValues("skipped").Inc()
		log.Info().Str("key", key).Msg("reminder sweep already done for this window")
		return SweepResult{From: from, To: to, Skipped: true}, nil
	}

	res, err := s.Sweep(ctx, now)
	if err != nil {
		observability.ReminderSweeps.WithLabelValues("error").Inc()
		log.Error().Err(err).Time("from", from).Msg("reminder sweep failed")
		return res, err
	}
	observability.ReminderSweeps.WithLabelValues("ran").Inc()
	log.Info().
		Time("from", res.From).
		Int("found", res.Found).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Msg("reminder sweep finished")
	return res, nil
}

// Purge deletes expired notifications.
func (s *Scheduler) Purge(ctx context.Context) (int64, error) {
	if s.Purger == nil {
		return 0, nil
	}
	n, err := s.Purger.PurgeExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("notification purge failed")
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("expired notifications purged")
	}
	return n, nil
}

// Start registers the jobs and starts the cron runner in UTC. Overlapping runs
// of the same job are skipped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrAlreadyRunning
	}

	cl := cronLogger{}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if spec := s.Options.ReminderSpec; spec != "" {
		if _, err := c.AddFunc(spec, s.job("reminders", func(ctx context.Context) error {
			_, err := s.RunOnce(ctx)
			return err
		})); err != nil {
			return err
		}
	}
	if spec := s.Options.PurgeSpec; spec != "" && s.Purger != nil {
		if _, err := c.AddFunc(spec, s.job("purge", func(ctx context.Context) error {
			_, err := s.Purge(ctx)
			return err
		})); err != nil {
			return err
		}
	}
	c.Start()
	s.cron = c
	log.Info().
		Str("reminder_spec", s.Options.ReminderSpec).
		Str("purge_spec", s.Options.PurgeSpec).
		Msg("scheduler started")
	return nil
}

// Stop halts the runner and waits for running jobs or ctx, whichever ends
// first. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *Scheduler) job(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.Options.SweepTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
		}
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// cronLogger adapts cron's logger interface to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
