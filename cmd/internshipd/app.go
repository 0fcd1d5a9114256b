package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/internship-backend/internal/config"
	"github.com/tbourn/internship-backend/internal/notify"
	"github.com/tbourn/internship-backend/internal/repo"
	"github.com/tbourn/internship-backend/internal/scheduler"
	"github.com/tbourn/internship-backend/internal/sysutil"
)

// app is the process-wide state shared by the subcommands.
type app struct {
	cfg      config.Config
	db       *gorm.DB
	runner   *notify.Background
	notifier *notify.Notifier
	sink     *notify.GormSink
}

// bootstrap loads .env and the environment, configures logging and opens
// the database with migrations applied.
func bootstrap() (*app, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	sysutil.SetupLogging(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, "internship-backend"),
		Version: Version,
	})

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	runner := notify.NewBackground(notify.DefaultTaskTimeout)
	sink := notify.NewGormSink(db, cfg.NotificationTTL)
	return &app{
		cfg:      cfg,
		db:       db,
		runner:   runner,
		sink:     sink,
		notifier: notify.NewNotifier(notify.NewMailer(cfg.SMTP), sink, runner, cfg.OrganizationName),
	}, nil
}

// scheduler builds the cron scheduler. A Redis lock is used when REDIS_URL
// is set; the returned close func releases it.
func (a *app) scheduler() (*scheduler.Scheduler, func(), error) {
	var (
		locker  scheduler.Locker = scheduler.NoopLocker{}
		closeFn                  = func() {}
	)
	if url := a.cfg.Scheduler.RedisURL; url != "" {
		rl, err := scheduler.NewRedisLocker(url)
		if err != nil {
			return nil, nil, fmt.Errorf("redis locker: %w", err)
		}
		locker = rl
		closeFn = func() {
			if err := rl.Close(); err != nil {
				log.Warn().Err(err).Msg("redis close failed")
			}
		}
	}
	s := scheduler.New(a.db, a.notifier, a.sink, locker, scheduler.Options{
		ReminderSpec: a.cfg.Scheduler.ReminderSpec,
		PurgeSpec:    a.cfg.Scheduler.PurgeSpec,
		LockPrefix:   a.cfg.Scheduler.LockKeyPrefix,
		LockTTL:      a.cfg.Scheduler.LockExpiration,
		SweepTimeout: a.cfg.Scheduler.SweepTimeout,
	})
	return s, closeFn, nil
}

// close drains background mail and closes the database.
func (a *app) close() {
	done := make(chan struct{})
	go func() {
		a.runner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(notify.DefaultTaskTimeout):
		log.Warn().Msg("background tasks still running at exit")
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// withApp bootstraps, runs fn and tears down.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
