package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/tbourn/internship-backend/internal/http"
	"github.com/tbourn/internship-backend/internal/http/middleware"
	"github.com/tbourn/internship-backend/internal/observability"
	"github.com/tbourn/internship-backend/internal/payments"
	"github.com/tbourn/internship-backend/internal/sysutil"
	"github.com/tbourn/internship-backend/internal/uploads"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := sysutil.SignalContext(cmd.Context())
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app) error {
				return serve(ctx, a, !noScheduler)
			})
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not start the cron jobs in this process")
	return cmd
}

func serve(ctx context.Context, a *app, withScheduler bool) error {
	cfg := a.cfg

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	var gw payments.Gateway
	if cfg.PaymentsEnabled() {
		gw = payments.NewRazorpayGateway(cfg.Payment.KeyID, cfg.Payment.KeySecret)
	} else {
		log.Warn().Msg("payment gateway not configured; paid submissions are disabled")
	}
	resumes, err := uploads.NewDiskStore(cfg.ResumeDir)
	if err != nil {
		return fmt.Errorf("resume store: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       a.db,
		Notifier: a.notifier,
		Runner:   a.runner,
		Gateway:  gw,
		Resumes:  resumes,
	}, cfg)

	if withScheduler && cfg.Scheduler.Enabled {
		sched, closeLock, err := a.scheduler()
		if err != nil {
			return err
		}
		defer closeLock()
		if err := sched.Start(); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := sched.Stop(sctx); err != nil {
				log.Warn().Err(err).Msg("scheduler stop failed")
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(context.Context, *app) error {
				log.Info().Msg("migrations applied")
				return nil
			})
		},
	}
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send \"starts tomorrow\" reminders once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := sysutil.SignalContext(cmd.Context())
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app) error {
				sched, closeLock, err := a.scheduler()
				if err != nil {
					return err
				}
				defer closeLock()
				res, err := sched.RunOnce(ctx)
				if err != nil {
					return err
				}
				// Mail goes out on background goroutines; wait before reporting.
				a.runner.Wait()
				fmt.Fprintf(cmd.OutOrStdout(), "window %s..%s found=%d sent=%d failed=%d skipped=%t\n",
					res.From.Format(time.RFC3339), res.To.Format(time.RFC3339), res.Found, res.Sent, res.Failed, res.Skipped)
				return nil
			})
		},
	}
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired notifications and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				sched, closeLock, err := a.scheduler()
				if err != nil {
					return err
				}
				defer closeLock()
				n, err := sched.Purge(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d notifications\n", n)
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token signed with ADMIN_JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()
			if a.cfg.AdminJWTSecret == "" {
				return errors.New("ADMIN_JWT_SECRET is not set")
			}
			tok, err := middleware.SignAdminToken(a.cfg.AdminJWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "actor recorded on status changes")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
