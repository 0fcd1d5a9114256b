// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, rate limiting and admin
// authentication.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/internship-backend/internal/config"
	"github.com/tbourn/internship-backend/internal/documents"
	"github.com/tbourn/internship-backend/internal/http/handlers"
	"github.com/tbourn/internship-backend/internal/http/middleware"
	"github.com/tbourn/internship-backend/internal/ledger"
	"github.com/tbourn/internship-backend/internal/notify"
	"github.com/tbourn/internship-backend/internal/payments"
	"github.com/tbourn/internship-backend/internal/repo"
	"github.com/tbourn/internship-backend/internal/services"
)

// Deps are the process-wide collaborators the routes are built on. The
// entrypoint owns their lifecycle.
type Deps struct {
	DB       *gorm.DB
	Notifier *notify.Notifier
	Runner   *notify.Background
	Gateway  payments.Gateway     // nil disables order creation
	Resumes  handlers.ResumeStore // nil disables resume uploads
}

// Services builds the application services from deps and cfg. The scheduler
// shares the same notifier, so reminder emails and API emails are counted
// and recorded alike.
func Services(d Deps, cfg config.Config) (*services.ApplicationService, *services.WorkflowService, *services.DocumentService, *services.PaymentService) {
	var verifier *payments.Verifier
	if cfg.PaymentsEnabled() {
		verifier = payments.NewVerifier(cfg.Payment.KeySecret)
	}
	wf := services.NewWorkflowService(d.DB, ledger.NewGormStore(d.DB), d.Notifier, cfg.StrictWorkflow)
	docs := services.NewDocumentService(d.DB, documents.NewRenderer(cfg.OrganizationName), d.Runner)
	apps := services.NewApplicationService(d.DB, repo.NewDuplicateGuard(cfg.DuplicateGuard), verifier, wf, docs, d.Notifier)
	pay := services.NewPaymentService(d.DB, d.Gateway, cfg.Payment.KeyID)
	return apps, wf, docs, pay
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (documents excluded, PDFs are already compressed)
//  8. CORS and Security headers
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter on the API groups; admin routes authenticate first so
//     they are keyed by actor
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:     []string{"X-Razorpay-Signature"},
		MaskQueryParams: []string{"email"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (covers resume uploads)
	r.Use(limitBody(cfg.MaxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/documents/`, `^/metrics$`}),
	))

	// 8) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		Expose:       []string{"Content-Disposition", "ETag", middleware.HeaderIdempotencyReplayed},
	}))

	// 9) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, d.DB, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", health(d.DB))

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db
	apps, wf, docs, pay := Services(d, cfg)
	h := handlers.New(apps, wf, docs, pay, d.Resumes)
	h.IdempotencyTTL = cfg.IdempotencyTTL

	// 10) Public API, rate limited per client IP
	publicRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	api := groupWithPrefix(r, cfg.APIBasePath)
	public := api.Group("", publicRL.Handler())
	{
		public.POST("/applications", h.SubmitApplication)
		public.POST("/applications/verify", h.VerifyApplication)
		public.POST("/payments/create-order", h.CreateOrder)
		public.POST("/internships/submit-application", h.SubmitPaidApplication)
		public.GET("/documents/:kind/:applicationId", h.DownloadDocument)
		public.GET("/programs/:id/availability", h.ProgramAvailability)
	}

	// Admin API: authenticate, then rate limit per actor
	adminRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByActorOrIP())
	admin := api.Group("",
		middleware.AdminAuth(cfg.AdminJWTSecret),
		adminRL.Handler(),
		middleware.NoStore(),
	)
	{
		admin.GET("/applications", h.ListApplications)
		admin.GET("/applications/stats/overview", h.Overview)
		admin.GET("/applications/:id", h.GetApplication)
		admin.PUT("/applications/:id/status", h.UpdateStatus)
		admin.PUT("/applications/:id/notes", h.UpdateNotes)
		admin.DELETE("/applications/:id", h.DeleteApplication)
		admin.POST("/admin/applications", h.CreateApplication)
	}
}

// corsMiddleware returns the CORS chain. With no allowlist every origin is
// allowed without credentials; otherwise only listed origins are echoed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition", "ETag", middleware.HeaderIdempotencyReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// health pings the database; a failing ping answers 503 so orchestrators
// stop routing to the instance.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
