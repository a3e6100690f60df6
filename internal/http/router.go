// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-import-backend/internal/chatguru"
	"github.com/tbourn/go-chat-import-backend/internal/config"
	"github.com/tbourn/go-chat-import-backend/internal/http/handlers"
	"github.com/tbourn/go-chat-import-backend/internal/http/middleware"
	"github.com/tbourn/go-chat-import-backend/internal/services"
)

// maxUploadBytes caps multipart spreadsheet uploads.
const maxUploadBytes = 10 << 20

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per workspace/IP; authenticated cron callers bypass)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, client chatguru.Client, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			middleware.HeaderAdminSecret,
			"Authorization",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (spreadsheets can be a few MiB)
	r.Use(limitBody(maxUploadBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per workspace/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByWorkspaceOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderWorkspaceHash, middleware.HeaderAdminSecret,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/client
	wsSvc := services.NewWorkspaceService(db, client, cfg.UsageLimit)
	uploadSvc := services.NewUploadService(db, log.Logger, wsSvc)
	machine := &services.ItemMachine{
		DB:            db,
		Client:        client,
		Log:           log.Logger,
		DefaultServer: cfg.DefaultServer,
	}
	agg := &services.Aggregator{DB: db, Log: log.Logger}
	scheduler := services.NewScheduler(db, machine, agg, log.Logger, cfg.Scheduler)
	cleanupSvc := &services.CleanupService{
		DB:            db,
		Log:           log.Logger,
		RetentionDays: cfg.RetentionDays,
	}
	adminSvc := services.NewAdminService(db)

	h := handlers.New(wsSvc, uploadSvc, scheduler, cleanupSvc, adminSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Credentials
		api.POST("/credentials/check", h.CheckCredentials)

		// Uploads (workspace-scoped)
		api.POST("/uploads", h.CreateUpload)
		api.GET("/uploads", h.ListUploads)
		api.GET("/uploads/template", h.DownloadTemplate)
		api.GET("/uploads/:id", h.GetUpload)
		api.POST("/uploads/:id/cancel", h.CancelUpload)
		api.POST("/uploads/:id/retry", h.RetryUpload)
		api.GET("/uploads/:id/failures", h.DownloadFailures)

		// Scheduled triggers (cron secret)
		cron := api.Group("", middleware.CronAuth(cfg.CronSecret))
		{
			// Hosted cron services differ on the verb they issue, so the
			// tick trigger answers both.
			cron.GET("/tick", h.RunTick)
			cron.POST("/tick", h.RunTick)
			cron.POST("/cleanup/daily", h.RunCleanup)
		}

		// Operator API (admin secret; listings compressed)
		admin := api.Group("/admin", middleware.AdminAuth(cfg.AdminSecret))
		{
			admin.POST("/auth", h.AdminAuthCheck)
			admin.GET("/dashboard", h.AdminDashboard)

			lists := admin.Group("", gzip.Gzip(gzip.DefaultCompression))
			{
				lists.GET("/workspaces", h.AdminWorkspaces)
				lists.GET("/uploads", h.AdminUploads)
				lists.GET("/items", h.AdminItems)
				lists.GET("/logs", h.AdminLogs)
			}
		}
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
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
