// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-marketplace-backend/docs"
	"github.com/tbourn/go-marketplace-backend/internal/auth"
	"github.com/tbourn/go-marketplace-backend/internal/config"
	"github.com/tbourn/go-marketplace-backend/internal/http/handlers"
	"github.com/tbourn/go-marketplace-backend/internal/http/middleware"
	"github.com/tbourn/go-marketplace-backend/internal/notify"
	"github.com/tbourn/go-marketplace-backend/internal/services"
)

// streamPath is the SSE route relative to the API base path.
const streamPath = "/notifications/stream"

// Deps are the process-wide collaborators the routes are built on.
type Deps struct {
	DB  *gorm.DB
	IDs *snowflake.Node
	// Hub serves live notification streams. Nil disables the SSE endpoint.
	Hub *notify.Hub
	// Notifier receives committed transitions. When nil and Hub is set, a
	// Dispatcher publishing straight to Hub is used.
	Notifier services.Notifier
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS, security headers, gzip
//
// and on the API group:
//  8. Authenticate: resolve the caller
//  9. Idempotency validator (needs the caller; before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user, bypass on replay)
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) error {
	if d.DB == nil || d.IDs == nil {
		return errors.New("httpapi: DB and IDs are required")
	}
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	stream := joinPath(apiBase, streamPath)

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics(stream))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID",
		middleware.HeaderUserID, middleware.HeaderUserRole, middleware.HeaderIdempotencyKey,
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
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
			ExposeHeaders:    exposeHeaders,
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

	// Compression; an SSE stream must reach the client unbuffered.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{stream, "/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← db/notifier
	notifier := d.Notifier
	if notifier == nil && d.Hub != nil {
		notifier = notify.NewDispatcher(d.DB, d.Hub)
	}
	reqSvc := services.NewRequestService(d.DB, d.IDs)
	if cfg.Feed.DefaultRadiusKm > 0 {
		reqSvc.FeedDefaultRadiusKm = cfg.Feed.DefaultRadiusKm
	}
	if cfg.Feed.MaxRadiusKm > 0 {
		reqSvc.FeedMaxRadiusKm = cfg.Feed.MaxRadiusKm
	}
	deps := handlers.Deps{
		Requests:      reqSvc,
		Lifecycle:     services.NewLifecycleService(d.DB, notifier),
		Ratings:       &services.RatingService{DB: d.DB},
		Notifications: &services.NotificationService{DB: d.DB},
	}
	if d.Hub != nil {
		deps.Stream = d.Hub
	}
	h := handlers.New(deps)

	var verifier middleware.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.Auth.JWTSecret)
	}
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	// Public API
	api := groupWithPrefix(r, apiBase)
	api.Use(
		middleware.Authenticate(middleware.AuthOptions{
			Verifier:            verifier,
			AllowHeaderIdentity: cfg.Auth.AllowHeaderIdentity,
		}),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, reqSvc.KeyUsed),
		rl.Handler(),
	)
	{
		// Requests
		api.POST("/requests", h.CreateRequest)
		api.GET("/requests", h.ListRequests)
		api.GET("/requests/feed", h.OpenFeed)
		api.GET("/requests/:id", h.GetRequest)
		api.GET("/requests/:id/timeline", h.Timeline)

		// Lifecycle
		api.POST("/requests/:id/claim", h.ClaimRequest)
		api.POST("/requests/:id/accept", h.AcceptRequest)
		api.POST("/requests/:id/start", h.StartRequest)
		api.POST("/requests/:id/complete", h.CompleteRequest)
		api.POST("/requests/:id/cancel", h.CancelRequest)
		api.POST("/admin/requests/:id/cancel", h.AdminCancelRequest)

		// Ratings
		api.POST("/requests/:id/rating", h.RateRequest)
		api.GET("/users/:id/ratings", h.UserRatings)

		// Notifications
		api.GET("/notifications", h.ListNotifications)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)
		api.GET("/notifications/preferences", h.GetPreferences)
		api.PUT("/notifications/preferences", h.SetPreference)
		api.GET(streamPath, h.StreamNotifications)
	}
	return nil
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

// joinPath appends p to the base path, treating "/" (or empty) as root.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
