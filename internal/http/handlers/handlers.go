// Package handlers exposes the REST endpoints of the marketplace API.
//
// Handlers are transport-thin: they bind and check input, resolve the
// caller's identity set by middleware.Authenticate, call application
// services, and translate results and service errors into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/http/middleware"
	"github.com/tbourn/go-marketplace-backend/internal/notify"
	"github.com/tbourn/go-marketplace-backend/internal/services"
	"github.com/tbourn/go-marketplace-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// RequestService creates requests and serves request queries.
type RequestService interface {
	Create(ctx context.Context, id domain.Identity, in services.CreateInput) (*domain.ServiceRequest, error)
	CreateIdempotent(ctx context.Context, id domain.Identity, in services.CreateInput, key string) (*domain.ServiceRequest, bool, error)
	Get(ctx context.Context, id domain.Identity, requestID int64) (*domain.ServiceRequest, error)
	List(ctx context.Context, id domain.Identity, lf services.ListFilter) (*services.Page[domain.ServiceRequest], error)
	// ListStats returns the row count and newest update of the caller's
	// listing; it feeds the list ETag.
	ListStats(ctx context.Context, id domain.Identity, status *domain.RequestStatus) (int64, *time.Time, error)
	OpenFeed(ctx context.Context, id domain.Identity, q services.FeedQuery) (*services.Page[services.FeedItem], error)
	Timeline(ctx context.Context, id domain.Identity, requestID int64) ([]services.TimelineEntry, error)
}

// LifecycleService performs status transitions.
//
// Implementations must be safe for concurrent use; at most one of several
// concurrent transitions on a request may succeed.
type LifecycleService interface {
	Claim(ctx context.Context, id domain.Identity, requestID int64, price *decimal.Decimal) (*domain.ServiceRequest, error)
	Accept(ctx context.Context, id domain.Identity, requestID int64, price *decimal.Decimal) (*domain.ServiceRequest, error)
	Start(ctx context.Context, id domain.Identity, requestID int64) (*domain.ServiceRequest, error)
	Complete(ctx context.Context, id domain.Identity, requestID int64) (*domain.ServiceRequest, error)
	Cancel(ctx context.Context, id domain.Identity, requestID int64, reason string) (*domain.ServiceRequest, error)
	AdminCancel(ctx context.Context, id domain.Identity, requestID int64, reason string) (*domain.ServiceRequest, error)
}

// RatingService records ratings on completed requests.
type RatingService interface {
	Rate(ctx context.Context, id domain.Identity, requestID int64, score int, comment string) (*domain.Rating, error)
	Received(ctx context.Context, userID int64, limit int) ([]domain.Rating, error)
}

// NotificationService serves the caller's notification inbox.
type NotificationService interface {
	List(ctx context.Context, id domain.Identity, unreadOnly bool, page, limit int) (*services.Page[domain.Notification], error)
	MarkRead(ctx context.Context, id domain.Identity, notificationID string) (*domain.Notification, error)
	SetPreference(ctx context.Context, id domain.Identity, kind string, muted bool) error
	Preferences(ctx context.Context, id domain.Identity) ([]services.Preference, error)
}

// EventStream hands out live notification subscriptions.
type EventStream interface {
	Subscribe(userID int64) *notify.Subscriber
	Unsubscribe(s *notify.Subscriber)
}

//
// Handler wiring
//

// Deps bundles the services the handlers depend on. Stream may be nil, in
// which case the SSE endpoint answers 404.
type Deps struct {
	Requests      RequestService
	Lifecycle     LifecycleService
	Ratings       RatingService
	Notifications NotificationService
	Stream        EventStream

	// Heartbeat is the SSE keep-alive interval; zero means 25s.
	Heartbeat time.Duration
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	reqSvc    RequestService
	lcSvc     LifecycleService
	rateSvc   RatingService
	notifSvc  NotificationService
	stream    EventStream
	heartbeat time.Duration
}

// New constructs Handlers bound to the given services.
func New(d Deps) *Handlers {
	hb := d.Heartbeat
	if hb <= 0 {
		hb = 25 * time.Second
	}
	return &Handlers{
		reqSvc:    d.Requests,
		lcSvc:     d.Lifecycle,
		rateSvc:   d.Ratings,
		notifSvc:  d.Notifications,
		stream:    d.Stream,
		heartbeat: hb,
	}
}

//
// Helpers
//

// identity returns the authenticated caller or aborts with 401. Routes are
// mounted behind Authenticate, so the abort only fires on miswiring.
func identity(c *gin.Context) (domain.Identity, bool) {
	id, found := middleware.IdentityFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return domain.Identity{}, false
	}
	return id, true
}

// pathID parses the :id path parameter or aborts with 400.
func pathID(c *gin.Context) (int64, bool) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// pagination reads page and limit query params. Bounds are applied by the
// services.
func pagination(c *gin.Context) (page, limit int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	limit = utils.AtoiDefault(c.Query("limit"), utils.DefaultPageSize)
	return page, limit
}
