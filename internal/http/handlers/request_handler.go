// Service request HTTP handlers.
//
// This file exposes the request resource:
//   - POST   /requests               (create, Idempotency-Key aware)
//   - GET    /requests               (role-scoped list, paginated, ETag support)
//   - GET    /requests/feed          (provider open feed)
//   - GET    /requests/{id}          (single request)
//   - GET    /requests/{id}/timeline (transition history)
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/http/middleware"
	"github.com/tbourn/go-marketplace-backend/internal/services"
)

//
// DTOs
//

// CreateRequestBody is the JSON payload for creating a service request.
type CreateRequestBody struct {
	ServiceTypeID int64            `json:"service_type_id" example:"1"`
	Title         string           `json:"title" example:"Fix the kitchen sink"`
	Description   string           `json:"description" example:"Leaking under the cabinet since Monday"`
	Address       string           `json:"address" example:"12 Ermou St, Athens"`
	Lat           *float64         `json:"lat" example:"37.9755"`
	Lng           *float64         `json:"lng" example:"23.7348"`
	ScheduledAt   *time.Time       `json:"scheduled_at"`
	PriceOffered  *decimal.Decimal `json:"price_offered" swaggertype:"string" example:"80.00"`
	// ProviderID optionally pins the request to one provider.
	ProviderID *int64 `json:"provider_id"`
}

func (b CreateRequestBody) input() services.CreateInput {
	return services.CreateInput{
		ServiceTypeID: b.ServiceTypeID,
		Title:         b.Title,
		Description:   b.Description,
		Address:       b.Address,
		Lat:           b.Lat,
		Lng:           b.Lng,
		ScheduledAt:   b.ScheduledAt,
		PriceOffered:  b.PriceOffered,
		ProviderID:    b.ProviderID,
	}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func paginationOf[T any](p *services.Page[T]) Pagination {
	return Pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      p.Total,
		TotalPages: p.Pages,
		HasNext:    p.Page < p.Pages,
	}
}

// ListRequestsResponse wraps a page of requests.
type ListRequestsResponse struct {
	Requests   []domain.ServiceRequest `json:"requests"`
	Pagination Pagination              `json:"pagination"`
}

// FeedResponse wraps a page of open requests with distances.
type FeedResponse struct {
	Requests   []services.FeedItem `json:"requests"`
	Pagination Pagination          `json:"pagination"`
}

// TimelineResponse lists a request's transitions oldest first.
type TimelineResponse struct {
	RequestID   int64                    `json:"request_id"`
	Transitions []services.TimelineEntry `json:"transitions"`
}

//
// Handlers
//

// CreateRequest godoc
// @ID          createRequest
// @Summary     Create a service request
// @Description Creates a PENDING request owned by the calling client. With an Idempotency-Key, repeating the call returns the first result and sets Idempotency-Replayed: true.
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Client-chosen retry key"  example(7b1f8e0c-create-1)
// @Param       body             body    handlers.CreateRequestBody  true  "Request payload"
//
// @Success     201  {object}  domain.ServiceRequest
// @Success     200  {object}  domain.ServiceRequest  "Replayed"
// @Header      200  {string}  Idempotency-Replayed  "true on replay"
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse "Not a client, or key owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse "Unknown service type or provider"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /requests [post]
func (h *Handlers) CreateRequest(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	key, hasKey := middleware.GetIdempotencyKey(c)
	if !hasKey {
		r, err := h.reqSvc.Create(c.Request.Context(), id, body.input())
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, http.StatusCreated, r)
		return
	}

	r, replayed, err := h.reqSvc.CreateIdempotent(c.Request.Context(), id, body.input(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	if replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, r)
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListRequests godoc
// @ID          listRequests
// @Summary     List requests (paginated)
// @Description Clients see their own requests, providers the ones assigned to them, admins all. Supports weak ETag via If-None-Match.
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       status         query   string  false "Filter by status"  Enums(PENDING, OFFERED, ACCEPTED, IN_PROGRESS, DONE, CANCELLED)
// @Param       page           query   int     false "Page number"       minimum(1) default(1)
// @Param       limit          query   int     false "Items per page"    minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListRequestsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests [get]
func (h *Handlers) ListRequests(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()

	var status *domain.RequestStatus
	if q := c.Query("status"); q != "" {
		st, err := domain.ParseStatus(q)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		status = &st
	}
	page, limit := pagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.reqSvc.ListStats(ctx, id, status); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"requests:%d:%s:%d:%d:%d:%d"`, id.UserID, statusTag(status), page, limit, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	res, err := h.reqSvc.List(ctx, id, services.ListFilter{Status: status, Page: page, Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListRequestsResponse{Requests: res.Items, Pagination: paginationOf(res)})
}

func statusTag(s *domain.RequestStatus) string {
	if s == nil {
		return "all"
	}
	return string(*s)
}

// OpenFeed godoc
// @ID          openFeed
// @Summary     Open requests near the provider
// @Description PENDING requests the calling provider could claim, within radius_km of their profile location.
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
//
// @Param       radius_km  query  number  false "Search radius in km (default 25, max 100)"
// @Param       sort       query  string  false "Ordering"  Enums(distance, created) default(distance)
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       limit      query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.FeedResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad radius or sort"
// @Failure     403  {object} handlers.ErrorResponse "Not a provider"
// @Failure     404  {object} handlers.ErrorResponse "No provider profile"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests/feed [get]
func (h *Handlers) OpenFeed(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	var radius float64
	if q := c.Query("radius_km"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "radius_km must be a number")
			return
		}
		radius = v
	}
	page, limit := pagination(c)

	res, err := h.reqSvc.OpenFeed(c.Request.Context(), id, services.FeedQuery{
		RadiusKm: radius,
		Sort:     c.Query("sort"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, FeedResponse{Requests: res.Items, Pagination: paginationOf(res)})
}

// GetRequest godoc
// @ID          getRequest
// @Summary     Get a request
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  int  true  "Request ID"
// @Success     200  {object} domain.ServiceRequest
// @Failure     400  {object} handlers.ErrorResponse "Bad id"
// @Failure     403  {object} handlers.ErrorResponse "Not visible to caller"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Router      /requests/{id} [get]
func (h *Handlers) GetRequest(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	rid, valid := pathID(c)
	if !valid {
		return
	}
	r, err := h.reqSvc.Get(c.Request.Context(), id, rid)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// Timeline godoc
// @ID          requestTimeline
// @Summary     Request transition history
// @Description Every recorded transition, oldest first, with the acting user.
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  int  true  "Request ID"
// @Success     200  {object} handlers.TimelineResponse
// @Failure     403  {object} handlers.ErrorResponse "Not visible to caller"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Router      /requests/{id}/timeline [get]
func (h *Handlers) Timeline(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	rid, valid := pathID(c)
	if !valid {
		return
	}
	entries, err := h.reqSvc.Timeline(c.Request.Context(), id, rid)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, TimelineResponse{RequestID: rid, Transitions: entries})
}
