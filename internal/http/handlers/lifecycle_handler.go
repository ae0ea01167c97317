// Lifecycle HTTP handlers.
//
// Each endpoint performs one status transition and returns the updated
// request:
//   - POST /requests/{id}/claim        (provider, PENDING -> OFFERED)
//   - POST /requests/{id}/accept       (client, OFFERED -> ACCEPTED)
//   - POST /requests/{id}/start        (provider, ACCEPTED -> IN_PROGRESS)
//   - POST /requests/{id}/complete     (provider, IN_PROGRESS -> DONE)
//   - POST /requests/{id}/cancel       (client or assigned provider)
//   - POST /admin/requests/{id}/cancel (admin, any non-terminal state)
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// PriceBody carries an optional price for claim and accept.
type PriceBody struct {
	Price *decimal.Decimal `json:"price" swaggertype:"string" example:"95.50"`
}

// CancelBody carries an optional cancellation reason.
type CancelBody struct {
	Reason string `json:"reason" example:"found someone else"`
}

// bindOptional decodes a JSON body when one is present. An empty body is
// accepted as the zero value.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

type transitionFunc func(ctx context.Context, id domain.Identity, requestID int64) (*domain.ServiceRequest, error)

// transition runs fn for the caller and the :id request.
func (h *Handlers) transition(c *gin.Context, fn transitionFunc) {
	id, authed := identity(c)
	if !authed {
		return
	}
	rid, valid := pathID(c)
	if !valid {
		return
	}
	r, err := fn(c.Request.Context(), id, rid)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// ClaimRequest godoc
// @ID          claimRequest
// @Summary     Claim a pending request
// @Description The calling provider offers to do the job, optionally with a price. Re-claiming an OFFERED request by the same provider updates the price.
// @Tags        Lifecycle
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  int  true  "Request ID"
// @Param       body  body  handlers.PriceBody  false  "Offered price"
// @Success     200  {object} domain.ServiceRequest
// @Failure     400  {object} handlers.ErrorResponse "Bad price"
// @Failure     403  {object} handlers.ErrorResponse "Not allowed"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Failure     409  {object} handlers.ErrorResponse "Already claimed or wrong state"
// @Router      /requests/{id}/claim [post]
func (h *Handlers) ClaimRequest(c *gin.Context) {
	var body PriceBody
	if !bindOptional(c, &body) {
		return
	}
	h.transition(c, func(ctx context.Context, id domain.Identity, rid int64) (*domain.ServiceRequest, error) {
		return h.lcSvc.Claim(ctx, id, rid, body.Price)
	})
}

// AcceptRequest godoc
// @ID          acceptRequest
// @Summary     Accept an offer
// @Description The owning client accepts the provider's offer. Without a price the offered price becomes the agreed one.
// @Tags        Lifecycle
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  int  true  "Request ID"
// @Param       body  body  handlers.PriceBody  false  "Agreed price"
// @Success     200  {object} domain.ServiceRequest
// @Failure     400  {object} handlers.ErrorResponse "No price available"
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     409  {object} handlers.ErrorResponse "Wrong state"
// @Router      /requests/{id}/accept [post]
func (h *Handlers) AcceptRequest(c *gin.Context) {
	var body PriceBody
	if !bindOptional(c, &body) {
		return
	}
	h.transition(c, func(ctx context.Context, id domain.Identity, rid int64) (*domain.ServiceRequest, error) {
		return h.lcSvc.Accept(ctx, id, rid, body.Price)
	})
}

// StartRequest godoc
// @ID          startRequest
// @Summary     Start work
// @Tags        Lifecycle
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  int  true  "Request ID"
// @Success     200  {object} domain.ServiceRequest
// @Failure     403  {object} handlers.ErrorResponse "Not the assigned provider"
// @Failure     409  {object} handlers.ErrorResponse "Wrong state"
// @Router      /requests/{id}/start [post]
func (h *Handlers) StartRequest(c *gin.Context) {
	h.transition(c, h.lcSvc.Start)
}

// CompleteRequest godoc
// @ID          completeRequest
// @Summary     Complete work
// @Tags        Lifecycle
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  int  true  "Request ID"
// @Success     200  {object} domain.ServiceRequest
// @Failure     403  {object} handlers.ErrorResponse "Not the assigned provider"
// @Failure     409  {object} handlers.ErrorResponse "Wrong state"
// @Router      /requests/{id}/complete [post]
func (h *Handlers) CompleteRequest(c *gin.Context) {
	h.transition(c, h.lcSvc.Complete)
}

// CancelRequest godoc
// @ID          cancelRequest
// @Summary     Cancel a request
// @Description The owning client may cancel before work starts; the assigned provider may withdraw from OFFERED or ACCEPTED.
// @Tags        Lifecycle
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  int  true  "Request ID"
// @Param       body  body  handlers.CancelBody  false  "Reason"
// @Success     200  {object} domain.ServiceRequest
// @Failure     403  {object} handlers.ErrorResponse "Not a party"
// @Failure     409  {object} handlers.ErrorResponse "Wrong state"
// @Router      /requests/{id}/cancel [post]
func (h *Handlers) CancelRequest(c *gin.Context) {
	var body CancelBody
	if !bindOptional(c, &body) {
		return
	}
	h.transition(c, func(ctx context.Context, id domain.Identity, rid int64) (*domain.ServiceRequest, error) {
		return h.lcSvc.Cancel(ctx, id, rid, body.Reason)
	})
}

// AdminCancelRequest godoc
// @ID          adminCancelRequest
// @Summary     Cancel a request as administrator
// @Description Cancels any non-terminal request. Both parties are notified.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  int  true  "Request ID"
// @Param       body  body  handlers.CancelBody  false  "Reason"
// @Success     200  {object} domain.ServiceRequest
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Failure     409  {object} handlers.ErrorResponse "Already terminal"
// @Router      /admin/requests/{id}/cancel [post]
func (h *Handlers) AdminCancelRequest(c *gin.Context) {
	var body CancelBody
	if !bindOptional(c, &body) {
		return
	}
	h.transition(c, func(ctx context.Context, id domain.Identity, rid int64) (*domain.ServiceRequest, error) {
		return h.lcSvc.AdminCancel(ctx, id, rid, body.Reason)
	})
}
