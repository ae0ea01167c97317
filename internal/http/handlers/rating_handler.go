// Rating HTTP handlers.
//
//   - POST /requests/{id}/rating (client or provider of a DONE request)
//   - GET  /users/{id}/ratings   (most recent ratings a user received)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/utils"
)

// RateRequestBody is the JSON payload for rating a completed request.
type RateRequestBody struct {
	// Score is 1..5.
	Score   int    `json:"score" binding:"required" example:"5"`
	Comment string `json:"comment" example:"On time and tidy"`
}

// RatingsResponse lists ratings received by a user.
type RatingsResponse struct {
	UserID  int64           `json:"user_id"`
	Ratings []domain.Rating `json:"ratings"`
}

// RateRequest godoc
// @ID          rateRequest
// @Summary     Rate the counterparty of a completed request
// @Tags        Ratings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  int  true  "Request ID"
// @Param       body  body  handlers.RateRequestBody  true  "Score and comment"
// @Success     201  {object} domain.Rating
// @Failure     400  {object} handlers.ErrorResponse "Score out of range"
// @Failure     403  {object} handlers.ErrorResponse "Not a party of the request"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Failure     409  {object} handlers.ErrorResponse "Not completed, or already rated"
// @Router      /requests/{id}/rating [post]
func (h *Handlers) RateRequest(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	rid, valid := pathID(c)
	if !valid {
		return
	}
	var body RateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "score required")
		return
	}
	r, err := h.rateSvc.Rate(c.Request.Context(), id, rid, body.Score, body.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// UserRatings godoc
// @ID          userRatings
// @Summary     Ratings received by a user
// @Tags        Ratings
// @Produce     json
// @Security    BearerAuth
// @Param       id     path   int  true   "User ID"
// @Param       limit  query  int  false  "Maximum entries"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.RatingsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad id"
// @Router      /users/{id}/ratings [get]
func (h *Handlers) UserRatings(c *gin.Context) {
	if _, authed := identity(c); !authed {
		return
	}
	uid, valid := pathID(c)
	if !valid {
		return
	}
	_, limit, _ := utils.Paginate(1, utils.AtoiDefault(c.Query("limit"), utils.DefaultPageSize))
	items, err := h.rateSvc.Received(c.Request.Context(), uid, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []domain.Rating{}
	}
	ok(c, http.StatusOK, RatingsResponse{UserID: uid, Ratings: items})
}
