// Notification HTTP handlers.
//
//   - GET  /notifications              (inbox, paginated, ?unread=true)
//   - POST /notifications/{id}/read    (mark read)
//   - GET  /notifications/preferences  (per-kind mute state)
//   - PUT  /notifications/preferences  (mute or unmute one kind)
//   - GET  /notifications/stream       (server-sent events)
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/http/middleware"
	"github.com/tbourn/go-marketplace-backend/internal/services"
)

// ListNotificationsResponse wraps a page of the caller's inbox.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

// PreferenceBody mutes or unmutes one notification kind.
type PreferenceBody struct {
	Kind  string `json:"kind" binding:"required" example:"request.started"`
	Muted bool   `json:"muted" example:"true"`
}

// PreferencesResponse lists the caller's effective preferences.
type PreferencesResponse struct {
	Preferences []services.Preference `json:"preferences"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications (paginated)
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       unread  query  bool  false "Only unread entries"
// @Param       page    query  int   false "Page number"     minimum(1) default(1)
// @Param       limit   query  int   false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListNotificationsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	unread, _ := strconv.ParseBool(c.Query("unread"))
	page, limit := pagination(c)

	res, err := h.notifSvc.List(c.Request.Context(), id, unread, page, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: res.Items, Pagination: paginationOf(res)})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Notification ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Notification
// @Failure     404  {object} handlers.ErrorResponse "Notification not found"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	n, err := h.notifSvc.MarkRead(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, n)
}

// GetPreferences godoc
// @ID          getNotificationPreferences
// @Summary     Notification preferences
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} handlers.PreferencesResponse
// @Router      /notifications/preferences [get]
func (h *Handlers) GetPreferences(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	prefs, err := h.notifSvc.Preferences(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, PreferencesResponse{Preferences: prefs})
}

// SetPreference godoc
// @ID          setNotificationPreference
// @Summary     Mute or unmute a notification kind
// @Tags        Notifications
// @Accept      json
// @Security    BearerAuth
// @Param       body  body  handlers.PreferenceBody  true  "Preference"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Unknown kind"
// @Router      /notifications/preferences [put]
func (h *Handlers) SetPreference(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	var body PreferenceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "kind required")
		return
	}
	if err := h.notifSvc.SetPreference(c.Request.Context(), id, body.Kind, body.Muted); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}

// StreamNotifications godoc
// @ID          streamNotifications
// @Summary     Live notifications (SSE)
// @Description Server-sent events: one "notification" event per delivered notification, ": ping" comments as keep-alive. Events dropped for slow consumers remain in the inbox.
// @Tags        Notifications
// @Produce     text/event-stream
// @Security    BearerAuth
// @Success     200  {string} string "event stream"
// @Failure     404  {object} handlers.ErrorResponse "Streaming disabled"
// @Router      /notifications/stream [get]
func (h *Handlers) StreamNotifications(c *gin.Context) {
	id, authed := identity(c)
	if !authed {
		return
	}
	if h.stream == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "streaming disabled")
		return
	}

	sub := h.stream.Subscribe(id.UserID)
	defer h.stream.Unsubscribe(sub)

	// c.SSEvent sets Content-Type itself.
	hdr := c.Writer.Header()
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.SSEvent("connected", gin.H{"subscriber_id": sub.ID})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			c.SSEvent("notification", ev)
			c.Writer.Flush()
			middleware.LoggerFrom(c).Debug().
				Str("notification_id", ev.ID).
				Int64("user_id", ev.UserID).
				Msg("notification streamed")
		}
	}
}
