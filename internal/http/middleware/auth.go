// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Authenticate, which resolves the caller's identity
// from an Authorization bearer token (or, in trusted deployments, from
// X-User-ID / X-User-Role headers) and stores it for handlers, the rate
// limiter, and the request logger.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/auth"
	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// Identity headers accepted when header identity is enabled.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const ctxKeyIdentity = "identity"

// TokenVerifier validates a bearer token into an identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// Verifier checks bearer tokens. Nil disables token authentication.
	Verifier TokenVerifier
	// AllowHeaderIdentity accepts X-User-ID / X-User-Role when no bearer
	// token is present.
	AllowHeaderIdentity bool
}

// Authenticate rejects requests without a valid identity with 401.
//
// On success the identity is available through IdentityFrom, the request
// context carries it (auth.IdentityFrom), and "userID" is set for the rate
// limiter and access log.
func Authenticate(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolveIdentity(c, opts)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    err.Error(),
			})
			return
		}

		c.Set(ctxKeyIdentity, id)
		c.Set("userID", strconv.FormatInt(id.UserID, 10))
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func resolveIdentity(c *gin.Context, opts AuthOptions) (domain.Identity, error) {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return domain.Identity{}, auth.ErrInvalidToken
		}
		if opts.Verifier == nil {
			return domain.Identity{}, auth.ErrInvalidToken
		}
		return opts.Verifier.Verify(token)
	}
	if opts.AllowHeaderIdentity {
		return auth.FromHeaders(c.GetHeader(HeaderUserID), c.GetHeader(HeaderUserRole))
	}
	return domain.Identity{}, auth.ErrMissingToken
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}
