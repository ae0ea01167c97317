package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-marketplace-backend/internal/auth"
	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

func authRouter(opts AuthOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Authenticate(opts))
	r.GET("/me", func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		ctxID, _ := auth.IdentityFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"user_id":  id.UserID,
			"role":     id.Role,
			"ctx_user": ctxID.UserID,
			"key":      c.GetString("userID"),
		})
	})
	return r
}

func TestAuthenticate_Bearer(t *testing.T) {
	v := auth.NewVerifier("s3cret")
	tok, err := v.Issue(domain.Identity{UserID: 12, Role: domain.RoleProvider}, time.Minute)
	require.NoError(t, err)

	r := authRouter(AuthOptions{Verifier: v})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(12), body["user_id"])
	assert.Equal(t, "PROVIDER", body["role"])
	assert.Equal(t, float64(12), body["ctx_user"])
	assert.Equal(t, "12", body["key"])
}

func TestAuthenticate_Rejections(t *testing.T) {
	v := auth.NewVerifier("s3cret")
	other, err := auth.NewVerifier("other").Issue(domain.Identity{UserID: 1, Role: domain.RoleClient}, time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name    string
		opts    AuthOptions
		headers map[string]string
	}{
		{"no credentials", AuthOptions{Verifier: v}, nil},
		{"wrong scheme", AuthOptions{Verifier: v}, map[string]string{"Authorization": "Basic abc"}},
		{"foreign signature", AuthOptions{Verifier: v}, map[string]string{"Authorization": "Bearer " + other}},
		{"bearer without verifier", AuthOptions{AllowHeaderIdentity: true}, map[string]string{"Authorization": "Bearer x"}},
		{"headers disabled", AuthOptions{Verifier: v}, map[string]string{HeaderUserID: "1", HeaderUserRole: "CLIENT"}},
		{"bad role header", AuthOptions{AllowHeaderIdentity: true}, map[string]string{HeaderUserID: "1", HeaderUserRole: "ROOT"}},
		{"bad id header", AuthOptions{AllowHeaderIdentity: true}, map[string]string{HeaderUserID: "abc", HeaderUserRole: "CLIENT"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := authRouter(tc.opts)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			for k, val := range tc.headers {
				req.Header.Set(k, val)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusUnauthorized, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body["code"])
		})
	}
}

func TestAuthenticate_HeaderIdentity(t *testing.T) {
	r := authRouter(AuthOptions{AllowHeaderIdentity: true})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "99")
	req.Header.Set(HeaderUserRole, "admin")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"ADMIN"`)
}

func TestIdentityFrom_WrongType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := IdentityFrom(c)
	assert.False(t, ok)

	c.Set(ctxKeyIdentity, "not an identity")
	_, ok = IdentityFrom(c)
	assert.False(t, ok)
}
