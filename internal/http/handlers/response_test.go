package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envelopeRouter mounts fn behind a fake RequestID and a captured logger.
func envelopeRouter(logs *bytes.Buffer, fn gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	logger := zerolog.New(logs)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	r.Any("/x", fn)
	return r
}

func TestFail_Envelope(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		code    string
		wantLog bool
	}{
		{"conflict not logged", http.StatusConflict, ErrCodeInvalidTransition, false},
		{"not found not logged", http.StatusNotFound, ErrCodeNotFound, false},
		{"server error logged", http.StatusInternalServerError, ErrCodeInternal, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var logs bytes.Buffer
			r := envelopeRouter(&logs, func(c *gin.Context) {
				Fail(c, tc.status, tc.code, "msg")
			})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))

			require.Equal(t, tc.status, w.Code)
			var er ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &er))
			assert.Equal(t, ErrorResponse{RequestID: "rid-1", Code: tc.code, Message: "msg"}, er)
			assert.Equal(t, tc.wantLog, bytes.Contains(logs.Bytes(), []byte(`"level":"error"`)))
		})
	}
}

func TestSuccessHelpers(t *testing.T) {
	var logs bytes.Buffer
	r := envelopeRouter(&logs, func(c *gin.Context) {
		if c.Request.Method == http.MethodPut {
			noContent(c)
			return
		}
		ok(c, http.StatusCreated, gin.H{"id": 7, "status": "PENDING"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":7,"status":"PENDING"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
	assert.Empty(t, logs.String())
}
