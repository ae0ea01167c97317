package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-marketplace-backend/internal/config"
	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/http/middleware"
	"github.com/tbourn/go-marketplace-backend/internal/notify"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

const (
	clientID   = 1
	providerID = 10
	adminID    = 99
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	seed := []any{
		&domain.User{ID: clientID, Name: "Cleo", Role: domain.RoleClient},
		&domain.User{ID: providerID, Name: "Pat", Role: domain.RoleProvider},
		&domain.User{ID: adminID, Name: "Ada", Role: domain.RoleAdmin},
		&domain.ServiceType{ID: 1, Name: "Plumbing", Active: true},
		&domain.ProviderServiceType{ProviderID: providerID, ServiceTypeID: 1},
		&domain.ProviderProfile{UserID: providerID, Lat: 37.9838, Lng: 23.7275},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}
	return db
}

func testConfig(base string) config.Config {
	return config.Config{
		APIBasePath: base,
		RateRPS:     1000,
		RateBurst:   100,
		Auth:        config.AuthConfig{AllowHeaderIdentity: true},
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	db := newTestDB(t)
	r := gin.New()
	if err := RegisterRoutes(r, Deps{DB: db, IDs: node, Hub: notify.NewHub(8)}, cfg); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return r, db
}

// call performs a request as (user, role); user 0 sends no identity.
func call(r *gin.Engine, method, path string, user int64, role string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != 0 {
		req.Header.Set(middleware.HeaderUserID, strconv.FormatInt(user, 10))
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeRequest(t *testing.T, w *httptest.ResponseRecorder) domain.ServiceRequest {
	t.Helper()
	var sr domain.ServiceRequest
	if err := json.Unmarshal(w.Body.Bytes(), &sr); err != nil {
		t.Fatalf("decode request: %v (%s)", err, w.Body.String())
	}
	return sr
}

func TestRegisterRoutes_RequiresDeps(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if err := RegisterRoutes(gin.New(), Deps{}, testConfig("/api/v1")); err == nil {
		t.Fatalf("expected error without DB and IDs")
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, testConfig("/api/v1"))

	// /health works
	w := call(r, http.MethodGet, "/health", 0, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	// /metrics is wired
	w = call(r, http.MethodGet, "/metrics", 0, "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = call(r, http.MethodGet, "/nope", 0, "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = call(r, http.MethodPost, "/health", 0, "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// Swagger disabled by default.
	w = call(r, http.MethodGet, "/swagger/index.html", 0, "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig("/api/v2")
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestRouter(t, cfg)

	w := call(r, http.MethodGet, "/health", 0, "", nil, "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = call(r, http.MethodGet, "/health", 0, "", nil, "Origin", "http://evil.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "http://evil.example" {
		t.Fatalf("unexpected ACAO for foreign origin")
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig("/api/v1")
	cfg.SwaggerEnabled = true
	r, _ := newTestRouter(t, cfg)

	w := call(r, http.MethodGet, "/swagger/doc.json", 0, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("/requests/{id}/claim")) {
		t.Fatalf("swagger doc missing lifecycle routes")
	}
}

func TestRegisterRoutes_APIRequiresIdentity(t *testing.T) {
	r, _ := newTestRouter(t, testConfig("/api/v1"))

	w := call(r, http.MethodGet, "/api/v1/requests", 0, "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list expected 401, got %d", w.Code)
	}

	cfg := testConfig("/api/v1")
	cfg.Auth.AllowHeaderIdentity = false
	r, _ = newTestRouter(t, cfg)
	w = call(r, http.MethodGet, "/api/v1/requests", clientID, "client", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("header identity disabled expected 401, got %d", w.Code)
	}
}

// End-to-end: create → claim → accept → start → complete → rate, through
// the real middleware stack, services, and SQLite.
func TestRegisterRoutes_LifecycleFlow(t *testing.T) {
	r, db := newTestRouter(t, testConfig("/api/v1"))
	const base = "/api/v1"

	lat, lng := 37.99, 23.73
	create := map[string]any{
		"service_type_id": 1,
		"title":           "Fix the sink",
		"lat":             lat,
		"lng":             lng,
		"price_offered":   "80.00",
	}

	w := call(r, http.MethodPost, base+"/requests", clientID, "client", create, middleware.HeaderIdempotencyKey, "create-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	sr := decodeRequest(t, w)
	if sr.Status != domain.StatusPending || sr.ClientID != clientID {
		t.Fatalf("unexpected created request: %+v", sr)
	}

	// Same key again replays the first result.
	w = call(r, http.MethodPost, base+"/requests", clientID, "client", create, middleware.HeaderIdempotencyKey, "create-1")
	if w.Code != http.StatusOK {
		t.Fatalf("replay = %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get(middleware.HeaderIdempotencyReplayed); got != "true" {
		t.Fatalf("expected replay header, got %q", got)
	}
	if again := decodeRequest(t, w); again.ID != sr.ID {
		t.Fatalf("replay returned %d, want %d", again.ID, sr.ID)
	}

	// The provider sees it in the feed.
	w = call(r, http.MethodGet, base+"/requests/feed", providerID, "provider", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(strconv.FormatInt(sr.ID, 10))) {
		t.Fatalf("feed = %d %s", w.Code, w.Body.String())
	}

	path := fmt.Sprintf("%s/requests/%d", base, sr.ID)

	// A client cannot claim.
	w = call(r, http.MethodPost, path+"/claim", clientID, "client", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("client claim expected 403, got %d", w.Code)
	}

	steps := []struct {
		action string
		user   int64
		role   string
		body   any
		want   domain.RequestStatus
	}{
		{"claim", providerID, "provider", map[string]string{"price": "95.50"}, domain.StatusOffered},
		{"accept", clientID, "client", nil, domain.StatusAccepted},
		{"start", providerID, "provider", nil, domain.StatusInProgress},
		{"complete", providerID, "provider", nil, domain.StatusDone},
	}
	for _, s := range steps {
		w = call(r, http.MethodPost, path+"/"+s.action, s.user, s.role, s.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s = %d %s", s.action, w.Code, w.Body.String())
		}
		if got := decodeRequest(t, w).Status; got != s.want {
			t.Fatalf("%s: status %s, want %s", s.action, got, s.want)
		}
	}

	// Terminal: cancelling a DONE request is a conflict.
	w = call(r, http.MethodPost, path+"/cancel", clientID, "client", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("cancel after done expected 409, got %d", w.Code)
	}

	var back domain.ServiceRequest
	if err := db.First(&back, "id = ?", sr.ID).Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if !back.PriceAgreed.Valid || !back.PriceAgreed.Decimal.Equal(decimal.RequireFromString("95.50")) {
		t.Fatalf("agreed price = %+v", back.PriceAgreed)
	}

	// Timeline lists the four transitions.
	w = call(r, http.MethodGet, path+"/timeline", clientID, "client", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("timeline = %d", w.Code)
	}
	var tl struct {
		Transitions []json.RawMessage `json:"transitions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tl); err != nil || len(tl.Transitions) != 4 {
		t.Fatalf("timeline entries = %d (%v)", len(tl.Transitions), err)
	}

	// Ratings: one per party, duplicates rejected.
	w = call(r, http.MethodPost, path+"/rating", clientID, "client", map[string]any{"score": 5, "comment": "great"})
	if w.Code != http.StatusCreated {
		t.Fatalf("rate = %d %s", w.Code, w.Body.String())
	}
	w = call(r, http.MethodPost, path+"/rating", clientID, "client", map[string]any{"score": 4})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate rate expected 409, got %d", w.Code)
	}
	w = call(r, http.MethodGet, fmt.Sprintf("%s/users/%d/ratings", base, providerID), clientID, "client", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"score":5`)) {
		t.Fatalf("ratings = %d %s", w.Code, w.Body.String())
	}

	// The client was notified about offer, start, and completion.
	w = call(r, http.MethodGet, base+"/notifications", clientID, "client", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("notifications = %d", w.Code)
	}
	var inbox struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &inbox); err != nil {
		t.Fatalf("decode inbox: %v", err)
	}
	if len(inbox.Notifications) == 0 {
		t.Fatalf("expected client notifications")
	}
}

func TestRegisterRoutes_AdminCancel(t *testing.T) {
	r, _ := newTestRouter(t, testConfig("/api/v1"))

	w := call(r, http.MethodPost, "/api/v1/requests", clientID, "client", map[string]any{"service_type_id": 1, "title": "Paint fence"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	sr := decodeRequest(t, w)
	path := fmt.Sprintf("/api/v1/admin/requests/%d/cancel", sr.ID)

	w = call(r, http.MethodPost, path, clientID, "client", map[string]string{"reason": "nope"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin cancel expected 403, got %d", w.Code)
	}
	w = call(r, http.MethodPost, path, adminID, "admin", map[string]string{"reason": "spam"})
	if w.Code != http.StatusOK || decodeRequest(t, w).Status != domain.StatusCancelled {
		t.Fatalf("admin cancel = %d %s", w.Code, w.Body.String())
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func Test_joinPath(t *testing.T) {
	cases := []struct{ base, p, want string }{
		{"", "/x", "/x"},
		{"/", "/x", "/x"},
		{"/api/v1", "/notifications/stream", "/api/v1/notifications/stream"},
	}
	for _, tc := range cases {
		if got := joinPath(tc.base, tc.p); got != tc.want {
			t.Fatalf("joinPath(%q,%q)=%q want %q", tc.base, tc.p, got, tc.want)
		}
	}
}

// A request traverses otel, request id, logging, security headers, and gzip.
func TestPipeline_Smoke(t *testing.T) {
	cfg := testConfig("/api/v1")
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	r, _ := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("security headers missing, got %q", got)
	}
}
