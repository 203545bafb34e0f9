package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeRes(t *testing.T, w *httptest.ResponseRecorder) app.Res {
	t.Helper()
	var res app.Res
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestIdentityAuthToken(t *testing.T) {
	tm := app.NewTokenManager(app.TokenConfig{SecretKey: "k", Portable: true})
	r := gin.New()
	r.Use(IdentityAuthToken(tm))
	r.GET("/who", func(c *gin.Context) {
		c.String(http.StatusOK, app.GetOwner(c))
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, code.ErrorNotUserAuthToken.Code(), decodeRes(t, w).Code)
	})

	t.Run("invalid", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/who", nil)
		req.Header.Set("Authorization", "Bearer nope")
		r.ServeHTTP(w, req)
		assert.Equal(t, code.ErrorInvalidUserAuthToken.Code(), decodeRes(t, w).Code)
	})

	t.Run("valid", func(t *testing.T) {
		token, err := tm.Generate("alice")
		require.NoError(t, err)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/who", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alice", w.Body.String())
	})
}

func TestRateLimiter(t *testing.T) {
	l := limiter.NewMethodLimiter().AddBuckets(limiter.BucketRule{
		Key: "/api", FillInterval: time.Hour, Capacity: 1, Quantum: 1,
	})
	r := gin.New()
	r.Use(RateLimiter(l))
	r.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/free", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	for i := 0; i < 3; i++ {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/free", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRecoveryAndRouteNotFound(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware(""), RecoveryWithLogger(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })
	r.NoRoute(RouteNotFound("/api", []string{"GET /api/health"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	res := decodeRes(t, w)
	assert.False(t, res.Status)
	assert.Equal(t, code.ErrorServerInternal.Code(), res.Code)
	assert.Equal(t, "kaboom", res.Details)
	assert.NotEmpty(t, w.Header().Get(DefaultTraceIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	res = decodeRes(t, w)
	assert.Equal(t, code.ErrorRouteNotFound.Code(), res.Code)
	assert.Equal(t, "GET /nowhere", res.Details)
	assert.Nil(t, res.Data, "routes are only listed under the API prefix")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/records", nil))
	res = decodeRes(t, w)
	assert.Equal(t, code.ErrorRouteNotFound.Code(), res.Code)
	assert.Equal(t, []interface{}{"GET /api/health"}, res.Data)
}

func TestRequestDeadline(t *testing.T) {
	r := gin.New()
	r.GET("/slow", RequestDeadline(20*time.Millisecond), func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", RequestDeadline(time.Second), func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		c.String(http.StatusOK, "ok")
	})
	r.GET("/off", RequestDeadline(0), func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.False(t, ok)
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	res := decodeRes(t, w)
	assert.Equal(t, code.ErrorRequestTimeout.Code(), res.Code)
	assert.Equal(t, "20ms", res.Details)

	for _, path := range []string{"/fast", "/off"} {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "ok", w.Body.String(), path)
	}
}

func TestServerInfo(t *testing.T) {
	r := gin.New()
	r.Use(ServerInfo("Onyx", "1.2.3"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "Onyx", w.Header().Get(ServerNameHeader))
	assert.Equal(t, "1.2.3", w.Header().Get(ServerVersionHeader))

	r = gin.New()
	r.Use(ServerInfo("", ""))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	_, ok := w.Header()[ServerVersionHeader]
	assert.False(t, ok)
}

func TestTraceMiddleware_ReusesHeader(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware("X-Req"))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c.Request.Context()))
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Req", "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get("X-Req"))
}
