package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dfryer1193/css3blog/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(metricsManager *metrics.Manager) *gin.Engine {
	engine := gin.New()
	engine.Use(RequestMetrics(metricsManager))
	engine.Use(gin.CustomRecovery(HandlePanics(metricsManager)))

	engine.GET("/ok/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	engine.GET("/panic", func(c *gin.Context) {
		panic("YOLO")
	})
	return engine
}

func serve(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHandlePanics_nonPanic(t *testing.T) {
	m := metrics.NewTestManager()
	rr := serve(newEngine(m), "/ok/1")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CounterHandleRequestPanic))
}

func TestHandlePanics_panic(t *testing.T) {
	m := metrics.NewTestManager()
	rr := serve(newEngine(m), "/panic")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterHandleRequestPanic))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
}

func TestRequestMetrics(t *testing.T) {
	m := metrics.NewTestManager()
	engine := newEngine(m)

	serve(engine, "/ok/1")
	serve(engine, "/ok/2")
	serve(engine, "/missing")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CounterRequests.WithLabelValues("GET", "/ok/:id", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterRequests.WithLabelValues("GET", unmatchedRoute, "404")))
}

func TestLoggingMiddleware(t *testing.T) {
	logger := log.Logger
	t.Cleanup(func() { log.Logger = logger })

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	engine := gin.New()
	engine.Use(LoggingMiddleware())
	engine.GET("/teapot", func(c *gin.Context) {
		c.Status(http.StatusTeapot)
	})
	serve(engine, "/teapot")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/teapot", entry["path"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
}
