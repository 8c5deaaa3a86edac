package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"denoise-bench/internal/logger"
)

func TestLoggerRecordsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(Logger(logger.NewZerolog(&buf, zerolog.DebugLevel)))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping?x=1", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	out := buf.String()
	assert.Contains(t, out, `"component":"HTTP"`)
	assert.Contains(t, out, `"path":"/ping"`)
	assert.Contains(t, out, `"query":"x=1"`)
	assert.Contains(t, out, `"status":418`)
}

func TestCORSHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORS())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/ok", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
