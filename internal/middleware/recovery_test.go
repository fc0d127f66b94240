package middleware_test

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"eigentask/backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

func recoveryRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RecoveryWithLog())
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	router.GET("/late", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
		c.Writer.WriteHeaderNow()
		panic("late boom")
	})
	return router
}

func TestRecoveryWithLog(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	tests := []struct {
		path     string
		wantCode int
		wantBody string
		wantLog  string
	}{
		{path: "/ok", wantCode: http.StatusOK, wantBody: `{"message":"success"}`},
		{path: "/panic", wantCode: http.StatusInternalServerError, wantBody: `{"error":"internal server error"}`, wantLog: "panic serving GET /panic: boom"},
		// Headers already sent; only the log records the panic.
		{path: "/late", wantCode: http.StatusAccepted, wantLog: "panic serving GET /late: late boom"},
	}

	router := recoveryRouter()
	for _, tt := range tests {
		logs.Reset()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

		if w.Code != tt.wantCode {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.wantCode, w.Code)
		}
		if tt.wantBody != "" && w.Body.String() != tt.wantBody {
			t.Errorf("%s: expected body %s, got %s", tt.path, tt.wantBody, w.Body.String())
		}
		if w.Header().Get(middleware.RequestIDHeader) == "" {
			t.Errorf("%s: request id header missing", tt.path)
		}
		if tt.wantLog != "" && !strings.Contains(logs.String(), tt.wantLog) {
			t.Errorf("%s: expected log to contain %q, got %q", tt.path, tt.wantLog, logs.String())
		}
	}
}
