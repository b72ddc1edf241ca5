package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func loggerEngine(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	l := logrus.New()
	l.SetOutput(buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	r := gin.New()
	r.Use(RequestLogger(l))
	r.GET("/ping", func(c *gin.Context) { c.JSON(200, gin.H{"message": "pong"}) })
	r.GET("/api/sessions/:code", func(c *gin.Context) { c.JSON(200, gin.H{"code": c.Param("code")}) })
	return r
}

func TestRequestLoggerEmitsStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	r := loggerEngine(&buf)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/123456", nil)
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got == "" {
		t.Error("X-Request-Id not set on the response")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["method"] != "GET" || entry["path"] != "/api/sessions/:code" {
		t.Errorf("entry = %v", entry)
	}
	if entry["request_id"] == "" || entry["request_id"] == nil {
		t.Error("request_id missing from log entry")
	}
}

func TestRequestLoggerHonorsIncomingRequestID(t *testing.T) {
	var buf bytes.Buffer
	r := loggerEngine(&buf)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/123456", nil)
	req.Header.Set("X-Request-Id", "req-abc")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "req-abc" {
		t.Errorf("X-Request-Id = %q, want req-abc", got)
	}
}

func TestRequestLoggerSkipsHealthProbe(t *testing.T) {
	var buf bytes.Buffer
	r := loggerEngine(&buf)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	if buf.Len() != 0 {
		t.Errorf("health probe was logged: %q", buf.String())
	}
}
