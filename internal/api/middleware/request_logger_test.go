package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func loggedRouter(l *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(l))
	r.GET("/interview/realtime/session/:token", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/interview/sessions/:session_id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequestLogger_NeverLogsRealtimeToken(t *testing.T) {
	l, hook := test.NewNullLogger()
	r := loggedRouter(l)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/interview/realtime/session/tok-very-secret", nil))

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatalf("no log line")
	}
	if entry.Level != logrus.WarnLevel {
		t.Fatalf("404 should log at warn, got %s", entry.Level)
	}
	if got := entry.Data["path"]; got != "/interview/realtime/session/:token" {
		t.Fatalf("path logged as %v", got)
	}
	for k, v := range entry.Data {
		if strings.Contains(fmt.Sprint(v), "tok-very-secret") {
			t.Fatalf("token leaked in field %s", k)
		}
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id not echoed")
	}
}

func TestRequestLogger_TagsSessionID(t *testing.T) {
	l, hook := test.NewNullLogger()
	r := loggedRouter(l)

	req := httptest.NewRequest(http.MethodGet, "/interview/sessions/sess-42", nil)
	req.Header.Set("X-Request-Id", "req-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.InfoLevel {
		t.Fatalf("expected an info line, got %+v", entry)
	}
	if entry.Data["session_id"] != "sess-42" || entry.Data["request_id"] != "req-1" {
		t.Fatalf("fields %v", entry.Data)
	}
}
