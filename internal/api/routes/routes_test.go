package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/api/handlers"
	"github.com/yoockh/yoointerview/internal/api/middleware"
	"github.com/yoockh/yoointerview/internal/cache"
	"github.com/yoockh/yoointerview/internal/channel"
	"github.com/yoockh/yoointerview/internal/engine"
	"github.com/yoockh/yoointerview/internal/interview"
	"github.com/yoockh/yoointerview/internal/protocol"
)

const testSecret = "test-secret"

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := quiet()
	m := engine.NewManager(engine.ManagerConfig{
		Store:        engine.NewStore(cache.NewMemoryCache("interview:realtime"), time.Hour),
		Questions:    &engine.QuestionGenerator{},
		Responder:    &engine.Responder{Intn: func(int) int { return 0 }},
		Log:          log,
		NumQuestions: 3,
	})

	r := gin.New()
	r.Use(middleware.RequestLogger(log))
	RegisterRoutes(r, Deps{
		Realtime: handlers.NewRealtimeHandler(m, nil, "/interview/realtime/ws"),
		WS:       handlers.NewWSHandler(m, log),
		Auth:     middleware.JWTConfig{Secret: testSecret},
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + s
}

func createSession(t *testing.T, srv *httptest.Server, body string) handlers.CreateSessionResponse {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/interview/realtime/create", bytes.NewBufferString(body))
	req.Header.Set("Authorization", bearer(t, "user-1"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("create: status %d: %s", resp.StatusCode, b)
	}
	var out handlers.CreateSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCreate_RequiresJWT(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Post(srv.URL+"/interview/realtime/create", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestCreate_RejectsUnknownType(t *testing.T) {
	srv := newServer(t)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/interview/realtime/create", strings.NewReader(`{"session_type":"karaoke"}`))
	req.Header.Set("Authorization", bearer(t, "user-1"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestStatus_UnknownTokenIs404(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/interview/realtime/session/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body handlers.APIError
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusNotFound || body.Message != "Session not found" {
		t.Fatalf("status %d body %+v", resp.StatusCode, body)
	}
}

func TestWS_InvalidTokenGetsErrorFrame(t *testing.T) {
	srv := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/interview/realtime/ws/bogus"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	f, err := protocol.Decode(data)
	if err != nil || f.Type != protocol.TypeError || f.Message != "Invalid session token" {
		t.Fatalf("frame %+v err %v", f, err)
	}
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatal("expected the server to close the connection")
	}
}

func TestRealtimeInterview_EndToEnd(t *testing.T) {
	srv := newServer(t)
	created := createSession(t, srv, `{"session_type":"technical"}`)
	if created.SessionToken == "" || created.WebsocketURL != "/interview/realtime/ws/"+created.SessionToken {
		t.Fatalf("create response %+v", created)
	}

	reg := channel.NewRegistry(channel.WSDialer{
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/interview/realtime/ws",
	}, quiet())

	feedback := make(chan protocol.Feedback, 1)
	sess := interview.New(interview.Config{
		Token:         created.SessionToken,
		InterviewType: interview.TypeTechnical,
		AudioOff:      true,
	}, reg, nil, nil, interview.Observer{
		OnFeedback: func(fb protocol.Feedback) { feedback <- fb },
	}, quiet())
	defer sess.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Status() != interview.StatusActive {
		t.Fatalf("status %v", sess.Status())
	}

	waitFor(t, "welcome message", func() bool { return len(sess.Transcript()) >= 1 })
	if got := sess.Transcript()[0].Text; got != engine.WelcomeMessage {
		t.Fatalf("first message %q", got)
	}

	if err := sess.SubmitText("I am a backend engineer working on realtime Go services."); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "interviewer reply", func() bool { return len(sess.Transcript()) >= 3 })
	if got := sess.Transcript()[2].Text; !strings.HasPrefix(got, "Thank you for that introduction! ") {
		t.Fatalf("reply %q", got)
	}

	resp, err := http.Get(srv.URL + "/interview/realtime/session/" + created.SessionToken)
	if err != nil {
		t.Fatal(err)
	}
	var view engine.StatusView
	_ = json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if view.Status != "active" || view.CurrentQuestion != 1 || view.TotalQuestions != 3 {
		t.Fatalf("status view %+v", view)
	}

	if err := sess.EndInterview(); err != nil {
		t.Fatal(err)
	}
	select {
	case fb := <-feedback:
		if fb.TotalResponses != 1 || fb.Summary != "Completed interview with 1 responses" {
			t.Fatalf("feedback %+v", fb)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no feedback")
	}
	if sess.Status() != interview.StatusCompleted {
		t.Fatalf("status %v", sess.Status())
	}
}
