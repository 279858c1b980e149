package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/api/handlers"
	"github.com/yoockh/yoointerview/internal/api/middleware"
	"github.com/yoockh/yoointerview/internal/api/routes"
	"github.com/yoockh/yoointerview/internal/cache"
	"github.com/yoockh/yoointerview/internal/engine"
)

const secret = "cli-secret"

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func engineServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	m := engine.NewManager(engine.ManagerConfig{
		Store:        engine.NewStore(cache.NewMemoryCache("interview:realtime"), time.Hour),
		Questions:    &engine.QuestionGenerator{},
		Responder:    &engine.Responder{Intn: func(int) int { return 0 }},
		Log:          log,
		NumQuestions: 2,
	})
	r := gin.New()
	routes.RegisterRoutes(r, routes.Deps{
		Realtime: handlers.NewRealtimeHandler(m, nil, "/interview/realtime/ws"),
		WS:       handlers.NewWSHandler(m, log),
		Auth:     middleware.JWTConfig{Secret: secret},
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func signed(t *testing.T) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "cli-user"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func baseOptions(t *testing.T, srv *httptest.Server) Options {
	return Options{
		APIBaseURL:     srv.URL,
		AuthToken:      signed(t),
		SessionType:    "general",
		TTS:            "off",
		ConnectTimeout: 5 * time.Second,
		SettleTimeout:  5 * time.Second,
	}
}

func TestRun_TypedAnswersThenEnd(t *testing.T) {
	srv := engineServer(t)
	out := &syncBuffer{}
	in := strings.NewReader("I am a backend engineer who enjoys Go.\n/end\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Run(ctx, baseOptions(t, srv), Streams{In: in, Out: out, Err: io.Discard}); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Interviewer: " + engine.WelcomeMessage,
		"You: I am a backend engineer who enjoys Go.",
		"Interviewer: Thank you for that introduction!",
		"== Interview complete ==",
		"Completed interview with 1 responses",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRun_ScriptModeEndsAfterInput(t *testing.T) {
	srv := engineServer(t)
	out := &syncBuffer{}
	in := strings.NewReader("ok\nI have built payment systems in Go for six years.\n")

	opts := baseOptions(t, srv)
	opts.Script = true

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := Run(ctx, opts, Streams{In: in, Out: out, Err: io.Discard}); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	if strings.Contains(got, "You: ok") {
		t.Fatalf("short utterance should have been dropped:\n%s", got)
	}
	if !strings.Contains(got, "You: I have built payment systems in Go for six years.") || !strings.Contains(got, "== Interview complete ==") {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestRun_Unauthorized(t *testing.T) {
	srv := engineServer(t)
	opts := baseOptions(t, srv)
	opts.AuthToken = ""
	err := Run(context.Background(), opts, Streams{In: strings.NewReader(""), Out: io.Discard, Err: io.Discard})
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestRunCommand_RejectsBadFlags(t *testing.T) {
	cmd := NewRootCommand(Streams{In: strings.NewReader(""), Out: io.Discard, Err: io.Discard})
	cmd.SetArgs([]string{"run", "--tts", "opera"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown --tts")
	}
	cmd = NewRootCommand(Streams{In: strings.NewReader(""), Out: io.Discard, Err: io.Discard})
	cmd.SetArgs([]string{"run", "--type", "karaoke"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown --type")
	}
}

func TestInputPump_ForwardWaitsForLaggingCapture(t *testing.T) {
	in := newInputPump(nil)
	defer in.closeScript()

	got := make(chan []string, 1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		var lines []string
		sc := bufio.NewScanner(in.scriptReader())
		for sc.Scan() {
			lines = append(lines, sc.Text())
			if len(lines) == 150 {
				break
			}
		}
		got <- lines
	}()

	for i := 0; i < 150; i++ {
		if !in.forward(context.Background(), fmt.Sprintf("answer %d", i), nil) {
			t.Fatalf("line %d not forwarded", i)
		}
	}
	select {
	case lines := <-got:
		if len(lines) != 150 {
			t.Fatalf("capture saw %d of 150 lines", len(lines))
		}
		for i, l := range lines {
			if want := fmt.Sprintf("answer %d", i); l != want {
				t.Fatalf("line %d = %q, want %q", i, l, want)
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("capture never drained the script")
	}
}

func TestInputPump_ForwardGivesUpWhenSessionEnds(t *testing.T) {
	in := newInputPump(nil)
	defer in.closeScript()

	stop := make(chan struct{})
	gaveUp := make(chan struct{})
	go func() {
		defer close(gaveUp)
		// nobody reads the pipe, so the buffer eventually fills
		for i := 0; in.forward(context.Background(), fmt.Sprintf("answer %d", i), stop); i++ {
		}
	}()
	time.Sleep(50 * time.Millisecond)
	close(stop)
	select {
	case <-gaveUp:
	case <-time.After(time.Second):
		t.Fatalf("forward stayed blocked after the session ended")
	}
}
