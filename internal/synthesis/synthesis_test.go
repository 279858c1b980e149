package synthesis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// recordingRenderer blocks each utterance until cancelled or released and
// tracks how many run concurrently.
type recordingRenderer struct {
	mu        sync.Mutex
	started   []string
	cancelled []string
	active    int32
	maxActive int32
	release   chan struct{}
	closed    bool
}

func (r *recordingRenderer) Render(ctx context.Context, text string) error {
	n := atomic.AddInt32(&r.active, 1)
	defer atomic.AddInt32(&r.active, -1)
	for {
		m := atomic.LoadInt32(&r.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&r.maxActive, m, n) {
			break
		}
	}
	r.mu.Lock()
	r.started = append(r.started, text)
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		r.mu.Lock()
		r.cancelled = append(r.cancelled, text)
		r.mu.Unlock()
		return ctx.Err()
	case <-r.release:
		return nil
	}
}

func (r *recordingRenderer) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func TestSpeaker_NewSpeakCancelsPrevious(t *testing.T) {
	r := &recordingRenderer{release: make(chan struct{})}
	s := NewSpeaker(r, quietLogger())

	s.Speak("first question")
	s.Speak("second question")
	s.Speak("third question")
	time.Sleep(20 * time.Millisecond)

	if m := atomic.LoadInt32(&r.maxActive); m != 1 {
		t.Fatalf("utterances overlapped: max active %d", m)
	}
	r.mu.Lock()
	cancelled := append([]string(nil), r.cancelled...)
	r.mu.Unlock()
	if len(cancelled) != 2 || cancelled[0] != "first question" || cancelled[1] != "second question" {
		t.Fatalf("expected first two utterances cancelled, got %v", cancelled)
	}
	_ = s.Close()
}

func TestSpeaker_CancelAndCloseAreIdempotent(t *testing.T) {
	r := &recordingRenderer{release: make(chan struct{})}
	s := NewSpeaker(r, quietLogger())
	s.Cancel()
	s.Speak("hello there")
	s.Cancel()
	s.Cancel()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !r.closed {
		t.Fatalf("renderer not released")
	}
	s.Speak("after close")
	time.Sleep(10 * time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txt := range r.started {
		if txt == "after close" {
			t.Fatalf("speak after close must be ignored")
		}
	}
}

func TestSpeaker_IgnoresBlankText(t *testing.T) {
	r := &recordingRenderer{release: make(chan struct{})}
	s := NewSpeaker(r, quietLogger())
	defer s.Close()
	s.Speak("   ")
	time.Sleep(10 * time.Millisecond)
	if len(r.started) != 0 {
		t.Fatalf("blank text should not render")
	}
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestConsoleRenderer_WritesWordsAndStopsOnCancel(t *testing.T) {
	var buf lockedBuffer
	r := ConsoleRenderer{W: &buf, Prefix: "AI: "}
	if err := r.Render(context.Background(), "Tell me about yourself"); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := buf.String(); got != "AI: Tell me about yourself\n" {
		t.Fatalf("unexpected output %q", got)
	}

	var slow lockedBuffer
	r = ConsoleRenderer{W: &slow, WordDelay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := r.Render(ctx, "one two three"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if strings.Contains(slow.String(), "three") {
		t.Fatalf("cancelled utterance kept rendering: %q", slow.String())
	}
}

func TestDeepgramRenderer_NoKey(t *testing.T) {
	d := NewDeepgramRenderer("", "", nil, quietLogger())
	if err := d.Render(context.Background(), "hello"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
