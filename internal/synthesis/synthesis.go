package synthesis

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Adapter renders interviewer text as speech.
type Adapter interface {
	// Speak is fire-and-forget. Any in-flight utterance is cancelled first.
	Speak(text string)
	// Cancel stops the current utterance, if any.
	Cancel()
	// Close cancels and releases the renderer. Later calls are no-ops.
	Close() error
}

// Renderer produces one utterance and returns once it finished or ctx was cancelled.
type Renderer interface {
	Render(ctx context.Context, text string) error
}

// Speaker drives a Renderer so that at most one utterance plays at a time.
type Speaker struct {
	r   Renderer
	log logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func NewSpeaker(r Renderer, log logrus.FieldLogger) *Speaker {
	if log == nil {
		log = logrus.New()
	}
	return &Speaker{r: r, log: log.WithField("component", "synthesis")}
}

func (s *Speaker) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		if err := s.r.Render(ctx, text); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("speech synthesis failed")
		}
	}()
}

func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopLocked()
	if c, ok := s.r.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// stopLocked cancels the current utterance and waits for the renderer to return.
func (s *Speaker) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
}

// Nop discards everything. Used when the speaker output is disabled.
type Nop struct{}

func (Nop) Speak(string) {}
func (Nop) Cancel()      {}
func (Nop) Close() error { return nil }
