package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/providers/stt"
)

// StreamLimit keeps each recognition stream under the provider's ~5 minute cap.
const StreamLimit = 290 * time.Second

// SourceOpener acquires the raw PCM16LE mono input (microphone pipe, file, ...).
type SourceOpener func(ctx context.Context) (io.ReadCloser, error)

// SpeechCapture streams microphone PCM to a streaming recognizer and emits
// interim/final fragments. Streams are restarted transparently.
type SpeechCapture struct {
	provider stt.Provider
	open     SourceOpener
	cfg      stt.StreamConfig
	log      logrus.FieldLogger
	em       *emitter

	ChunkBytes  int
	StreamLimit time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSpeechCapture(p stt.Provider, open SourceOpener, cfg stt.StreamConfig, log logrus.FieldLogger) *SpeechCapture {
	if log == nil {
		log = logrus.New()
	}
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = 16000
	}
	cfg.Interim = true
	return &SpeechCapture{
		provider:    p,
		open:        open,
		cfg:         cfg,
		log:         log.WithField("component", "speech_capture"),
		em:          newEmitter(log, 0),
		ChunkBytes:  int(cfg.SampleRateHz) / 10 * 2, // 100ms
		StreamLimit: StreamLimit,
	}
}

func (c *SpeechCapture) Fragments() <-chan Fragment { return c.em.out }

func (c *SpeechCapture) SetMuted(muted bool) { c.em.setMuted(muted) }

func (c *SpeechCapture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	if c.provider == nil || c.open == nil {
		return ErrDeviceUnavailable
	}

	src, err := c.open(ctx)
	if err != nil {
		return classifySourceError(err)
	}
	if src == nil {
		return ErrDeviceUnavailable
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.em.setRunning(true)
	go c.run(runCtx, src, c.done)
	return nil
}

func (c *SpeechCapture) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	c.em.setRunning(false)
	cancel()
	<-done
}

func classifySourceError(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrDeviceUnavailable):
		return err
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}

func (c *SpeechCapture) run(ctx context.Context, src io.ReadCloser, done chan struct{}) {
	defer close(done)

	audio := make(chan []byte, 64)
	go c.pump(ctx, src, audio)
	defer src.Close()

	for ctx.Err() == nil {
		more, err := c.runStream(ctx, audio)
		if err != nil && ctx.Err() == nil {
			c.log.WithError(err).Warn("recognition stream failed; restarting")
			select {
			case <-ctx.Done():
			case <-time.After(500 * time.Millisecond):
			}
		}
		if !more {
			c.log.Info("audio source ended")
			return
		}
	}
}

// pump reads fixed-size chunks; while muted the chunk is replaced with silence
// so the recognizer stream stays alive.
func (c *SpeechCapture) pump(ctx context.Context, src io.Reader, audio chan<- []byte) {
	defer close(audio)
	for {
		buf := make([]byte, c.ChunkBytes)
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			chunk := buf[:n]
			if c.em.isMuted() {
				chunk = make([]byte, n)
			}
			select {
			case audio <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// runStream drives one recognition stream. more is false once the audio source is exhausted.
func (c *SpeechCapture) runStream(ctx context.Context, audio <-chan []byte) (more bool, err error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := c.provider.OpenStream(streamCtx, c.cfg)
	if err != nil {
		return true, err
	}

	recvErr := make(chan error, 1)
	go func() { recvErr <- c.receive(s) }()

	more = true
	limit := time.NewTimer(c.StreamLimit)
	defer limit.Stop()

SEND:
	for {
		select {
		case <-ctx.Done():
			break SEND
		case <-limit.C:
			break SEND
		case chunk, ok := <-audio:
			if !ok {
				more = false
				break SEND
			}
			if err := s.SendAudio(chunk); err != nil {
				_ = s.CloseSend()
				return true, <-recvErr
			}
		}
	}
	_ = s.CloseSend()

	select {
	case err = <-recvErr:
	case <-ctx.Done():
		return false, nil
	}
	return more, err
}

func (c *SpeechCapture) receive(s stt.Stream) error {
	for {
		results, err := s.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		c.handleResults(results)
	}
}

func (c *SpeechCapture) handleResults(results []stt.Result) {
	var interim []string
	for _, r := range results {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		if r.IsFinal {
			c.em.emit(text, true)
			continue
		}
		interim = append(interim, text)
	}
	if len(interim) > 0 {
		c.em.emit(strings.Join(interim, " "), false)
	}
}
