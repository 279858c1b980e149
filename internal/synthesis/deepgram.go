package synthesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
	"github.com/sirupsen/logrus"
)

var ErrMissingAPIKey = errors.New("deepgram: API key missing")

// Sink consumes rendered PCM. Reset drops anything still queued (used on cancel).
type Sink interface {
	WritePCM(pcm []byte)
	Reset()
}

// WriterSink forwards PCM to an io.Writer such as an `aplay` pipe.
type WriterSink struct {
	mu  sync.Mutex
	W   io.Writer
	Log logrus.FieldLogger
}

func (s *WriterSink) WritePCM(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.W.Write(pcm); err != nil && s.Log != nil {
		s.Log.WithError(err).Debug("pcm sink write failed")
	}
}

func (s *WriterSink) Reset() {}

// DeepgramRenderer streams text through Deepgram's speak websocket and hands
// linear16 PCM to a Sink.
type DeepgramRenderer struct {
	APIKey     string
	Model      string
	SampleRate int
	Sink       Sink
	Log        logrus.FieldLogger

	// IdleWindow ends an utterance once no audio arrived for this long.
	IdleWindow time.Duration
	MaxLength  time.Duration
}

func NewDeepgramRenderer(apiKey, model string, sink Sink, log logrus.FieldLogger) *DeepgramRenderer {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	if log == nil {
		log = logrus.New()
	}
	return &DeepgramRenderer{
		APIKey:     apiKey,
		Model:      model,
		SampleRate: 24000,
		Sink:       sink,
		Log:        log,
		IdleWindow: 400 * time.Millisecond,
		MaxLength:  30 * time.Second,
	}
}

func (d *DeepgramRenderer) Render(ctx context.Context, text string) error {
	if d.APIKey == "" {
		return ErrMissingAPIKey
	}
	if text == "" {
		return nil
	}

	var lastRecv int64
	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		atomic.StoreInt64(&lastRecv, time.Now().UnixNano())
		b := make([]byte, len(data))
		copy(b, data)
		if ctx.Err() == nil && d.Sink != nil {
			d.Sink.WritePCM(b)
		}
		return nil
	}}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.Model,
		Encoding:   "linear16",
		SampleRate: d.SampleRate,
	}
	dg, err := speak.NewWSUsingCallback(ctx, d.APIKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return errors.New("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		d.Log.WithError(err).Debug("deepgram flush failed")
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(d.MaxLength)
	for {
		select {
		case <-ctx.Done():
			if d.Sink != nil {
				d.Sink.Reset()
			}
			return ctx.Err()
		case <-ticker.C:
			if last := atomic.LoadInt64(&lastRecv); last != 0 && time.Since(time.Unix(0, last)) > d.IdleWindow {
				return nil
			}
			if time.Now().After(deadline) {
				return nil
			}
		}
	}
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(b []byte) error {
	if s.onBinary != nil {
		return s.onBinary(b)
	}
	return nil
}
