package stt

import "context"

// Result is one recognition update from a streaming session.
type Result struct {
	Text       string
	Confidence float64
	IsFinal    bool
}

type StreamConfig struct {
	Language     string // "en-US", "id-ID"
	SampleRateHz int32
	Interim      bool
}

// Stream is a single streaming recognition session.
type Stream interface {
	SendAudio(pcm []byte) error
	// Recv blocks for the next batch of results; io.EOF once the session ended.
	Recv() ([]Result, error)
	CloseSend() error
}

type Provider interface {
	OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error)
	Close() error
}
