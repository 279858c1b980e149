package stt

import (
	"context"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context, opts ...option.ClientOption) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// OpenStream starts a StreamingRecognize call and sends the config request.
func (g *GoogleSpeech) OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = g.SampleRateHz
	}

	s, err := g.c.StreamingRecognize(ctx)
	if err != nil {
		return nil, err
	}
	err = s.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   g.Encoding,
					SampleRateHertz:            cfg.SampleRateHz,
					LanguageCode:               cfg.Language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: cfg.Interim,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return &googleStream{s: s}, nil
}

type googleStream struct {
	s speechpb.Speech_StreamingRecognizeClient
}

func (g *googleStream) SendAudio(pcm []byte) error {
	return g.s.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: pcm},
	})
}

func (g *googleStream) CloseSend() error { return g.s.CloseSend() }

func (g *googleStream) Recv() ([]Result, error) {
	resp, err := g.s.Recv()
	if err != nil {
		return nil, err
	}
	if st := resp.GetError(); st != nil {
		return nil, &StreamError{Code: st.GetCode(), Message: st.GetMessage()}
	}

	var out []Result
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		// best alternative comes first
		alt := r.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		out = append(out, Result{Text: alt.Transcript, Confidence: float64(alt.Confidence), IsFinal: r.IsFinal})
	}
	return out, nil
}

// StreamError is an in-band error status returned by the recognizer.
type StreamError struct {
	Code    int32
	Message string
}

func (e *StreamError) Error() string { return e.Message }
