package protocol

import (
	"strings"
	"testing"
	"time"
)

func TestDecode_InboundFrames(t *testing.T) {
	f, err := Decode([]byte(`{"type":"Typing_Indicator","is_typing":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Type != TypeTypingIndicator || !f.Typing() {
		t.Fatalf("unexpected frame %+v", f)
	}

	f, err = Decode([]byte(`{"type":"interview_completed","feedback":{"overall_score":8,"summary":"ok","strengths":["a"],"improvements":[],"total_responses":3}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Feedback == nil || f.Feedback.OverallScore != 8 || f.Feedback.TotalResponses != 3 {
		t.Fatalf("feedback not decoded: %+v", f.Feedback)
	}
}

func TestDecode_Rejects(t *testing.T) {
	if _, err := Decode([]byte(`not-json`)); err == nil {
		t.Fatalf("expected error on bad json")
	}
	if _, err := Decode([]byte(`{"text":"hi"}`)); err != ErrMissingType {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
}

func TestEncode_OmitsUnusedFields(t *testing.T) {
	b, err := Encode(ConnectionReady())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != `{"type":"connection_ready"}` {
		t.Fatalf("unexpected encoding %s", b)
	}
	b, _ = Encode(TypingIndicator(false))
	if !strings.Contains(string(b), `"is_typing":false`) {
		t.Fatalf("typing off must be explicit: %s", b)
	}
}

func TestFrame_SentAtFallback(t *testing.T) {
	fallback := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := (Frame{}).SentAt(fallback); !got.Equal(fallback) {
		t.Fatalf("expected fallback, got %v", got)
	}
	got := Frame{Timestamp: "2024-05-01T10:00:00.123456"}.SentAt(fallback)
	if got.Year() != 2024 || got.Month() != 5 {
		t.Fatalf("zone-less timestamp not parsed: %v", got)
	}
}

func TestFeedback_ClampScore(t *testing.T) {
	fb := Feedback{OverallScore: 12}
	fb.ClampScore()
	if fb.OverallScore != 10 {
		t.Fatalf("expected 10, got %v", fb.OverallScore)
	}
	fb.OverallScore = -1
	fb.ClampScore()
	if fb.OverallScore != 0 {
		t.Fatalf("expected 0, got %v", fb.OverallScore)
	}
}
