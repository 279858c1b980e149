package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Outbound frame types (client -> engine).
const (
	TypeConnectionReady     = "connection_ready"
	TypeUserText            = "user_text"
	TypeEndInterview        = "end_interview"
	TypeRequestNextQuestion = "request_next_question"
)

// Inbound frame types (engine -> client).
const (
	TypeSessionStatus      = "session_status"
	TypeTypingIndicator    = "typing_indicator"
	TypeAIMessage          = "ai_message"
	TypeInterviewCompleted = "interview_completed"
	TypeError              = "error"
)

const StatusActive = "active"

var ErrMissingType = errors.New("frame missing type")

// Frame is the single JSON shape used in both directions; one event per frame.
// Only the fields relevant to Type are populated.
type Frame struct {
	Type string `json:"type"`

	// user_text
	Text string `json:"text,omitempty"`

	// session_status, interview_completed, error
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	// typing_indicator
	IsTyping *bool `json:"is_typing,omitempty"`

	// ai_message
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// interview_completed
	Feedback *Feedback `json:"feedback,omitempty"`
}

// Feedback is the terminal scoring artifact produced by the engine.
type Feedback struct {
	OverallScore         float64  `json:"overall_score"`
	Summary              string   `json:"summary"`
	Strengths            []string `json:"strengths"`
	Improvements         []string `json:"improvements"`
	TotalResponses       int      `json:"total_responses"`
	DurationSeconds      float64  `json:"duration_seconds"`
	ConversationDuration float64  `json:"conversation_duration,omitempty"` // minutes
}

// ClampScore bounds the overall score to [0,10].
func (f *Feedback) ClampScore() {
	switch {
	case f.OverallScore < 0:
		f.OverallScore = 0
	case f.OverallScore > 10:
		f.OverallScore = 10
	}
}

func ConnectionReady() Frame { return Frame{Type: TypeConnectionReady} }

func UserText(text string) Frame { return Frame{Type: TypeUserText, Text: text} }

func EndInterview() Frame { return Frame{Type: TypeEndInterview} }

func SessionStatus(status, message string) Frame {
	return Frame{Type: TypeSessionStatus, Status: status, Message: message}
}

func TypingIndicator(on bool) Frame {
	return Frame{Type: TypeTypingIndicator, IsTyping: &on}
}

func AIMessage(content string, at time.Time) Frame {
	return Frame{Type: TypeAIMessage, Content: content, Timestamp: at.UTC().Format(time.RFC3339Nano)}
}

func InterviewCompleted(fb Feedback, message string) Frame {
	return Frame{Type: TypeInterviewCompleted, Feedback: &fb, Message: message}
}

func Error(message string) Frame { return Frame{Type: TypeError, Message: message} }

// Typing reports the typing flag; a missing field reads as false.
func (f Frame) Typing() bool { return f.IsTyping != nil && *f.IsTyping }

// SentAt parses the engine timestamp, falling back to fallback when absent or malformed.
func (f Frame) SentAt(fallback time.Time) time.Time {
	if f.Timestamp == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, f.Timestamp); err == nil {
			return t
		}
	}
	return fallback
}

// Decode parses one text frame. Type is normalised to lower case.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	f.Type = strings.ToLower(strings.TrimSpace(f.Type))
	if f.Type == "" {
		return Frame{}, ErrMissingType
	}
	return f, nil
}

func Encode(f Frame) ([]byte, error) {
	if f.Type == "" {
		return nil, ErrMissingType
	}
	return json.Marshal(f)
}
