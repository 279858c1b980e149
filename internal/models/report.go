package models

import (
	"encoding/json"
	"time"
)

// Report is the end-of-interview artifact: transcript plus engine feedback.
// It travels through the report stream and is archived as JSON.
type Report struct {
	SessionID     string          `json:"session_id"`
	UserID        string          `json:"user_id"`
	InterviewType string          `json:"interview_type"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       time.Time       `json:"ended_at"`
	Feedback      json.RawMessage `json:"feedback"`
	OverallScore  float64         `json:"overall_score"`
	Responses     int             `json:"total_responses"`
	Turns         []ReportTurn    `json:"turns"`
}

type ReportTurn struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	Timestamp  time.Time       `json:"timestamp"`
	Evaluation json.RawMessage `json:"evaluation,omitempty"`
}
