package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SessionReady     = "ready"
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// InterviewSession is the durable record of one realtime interview.
type InterviewSession struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4
	Token     string             `bson:"token" json:"-"`
	UserID    string             `bson:"user_id" json:"user_id"`

	InterviewType string   `bson:"interview_type" json:"interview_type"` // general|technical|behavioral|hr|mixed
	ResumeID      string   `bson:"resume_id,omitempty" json:"resume_id,omitempty"`
	Status        string   `bson:"status" json:"status"`
	Questions     []string `bson:"questions,omitempty" json:"questions,omitempty"`

	OverallScore   *float64 `bson:"overall_score,omitempty" json:"overall_score,omitempty"`
	TotalResponses int      `bson:"total_responses" json:"total_responses"`
	ReportPath     string   `bson:"report_path,omitempty" json:"report_path,omitempty"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	DurationSeconds int64 `bson:"duration_seconds" json:"duration_seconds"`
}

// SessionOutcome is what the report pipeline writes back once an interview ends.
type SessionOutcome struct {
	EndedAt        time.Time
	OverallScore   float64
	TotalResponses int
	ReportPath     string
}
