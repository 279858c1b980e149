package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleCandidate   = "user"
	RoleInterviewer = "assistant"
)

// ConversationLog is one persisted interview turn.
type ConversationLog struct {
	ID         string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID     string         `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	SessionID  string         `gorm:"column:session_id;type:uuid;index:idx_conv_session_seq,priority:1" json:"session_id"`
	Seq        int            `gorm:"column:seq;index:idx_conv_session_seq,priority:2" json:"seq"`
	Role       string         `gorm:"column:role;type:text" json:"role"` // "user" | "assistant"
	Content    string         `gorm:"column:content;type:text" json:"content"`
	Timestamp  time.Time      `gorm:"column:timestamp;type:timestamptz" json:"timestamp"`
	Evaluation datatypes.JSON `gorm:"column:evaluation;type:jsonb" json:"evaluation,omitempty"`
}

func (ConversationLog) TableName() string { return "conversation_logs" }
