package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
	mongorepo "github.com/yoockh/yoointerview/internal/repositories/mongo"
	"github.com/yoockh/yoointerview/internal/utils"

	"github.com/google/uuid"
)

type StartSessionParams struct {
	UserID        string
	InterviewType string
	ResumeID      string
	Token         string
	Questions     []string
}

type SessionService interface {
	Start(ctx context.Context, p StartSessionParams) (*models.InterviewSession, error)
	Get(ctx context.Context, sessionID string) (*models.InterviewSession, error)
	Complete(ctx context.Context, sessionID string, out models.SessionOutcome) (*models.InterviewSession, error)
	SetStatus(ctx context.Context, sessionID, status string) error
}

type sessionService struct {
	sessions mongorepo.SessionRepository
}

func NewSessionService(sessions mongorepo.SessionRepository) SessionService {
	return &sessionService{sessions: sessions}
}

func (s *sessionService) Start(ctx context.Context, p StartSessionParams) (*models.InterviewSession, error) {
	const op = "SessionService.Start"

	if p.UserID == "" || p.InterviewType == "" || p.Token == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id, interview_type and token are required", nil)
	}

	session := &models.InterviewSession{
		SessionID:     uuid.NewString(),
		Token:         p.Token,
		UserID:        p.UserID,
		InterviewType: p.InterviewType,
		ResumeID:      p.ResumeID,
		Status:        models.SessionReady,
		Questions:     p.Questions,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	out, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

// Complete records the interview outcome. Completing twice overwrites the
// outcome with the same values, so redelivered reports are harmless.
func (s *sessionService) Complete(ctx context.Context, sessionID string, out models.SessionOutcome) (*models.InterviewSession, error) {
	const op = "SessionService.Complete"

	ss, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if out.EndedAt.IsZero() {
		out.EndedAt = time.Now().UTC()
	}
	dur := int64(out.EndedAt.Sub(ss.CreatedAt).Seconds())
	if dur < 0 {
		dur = 0
	}

	if err := s.sessions.Complete(ctx, sessionID, out, dur); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to complete session", err)
	}

	score := out.OverallScore
	ss.Status = models.SessionCompleted
	ss.EndedAt = &out.EndedAt
	ss.DurationSeconds = dur
	ss.OverallScore = &score
	ss.TotalResponses = out.TotalResponses
	ss.ReportPath = out.ReportPath
	return ss, nil
}

func (s *sessionService) SetStatus(ctx context.Context, sessionID, status string) error {
	const op = "SessionService.SetStatus"

	if sessionID == "" || status == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id and status are required", nil)
	}
	if err := s.sessions.SetStatus(ctx, sessionID, status); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to set status", err)
	}
	return nil
}
