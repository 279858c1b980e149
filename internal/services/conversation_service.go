package services

import (
	"context"
	"strconv"

	"github.com/yoockh/yoointerview/internal/models"
	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"github.com/yoockh/yoointerview/internal/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ConversationService interface {
	AppendTurns(ctx context.Context, userID, sessionID string, turns []models.ReportTurn) (int, error)
	ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error)
}

type conversationService struct {
	convos pgrepo.ConversationRepo
}

func NewConversationService(convos pgrepo.ConversationRepo) ConversationService {
	return &conversationService{convos: convos}
}

// AppendTurns persists a finished transcript. Row ids derive from the session
// and position, so storing the same transcript twice is a no-op.
func (s *conversationService) AppendTurns(ctx context.Context, userID, sessionID string, turns []models.ReportTurn) (int, error) {
	const op = "ConversationService.AppendTurns"

	if userID == "" || sessionID == "" {
		return 0, utils.E(utils.CodeInvalidArgument, op, "user_id and session_id are required", nil)
	}

	rows := make([]models.ConversationLog, 0, len(turns))
	for i, t := range turns {
		if t.Content == "" || t.Role == "" {
			continue
		}
		row := models.ConversationLog{
			ID:        TurnID(sessionID, i),
			UserID:    userID,
			SessionID: sessionID,
			Seq:       i,
			Role:      t.Role,
			Content:   t.Content,
			Timestamp: t.Timestamp.UTC(),
		}
		if len(t.Evaluation) > 0 {
			row.Evaluation = datatypes.JSON(t.Evaluation)
		}
		rows = append(rows, row)
	}

	if err := s.convos.InsertBatch(ctx, rows); err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to insert conversation logs", err)
	}
	return len(rows), nil
}

func (s *conversationService) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error) {
	const op = "ConversationService.ListBySession"

	if userID == "" || sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and session_id are required", nil)
	}

	rows, err := s.convos.ListBySession(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	return rows, nil
}

// TurnID is the stable row id of turn seq within a session.
func TurnID(sessionID string, seq int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("interview:"+sessionID+":"+strconv.Itoa(seq))).String()
}
