package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/services"
)

const (
	defaultTurnLimit = 200
	maxTurnLimit     = 500
)

type ConversationHandler struct {
	svc services.ConversationService
}

func NewConversationHandler(svc services.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type transcriptTurn struct {
	Seq       int       `json:"seq"`
	Origin    string    `json:"origin"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
	Evaluated bool      `json:"evaluated"`
}

type transcriptResponse struct {
	SessionID      string           `json:"session_id"`
	TotalResponses int              `json:"total_responses"`
	Turns          []transcriptTurn `json:"turns"`
}

// ListBySession returns the archived transcript of one of the caller's
// interviews, oldest turn first.
func (h *ConversationHandler) ListBySession(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")

	rows, err := h.svc.ListBySession(c.Request.Context(), userID, sessionID, turnLimit(c.Query("limit")))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, buildTranscript(sessionID, rows))
}

func turnLimit(q string) int {
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 || n > maxTurnLimit {
		return defaultTurnLimit
	}
	return n
}

func buildTranscript(sessionID string, rows []models.ConversationLog) transcriptResponse {
	out := transcriptResponse{SessionID: sessionID, Turns: make([]transcriptTurn, 0, len(rows))}
	for _, r := range rows {
		origin := "ai_interviewer"
		if r.Role == models.RoleCandidate {
			origin = "candidate"
			out.TotalResponses++
		}
		out.Turns = append(out.Turns, transcriptTurn{
			Seq:       r.Seq,
			Origin:    origin,
			Text:      r.Content,
			SentAt:    r.Timestamp,
			Evaluated: len(r.Evaluation) > 0,
		})
	}
	return out
}
