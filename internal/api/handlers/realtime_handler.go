package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/internal/engine"
	"github.com/yoockh/yoointerview/internal/interview"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/utils"
)

// RealtimeHandler issues session tokens and exposes session polling and
// termination over HTTP.
type RealtimeHandler struct {
	manager *engine.Manager
	resumes services.ResumeService // optional
	wsPath  string
}

func NewRealtimeHandler(m *engine.Manager, resumes services.ResumeService, wsPath string) *RealtimeHandler {
	return &RealtimeHandler{manager: m, resumes: resumes, wsPath: strings.TrimRight(wsPath, "/")}
}

type CreateSessionRequest struct {
	SessionType string `json:"session_type"` // general|technical|behavioral|hr|mixed
	ResumeID    string `json:"resume_id"`
	ResumeText  string `json:"resume_text"`
}

type CreateSessionResponse struct {
	SessionToken string `json:"session_token"`
	SessionID    string `json:"session_id"`
	WebsocketURL string `json:"websocket_url"`
}

func (h *RealtimeHandler) Create(c *gin.Context) {
	const op = "RealtimeHandler.Create"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
			return
		}
	}

	typ, err := interview.ParseType(req.SessionType)
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unknown session_type", err))
		return
	}

	resume := strings.TrimSpace(req.ResumeText)
	if resume == "" && h.resumes != nil {
		if resume, err = h.resumes.ResumeText(c.Request.Context(), userID); err != nil {
			writeError(c, err)
			return
		}
	}

	created, err := h.manager.Create(c.Request.Context(), engine.CreateParams{
		UserID:        userID,
		InterviewType: typ,
		ResumeID:      req.ResumeID,
		ResumeText:    resume,
	})
	if err != nil {
		var ae *utils.AppError
		if !errors.As(err, &ae) {
			err = utils.E(utils.CodeInternal, op, "failed to create session", err)
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, CreateSessionResponse{
		SessionToken: created.Token,
		SessionID:    created.SessionID,
		WebsocketURL: h.wsPath + "/" + created.Token,
	})
}

func (h *RealtimeHandler) Status(c *gin.Context) {
	view, err := h.manager.Status(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, sessionError("RealtimeHandler.Status", err))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *RealtimeHandler) End(c *gin.Context) {
	fb, err := h.manager.End(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, sessionError("RealtimeHandler.End", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  engine.CompletedMessage,
		"feedback": fb,
	})
}

func sessionError(op string, err error) error {
	if errors.Is(err, engine.ErrUnknownSession) {
		return utils.E(utils.CodeNotFound, op, "Session not found", err)
	}
	return utils.E(utils.CodeInternal, op, "failed to load session", err)
}
