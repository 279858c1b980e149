package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/storage"
	"github.com/yoockh/yoointerview/internal/utils"
)

const reportURLTTL = 15 * time.Minute

// SessionHandler serves the durable interview records.
type SessionHandler struct {
	svc    services.SessionService
	signer storage.Signer // optional
}

func NewSessionHandler(svc services.SessionService, signer storage.Signer) *SessionHandler {
	return &SessionHandler{svc: svc, signer: signer}
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.svc.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if !canRead(c, userID, sess.UserID) {
		writeError(c, utils.E(utils.CodeForbidden, "SessionHandler.Get", "forbidden", nil))
		return
	}

	c.JSON(http.StatusOK, sess)
}

// Report returns a short-lived download link for the archived report.
func (h *SessionHandler) Report(c *gin.Context) {
	const op = "SessionHandler.Report"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.svc.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !canRead(c, userID, sess.UserID) {
		writeError(c, utils.E(utils.CodeForbidden, op, "forbidden", nil))
		return
	}
	if sess.ReportPath == "" || h.signer == nil {
		writeError(c, utils.E(utils.CodeNotFound, op, "report not available yet", nil))
		return
	}

	url, err := h.signer.SignedGetURL(c.Request.Context(), sess.ReportPath, reportURLTTL)
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "failed to sign report url", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.SessionID,
		"url":        url,
		"expires_at": time.Now().Add(reportURLTTL).UTC().Format(time.RFC3339),
	})
}
