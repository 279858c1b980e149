package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/internal/utils"
)

const roleAdmin = "admin"

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// writeError renders err with the status its code maps to. Wrapped causes
// never reach the client.
func writeError(c *gin.Context, err error) {
	c.JSON(utils.HTTPStatus(err), APIError{
		Code:    utils.CodeOf(err),
		Message: utils.SafeMessage(err),
	})
}

// requireUserID reads the subject set by JWTAuth and answers 401 when absent.
func requireUserID(c *gin.Context) (string, bool) {
	if s := c.GetString("user_id"); s != "" {
		return s, true
	}
	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

func isAdmin(c *gin.Context) bool { return c.GetString("role") == roleAdmin }

// canRead reports whether the caller may see a record owned by ownerID.
func canRead(c *gin.Context, userID, ownerID string) bool {
	return ownerID == userID || isAdmin(c)
}
