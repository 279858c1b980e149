package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/internal/api/handlers"
	"github.com/yoockh/yoointerview/internal/api/middleware"
)

type Deps struct {
	Realtime     *handlers.RealtimeHandler
	WS           *handlers.WSHandler
	Session      *handlers.SessionHandler      // optional
	Conversation *handlers.ConversationHandler // optional
	Auth         middleware.JWTConfig
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// the session token authorizes these
	rt := r.Group("/interview/realtime")
	rt.GET("/ws/:token", d.WS.SessionWS)
	rt.GET("/session/:token", d.Realtime.Status)
	rt.POST("/end/:token", d.Realtime.End)

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.Auth))

	auth.POST("/interview/realtime/create", d.Realtime.Create)

	if d.Session != nil {
		auth.GET("/interview/sessions/:session_id", d.Session.Get)
		auth.GET("/interview/sessions/:session_id/report", d.Session.Report)

		admin := auth.Group("/admin", middleware.RequireAdmin())
		admin.GET("/interview/sessions/:session_id", d.Session.Get)
	}
	if d.Conversation != nil {
		auth.GET("/interview/sessions/:session_id/conversation", d.Conversation.ListBySession)
	}
}
