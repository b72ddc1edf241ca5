package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/meetlingo/meetlingo/internal/api/handlers"
	"github.com/meetlingo/meetlingo/internal/api/middleware"
)

type Deps struct {
	Session    *handlers.SessionHandler
	Transcript *handlers.TranscriptHandler
	WS         *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	api := r.Group("/api")

	// Public: joining a meeting only needs the code
	api.GET("/sessions/:code", d.Session.Get)
	api.POST("/sessions/:code/join", d.Session.Join)
	api.GET("/sessions/:code/transcripts", d.Transcript.ListBySession)

	// Protected routes (JWT)
	auth := api.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/sessions", d.Session.Create)
	auth.POST("/sessions/:code/end", d.Session.End)
	auth.GET("/archive/search", d.Transcript.Search)

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/sessions", d.Session.ListRecent)

	// WebSocket
	r.GET("/ws/session/:code", d.WS.SessionWS)
}
