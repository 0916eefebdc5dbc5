package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/yooproctor/internal/api/handlers"
	"github.com/yoockh/yooproctor/internal/api/middleware"
)

type Deps struct {
	Auth      middleware.JWTConfig
	Interview *handlers.InterviewHandler
	Proctor   *handlers.ProctorHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.Auth))

	auth.GET("/interview/:interview_id", d.Interview.Get)
	auth.GET("/interview/:interview_id/result", d.Interview.Result)
	auth.GET("/results/me", d.Interview.MyResults)

	auth.GET("/proctor/cancellation", d.Proctor.Cancellation)

	review := auth.Group("/review")
	review.Use(middleware.RequireReviewer())
	review.GET("/interview/:interview_id/recording", d.Interview.Recording)

	// WebSocket
	auth.GET("/ws/proctor/:interview_id", d.Proctor.SessionWS)
}
