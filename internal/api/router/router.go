package router

import (
	"github.com/gin-gonic/gin"

	"github.com/stemsplit/stemsplit/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	jobHandler := handler.NewJobHandler(deps)

	// Service endpoints
	r.GET("/connect", jobHandler.Connect)
	r.GET("/models", jobHandler.Models)

	// Job lifecycle
	r.POST("/split", jobHandler.Submit)
	r.GET("/status", jobHandler.Status)
	r.POST("/cleanup", jobHandler.Cleanup)
	r.POST("/cleanupall", jobHandler.CleanupAll)

	results := r.Group("/result")
	{
		results.GET("/vocals", jobHandler.Vocals)
		results.GET("/instrumental", jobHandler.Instrumental)
	}

	return r
}
