package main

import (
	"autodialer/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers) {
	r.GET("/healthz", httpapi.Healthz)

	calls := r.Group("/calls")
	{
		calls.POST("/upload", h.UploadNumbers)
		calls.GET("/export", h.ExportCSV)
	}

	r.POST("/ai/prompt", h.HandlePrompt)
	r.GET("/dashboard", h.Dashboard)
}
