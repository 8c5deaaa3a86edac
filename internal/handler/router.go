package handler

import (
	"github.com/gin-gonic/gin"

	"denoise-bench/internal/logger"
	"denoise-bench/internal/middleware"
)

// NewRouter wires the API routes behind recovery, request logging and CORS
func NewRouter(h *Handler, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS())

	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.POST("/upload", h.Upload)
		api.POST("/process", h.Process)
		api.GET("/charts/:session_id", h.Charts)
		api.GET("/export/:session_id", h.Export)
		api.GET("/filters", h.Filters)
	}

	return r
}
