package main

import (
	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/middleware"
)

func setupRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(api.requestLog))

	router.GET("/health", api.healthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth(api.auth))
	if api.limiter != nil {
		v1.Use(middleware.RateLimit(api.limiter))
	}
	{
		// Exports
		v1.POST("/exports", api.createExport)
		v1.GET("/exports", api.listExports)
		v1.GET("/exports/:id", api.getExport)
		v1.POST("/exports/:id/cancel", api.cancelExport)

		// Source media
		v1.POST("/media", api.uploadMedia)

		// Composition tools
		v1.POST("/timeline", api.describeTimeline)
		v1.POST("/preview", api.preview)
	}

	return router
}
