package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/boosterlab/packdrop/internal/adapter"
	"github.com/boosterlab/packdrop/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, validator middleware.TokenValidator, clock adapter.Clock, limiter *middleware.RateLimiter, adminSecret string) {
	// Liveness endpoint (no auth)
	router.GET("/heartbeat", handler.Heartbeat)

	// Token mint, guarded by the admin secret rather than bearer auth
	router.POST("/admin/create-token", middleware.AdminSecret(adminSecret), handler.CreateToken)

	// Batch envelope: no envelope-level auth, each sub-request carries its
	// own Authorization header
	router.POST("/batch", handler.Batch)

	// Bearer-authenticated, rate-limited surface
	authed := router.Group("/", middleware.Auth(validator, clock), middleware.RateLimit(limiter))
	{
		authed.POST("/pack/claim", handler.ClaimPack)
		authed.POST("/pack/restock", handler.RestockPack)
		authed.GET("/pack/status", handler.PackStatus)
		authed.POST("/pack/status/bulk", handler.BulkPackStatus)
		authed.GET("/user/inventory", handler.GetInventory)
		authed.POST("/user/inventory/edit", handler.EditInventory)
	}
}
