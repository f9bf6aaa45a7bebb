package v1

import (
	"landingops/api/v1/auth"
	"landingops/api/v1/domains"
	"landingops/api/v1/middleware"
	"landingops/internal/config"
	"landingops/internal/httpx"
	"landingops/internal/provision"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, db *gorm.DB, cfg *config.Config, orch *provision.Orchestrator, store provision.Store) {
	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(db, cfg))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			handler := domains.NewHandler(orch, store)

			domainsGroup := protected.Group("/domains")
			{
				domainsGroup.POST("", handler.Create)
				domainsGroup.GET("", handler.List)
				domainsGroup.GET("/:domain", handler.Get)
				domainsGroup.DELETE("/:domain", handler.Delete)

				domainsGroup.POST("/:domain/routes", handler.AddRoute)
				domainsGroup.PUT("/:domain/routes/:path", handler.UpdateRoute)
				domainsGroup.DELETE("/:domain/routes/:path", handler.DeleteRoute)
			}

			sslGroup := protected.Group("/ssl")
			{
				sslGroup.POST("/request", handler.RequestSSL)
				sslGroup.GET("/status/:domain", handler.SSLStatus)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":      uid,
		"username": username,
		"role":     role,
	})
}
