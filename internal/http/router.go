package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mkhomutov/feedkeeper/internal/database"
)

// ContextKeyUserID is the gin context key carrying the acting user's id.
const ContextKeyUserID = "userID"

// DefaultUserMiddleware injects the single-tenant default user into every
// request. Authentication is handled by a fronting proxy in deployments
// that need it.
func DefaultUserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyUserID, database.DefaultUserID)
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) uint {
	if v, ok := c.Get(ContextKeyUserID); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return database.DefaultUserID
}

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(DefaultUserMiddleware())

	health := NewHealthController(cfg.Database, cfg.Version)
	importsController := NewImportsController(cfg.Registry, cfg.MaxUploadBytes)
	subscriptionsController := NewSubscriptionsController(cfg.Subscriptions)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// Import job endpoints
	router.POST("/api/imports", importsController.Create)
	router.GET("/api/imports", importsController.List)
	router.GET("/api/imports/:id", importsController.Get)
	router.POST("/api/imports/:id/cancel", importsController.Cancel)
	router.DELETE("/api/imports/:id", importsController.Delete)

	// Subscription endpoints
	router.GET("/api/subscriptions", subscriptionsController.List)
	router.GET("/api/categories", subscriptionsController.ListCategories)

	return router
}
