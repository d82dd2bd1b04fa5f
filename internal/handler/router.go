package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fotobox/eventhub/internal/config"
	"fotobox/eventhub/internal/handler/middleware"
	jwtpkg "fotobox/eventhub/pkg/jwt"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	jwtManager *jwtpkg.Manager,
	authHandler *AuthHandler,
	eventHandler *EventHandler,
	uploadHandler *UploadHandler,
	adminHandler *AdminHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Stored files; upload paths are relative to this prefix.
	r.Static("/uploads", cfg.Storage.Root)

	// Public auth routes
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Guest routes
	public := r.Group("/api/v1")
	{
		public.GET("/events/code/:code", eventHandler.GetByCode)
		public.POST("/uploads", uploadHandler.Upload)
		public.GET("/events/:id/uploads", middleware.OptionalJWTAuth(jwtManager), eventHandler.ListUploads)
	}

	// Protected routes
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(jwtManager))
	{
		protected.GET("/auth/me", authHandler.Me)

		protected.POST("/events", eventHandler.Create)
		protected.GET("/events/mine", eventHandler.Mine)
		protected.GET("/events/:id", eventHandler.Get)
		protected.PUT("/events/:id", eventHandler.Update)
		protected.DELETE("/events/:id", eventHandler.Delete)
		protected.POST("/events/:id/cover", uploadHandler.Cover)
	}

	// Admin routes (JWT + admin role)
	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.JWTAuth(jwtManager))
	admin.Use(middleware.AdminAuth())
	{
		admin.POST("/hosts", adminHandler.CreateHost)
		admin.GET("/hosts", adminHandler.ListHosts)
		admin.PUT("/hosts/:id", adminHandler.UpdateHost)
		admin.DELETE("/hosts/:id", adminHandler.DeleteHost)

		admin.GET("/events", adminHandler.ListEvents)
		admin.POST("/cleanup", adminHandler.RunCleanup)
	}

	return r
}
