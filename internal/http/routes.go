package http

import (
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/classhub/internal/auth"
)

const (
	authRateLimitRPS   = 1.0 / 6.0 // 10 attempts per minute
	authRateLimitBurst = 5
)

// SetupRoutes configures all application routes and middleware.
func SetupRoutes(router *gin.Engine, env *Env, uploadsDir string) {
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := os.Getenv("CORS_ORIGIN")
	if corsOrigin == "" {
		corsOrigin = "*" // Default to allow all for local dev
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	limiter := NewIPRateLimiter(rate.Limit(authRateLimitRPS), authRateLimitBurst)
	go limiter.Sweep(10 * time.Minute)

	requireAuth := auth.RequireAuth(env.Auth)
	optionalAuth := auth.OptionalAuth(env.Auth)
	requireAdmin := auth.RequireAdmin()

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", RateLimitMiddleware(limiter), env.Register)
			authGroup.POST("/login", RateLimitMiddleware(limiter), env.Login)
			authGroup.GET("/me", requireAuth, env.Me)
			authGroup.GET("/approve/:token", requireAuth, requireAdmin, env.ApproveRegistration)
			authGroup.GET("/reject/:token", requireAuth, requireAdmin, env.RejectRegistration)
		}

		ann := api.Group("/announcements")
		{
			ann.GET("", optionalAuth, env.GetAnnouncements)
			ann.GET("/all", requireAuth, requireAdmin, env.GetAllAnnouncements)
			ann.GET("/:id", optionalAuth, env.GetAnnouncement)
			ann.POST("", requireAuth, requireAdmin, env.CreateAnnouncement)
			ann.PATCH("/:id", requireAuth, requireAdmin, env.UpdateAnnouncement)
			ann.DELETE("/:id", requireAuth, requireAdmin, env.DeleteAnnouncement)
			ann.POST("/:id/pin", requireAuth, requireAdmin, env.TogglePin)

			// Reactions and views are open to anonymous and visitor
			// identities; removal is authenticated-only.
			ann.POST("/:id/reactions", optionalAuth, env.AddReaction)
			ann.DELETE("/:id/reactions", requireAuth, env.RemoveReaction)
			ann.POST("/:id/views", optionalAuth, env.RecordView)
			ann.GET("/:id/viewers", requireAuth, requireAdmin, env.GetViewers)
		}

		gallery := api.Group("/gallery")
		{
			gallery.GET("", env.GetGallery)
			gallery.POST("/images", requireAuth, requireAdmin, env.CreateGalleryImage)
			gallery.POST("/videos", requireAuth, requireAdmin, env.CreateGalleryVideo)
			gallery.PATCH("/:id", requireAuth, requireAdmin, env.UpdateGalleryItem)
			gallery.POST("/reorder", requireAuth, requireAdmin, env.ReorderGallery)
			gallery.DELETE("/:id", requireAuth, requireAdmin, env.DeleteGalleryItem)
		}

		api.GET("/stats", env.GetStats)
	}

	router.GET("/ws", env.Gateway.HandleConnection)

	if uploadsDir != "" {
		router.Static("/uploads", uploadsDir)
	}
}
