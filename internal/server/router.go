package server

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/casaviva/decora-backend/internal/handlers"
	"github.com/casaviva/decora-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler    *handlers.AuthHandler
	AuthMiddleware *middleware.AuthMiddleware
	UserHandler    *handlers.UserHandler
	DesignHandler  *handlers.DesignHandler
	ProductHandler *handlers.ProductHandler
	SSEHandler     *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("decora-backend"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)
	router.POST("/refresh", cfg.AuthHandler.Refresh)

	// Protected
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	protected.POST("/logout", cfg.AuthHandler.Logout)
	protected.GET("/user", cfg.UserHandler.GetMe)

	protected.GET("/sse/stream", cfg.SSEHandler.Stream)

	protected.POST("/projects", cfg.DesignHandler.SubmitPhoto)
	protected.GET("/projects", cfg.DesignHandler.ListProjects)
	protected.GET("/projects/:projectID", cfg.DesignHandler.GetProject)
	protected.POST("/projects/:projectID/render", cfg.DesignHandler.RenderFinal)
	protected.GET("/projects/:projectID/chat", cfg.DesignHandler.GetTranscript)
	protected.POST("/projects/:projectID/chat", cfg.DesignHandler.PostChatMessage)
	protected.POST("/projects/:projectID/items/:itemID/select", cfg.DesignHandler.SelectProduct)
	protected.POST("/projects/:projectID/items/:itemID/feedback", cfg.DesignHandler.SubmitFeedback)

	protected.POST("/products", cfg.ProductHandler.Create)
	protected.GET("/products", cfg.ProductHandler.List)
	protected.GET("/products/:productID", cfg.ProductHandler.Get)
	protected.POST("/products/embeddings/backfill", cfg.ProductHandler.BackfillEmbeddings)

	return router
}

func allowedOrigins() []string {
	raw := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if raw == "" {
		return []string{"http://localhost:3000", "http://localhost:5173"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
