package app

import (
	"time"

	"socratic_backend/docs"
	"socratic_backend/internal/config"
	"socratic_backend/internal/middleware"
	"socratic_backend/pkg/monitoring"
	"socratic_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api/v1"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/health", c.health.HealthCheck)

	v1 := router.Group("/api/v1")

	// 1. 认证
	a.registerAuthRoutes(v1, c, cfg)

	// 2. 调用大模型的接口：可选登录，单独限流
	llmGroup := v1.Group("")
	llmGroup.Use(
		middleware.TryAuthMiddleware(cfg),
		security.NamedRateLimiter("generation", cfg.RateLimit.GenerationPerMinute, time.Minute, security.UserOrIPKey),
	)
	{
		a.registerGenerationRoutes(llmGroup, c)
		a.registerSimilarityRoutes(llmGroup, c)
		a.registerRefinementRoutes(llmGroup, c, cfg)
	}

	// 3. 题目管理
	a.registerQuestionRoutes(v1, c, cfg)
}

func (a *App) registerAuthRoutes(rg *gin.RouterGroup, c *controllers, cfg *config.Config) {
	auth := rg.Group("/auth")
	{
		auth.POST("/login", c.auth.Login)
		auth.GET("/me", middleware.AuthMiddleware(cfg), c.auth.Me)
	}
}

func (a *App) registerGenerationRoutes(rg *gin.RouterGroup, c *controllers) {
	generate := rg.Group("/generate")
	{
		generate.POST("/from-text", c.generation.FromText)
		generate.POST("/from-pdf", c.generation.FromPDF)
		generate.POST("/from-images", c.generation.FromImages)
		generate.GET("/session/:id", c.generation.GetSession)
	}
}

func (a *App) registerSimilarityRoutes(rg *gin.RouterGroup, c *controllers) {
	similar := rg.Group("/similar")
	{
		similar.POST("/analyze", c.similarity.Analyze)
		similar.POST("/generate", c.similarity.Generate)
		similar.POST("/batch", c.similarity.Batch)
	}
}

func (a *App) registerRefinementRoutes(rg *gin.RouterGroup, c *controllers, cfg *config.Config) {
	refine := rg.Group("/refine")
	{
		refine.POST("/refine", c.refinement.Refine)
		refine.GET("/conversation/:id", c.refinement.GetConversation)
		refine.POST("/conversation/:id/reset", c.refinement.ResetConversation)
		refine.GET("/question/:id/history", middleware.AuthMiddleware(cfg), c.refinement.QuestionHistory)
	}
}

func (a *App) registerQuestionRoutes(rg *gin.RouterGroup, c *controllers, cfg *config.Config) {
	questions := rg.Group("/questions")
	{
		// 无主题目允许匿名查看
		questions.GET("/:id", middleware.TryAuthMiddleware(cfg), c.question.GetQuestion)

		authorized := questions.Group("")
		authorized.Use(middleware.AuthMiddleware(cfg))
		{
			authorized.GET("", c.question.ListQuestions)
			authorized.PATCH("/:id", c.question.UpdateQuestion)
			authorized.DELETE("/:id", c.question.DeleteQuestion)
			authorized.POST("/bulk-delete", c.question.BulkDeleteQuestions)
		}
	}
}
