package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"learnhub/internal/api/handlers"
	"learnhub/internal/logger"
)

// SetupRoutes sets up the API routes
func SetupRoutes(router *gin.Engine, handler *handlers.Handler, frontendURL string, log *logger.Logger) {
	router.Use(RequestLogger(log))
	router.Use(CORSMiddleware(frontendURL))

	router.GET("/health", handler.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Generation runs in the background; poll /status/:taskId.
	router.POST("/generate", handler.HandleGenerate)
	router.POST("/generate/text", handler.HandleGenerateFromText)
	router.POST("/generate/link", handler.HandleGenerateFromLink)
	router.GET("/status/:taskId", handler.HandleTaskStatus)

	router.GET("/quota/:userId", handler.HandleGetQuota)
	router.GET("/constants", handler.HandleListConstants)
	router.POST("/constants", handler.HandleSetConstant)
	router.GET("/categories", handler.HandleListCategories)

	quizzes := router.Group("/quizzes")
	{
		quizzes.POST("/search", handler.HandleSearchQuizzes)
		quizzes.POST("/count", handler.HandleCountQuizzes)
		quizzes.GET("/:id", handler.HandleGetQuiz)
		quizzes.PUT("/:id", handler.HandleUpdateQuiz)
		quizzes.DELETE("/:id", handler.HandleDeleteQuiz)
	}

	results := router.Group("/results")
	{
		results.POST("/quiz/:quizId/user/:userId", handler.HandleCreateResult)
		results.GET("/quiz/:quizId", handler.HandleListQuizResults)
		results.GET("/user/:userId", handler.HandleListUserResults)
		results.GET("/:id", handler.HandleGetResult)
		results.PUT("/:id/answer", handler.HandleAnswerQuestion)
		results.DELETE("/:id", handler.HandleDeleteResult)
	}

	documents := router.Group("/documents")
	{
		documents.POST("/upload", handler.HandleUploadDocument)
		documents.POST("/search", handler.HandleSearchDocuments)
		documents.POST("/count", handler.HandleCountDocuments)
		documents.GET("/:id", handler.HandleGetDocument)
	}

	rag := router.Group("/rag")
	{
		rag.POST("/add", handler.HandleAddDocument)
		rag.POST("/query", handler.HandleQueryDocuments)
	}
}
