package router

import (
	"github.com/cuongbtq/translation-dispatch/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	h := handler.NewTranslationHandler(deps)

	r.GET("/health", h.Health)
	r.GET("/health/detailed", h.HealthDetailed)

	v1 := r.Group("/api/v1")
	{
		translations := v1.Group("/translations")
		{
			translations.POST("", h.CreateTranslation)
			translations.GET("", h.ListTranslations)
			translations.GET("/:request_id", h.GetTranslation)
			translations.POST("/:request_id/cancel", h.CancelTranslation)
			translations.DELETE("/:request_id", h.CancelTranslation)
		}

		v1.GET("/stats", h.GetStats)
		v1.GET("/languages", h.ListLanguages)
	}

	return r
}
