package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dskvich/recipe-stream/pkg/api/handler"
)

func NewRouter(chat handler.ChatService, recipe handler.RecipeService, stuckThreshold time.Duration) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), handler.RequestLogger())

	chatHandler := handler.NewChat(chat, stuckThreshold)
	recipeHandler := handler.NewRecipe(recipe)

	router.GET("/healthz", handler.Health)

	router.POST("/chat/:id/suggestions", chatHandler.Suggestions)
	router.GET("/chat/:id/messages", chatHandler.Messages)
	router.POST("/chat/:id/recipes", recipeHandler.Select)

	router.GET("/recipe/:slug", recipeHandler.Get)
	router.POST("/recipe/:slug", recipeHandler.Generate)
	router.GET("/recipes/new", recipeHandler.ListNew)

	router.GET("/messages/stuck", chatHandler.StuckMessages)

	return router
}
