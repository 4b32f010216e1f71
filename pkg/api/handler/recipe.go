package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dskvich/recipe-stream/pkg/api/response"
	"github.com/dskvich/recipe-stream/pkg/domain"
	"github.com/dskvich/recipe-stream/pkg/services"
)

const (
	defaultNewRecipesLimit = 20
	maxNewRecipesLimit     = 100
)

type RecipeService interface {
	Select(ctx context.Context, chatID string, req domain.SelectRecipeRequest) (*domain.Recipe, error)
	Generate(ctx context.Context, slug string, req domain.PromptRequest) (*services.Round, error)
	Get(ctx context.Context, slug string) (map[string]any, error)
	ListNew(ctx context.Context, limit int) ([]string, error)
}

type recipe struct {
	service RecipeService
	writer  response.JSONResponseWriter
	sse     response.SSEWriter
}

func NewRecipe(service RecipeService) *recipe {
	return &recipe{service: service}
}

func (h *recipe) Select(c *gin.Context) {
	var req domain.SelectRecipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writer.WriteErrorResponse(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	r, err := h.service.Select(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writer.WriteErrorResponse(c, err)
		return
	}
	h.writer.WriteSuccessResponse(c, http.StatusCreated, gin.H{"slug": r.Slug})
}

func (h *recipe) Get(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.writer.WriteErrorResponse(c, err)
		return
	}
	h.writer.WriteSuccessResponse(c, http.StatusOK, doc)
}

func (h *recipe) Generate(c *gin.Context) {
	var req domain.PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writer.WriteErrorResponse(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	round, err := h.service.Generate(c.Request.Context(), c.Param("slug"), req)
	if err != nil {
		h.writer.WriteErrorResponse(c, err)
		return
	}

	streamRound(c, round, &h.sse)
}

func (h *recipe) ListNew(c *gin.Context) {
	limit := defaultNewRecipesLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxNewRecipesLimit {
			h.writer.WriteErrorResponse(c, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxNewRecipesLimit))
			return
		}
		limit = n
	}

	slugs, err := h.service.ListNew(c.Request.Context(), limit)
	if err != nil {
		h.writer.WriteErrorResponse(c, err)
		return
	}
	h.writer.WriteSuccessResponse(c, http.StatusOK, gin.H{"slugs": slugs})
}
