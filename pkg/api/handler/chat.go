package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dskvich/recipe-stream/pkg/api/response"
	"github.com/dskvich/recipe-stream/pkg/domain"
	"github.com/dskvich/recipe-stream/pkg/services"
)

type ChatService interface {
	SubmitSuggestions(ctx context.Context, chatID string, req domain.PromptRequest) (*services.Round, error)
	Messages(ctx context.Context, chatID string) ([]domain.Message, error)
	StuckMessages(ctx context.Context, threshold time.Duration) ([]domain.RunningMessage, error)
}

type chat struct {
	service        ChatService
	stuckThreshold time.Duration
	writer         response.JSONResponseWriter
	sse            response.SSEWriter
}

func NewChat(service ChatService, stuckThreshold time.Duration) *chat {
	return &chat{
		service:        service,
		stuckThreshold: stuckThreshold,
	}
}

func (h *chat) Suggestions(c *gin.Context) {
	var req domain.PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writer.WriteErrorResponse(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	round, err := h.service.SubmitSuggestions(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writer.WriteErrorResponse(c, err)
		return
	}

	streamRound(c, round, &h.sse)
}

func (h *chat) Messages(c *gin.Context) {
	msgs, err := h.service.Messages(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writer.WriteErrorResponse(c, err)
		return
	}
	h.writer.WriteSuccessResponse(c, http.StatusOK, msgs)
}

func (h *chat) StuckMessages(c *gin.Context) {
	msgs, err := h.service.StuckMessages(c.Request.Context(), h.stuckThreshold)
	if err != nil {
		h.writer.WriteErrorResponse(c, err)
		return
	}
	h.writer.WriteSuccessResponse(c, http.StatusOK, msgs)
}
