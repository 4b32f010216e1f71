package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dskvich/recipe-stream/pkg/domain"
	"github.com/dskvich/recipe-stream/pkg/logger"
)

type JSONResponseWriter struct{}

func (j *JSONResponseWriter) WriteSuccessResponse(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, data)
}

// WriteErrorResponse maps err to a status code. Server side failures are logged and not echoed.
func (j *JSONResponseWriter) WriteErrorResponse(c *gin.Context, err error) {
	statusCode := StatusCode(err)

	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "Request failed", "path", c.FullPath(), logger.Err(err))
		message = "internal error"
	}

	c.AbortWithStatusJSON(statusCode, ErrorResponse{Error: message})
}

func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRoundInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMissingContext):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}
