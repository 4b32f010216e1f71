package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/dskvich/recipe-stream/pkg/api/response"
	"github.com/dskvich/recipe-stream/pkg/logger"
	"github.com/dskvich/recipe-stream/pkg/services"
)

// streamRound relays round chunks to the client until the round ends or the client leaves.
// A departed client detaches the relay; the round still finalizes in the background.
func streamRound(c *gin.Context, round *services.Round, sse *response.SSEWriter) {
	ctx := c.Request.Context()
	sse.Start(c)

	for {
		select {
		case chunk, ok := <-round.Chunks():
			if !ok {
				return
			}
			if err := sse.Message(c, chunk); err != nil {
				round.Detach()
				slog.WarnContext(ctx, "Relay to client failed, round continues", "messageId", round.MessageID, logger.Err(err))
				return
			}
		case <-ctx.Done():
			round.Detach()
			slog.InfoContext(ctx, "Client disconnected, round continues", "messageId", round.MessageID)
			return
		}
	}
}
