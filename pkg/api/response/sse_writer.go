package response

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
)

// SSEWriter frames each chunk as a "message" event carrying a JSON string.
// The stream ends when the response is closed; there is no terminal event.
type SSEWriter struct{}

func (s *SSEWriter) Start(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(200)
	c.Writer.Flush()
}

func (s *SSEWriter) Message(c *gin.Context, chunk string) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}
	if _, err := fmt.Fprintf(c.Writer, "event: message\ndata: %s\n\n", data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	c.Writer.Flush()
	return nil
}
