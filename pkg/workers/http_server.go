package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dskvich/recipe-stream/pkg/logger"
)

const readHeaderTimeout = 10 * time.Second

// Drainer finishes background work before the process exits.
type Drainer interface {
	Shutdown(ctx context.Context) error
}

type httpServer struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
	drainers        []Drainer

	listening chan net.Addr
}

func NewHTTPServer(addr string, handler http.Handler, shutdownTimeout time.Duration, drainers ...Drainer) *httpServer {
	return &httpServer{
		addr:            addr,
		handler:         handler,
		shutdownTimeout: shutdownTimeout,
		drainers:        drainers,
		listening:       make(chan net.Addr, 1),
	}
}

func (h *httpServer) Name() string { return "http_server" }

// Start serves until ctx is done. Streaming responses in flight and open generation
// rounds get shutdownTimeout to complete.
func (h *httpServer) Start(ctx context.Context) error {
	slog.Info("Starting worker", "name", h.Name(), "addr", h.addr)
	defer slog.Info("Worker stopped", "name", h.Name())

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}
	h.listening <- ln.Addr()

	srv := &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown incomplete", logger.Err(err))
	}
	for _, d := range h.drainers {
		if err := d.Shutdown(shutdownCtx); err != nil {
			slog.Error("Open generation rounds not drained", logger.Err(err))
		}
	}
	return nil
}

// Addr blocks until the server is listening and returns its address.
func (h *httpServer) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case addr := <-h.listening:
		h.listening <- addr
		return addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
