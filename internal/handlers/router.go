package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Engine is what the HTTP surface needs from the running driver.
type Engine interface {
	SnapshotReader
	FillSubmitter
}

// NewRouter builds the query and fill intake API.
func NewRouter(engine Engine, timeout time.Duration, logger *slog.Logger) (http.Handler, error) {
	state := NewStateHandler(engine, logger)
	fills, err := NewFillHandler(engine, logger)
	if err != nil {
		return nil, fmt.Errorf("fill handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(timeout, logger))

	r.Get("/health", HealthCheckHandler(engine))
	r.Get("/top_of_book", state.TopOfBook)
	r.Get("/inventory", state.Inventory)
	r.Get("/orders", state.Orders)
	r.Method(http.MethodPost, "/fills", fills)
	return r, nil
}
