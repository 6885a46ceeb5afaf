package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/txtask/internal/api/middleware"
	"github.com/phrazzld/txtask/internal/task"
)

// RouterConfig holds what NewRouter needs to build the HTTP surface
type RouterConfig struct {
	Tasks      TaskSource
	Runs       task.RunStore
	NewManager apiMiddleware.ManagerFactory
	Logger     *slog.Logger
}

// NewRouter creates the application router with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(cfg.Logger))

	handler := NewTaskHandler(cfg.Tasks, cfg.Runs, cfg.Logger)

	r.Route("/api", func(r chi.Router) {
		r.With(apiMiddleware.Transaction(cfg.NewManager)).Post("/tasks/{name}", handler.SubmitTask)
		r.Get("/runs", handler.ListRuns)
		r.Get("/runs/{id}", handler.GetRun)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			cfg.Logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
