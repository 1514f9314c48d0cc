package httpx

import (
	"log/slog"
	"net/http"

	"github.com/gistseek/gistseek/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Search *service.SearchService
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	searchHandlers := &SearchHandlers{Svc: services.Search}
	registerSearchRoutes(mux, searchHandlers)

	mux.Handle("GET /ping", http.HandlerFunc(pingHandler))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

func registerSearchRoutes(mux *http.ServeMux, h *SearchHandlers) {
	mux.Handle("POST /api/v1/search", http.HandlerFunc(h.Submit))
	mux.Handle("GET /api/v1/search/{request_id}", http.HandlerFunc(h.GetStatus))
	mux.Handle("GET /api/v1/search_result/{request_id}", http.HandlerFunc(h.GetResults))
}
