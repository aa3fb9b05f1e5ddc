package http

import (
	"net/http"

	"github.com/atinyakov/GalleryKeeper/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler of the gallery service.
//
// Routes:
//
//	POST /download/request                  → downloadHandler.Request
//	POST /download/verify                   → downloadHandler.Verify
//	GET  /downloads/secure                  → downloadHandler.Secure
//	POST /favorites                         → favoritesHandler.Toggle
//	GET  /favorites/shares/{token}          → favoritesHandler.ShareReport
//	GET  /favorites/collections/{id}/report → favoritesHandler.CollectionReport
//	GET  /healthz
//	GET  /metrics
//
// Middleware chain (applied in order):
//  1. RequestID, Recoverer
//  2. WithRequestLogging(logger)
//  3. WithRequestMetrics
//  4. ShareToken
//
// JSON endpoints additionally reject bodies that are not application/json.
func NewRouter(
	downloadHandler *DownloadHandler,
	favoritesHandler *FavoritesHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.WithRequestMetrics)
	r.Use(middleware.ShareToken)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/json"))

		r.Post("/download/request", downloadHandler.Request)
		r.Post("/download/verify", downloadHandler.Verify)
		r.Post("/favorites", favoritesHandler.Toggle)
	})

	r.Get("/downloads/secure", downloadHandler.Secure)
	r.Get("/favorites/shares/{token}", favoritesHandler.ShareReport)
	r.Get("/favorites/collections/{id}/report", favoritesHandler.CollectionReport)

	return r
}
