package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"posterd/internal/http/handlers"
	"posterd/internal/infra"
	"posterd/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*infra.LoggerOrDiscard(app.Logger)),
	)
	if app.Config != nil {
		r.Use(middleware.CORS(app.Config.CORSAllowedOrigins))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/posters", func(r chi.Router) {
		limit := 0
		if app.Config != nil {
			limit = app.Config.RateLimitPerMin
		}
		r.With(middleware.RateLimit(limit, time.Minute)).Post("/", app.CreatePoster)
		r.Get("/{task_id}", app.GetPoster)
		r.Get("/{task_id}/zip", app.DownloadPosterZip)
	})

	return r
}
