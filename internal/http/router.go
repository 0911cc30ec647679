package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signage-player/webplayer/internal/http/handlers"
)

// NewRouter builds the local player surface: kiosk page, JSON API and media.
func NewRouter(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON(api))
	r.Use(StripForwardedPrefix)
	r.Use(RequestLogger(api, "/api/now", "/healthz"))

	r.Get("/healthz", api.Health)
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(middleware.Timeout(20 * time.Second))
		apiRouter.Get("/now", api.Now)
		apiRouter.Get("/status", api.Status)
		apiRouter.Post("/reload", api.Reload)
	})
	r.Get("/media/{key}", func(w http.ResponseWriter, r *http.Request) {
		api.Media(w, r, chi.URLParam(r, "key"))
	})

	r.Get("/", api.Index)
	return r
}
