package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"extractd/internal/http/handlers"
	"extractd/internal/infra"
	"extractd/internal/infra/geoip"
	"extractd/internal/middleware"
)

// Options configures the router beyond the handler set.
type Options struct {
	Logger          infra.Logger
	Registry        *prometheus.Registry
	Resolver        geoip.CountryResolver
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Identity(opts.Resolver),
	)

	// The limiter guards the mutating endpoints only; list/status reads are
	// cheap and the UI polls them.
	limit := func(next http.Handler) http.Handler { return next }
	if opts.RateLimitPerMin > 0 {
		limit = middleware.RateLimit(opts.RateLimitPerMin, time.Minute)
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Get("/", app.JobsList)
		r.With(limit).Post("/", app.JobsCreate)
		r.With(limit).Post("/refresh", app.JobsRefresh)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.JobsGet)
			r.Get("/status", app.JobsStatus)
			r.With(limit).Post("/documents", app.JobsUpload)
			r.With(limit).Post("/trigger", app.JobsTrigger)
		})
	})

	r.Get("/v1/logs", app.Logs)

	if opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	return r
}
