// Package kernel assembles the HTTP handler: the global middleware stack,
// operational endpoints and the API routes.
package kernel

import (
	"context"
	"net/http"
	"time"

	"github.com/shashiranjanraj/bunkar/app/routes"
	"github.com/shashiranjanraj/bunkar/pkg/metrics"
	"github.com/shashiranjanraj/bunkar/pkg/middleware"
	"github.com/shashiranjanraj/bunkar/pkg/reqid"
	"github.com/shashiranjanraj/bunkar/pkg/response"
	"github.com/shashiranjanraj/bunkar/pkg/router"
	"github.com/shashiranjanraj/bunkar/pkg/session"
)

// Checker reports whether a dependency is healthy.
type Checker func(ctx context.Context) error

// Options configures the kernel.
type Options struct {
	Session session.Options
	Checks  map[string]Checker
}

// NewRouter builds the router with every route registered.
func NewRouter(d routes.Deps, opts Options) *router.Router {
	r := router.New()

	// Outermost first: metrics sees total latency, recovery guards
	// everything below it, the request id exists before anything logs.
	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(middleware.DefaultCORSOptions()))
	r.Use(session.Middleware(opts.Session))
	r.Use(middleware.RateLimit(200, time.Minute))

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", "healthz", health(opts.Checks))

	routes.RegisterAPI(r, d)
	return r
}

// Handler returns the HTTP handler for the application.
func Handler(d routes.Deps, opts Options) http.Handler {
	return NewRouter(d, opts).Handler()
}

func health(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			response.Unavailable(w, map[string]any{"status": "unavailable", "checks": status})
			return
		}
		response.Success(w, map[string]any{"status": "ok", "checks": status})
	}
}
