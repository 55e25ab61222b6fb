// Package httpapi assembles the chi router for the credential endpoints,
// the tenant-scoped admin CRUD surface, and the live documentation page
// §6 requires at "/".
package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tms-project/tms/internal/applog"
	"github.com/tms-project/tms/internal/config"
	"github.com/tms-project/tms/internal/kernel"
)

// New assembles the full router: standard middleware stack, CORS from the
// configured server_urls, the three credential endpoints, the admin CRUD
// surface under /v1/tms, and the documentation page at "/".
func New(k *kernel.Kernel, cfg config.Config, logger applog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestLogger(logger))
	r.Use(securityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.ServerURLs,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-TMS-Tenant", "X-TMS-Admin-User", "X-TMS-Admin-Secret"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/v1/tms", func(tr chi.Router) {
		tr.Route("/creds", func(cr chi.Router) {
			cr.Post("/sshkeys", mintHandler(k))
			cr.Post("/publickey", resolveHandler(k))
			cr.Post("/reservations", reserveHandler(k))
		})
		mountCRUD(tr, k)
	})

	r.Get("/", docsHandler(r, cfg))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	return r
}

// docsHandler walks the assembled router (per the go-chi/chi Walk pattern)
// to render a plain-text enumeration of the live route surface, per §6's
// "live documentation page ... enumerates the surface."
func docsHandler(r chi.Router, cfg config.Config) http.HandlerFunc {
	type route struct {
		method string
		path   string
	}
	return func(w http.ResponseWriter, req *http.Request) {
		var routes []route
		_ = chi.Walk(r, func(method, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			routes = append(routes, route{method: method, path: path})
			return nil
		})
		sort.Slice(routes, func(i, j int) bool {
			if routes[i].path == routes[j].path {
				return routes[i].method < routes[j].method
			}
			return routes[i].path < routes[j].path
		})

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s - Trust Manager System\n\n", cfg.Title)
		for _, rt := range routes {
			fmt.Fprintf(w, "%-7s %s\n", rt.method, rt.path)
		}
	}
}
