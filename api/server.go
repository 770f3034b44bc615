/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK (outermost first):
  1. RequestID:   Unique ID per request, echoed in X-Request-Id
  2. RealIP:      Client address from X-Forwarded-For / X-Real-IP
  3. Logging:     zerolog request logger plus one access line per request
  4. Recoverer:   Panic recovery (500 instead of crash)
  5. Timeout:     Cancels the request context after RequestTimeout
  6. Security:    unrolled/secure headers, HTTPS redirect in production
  7. Rate limit:  Per-IP limit per minute (disabled when zero)
  8. CORS:        Cross-origin requests for the frontend
  9. Actor:       X-User header into the request context

ROUTE GROUPS:
  /api/health           Liveness and store ping
  /api/orders/*         Order lifecycle
  /api/periods/*        Periods, closing, recalculation
  /api/brands/*         Brand management
  /api/settings         Commission settings
  /api/dashboard        Monthly stats, rankings, last seven days
  /api/backup           Export / import
  /api/admin/*          Totals reconciliation
  /api/scenarios/*      Demo data (development only)

SECURITY NOTE:
  No authentication. X-User is trusted as-is and only feeds audit entries.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/unrolled/secure"

	"github.com/warp/commission-ledger/ledger"
)

// ActorHeader names the user recorded in audit entries.
const ActorHeader = "X-User"

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	Logger             zerolog.Logger
	AllowedOrigins     []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	Production         bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(requestIDLogger)
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	r.Use(securityHeaders(opts.Production))
	if opts.RateLimitPerMinute > 0 {
		r.Use(httprate.Limit(opts.RateLimitPerMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP)))
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		ExposedHeaders:   []string{"Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(actor)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.CreateOrder)
			r.Post("/bulk/status", h.BulkStatus)
			r.Post("/bulk/delete", h.BulkDelete)
			r.Get("/{id}", h.GetOrder)
			r.Put("/{id}", h.UpdateOrder)
			r.Delete("/{id}", h.DeleteOrder)
			r.Post("/{id}/duplicate", h.DuplicateOrder)
			r.Post("/{id}/status", h.SetOrderStatus)
		})

		r.Route("/periods", func(r chi.Router) {
			r.Get("/", h.ListPeriods)
			r.Get("/{id}", h.GetPeriod)
			r.Post("/{id}/close", h.ClosePeriod)
			r.Post("/{id}/recalculate", h.RecalculatePeriod)
		})

		r.Route("/brands", func(r chi.Router) {
			r.Get("/", h.ListBrands)
			r.Post("/", h.CreateBrand)
			r.Put("/{id}", h.RenameBrand)
			r.Delete("/{id}", h.DeleteBrand)
		})

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)

		r.Get("/dashboard", h.Dashboard)

		r.Get("/backup", h.ExportBackup)
		r.Post("/backup", h.ImportBackup)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/reconcile", h.ReconcileStatus)
			r.Post("/reconcile", h.Reconcile)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/{id}", h.LoadScenario)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return r
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// requestIDLogger tags the request logger with chi's request id and echoes
// it to the client.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
			log := zerolog.Ctx(r.Context())
			log.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	ev := hlog.FromRequest(r).Info()
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func securityHeaders(production bool) func(http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sm.Process(w, r); err != nil {
				// secure already wrote the redirect or rejection
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// actor stores the X-User header as the audit actor.
func actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := strings.TrimSpace(r.Header.Get(ActorHeader)); user != "" {
			r = r.WithContext(ledger.WithActor(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}
