/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Observe:    zerolog access log + Prometheus request metrics
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the catalog frontend
  6. httprate:   Per-IP request limit (when RateLimit > 0)

ROUTE GROUPS:
  /api/loans/*       Borrow lifecycle
  /api/accounts/*    Borrowers and their loans
  /api/books/*       Catalog and recommendations
  /api/admin/*       Librarian operations
  /api/scenarios/*   Demo data
  /api/version       Polling counter
  /metrics           Prometheus

SECURITY NOTE:
  No authentication middleware. The acting account comes from a header
  set by whatever fronts this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/warp/lending-engine/metrics"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observe(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AccountHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if opts.RateLimit > 0 {
		window := opts.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(opts.RateLimit, window))
	}

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/version", h.GetVersion)

		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.RequestLoan)
			r.Post("/walkup", h.Walkup)
			r.Get("/pending", h.ListPendingRequests)
			r.Get("/pending-returns", h.ListPendingReturns)
			r.Post("/{id}/approve", h.ApproveLoan)
			r.Post("/{id}/reject", h.RejectLoan)
			r.Post("/{id}/cancel", h.CancelLoan)
			r.Post("/{id}/return-request", h.RequestReturn)
			r.Post("/{id}/return-withdraw", h.WithdrawReturn)
			r.Post("/{id}/confirm-return", h.ConfirmReturn)
			r.Delete("/{id}", h.DeleteClosedLoan)
		})

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Delete("/{id}", h.DeleteAccount)
			r.Get("/{id}/loans", h.GetAccountLoans)
			r.Get("/{id}/history", h.GetAccountHistory)
			r.Get("/{id}/recommendations", h.AccountRecommendations)
		})

		// Book routes
		r.Route("/books", func(r chi.Router) {
			r.Get("/", h.ListBooks)
			r.Post("/", h.CreateBook)
			r.Get("/popular", h.PopularBooks)
			r.Put("/{id}/quantity", h.SetBookQuantity)
			r.Delete("/{id}", h.DeleteBook)
			r.Get("/{id}/recommendations", h.BookRecommendations)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reconcile", h.Reconcile)
			r.Post("/mine", h.MineRules)
			r.Get("/association-rules", h.ListAssociationRules)
			r.Get("/rules", h.GetBorrowRules)
			r.Put("/rules", h.PutBorrowRules)
			r.Post("/due-notices", h.SendDueNotices)
			r.Delete("/loans/{id}", h.ForceDeleteLoan)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// observe logs each request and records it under its route pattern so
// /loans/{id}/approve is one series, not one per loan.
func observe(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(status), elapsed)

			ev := log.Debug()
			if status >= http.StatusInternalServerError {
				ev = log.Warn()
			}
			ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", elapsed).
				Msg("http request")
		})
	}
}
