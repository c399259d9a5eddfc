/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. Logger:     Request logging (zap)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for an HR frontend

ROUTE GROUPS:
  /api/leave-types/*    Leave type reference data
  /api/policies/*       Policy lifecycle
  /api/balances/*       Balances and their journal
  /api/transactions/*   Single journal entries
  /api/requests/*       Leave requests
  /api/encashments/*    Encashments
  /api/cycles/*         Carry-over cycles
  /api/leave-years/*    Leave-year configuration
  /api/audit            Audit trail
  /api/scenarios/*      Demo scenarios (only with a Resetter)
  /healthz              Liveness
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. The X-Actor-ID header is trusted as-is.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/leave"
)

// RouterOptions configures the parts of the router that vary by deployment.
type RouterOptions struct {
	CORSOrigins []string

	// Gatherer backs /metrics. The route is omitted when nil.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", ActorHeader},
			AllowCredentials: true,
		}))
	}
	r.Use(actorContext)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/leave-types", func(r chi.Router) {
			r.Get("/", h.ListLeaveTypes)
			r.Post("/", h.CreateLeaveType)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Post("/retire-expired", h.RetireExpiredPolicies)
			r.Get("/{id}", h.GetPolicy)
			r.Patch("/{id}", h.UpdatePolicy)
			r.Post("/{id}/activate", h.ActivatePolicy)
			r.Post("/{id}/retire", h.RetirePolicy)
		})

		r.Route("/balances", func(r chi.Router) {
			r.Get("/", h.ListBalances)
			r.Post("/", h.OpenBalance)
			r.Get("/{id}", h.GetBalance)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/replay", h.ReplayBalance)
			r.Post("/{id}/adjustments", h.CreateAdjustment)
			r.Post("/{id}/close", h.CloseBalance)
			r.Post("/{id}/reopen", h.ReopenBalance)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Patch("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.ArchiveTransaction)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.SubmitRequest)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		r.Route("/encashments", func(r chi.Router) {
			r.Get("/", h.ListEncashments)
			r.Post("/", h.CreateEncashment)
			r.Get("/{id}", h.GetEncashment)
			r.Patch("/{id}", h.UpdateEncashment)
			r.Delete("/{id}", h.ArchiveEncashment)
			r.Post("/{id}/pay", h.MarkEncashmentPaid)
		})

		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", h.ListCycles)
			r.Post("/", h.OpenCycle)
			r.Get("/active", h.GetActiveCycle)
			r.Post("/{id}/close", h.CloseCycle)
		})

		r.Route("/leave-years", func(r chi.Router) {
			r.Get("/", h.ListLeaveYears)
			r.Post("/", h.CreateLeaveYear)
			r.Get("/resolve", h.ResolveLeaveYear)
			r.Patch("/{id}", h.UpdateLeaveYear)
			r.Delete("/{id}", h.ArchiveLeaveYear)
		})

		r.Get("/audit", h.ListAudit)

		if h.Resetter != nil {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}

// actorContext copies the X-Actor-ID header into the request context.
func actorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(ActorHeader); actor != "" {
			r = r.WithContext(leave.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
