/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed as X-Request-ID
  2. hlog:       zerolog request logger + access log line
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. Auth:       Actor resolution (see auth.go), /api only

ROUTE GROUPS:
  /api/health              Liveness
  /api/employees/*         Employees, balances, patterns, weeks, presence, leave
  /api/org-units/*         Org units (base weekly hours, holiday calendar)
  /api/patterns/*          Pattern commit / cancel
  /api/weeks/*             Weekly balance lifecycle
  /api/leave/*             Leave approval / cancellation
  /api/catalog, /api/presence-types, /api/leave-types
  /api/holidays/*, /api/calendars/*
  /api/audit               Audit log
  /api/admin/*             Job trigger
  /api/scenarios/*         Demo scenarios

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
	"github.com/rs/zerolog/hlog"
	"github.com/warp/flexitime-engine/pkg/messaging"
)

var devOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	origins := h.CORSOrigins
	if len(origins) == 0 {
		origins = devOrigins
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(h.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("HTTP request")
	}))
	r.Use(requestContext)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Employee-ID", "X-Role", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Middleware)
			h.routes(r)
		})
	})

	return r
}

func (h *Handler) routes(r chi.Router) {
	// Employee routes
	r.Route("/employees", func(r chi.Router) {
		r.Get("/", h.ListEmployees)
		r.Post("/", h.CreateEmployee)
		r.Get("/{id}", h.GetEmployee)
		r.Get("/{id}/balance", h.GetBalance)
		r.Get("/{id}/expected-hours", h.ExpectedHours)
		r.Get("/{id}/weekly-expected", h.WeeklyExpected)
		r.Get("/{id}/patterns", h.ListPatterns)
		r.Post("/{id}/patterns", h.SavePattern)
		r.Get("/{id}/weeks", h.ListWeeks)
		r.Post("/{id}/weeks", h.CreateWeek)
		r.Get("/{id}/weeks/export", h.ExportWeeks)
		r.Get("/{id}/presence", h.ListPresence)
		r.Put("/{id}/presence/{date}", h.SetPresence)
		r.Get("/{id}/leave", h.ListLeave)
		r.Post("/{id}/leave", h.ApplyLeave)
		r.Get("/{id}/allocations", h.ListAllocations)
		r.Post("/{id}/allocations", h.Allocate)
	})

	r.Route("/org-units", func(r chi.Router) {
		r.Post("/", h.CreateOrgUnit)
		r.Get("/{id}", h.GetOrgUnit)
	})

	r.Route("/patterns", func(r chi.Router) {
		r.Get("/{id}", h.GetPattern)
		r.Post("/{id}/commit", h.CommitPattern)
		r.Post("/{id}/cancel", h.CancelPattern)
	})

	r.Route("/weeks", func(r chi.Router) {
		r.Get("/{id}", h.GetWeek)
		r.Put("/{id}/actuals", h.UpdateActuals)
		r.Post("/{id}/submit", h.SubmitWeek)
		r.Post("/{id}/cancel", h.CancelWeek)
		r.Post("/{id}/amend", h.AmendWeek)
		r.Post("/{id}/lock", h.LockWeek)
		r.Post("/{id}/unlock", h.UnlockWeek)
	})

	r.Route("/leave", func(r chi.Router) {
		r.Get("/{id}", h.GetLeave)
		r.Post("/{id}/approve", h.ApproveLeave)
		r.Post("/{id}/reject", h.RejectLeave)
		r.Post("/{id}/cancel", h.CancelLeave)
	})

	r.Get("/catalog", h.GetCatalog)
	r.Get("/presence-types", h.ListPresenceTypes)
	r.Get("/leave-types", h.ListLeaveTypes)

	// Holiday routes
	r.Route("/holidays", func(r chi.Router) {
		r.Post("/", h.CreateHoliday)
		r.Delete("/{id}", h.DeleteHoliday)
	})
	r.Route("/calendars", func(r chi.Router) {
		r.Get("/{id}/holidays", h.ListHolidays)
		r.Post("/{id}/import", h.ImportCalendar)
	})

	r.Get("/audit", h.ListAudit)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/jobs/run", h.RunJobs)
	})

	// Scenario routes
	r.Route("/scenarios", func(r chi.Router) {
		r.Get("/", h.ListScenarios)
		r.Get("/current", h.GetCurrentScenario)
		r.Post("/load", h.LoadScenario)
		r.Post("/reset", h.ResetDatabase)
	})
}

// requestContext tags the request logger with the request id and carries
// it on as the correlation id of published events.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-Request-ID", id)
		logger := hlog.FromRequest(r).With().Str("request_id", id).Logger()
		ctx := messaging.WithCorrelationID(r.Context(), id)
		ctx = logger.WithContext(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
