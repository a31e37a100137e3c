/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestLogger: Structured request logging
  4. CORS:       Cross-origin requests for frontend
  5. Auth:       Bearer-token verification (everything under /api
                 except /api/auth/*)

ROUTE GROUPS:
  /api/auth/*          Register and login (public)
  /api/workspaces/*    Tenant management
  /api/products/*      Products and stock adjustments
  /api/purchases/*     Stock-in ledger rows
  /api/sales/*         Stock-out ledger rows
  /api/returns/*       Stock-in ledger rows (customer returns)
  /api/income/*        Cash in
  /api/remittance/*    Cash out
  /api/suppliers/*     Reference data
  /api/customers/*     Reference data
  /api/staff/*         Reference data
  /api/settings/*      Per-user preferences, bulk data import
  /api/logs            Audit trail
  /api/admin/*         Pool statistics

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/agristock/ledger-engine/ledger"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Workspace-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Middleware)

			r.Route("/workspaces", func(r chi.Router) {
				r.Get("/", h.ListWorkspaces)
				r.Post("/", h.CreateWorkspace)
				r.Get("/{id}", h.GetWorkspace)
				r.Get("/{id}/members", h.ListMembers)
				r.Post("/{id}/members", h.AddMember)
				r.Delete("/{id}/members/{userId}", h.RemoveMember)
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", h.ListProducts)
				r.Post("/", h.CreateProduct)
				r.Get("/{id}", h.GetProduct)
				r.Put("/{id}", h.UpdateProduct)
				r.Delete("/{id}", h.DeleteProduct)
				r.Post("/{id}/stock", h.AdjustStock)
			})

			entryRoutes := func(r chi.Router, path string, kind ledger.EntryKind) {
				r.Route(path, func(r chi.Router) {
					r.Get("/", h.listEntries(kind))
					r.Post("/", h.createEntry(kind))
					r.Get("/{id}", h.getEntry(kind))
					r.Put("/{id}", h.updateEntry(kind))
					r.Delete("/{id}", h.deleteEntry(kind))
				})
			}
			entryRoutes(r, "/purchases", ledger.EntryPurchase)
			entryRoutes(r, "/sales", ledger.EntrySale)
			entryRoutes(r, "/returns", ledger.EntryReturn)

			cashRoutes := func(r chi.Router, path string, kind ledger.CashKind) {
				r.Route(path, func(r chi.Router) {
					r.Get("/", h.listCash(kind))
					r.Post("/", h.createCash(kind))
					r.Get("/{id}", h.getCash(kind))
					r.Put("/{id}", h.updateCash(kind))
					r.Delete("/{id}", h.deleteCash(kind))
				})
			}
			cashRoutes(r, "/income", ledger.CashIncome)
			cashRoutes(r, "/remittance", ledger.CashRemittance)

			refRoutes := func(r chi.Router, path string, kind ledger.RefKind) {
				r.Route(path, func(r chi.Router) {
					r.Get("/", h.listRefs(kind))
					r.Post("/", h.createRef(kind))
					r.Get("/{id}", h.getRef(kind))
					r.Put("/{id}", h.updateRef(kind))
					r.Delete("/{id}", h.deleteRef(kind))
				})
			}
			refRoutes(r, "/suppliers", ledger.RefSupplier)
			refRoutes(r, "/customers", ledger.RefCustomer)
			refRoutes(r, "/staff", ledger.RefStaff)

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", h.GetSettings)
				r.Put("/", h.UpdateSettings)
				r.Post("/import", h.ImportData)
			})

			r.Get("/logs", h.ListAuditLogs)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/stats", h.GetStats)
			})
		})
	})

	return r
}
