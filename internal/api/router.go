// Package api wires the HTTP handlers into a chi router.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/finance-manager/internal/api/handlers"
	"github.com/dvloznov/finance-manager/internal/api/middleware"
	"github.com/dvloznov/finance-manager/internal/jobs"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Deps are the services behind the routes. Audit may be nil, in which
// case GET /audit is not mounted.
type Deps struct {
	Ledger         handlers.LedgerService
	Jobs           jobs.Publisher
	JobStore       jobs.JobStore
	Audit          handlers.AuditLog
	RequestTimeout time.Duration
	Log            zerolog.Logger
}

// NewRouter builds the HTTP handler with the middleware chain applied.
func NewRouter(d Deps) http.Handler {
	transactions := handlers.NewTransactionsHandler(d.Ledger)
	setup := handlers.NewSetupHandler(d.Ledger)
	jobsHandler := handlers.NewJobsHandler(d.Jobs, d.JobStore)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.CORS)
	r.Use(middleware.Timeout(d.RequestTimeout))

	r.Get("/", setup.Balances)
	r.Get("/balances", setup.Balances)
	r.Get("/setup", setup.Balances)
	r.Post("/setup", setup.SaveSetup)

	r.Post("/add_transaction", transactions.AddTransaction)
	r.Post("/edit_transaction", transactions.EditTransaction)
	r.Post("/delete_transaction", transactions.DeleteTransaction)
	r.Post("/refund_transaction", transactions.RefundTransaction)
	r.Get("/view_transactions", transactions.ViewTransactions)
	r.Get("/search_transactions", transactions.SearchTransactions)

	r.Post("/reconcile", jobsHandler.Reconcile)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", jobsHandler.ListJobs)
		r.Get("/{id}", jobsHandler.GetJob)
	})

	if d.Audit != nil {
		r.Get("/audit", handlers.NewAuditHandler(d.Audit).ListEntries)
	}

	r.Get("/health", handlers.Health)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return r
}
