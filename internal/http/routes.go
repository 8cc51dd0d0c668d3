package httpx

import (
	"net/http"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs       *service.JobService
	Credits    *service.CreditService
	DeadLetter *service.DeadLetterService
	Drafts     core.DraftStore

	// Optional: database handle for readiness checks.
	DB Pinger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs}
	adminHandlers := &AdminHandlers{
		DeadLetter: services.DeadLetter,
		Credits:    services.Credits,
	}
	draftHandlers := &DraftHandlers{Drafts: services.Drafts}
	healthHandler := &HealthHandler{DB: services.DB}

	registerJobRoutes(mux, jobHandlers)
	registerAdminRoutes(mux, adminHandlers)
	mux.HandleFunc("POST /api/drafts/claim", draftHandlers.Claim)
	mux.Handle("GET /healthz", healthHandler)
	mux.Handle("HEAD /healthz", healthHandler)

	return mux
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetStatus)
	mux.HandleFunc("POST /api/jobs/{id}/retry-step", h.RetryStep)
	mux.HandleFunc("GET /api/jobs/stats", h.Stats)
}

func registerAdminRoutes(mux *http.ServeMux, h *AdminHandlers) {
	mux.HandleFunc("GET /api/admin/dlq", h.ListDeadLettered)
	mux.HandleFunc("POST /api/admin/dlq/{id}/retry", h.RetryDeadLettered)
	mux.HandleFunc("GET /api/admin/jobs/{id}/ledger", h.JobLedger)
}
