package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/procesio/procesio/internal/advisor"
	"github.com/procesio/procesio/internal/approval"
	"github.com/procesio/procesio/internal/audit"
	"github.com/procesio/procesio/internal/config"
	"github.com/procesio/procesio/internal/definition"
	"github.com/procesio/procesio/internal/engine"
	"github.com/procesio/procesio/internal/observability"
	"github.com/procesio/procesio/internal/task"
)

// Dependencies holds all injected dependencies for the HTTP transport
// layer.
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Definitions *definition.Service
	Engine      *engine.Engine
	Tasks       *task.Manager
	Approvals   *approval.Router
	Recorder    *audit.Recorder
	Advisor     *advisor.Advisor
	Metrics     *observability.Metrics
	Readiness   observability.ReadinessChecks

	// Authenticate overrides the config-derived authenticator. Tests
	// inject a pass-through here.
	Authenticate func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and
// all route registrations. Health, readiness, and metrics endpoints
// bypass authentication.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Global middleware, applied to all routes including health.
	r.Use(ContextLogger(logger))
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())

	auth := deps.Authenticate
	if auth == nil {
		auth = Authenticator(deps.Config.Auth, logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		r.Use(MetricsRecording(deps.Metrics))

		r.Route("/definitions", func(r chi.Router) {
			r.Post("/", handleDefinitionCreate(deps.Definitions))
			r.Get("/", handleDefinitionList(deps.Definitions))
			r.Get("/{id}", handleDefinitionGet(deps.Definitions))
			r.Post("/{id}/publish", handleDefinitionPublish(deps.Definitions))
			r.Post("/{id}/revise", handleDefinitionRevise(deps.Definitions))
			r.Post("/{id}/retire", handleDefinitionRetire(deps.Definitions))
		})

		r.Route("/instances", func(r chi.Router) {
			r.Post("/", handleInstanceStart(deps.Engine))
			r.Get("/", handleInstanceList(deps.Engine))
			r.Get("/{id}", handleInstanceGet(deps.Engine))
			r.Post("/{id}/cancel", handleInstanceCancel(deps.Engine))
			r.Get("/{id}/trail", handleInstanceTrail(deps.Recorder))
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", handleTaskListPending(deps.Tasks))
			r.Post("/{id}/start", handleTaskStart(deps.Tasks))
			r.Post("/{id}/complete", handleTaskComplete(deps.Tasks))
			r.Post("/{id}/reassign", handleTaskReassign(deps.Tasks))
		})

		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", handleApprovalListPending(deps.Approvals))
			r.Post("/{id}/decide", handleApprovalDecide(deps.Approvals))
		})

		r.Get("/reports/optimization", handleOptimizationReport(deps.Advisor))
	})

	return r
}
