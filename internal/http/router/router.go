package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/database"
	"github.com/straye-as/pipeline-api/internal/datawarehouse"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/http/handler"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/straye-as/pipeline-api/docs" // Import generated swagger docs
)

type Router struct {
	cfg                  *config.Config
	logger               *zap.Logger
	db                   *gorm.DB
	dwClient             *datawarehouse.Client
	authMiddleware       *auth.Middleware
	rateLimiter          *middleware.RateLimiter
	auditMiddleware      *middleware.AuditMiddleware
	contactHandler       *handler.ContactHandler
	opportunityHandler   *handler.OpportunityHandler
	proposalHandler      *handler.ProposalHandler
	contractHandler      *handler.ContractHandler
	changeRequestHandler *handler.ChangeRequestHandler
	closeRequestHandler  *handler.CloseRequestHandler
	transitionHandler    *handler.TransitionHandler
	fileHandler          *handler.FileHandler
	notificationHandler  *handler.NotificationHandler
	authHandler          *handler.AuthHandler
	auditHandler         *handler.AuditHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	dwClient *datawarehouse.Client,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	auditMiddleware *middleware.AuditMiddleware,
	contactHandler *handler.ContactHandler,
	opportunityHandler *handler.OpportunityHandler,
	proposalHandler *handler.ProposalHandler,
	contractHandler *handler.ContractHandler,
	changeRequestHandler *handler.ChangeRequestHandler,
	closeRequestHandler *handler.CloseRequestHandler,
	transitionHandler *handler.TransitionHandler,
	fileHandler *handler.FileHandler,
	notificationHandler *handler.NotificationHandler,
	authHandler *handler.AuthHandler,
	auditHandler *handler.AuditHandler,
) *Router {
	return &Router{
		cfg:                  cfg,
		logger:               logger,
		db:                   db,
		dwClient:             dwClient,
		authMiddleware:       authMiddleware,
		rateLimiter:          rateLimiter,
		auditMiddleware:      auditMiddleware,
		contactHandler:       contactHandler,
		opportunityHandler:   opportunityHandler,
		proposalHandler:      proposalHandler,
		contractHandler:      contractHandler,
		changeRequestHandler: changeRequestHandler,
		closeRequestHandler:  closeRequestHandler,
		transitionHandler:    transitionHandler,
		fileHandler:          fileHandler,
		notificationHandler:  notificationHandler,
		authHandler:          authHandler,
		auditHandler:         auditHandler,
	}
}

func writeHealth(w http.ResponseWriter, healthy bool, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.Auth.ActingRoleHeader, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP) // Apply IP-based rate limiting globally

	// Health check (basic liveness probe)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Database health check (readiness probe with detailed stats)
	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		stats, err := database.HealthCheckWithStats(rt.db)
		if err != nil {
			rt.logger.Error("Database health check failed", zap.Error(err))
			writeHealth(w, false, map[string]interface{}{
				"status":  "unhealthy",
				"error":   err.Error(),
				"service": "database",
			})
			return
		}

		writeHealth(w, true, map[string]interface{}{
			"status":  "healthy",
			"service": "database",
			"stats": map[string]interface{}{
				"max_open_connections": stats.MaxOpenConnections,
				"open_connections":     stats.OpenConnections,
				"in_use":               stats.InUse,
				"idle":                 stats.Idle,
				"wait_count":           stats.WaitCount,
				"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
				"max_idle_closed":      stats.MaxIdleClosed,
				"max_lifetime_closed":  stats.MaxLifetimeClosed,
			},
		})
	})

	// Combined readiness check. The data warehouse only feeds billing sync,
	// so an unhealthy warehouse is reported without failing readiness.
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]interface{})
		allHealthy := true

		if err := database.HealthCheck(rt.db); err != nil {
			rt.logger.Error("Database health check failed", zap.Error(err))
			checks["database"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			allHealthy = false
		} else {
			checks["database"] = map[string]interface{}{
				"status": "healthy",
			}
		}

		checks["datawarehouse"] = rt.dwClient.HealthCheck(r.Context())

		status := "healthy"
		if !allHealthy {
			status = "unhealthy"
		}
		writeHealth(w, allHealthy, map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	})

	// Swagger documentation
	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public inbound contact form. Staff may also log contacts here.
		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.OptionalAuthenticate)
			r.Use(rt.auditMiddleware.Audit)
			r.Post("/contacts", rt.contactHandler.CreateContact)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.Authenticate)
			r.Use(rt.rateLimiter.Limit)
			r.Use(rt.auditMiddleware.Audit) // Audit all modifications

			// Auth
			r.Get("/auth/me", rt.authHandler.Me)
			r.Get("/users/reviewers", rt.authHandler.ListReviewers)

			// Audit logs
			r.Route("/audit", func(r chi.Router) {
				r.With(rt.authMiddleware.RequireRole(domain.RoleAdmin)).Get("/", rt.auditHandler.List)
				r.Get("/entity/{entityType}/{entityId}", rt.auditHandler.GetByEntity)
			})

			// Transition probes
			r.Get("/transitions/{entity}", rt.transitionHandler.Check)

			// Contacts
			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", rt.contactHandler.ListContacts)
				r.Get("/{id}", rt.contactHandler.GetContact)
				r.Post("/{id}/transition", rt.contactHandler.TransitionContact)
				r.Post("/{id}/assign", rt.contactHandler.AssignContact)
				r.Post("/{id}/priority", rt.contactHandler.SetPriority)
				r.Post("/{id}/communications", rt.contactHandler.AddCommunication)
				r.Post("/{id}/convert", rt.contactHandler.ConvertContact)
			})

			// Opportunities
			r.Route("/opportunities", func(r chi.Router) {
				r.Get("/", rt.opportunityHandler.List)
				r.Post("/", rt.opportunityHandler.Create)
				r.Get("/{id}", rt.opportunityHandler.GetByID)
				r.Post("/{id}/assign", rt.opportunityHandler.Assign)
				r.Put("/{id}/estimate", rt.opportunityHandler.UpdateEstimate)
				r.Post("/{id}/transition", rt.opportunityHandler.Transition)
				r.Post("/{id}/convert", rt.opportunityHandler.ConvertToContract)

				// Proposal versions
				r.Get("/{id}/proposals", rt.proposalHandler.ListVersions)
				r.Post("/{id}/proposals", rt.proposalHandler.Create)
				r.Get("/{id}/proposals/current", rt.proposalHandler.GetCurrent)
			})

			// Proposals
			r.Route("/proposals", func(r chi.Router) {
				r.Get("/{id}", rt.proposalHandler.GetByID)
				r.Put("/{id}", rt.proposalHandler.UpdateDraft)
				r.Post("/{id}/submit", rt.proposalHandler.SubmitForReview)
				r.Post("/{id}/withdraw", rt.proposalHandler.Withdraw)
				r.Post("/{id}/review", rt.proposalHandler.Review)
				r.Post("/{id}/send", rt.proposalHandler.Send)
				r.Post("/{id}/feedback", rt.proposalHandler.Feedback)
				r.Post("/{id}/attachment", rt.proposalHandler.Attach)
			})

			// Contracts
			r.Route("/contracts", func(r chi.Router) {
				r.Get("/", rt.contractHandler.List)
				r.Get("/{id}", rt.contractHandler.GetByID)
				r.Get("/{id}/history", rt.contractHandler.GetHistory)
				r.Post("/{id}/transition", rt.contractHandler.Transition)
				r.Get("/{id}/sows", rt.contractHandler.ListSOWs)
				r.Post("/{id}/sows", rt.contractHandler.CreateSOW)
				r.Post("/{id}/billing", rt.contractHandler.UpdateBilling)

				// Change requests
				r.Get("/{id}/change-requests", rt.changeRequestHandler.List)
				r.Post("/{id}/change-requests", rt.changeRequestHandler.Submit)

				// Close requests
				r.Get("/{id}/close-requests", rt.closeRequestHandler.ListBySOW)
				r.Post("/{id}/close-requests", rt.closeRequestHandler.Create)
				r.Get("/{id}/close-requests/latest", rt.closeRequestHandler.GetLatest)
			})

			r.Route("/change-requests", func(r chi.Router) {
				r.Get("/{id}", rt.changeRequestHandler.GetByID)
				r.Post("/{id}/review", rt.changeRequestHandler.StartReview)
				r.Post("/{id}/decide", rt.changeRequestHandler.Decide)
			})

			r.Route("/close-requests", func(r chi.Router) {
				r.Get("/{id}", rt.closeRequestHandler.GetByID)
				r.Get("/{id}/history", rt.closeRequestHandler.GetHistory)
				r.Post("/{id}/resubmit", rt.closeRequestHandler.Resubmit)
				r.Post("/{id}/approve", rt.closeRequestHandler.Approve)
				r.Post("/{id}/reject", rt.closeRequestHandler.Reject)
			})

			// Files
			r.Route("/files", func(r chi.Router) {
				r.Get("/", rt.fileHandler.List)
				r.Post("/upload", rt.fileHandler.Upload)
				r.Get("/{id}", rt.fileHandler.GetByID)
				r.Get("/{id}/download", rt.fileHandler.Download)
			})

			// Notifications
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", rt.notificationHandler.List)
				r.Get("/count", rt.notificationHandler.GetUnreadCount)
				r.Post("/read-all", rt.notificationHandler.MarkAllAsRead)
				r.Put("/read-all", rt.notificationHandler.MarkAllAsRead)
				r.Post("/{id}/read", rt.notificationHandler.MarkAsRead)
				r.Put("/{id}/read", rt.notificationHandler.MarkAsRead)
			})
		})
	})

	return r
}
