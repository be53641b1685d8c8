package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/straye-as/pipeline-api/docs"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/database"
	"github.com/straye-as/pipeline-api/internal/datawarehouse"
	"github.com/straye-as/pipeline-api/internal/http/handler"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	"github.com/straye-as/pipeline-api/internal/http/router"
	"github.com/straye-as/pipeline-api/internal/jobs"
	"github.com/straye-as/pipeline-api/internal/logger"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/storage"
	"github.com/straye-as/pipeline-api/migrations"
	"go.uber.org/zap"
)

// @title Straye Pipeline API
// @version 1.0
// @description Sales pipeline API: contacts, opportunities, proposals, contracts, change and close requests
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@straye.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description API Key for system operations
// @Security BearerAuth
// @Security ApiKeyAuth

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	if basicCfg.App.Environment == "development" {
		docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", basicCfg.App.Port)
	} else {
		// Served behind the ingress host of the environment
		docs.SwaggerInfo.Host = ""
	}

	// Load full configuration with secrets
	// In development: uses environment variables
	// In staging/production: fetches from Azure Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	db, err := database.NewDatabase(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database instance: %w", err)
		}
		if err := migrations.Up(sqlDB); err != nil {
			return err
		}
		log.Info("Database migrations applied")
	}

	fileStorage, err := storage.NewStorage(&cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	log.Info("Storage initialized", zap.String("mode", cfg.Storage.Mode))

	// The data warehouse is optional and read-only. Only billing sync uses it.
	var dwClient *datawarehouse.Client
	if cfg.DataWarehouse.Enabled {
		dwClient, err = datawarehouse.NewClient(&cfg.DataWarehouse, log)
		if err != nil {
			log.Warn("Data warehouse connection failed, continuing without it",
				zap.Error(err),
			)
			dwClient = nil
		} else if dwClient != nil {
			log.Info("Data warehouse connected successfully",
				zap.Int("max_open_conns", cfg.DataWarehouse.MaxOpenConns),
				zap.Int("query_timeout_seconds", cfg.DataWarehouse.QueryTimeout),
			)
		}
	} else {
		log.Info("Data warehouse not configured, skipping")
	}

	// Initialize repositories
	pipelineRepo := repository.NewPipelineRepository(db)
	contactRepo := repository.NewContactRepository(db)
	opportunityRepo := repository.NewOpportunityRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	contractRepo := repository.NewContractRepository(db)
	changeRequestRepo := repository.NewChangeRequestRepository(db)
	closeRequestRepo := repository.NewCloseRequestRepository(db)
	fileRepo := repository.NewFileRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	numberSequenceRepo := repository.NewNumberSequenceRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)

	// Initialize services
	machine := service.NewStateMachine()
	numbers := service.NewNumberSequenceService(numberSequenceRepo, log)
	dispatcher := service.NewNotificationDispatcher(notificationRepo, cfg.Notifications.DispatchTimeoutDuration(), log)

	userService := service.NewUserService(userRepo, log)
	fileService := service.NewFileService(fileRepo, pipelineRepo, fileStorage, log)
	contactService := service.NewContactService(pipelineRepo, contactRepo, opportunityRepo, numbers, machine, dispatcher, log)
	opportunityService := service.NewOpportunityService(pipelineRepo, opportunityRepo, proposalRepo, numbers, machine, log)
	proposalService := service.NewProposalService(pipelineRepo, proposalRepo, opportunityRepo, userRepo, fileService, machine, dispatcher, log)
	contractService := service.NewContractService(pipelineRepo, contractRepo, opportunityRepo, closeRequestRepo, numbers, machine, log)
	changeRequestService := service.NewChangeRequestService(pipelineRepo, changeRequestRepo, contractRepo, numbers, machine, dispatcher, log)
	closeRequestService := service.NewCloseRequestService(pipelineRepo, closeRequestRepo, contractRepo, numbers, machine, dispatcher, log)
	notificationService := service.NewNotificationService(notificationRepo, log)
	auditLogService := service.NewAuditLogService(auditLogRepo, log)
	billingSyncService := service.NewBillingSyncService(contractRepo, dwClient, cfg.Jobs.BillingSyncConcurrency, log)

	// Initialize middleware
	authMiddleware := auth.NewMiddleware(cfg, userService, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	auditMiddleware := middleware.NewAuditMiddleware(auditLogService, nil, log)

	// Initialize handlers
	rt := router.NewRouter(
		cfg,
		log,
		db,
		dwClient,
		authMiddleware,
		rateLimiter,
		auditMiddleware,
		handler.NewContactHandler(contactService, log),
		handler.NewOpportunityHandler(opportunityService, contractService, log),
		handler.NewProposalHandler(proposalService, cfg.Storage.MaxUploadSizeMB, log),
		handler.NewContractHandler(contractService, log),
		handler.NewChangeRequestHandler(changeRequestService, log),
		handler.NewCloseRequestHandler(closeRequestService, log),
		handler.NewTransitionHandler(machine, log),
		handler.NewFileHandler(fileService, cfg.Storage.MaxUploadSizeMB, log),
		handler.NewNotificationHandler(notificationService, log),
		handler.NewAuthHandler(userService, log),
		handler.NewAuditHandler(auditLogService, log),
	)

	// Background jobs
	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(log)

		if err := jobs.RegisterCloseRequestReminderJob(
			scheduler,
			closeRequestService,
			cfg.Jobs.CloseRequestReminderAge(),
			log,
			cfg.Jobs.CloseRequestReminderCron,
		); err != nil {
			log.Error("Failed to register close request reminder job", zap.Error(err))
		}

		if err := jobs.RegisterAuditRetentionJob(
			scheduler,
			auditLogService,
			cfg.Jobs.AuditRetentionDays,
			log,
			cfg.Jobs.AuditRetentionCron,
		); err != nil {
			log.Error("Failed to register audit retention job", zap.Error(err))
		}

		if dwClient != nil {
			if err := jobs.RegisterBillingSyncJob(
				scheduler,
				billingSyncService,
				log,
				cfg.Jobs.BillingSyncCron,
				cfg.Jobs.BillingSyncTimeoutDuration(),
				true, // refresh invoiced amounts right away
			); err != nil {
				log.Error("Failed to register billing sync job", zap.Error(err))
			}
		} else {
			log.Info("Billing sync disabled, no data warehouse client")
		}

		scheduler.Start()
		log.Info("Scheduler started", zap.Strings("jobs", scheduler.GetJobNames()))
	} else {
		log.Info("Background jobs disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			ctx := scheduler.Stop()
			<-ctx.Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		// Let in-flight notification writes finish before the pool closes
		dispatcher.Wait()

		if dwClient != nil {
			if err := dwClient.Close(); err != nil {
				log.Warn("Error closing data warehouse connection", zap.Error(err))
			}
		}

		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
