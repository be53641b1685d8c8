package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// NewDatabase creates a new database connection, retrying while the server
// comes up
func NewDatabase(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dsn := cfg.ConnectionString()

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := open(postgres.Open(dsn), cfg)
		if err == nil {
			log.Info("Connected to database",
				zap.String("host", cfg.Host),
				zap.String("database", cfg.Name),
				zap.Int("attempt", attempt),
			)
			return db, nil
		}
		lastErr = err
		log.Warn("Database connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", connectAttempts),
			zap.Error(err),
		)
		time.Sleep(time.Duration(attempt) * connectBackoff)
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", connectAttempts, lastErr)
}

func open(dialector gorm.Dialector, cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, Config())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Set connection pool settings
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Config is the gorm configuration shared by the server and tests.
// TranslateError maps unique violations to gorm.ErrDuplicatedKey.
func Config() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Ping checks that the database answers within the context deadline
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// HealthCheck pings the database with a short timeout
func HealthCheck(db *gorm.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return Ping(ctx, db)
}

// HealthCheckWithStats pings the database and returns its pool statistics
func HealthCheckWithStats(db *gorm.DB) (sql.DBStats, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return sql.DBStats{}, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := HealthCheck(db); err != nil {
		return sql.DBStats{}, err
	}
	return sqlDB.Stats(), nil
}

// Models lists every persisted entity in dependency order
func Models() []interface{} {
	return []interface{}{
		&domain.User{},
		&domain.NumberSequence{},
		&domain.Contact{},
		&domain.CommunicationLogEntry{},
		&domain.Opportunity{},
		&domain.Proposal{},
		&domain.Contract{},
		&domain.ContractMilestone{},
		&domain.RetainerItem{},
		&domain.ContractHistoryEntry{},
		&domain.ChangeRequest{},
		&domain.CloseRequest{},
		&domain.CloseRequestHistoryEntry{},
		&domain.File{},
		&domain.Notification{},
		&domain.AuditLog{},
	}
}

// partialIndexes guard the invariants the services also check in their
// transactions. Both postgres and sqlite accept this syntax.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_proposals_one_current
		ON proposals (opportunity_id) WHERE is_current`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_close_requests_one_pending
		ON close_requests (sow_id) WHERE status = 'Pending'`,
}

// EnsureIndexes creates the partial unique indexes gorm tags cannot express
func EnsureIndexes(db *gorm.DB) error {
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// AutoMigrate runs automatic migrations (for development only)
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return EnsureIndexes(db)
}
