package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AuditRetentionJobName is the name of the audit log retention job
const AuditRetentionJobName = "audit_retention"

const retentionTimeout = 10 * time.Minute

// AuditLogCleaner deletes audit entries older than the retention window
type AuditLogCleaner interface {
	CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error)
}

// RegisterAuditRetentionJob registers the audit retention job with the scheduler.
// A non-positive retentionDays keeps audit entries forever and registers nothing.
func RegisterAuditRetentionJob(scheduler *Scheduler, cleaner AuditLogCleaner, retentionDays int, logger *zap.Logger, cronExpr string) error {
	if retentionDays <= 0 {
		logger.Info("audit retention disabled")
		return nil
	}

	return scheduler.AddJob(AuditRetentionJobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), retentionTimeout)
		defer cancel()

		deleted, err := cleaner.CleanupOldLogs(ctx, retentionDays)
		if err != nil {
			logger.Error("audit retention failed", zap.Error(err))
			return
		}
		logger.Info("audit retention completed",
			zap.Int64("deleted", deleted),
			zap.Int("retention_days", retentionDays))
	})
}
