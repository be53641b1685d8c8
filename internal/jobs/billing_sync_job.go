package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BillingSyncJobName is the name of the contract billing sync job
const BillingSyncJobName = "billing_sync"

// BillingSyncer copies invoiced amounts from the data warehouse onto contracts.
// This interface allows the job to call the service without importing the service package directly.
type BillingSyncer interface {
	SyncAll(ctx context.Context) (synced int, failed int, err error)
}

// BillingSyncJob refreshes invoiced amounts on active and on-hold contracts
type BillingSyncJob struct {
	syncer  BillingSyncer
	logger  *zap.Logger
	timeout time.Duration
}

// NewBillingSyncJob creates a new billing sync job.
// The timeout controls how long one sync run is allowed to take.
func NewBillingSyncJob(syncer BillingSyncer, logger *zap.Logger, timeout time.Duration) *BillingSyncJob {
	return &BillingSyncJob{
		syncer:  syncer,
		logger:  logger,
		timeout: timeout,
	}
}

// Run executes one sync. Called by the scheduler according to the cron expression.
func (j *BillingSyncJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	synced, failed, err := j.syncer.SyncAll(ctx)
	if err != nil {
		j.logger.Error("billing sync failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}

	j.logger.Info("billing sync completed",
		zap.Int("contracts_synced", synced),
		zap.Int("contracts_failed", failed),
		zap.Duration("duration", time.Since(start)))
}

// RegisterBillingSyncJob registers the billing sync job with the scheduler.
// If runOnStartup is true a first sync runs immediately in a background
// goroutine so it doesn't block API startup.
func RegisterBillingSyncJob(scheduler *Scheduler, syncer BillingSyncer, logger *zap.Logger, cronExpr string, timeout time.Duration, runOnStartup bool) error {
	job := NewBillingSyncJob(syncer, logger, timeout)

	if runOnStartup {
		go job.Run()
	}

	return scheduler.AddJob(BillingSyncJobName, cronExpr, job.Run)
}
