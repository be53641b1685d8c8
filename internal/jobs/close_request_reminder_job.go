package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CloseRequestReminderJobName is the name of the pending close request reminder job
const CloseRequestReminderJobName = "close_request_reminder"

const reminderTimeout = 5 * time.Minute

// CloseRequestReminder notifies clients about close requests left pending
type CloseRequestReminder interface {
	RemindPending(ctx context.Context, age time.Duration) (int, error)
}

// CloseRequestReminderJob reminds clients of close requests pending longer than age
type CloseRequestReminderJob struct {
	reminder CloseRequestReminder
	age      time.Duration
	logger   *zap.Logger
}

// NewCloseRequestReminderJob creates a new reminder job
func NewCloseRequestReminderJob(reminder CloseRequestReminder, age time.Duration, logger *zap.Logger) *CloseRequestReminderJob {
	return &CloseRequestReminderJob{
		reminder: reminder,
		age:      age,
		logger:   logger,
	}
}

// Run sends one round of reminders
func (j *CloseRequestReminderJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
	defer cancel()

	sent, err := j.reminder.RemindPending(ctx, j.age)
	if err != nil {
		j.logger.Error("close request reminder failed", zap.Error(err))
		return
	}
	if sent > 0 {
		j.logger.Info("close request reminders sent",
			zap.Int("count", sent),
			zap.Duration("pending_for", j.age))
	}
}

// RegisterCloseRequestReminderJob registers the reminder job with the scheduler
func RegisterCloseRequestReminderJob(scheduler *Scheduler, reminder CloseRequestReminder, age time.Duration, logger *zap.Logger, cronExpr string) error {
	job := NewCloseRequestReminderJob(reminder, age, logger)
	return scheduler.AddJob(CloseRequestReminderJobName, cronExpr, job.Run)
}
