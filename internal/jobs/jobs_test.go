package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/straye-as/pipeline-api/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestScheduler_AddAndRemove(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())

	require.NoError(t, s.AddJob("b", "0 15 * * * *", func() {}))
	require.NoError(t, s.AddJob("a", "@hourly", func() {}))
	assert.Equal(t, []string{"a", "b"}, s.GetJobNames())

	assert.Error(t, s.AddJob("a", "@daily", func() {}), "duplicate name")
	assert.Error(t, s.AddJob("c", "not a cron", func() {}))

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetJobNames())
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())
	var runs atomic.Int32
	require.NoError(t, s.AddJob("tick", "@every 1s", func() { runs.Add(1) }))

	assert.True(t, s.NextRun("missing").IsZero())

	s.Start()
	defer s.Stop()

	assert.False(t, s.NextRun("tick").IsZero())
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())
	var runs atomic.Int32
	require.NoError(t, s.AddJob("panics", "@every 1s", func() {
		runs.Add(1)
		panic("boom")
	}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 4*time.Second, 50*time.Millisecond)
}

type fakeSyncer struct {
	synced, failed int
	err            error
	calls          atomic.Int32
}

func (f *fakeSyncer) SyncAll(ctx context.Context) (int, int, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, 0, errors.New("missing deadline")
	}
	return f.synced, f.failed, f.err
}

func TestBillingSyncJob_Run(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	syncer := &fakeSyncer{synced: 4, failed: 1}

	jobs.NewBillingSyncJob(syncer, zap.New(core), time.Minute).Run()

	assert.Equal(t, int32(1), syncer.calls.Load())
	completed := logs.FilterMessage("billing sync completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, int64(4), completed[0].ContextMap()["contracts_synced"])
	assert.Equal(t, int64(1), completed[0].ContextMap()["contracts_failed"])
}

func TestBillingSyncJob_RunFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	syncer := &fakeSyncer{err: errors.New("warehouse unavailable")}

	jobs.NewBillingSyncJob(syncer, zap.New(core), time.Minute).Run()

	assert.Equal(t, 1, logs.FilterMessage("billing sync failed").Len())
	assert.Equal(t, 0, logs.FilterMessage("billing sync completed").Len())
}

func TestRegisterBillingSyncJob_RunOnStartup(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())
	syncer := &fakeSyncer{}

	require.NoError(t, jobs.RegisterBillingSyncJob(s, syncer, zap.NewNop(), "0 15 * * * *", time.Minute, true))

	assert.Contains(t, s.GetJobNames(), jobs.BillingSyncJobName)
	assert.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

type fakeReminder struct {
	age  time.Duration
	sent int
}

func (f *fakeReminder) RemindPending(_ context.Context, age time.Duration) (int, error) {
	f.age = age
	return f.sent, nil
}

func TestCloseRequestReminderJob_Run(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	reminder := &fakeReminder{sent: 2}

	jobs.NewCloseRequestReminderJob(reminder, 72*time.Hour, zap.New(core)).Run()

	assert.Equal(t, 72*time.Hour, reminder.age)
	assert.Equal(t, 1, logs.FilterMessage("close request reminders sent").Len())

	s := jobs.NewScheduler(zap.NewNop())
	require.NoError(t, jobs.RegisterCloseRequestReminderJob(s, reminder, time.Hour, zap.NewNop(), "0 0 8 * * *"))
	assert.Equal(t, []string{jobs.CloseRequestReminderJobName}, s.GetJobNames())
}

type fakeCleaner struct{}

func (fakeCleaner) CleanupOldLogs(context.Context, int) (int64, error) { return 0, nil }

func TestRegisterAuditRetentionJob(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())

	require.NoError(t, jobs.RegisterAuditRetentionJob(s, fakeCleaner{}, 0, zap.NewNop(), "0 30 3 * * *"))
	assert.Empty(t, s.GetJobNames())

	require.NoError(t, jobs.RegisterAuditRetentionJob(s, fakeCleaner{}, 365, zap.NewNop(), "0 30 3 * * *"))
	assert.Equal(t, []string{jobs.AuditRetentionJobName}, s.GetJobNames())
}
