package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"semaphore/reports/internal/config"
	"semaphore/reports/internal/db"
	"semaphore/reports/internal/logger"
	"semaphore/reports/internal/metrics"
	"semaphore/reports/internal/notify"
	"semaphore/reports/internal/workflow"
)

const reminderBatch = 200

type StalledLister interface {
	ListStalledReports(ctx context.Context, arg db.ListStalledReportsParams) ([]db.Report, error)
}

// Reminder nudges the reviewer a report has been waiting on for too long.
type Reminder struct {
	reports  StalledLister
	notifier notify.Notifier
	after    time.Duration
	now      func() time.Time
}

func NewReminder(reports StalledLister, notifier notify.Notifier, after time.Duration) *Reminder {
	if after <= 0 {
		after = 48 * time.Hour
	}
	return &Reminder{
		reports:  reports,
		notifier: notifier,
		after:    after,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sends one reminder per stalled report and returns how many went out.
func (r *Reminder) Run(ctx context.Context) (int, error) {
	now := r.now()
	reports, err := r.reports.ListStalledReports(ctx, db.ListStalledReportsParams{
		Before: pgtype.Timestamptz{Time: now.Add(-r.after), Valid: true},
		Limit:  reminderBatch,
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, report := range reports {
		state := workflow.Derive(report)
		if state.Complete || state.AwaitingUserID == "" {
			continue
		}
		reportID := uuid.UUID(report.ID.Bytes).String()
		message := notify.Reminder(reportID, state, report.UpdatedAt.Time, now)
		if err := r.notifier.Notify(ctx, state.AwaitingUserID, message); err != nil {
			entry := logger.Log.WithError(err).WithFields(logrus.Fields{
				"report_id": reportID,
				"user_id":   state.AwaitingUserID,
			})
			if errors.Is(err, notify.ErrNoRecipient) {
				entry.Debug("reminder skipped")
			} else {
				entry.Warn("reminder failed")
			}
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			continue
		}
		metrics.RemindersSent.Inc()
		sent++
	}
	return sent, nil
}

// StartReminderJob schedules the reminder on cfg.ReminderCron. The returned
// scheduler is stopped when ctx ends.
func StartReminderJob(ctx context.Context, cfg config.Config, reports StalledLister, notifier notify.Notifier) (*cron.Cron, error) {
	if !cfg.ReminderEnabled {
		return nil, nil
	}
	if reports == nil || notifier == nil {
		logger.Log.Warn("reminder job disabled: dependencies not configured")
		return nil, nil
	}
	timeout := cfg.ReminderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	reminder := NewReminder(reports, notifier, cfg.ReminderAfter)
	scheduler := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := scheduler.AddFunc(cfg.ReminderCron, func() {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		sent, err := reminder.Run(runCtx)
		if err != nil {
			logger.Log.WithError(err).Error("reminder job error")
			return
		}
		if sent > 0 {
			logger.Log.WithField("sent", sent).Info("reminder job sent reminders")
		}
	})
	if err != nil {
		return nil, err
	}
	scheduler.Start()
	logger.Log.WithField("schedule", cfg.ReminderCron).Info("reminder job started")

	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()
	return scheduler, nil
}
