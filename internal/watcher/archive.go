package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Archiver exports aged records to cold storage. Satisfied by
// s3blob.Archiver.
type Archiver interface {
	ArchiveLoanEvents(ctx context.Context, cutoff time.Time) (int64, error)
	ArchiveRedemptions(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveScheduler runs the archiver on a cron schedule, moving loan events
// and completed redemptions past the retention window to cold storage.
type ArchiveScheduler struct {
	archiver      Archiver
	retentionDays int
	cronExpr      string
	logger        *slog.Logger
}

// NewArchiveScheduler creates an ArchiveScheduler.
func NewArchiveScheduler(archiver Archiver, retentionDays int, cronExpr string, logger *slog.Logger) *ArchiveScheduler {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	return &ArchiveScheduler{
		archiver:      archiver,
		retentionDays: retentionDays,
		cronExpr:      cronExpr,
		logger:        logger.With(slog.String("component", "archive_scheduler")),
	}
}

// Run executes a single archive run. It calculates the cutoff time based on
// retentionDays and archives loan events and redemptions older than the
// cutoff.
func (a *ArchiveScheduler) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	eventsArchived, err := a.archiver.ArchiveLoanEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving loan events before %v: %w", cutoff, err)
	}

	redemptionsArchived, err := a.archiver.ArchiveRedemptions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving redemptions before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete",
		slog.Int64("events_archived", eventsArchived),
		slog.Int64("redemptions_archived", redemptionsArchived),
	)
	return nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled.
// It supports cron expressions in the standard 5-field format:
// "minute hour day-of-month month day-of-week"
//
// Example: "0 3 * * *" runs daily at 3:00 AM.
func (a *ArchiveScheduler) RunCron(ctx context.Context) error {
	a.logger.Info("archive cron started", slog.String("cron", a.cronExpr))

	for {
		next, err := nextCronTime(a.cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", a.cronExpr, err)
		}

		waitDuration := time.Until(next)
		a.logger.Info("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archive cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField represents a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	values   []int
}

// matches returns true if the given value matches this cron field.
func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field (e.g. "0", "*", "1,15").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesTime returns true if the given time matches all five cron fields.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression into a parsedCron struct.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseCronField(fields[1])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseCronField(fields[2])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseCronField(fields[4])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return parsedCron{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// nextCronTime calculates the next time after 'after' that matches the given
// cron expression. It searches minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	// Start from the next minute boundary.
	candidate := after.Truncate(time.Minute).Add(time.Minute)

	// Search up to one year ahead to avoid infinite loops.
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
