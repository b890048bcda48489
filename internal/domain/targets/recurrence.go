package targets

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RecurrenceSummary reports one sweep of the recurrence engine.
type RecurrenceSummary struct {
	Scanned int `json:"scanned"`
	Rolled  int `json:"rolled"`
	Failed  int `json:"failed"`
}

// RunRecurrences rolls over every recurring target whose trigger date has
// elapsed. The same transition serves the scheduled sweep and the on-demand
// admin run; per-record failures are logged and do not stop the sweep.
func (s *Service) RunRecurrences(ctx context.Context, now time.Time) (RecurrenceSummary, error) {
	var summary RecurrenceSummary

	due, err := s.store.ListDueRecurring(ctx, now)
	if err != nil {
		return summary, err
	}
	summary.Scanned = len(due)

	for _, ref := range due {
		if err := s.Recur(ctx, ref.TenantID, ref.UserID, now); err != nil {
			summary.Failed++
			slog.Warn("recurrence transition failed", "tenantId", ref.TenantID, "userId", ref.UserID, "err", err)
			continue
		}
		summary.Rolled++
	}
	return summary, nil
}

// Recur archives the ending period, resets counters, optionally carries the
// shortfall into the next period's goals and opens the next window. It runs
// under the same row lock as every other writer.
func (s *Service) Recur(ctx context.Context, tenantID, userID string, now time.Time) error {
	var snapshot PeriodSnapshot
	rec, err := s.store.ApplyLocked(ctx, tenantID, userID, func(locked *TargetRecord) error {
		if !locked.IsRecurring {
			return fmt.Errorf("target for user %s is not recurring", userID)
		}
		snapshot = applyRecurrence(locked, now)
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(tenantID, userID)
	s.notifyNewPeriod(ctx, tenantID, userID, rec, snapshot)
	return nil
}

// applyRecurrence is the pure period-rollover transition.
func applyRecurrence(rec *TargetRecord, now time.Time) PeriodSnapshot {
	snapshot := buildPeriodSnapshot(rec, now)
	rec.History = append(rec.History, snapshot)

	if rec.CarryForwardUnfulfilled {
		for _, entry := range snapshot.Metrics {
			if entry.Missing <= 0 {
				continue
			}
			access := metricRegistry[entry.Metric]
			access.setGoal(rec, round2(access.goal(rec)+entry.Missing))
		}
	}

	for _, name := range metricOrder {
		metricRegistry[name].setCurrent(rec, 0)
	}

	oldEnd := rec.PeriodEndDate
	newStart := oldEnd.AddDate(0, 0, 1)
	var newEnd time.Time
	var next time.Time
	switch rec.RecurringInterval {
	case IntervalDaily:
		newEnd = newStart
		next = oldEnd.AddDate(0, 0, 1)
	case IntervalWeekly:
		newEnd = newStart.AddDate(0, 0, 6)
		next = oldEnd.AddDate(0, 0, 7)
	default: // monthly
		newEnd = newStart.AddDate(0, 1, 0).AddDate(0, 0, -1)
		// First day of the month following the new end, so month-boundary
		// drift cannot compound across rollovers.
		next = time.Date(newEnd.Year(), newEnd.Month(), 1, 0, 0, 0, 0, newEnd.Location()).AddDate(0, 1, 0)
	}

	rec.PeriodStartDate = newStart
	rec.PeriodEndDate = newEnd
	rec.TargetPeriod = periodLabel(rec.RecurringInterval, newStart)
	rec.NextRecurrenceDate = &next

	rec.RecurrenceCount++
	rec.LastRecurrenceDate = &now
	rec.LastCalculatedAt = &now

	return snapshot
}

// buildPeriodSnapshot archives every metric with a nonzero goal. Completion
// is the average of per-metric achievement capped at 100%; no goals means
// completion 0 and status missed.
func buildPeriodSnapshot(rec *TargetRecord, now time.Time) PeriodSnapshot {
	snapshot := PeriodSnapshot{
		Period:     rec.TargetPeriod,
		ArchivedAt: now,
	}

	var completionSum float64
	for _, name := range metricOrder {
		access := metricRegistry[name]
		if !access.hasGoal {
			continue
		}
		goal := access.goal(rec)
		if goal <= 0 {
			continue
		}
		achieved := access.current(rec)
		entry := SnapshotMetric{
			Metric:   name,
			Target:   goal,
			Achieved: achieved,
			Missing:  round2(max(0, goal-achieved)),
		}
		snapshot.Metrics = append(snapshot.Metrics, entry)
		completionSum += min(achieved/goal*100, 100)
	}

	if len(snapshot.Metrics) > 0 {
		snapshot.Completion = round2(completionSum / float64(len(snapshot.Metrics)))
	}
	switch {
	case len(snapshot.Metrics) > 0 && snapshot.Completion >= 100:
		snapshot.Status = PeriodStatusAchieved
	case len(snapshot.Metrics) > 0 && snapshot.Completion >= 50:
		snapshot.Status = PeriodStatusPartial
	default:
		snapshot.Status = PeriodStatusMissed
	}
	return snapshot
}

func periodLabel(interval string, start time.Time) string {
	switch interval {
	case IntervalDaily, IntervalWeekly:
		return start.Format("2006-01-02")
	default:
		return start.Format("2006-01")
	}
}

func (s *Service) notifyNewPeriod(ctx context.Context, tenantID, userID string, rec *TargetRecord, closed PeriodSnapshot) {
	if s.notify == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	payload := map[string]any{
		"newPeriod":        rec.TargetPeriod,
		"periodStart":      rec.PeriodStartDate.Format("2006-01-02"),
		"periodEnd":        rec.PeriodEndDate.Format("2006-01-02"),
		"closedPeriod":     closed.Period,
		"closedCompletion": closed.Completion,
		"closedStatus":     closed.Status,
		"carriedForward":   rec.CarryForwardUnfulfilled,
	}
	if err := s.notify.Notify(notifyCtx, tenantID, userID, EventNewPeriod, "New target period started", "A new performance period has begun.", payload); err != nil {
		slog.Warn("new period notification failed", "userId", userID, "err", err)
	}
}
