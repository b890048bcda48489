package targets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// MetricDeltas carries the per-metric sums/counts found in one scan window.
type MetricDeltas struct {
	QuotationsAmount float64
	OrdersAmount     float64
	NewLeads         float64
	NewClients       float64
	CheckIns         float64
	Calls            float64
	HoursWorked      float64
}

func (d MetricDeltas) empty() bool {
	return d.QuotationsAmount <= 0 && d.OrdersAmount <= 0 && d.NewLeads <= 0 &&
		d.NewClients <= 0 && d.CheckIns <= 0 && d.Calls <= 0 && d.HoursWorked <= 0
}

// Recalculate synchronizes the user's progress counters with the business
// event tables. Concurrent triggers for the same user are collapsed: a
// duplicate call awaits the in-flight pass instead of starting a second one.
// Failures propagate to every awaiting trigger.
func (s *Service) Recalculate(ctx context.Context, tenantID, userID string) error {
	_, err, _ := s.flights.Do(tenantID+"/"+userID, func() (any, error) {
		return nil, s.recalculate(ctx, tenantID, userID)
	})
	return err
}

// maxRecalcPasses bounds restarts when rollovers keep landing mid-scan.
const maxRecalcPasses = 3

var errCheckpointMoved = errors.New("progress checkpoint moved during scan")

func (s *Service) recalculate(ctx context.Context, tenantID, userID string) error {
	var err error
	for pass := 0; pass < maxRecalcPasses; pass++ {
		if err = s.recalculatePass(ctx, tenantID, userID); !errors.Is(err, errCheckpointMoved) {
			return err
		}
	}
	return err
}

func (s *Service) recalculatePass(ctx context.Context, tenantID, userID string) error {
	rec, err := s.store.GetTarget(ctx, tenantID, userID)
	if errors.Is(err, ErrTargetNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	windowEnd := s.now().UTC()
	windowStart := rec.PeriodStartDate
	if rec.LastCalculatedAt != nil {
		windowStart = *rec.LastCalculatedAt
	}

	deltas, err := s.collectDeltas(ctx, tenantID, userID, windowStart, windowEnd)
	if err != nil {
		return err
	}
	if deltas.empty() {
		// Nothing new in the window: skip the write so the checkpoint stays
		// put and user-set values are preserved.
		return nil
	}

	var previous map[string]float64
	updated, err := s.store.ApplyLocked(ctx, tenantID, userID, func(locked *TargetRecord) error {
		lockedStart := locked.PeriodStartDate
		if locked.LastCalculatedAt != nil {
			lockedStart = *locked.LastCalculatedAt
		}
		// A rollover (or another pass) committed after the scan window was
		// derived: the collected deltas belong to the old window and the
		// checkpoint must never move backwards. Abort and rescan.
		if !lockedStart.Equal(windowStart) {
			return errCheckpointMoved
		}
		previous = currentValues(locked)
		addDeltas(locked, deltas)
		recomputeSales(locked)
		if err := validateBounds(locked); err != nil {
			return err
		}
		locked.LastCalculatedAt = &windowEnd
		return nil
	})
	if errors.Is(err, ErrIntegrity) {
		slog.Error("progress recalculation rejected by bounds check", "tenantId", tenantID, "userId", userID, "err", err)
		return err
	}
	if err != nil {
		return err
	}

	s.invalidate(tenantID, userID)
	s.notifyAchievements(ctx, tenantID, userID, previous, updated)
	return nil
}

func (s *Service) collectDeltas(ctx context.Context, tenantID, userID string, from, to time.Time) (MetricDeltas, error) {
	var deltas MetricDeltas

	open, completed, err := s.store.QuotationDeltas(ctx, tenantID, userID, from, to)
	if err != nil {
		return deltas, err
	}
	deltas.QuotationsAmount = ParseAmount(open)
	deltas.OrdersAmount = ParseAmount(completed)

	if deltas.NewLeads, err = s.store.LeadDelta(ctx, tenantID, userID, from, to); err != nil {
		return deltas, err
	}
	if deltas.NewClients, err = s.store.ClientDelta(ctx, tenantID, userID, from, to); err != nil {
		return deltas, err
	}
	if deltas.CheckIns, err = s.store.CheckInDelta(ctx, tenantID, userID, from, to); err != nil {
		return deltas, err
	}
	if deltas.Calls, err = s.store.CallDelta(ctx, tenantID, userID, from, to); err != nil {
		return deltas, err
	}
	if deltas.HoursWorked, err = s.store.HoursDelta(ctx, tenantID, userID, from, to); err != nil {
		return deltas, err
	}
	return deltas, nil
}

func addDeltas(rec *TargetRecord, deltas MetricDeltas) {
	rec.CurrentQuotationsAmount = round2(rec.CurrentQuotationsAmount + ParseAmount(deltas.QuotationsAmount))
	rec.CurrentOrdersAmount = round2(rec.CurrentOrdersAmount + ParseAmount(deltas.OrdersAmount))
	rec.CurrentNewLeads += ParseAmount(deltas.NewLeads)
	rec.CurrentNewClients += ParseAmount(deltas.NewClients)
	rec.CurrentCheckIns += ParseAmount(deltas.CheckIns)
	rec.CurrentCalls += ParseAmount(deltas.Calls)
	rec.CurrentHoursWorked = round2(rec.CurrentHoursWorked + ParseAmount(deltas.HoursWorked))
}

// validateBounds fails closed: a negative or absurdly large counter means a
// double-counting bug, and the stored values must stay untouched.
func validateBounds(rec *TargetRecord) error {
	for _, name := range metricOrder {
		value := metricRegistry[name].current(rec)
		if value < 0 {
			return fmt.Errorf("%w: %s is negative (%g)", ErrIntegrity, name, value)
		}
		if value > maxSaneAmount {
			return fmt.Errorf("%w: %s exceeds sanity ceiling (%g)", ErrIntegrity, name, value)
		}
	}
	if rec.CurrentSalesAmount != rec.CurrentQuotationsAmount+rec.CurrentOrdersAmount {
		return fmt.Errorf("%w: sales amount diverged from quotations+orders", ErrIntegrity)
	}
	return nil
}

// detectAchievements reports metrics whose progress crossed 100%% of the goal
// between two counter snapshots.
func detectAchievements(rec *TargetRecord, previous, updated map[string]float64) []string {
	var crossed []string
	for _, name := range metricOrder {
		access := metricRegistry[name]
		if !access.hasGoal {
			continue
		}
		goal := access.goal(rec)
		if goal <= 0 {
			continue
		}
		if previous[name] < goal && updated[name] >= goal {
			crossed = append(crossed, name)
		}
	}
	return crossed
}

func (s *Service) notifyAchievements(ctx context.Context, tenantID, userID string, previous map[string]float64, rec *TargetRecord) {
	if s.notify == nil {
		return
	}
	crossed := detectAchievements(rec, previous, currentValues(rec))
	if len(crossed) == 0 {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, metric := range crossed {
		payload := map[string]any{
			"metric":   metric,
			"achieved": metricRegistry[metric].current(rec),
			"target":   metricRegistry[metric].goal(rec),
			"period":   rec.TargetPeriod,
		}
		if err := s.notify.Notify(notifyCtx, tenantID, userID, EventTargetAchievement, "Target achieved", "You reached 100% of a performance target.", payload); err != nil {
			slog.Warn("achievement notification failed", "userId", userID, "metric", metric, "err", err)
		}
	}
}
