package targets

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// Notifier is the fire-and-forget notification sink. Failures are logged by
// the caller and never affect the owning transaction.
type Notifier interface {
	Notify(ctx context.Context, tenantID, userID, event, title, body string, payload map[string]any) error
}

// CacheInvalidator drops any cached read view of a user's target.
type CacheInvalidator interface {
	Invalidate(key string)
}

// CacheKey scopes cached target reads by tenant; a user id on its own is not
// unique across the tenancy boundary.
func CacheKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}

type Service struct {
	store  StoreAPI
	notify Notifier
	cache  CacheInvalidator

	flights singleflight.Group

	// test seams
	now         func() time.Time
	sleep       func(time.Duration)
	backoffBase time.Duration
}

func NewService(store StoreAPI, notify Notifier, cache CacheInvalidator) *Service {
	return &Service{
		store:       store,
		notify:      notify,
		cache:       cache,
		now:         time.Now,
		sleep:       time.Sleep,
		backoffBase: 50 * time.Millisecond,
	}
}

// GetTarget returns the user's record or ErrTargetNotFound.
func (s *Service) GetTarget(ctx context.Context, tenantID, userID string) (*TargetRecord, error) {
	return s.store.GetTarget(ctx, tenantID, userID)
}

// SetGoals creates the user's TargetRecord on first call or updates goal and
// recurrence fields on subsequent calls. New records default to a recurring
// monthly target over the current calendar month. Updates run under the row
// lock so a rollover committing concurrently is never overwritten with the
// previous period's fields.
func (s *Service) SetGoals(ctx context.Context, tenantID, userID string, input GoalInput) (*TargetRecord, error) {
	branchID, active, err := s.store.UserActive(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrUserNotFound
	}

	rec, err := s.store.ApplyLocked(ctx, tenantID, userID, func(locked *TargetRecord) error {
		applyGoalInput(locked, input)
		return nil
	})
	if errors.Is(err, ErrTargetNotFound) {
		rec = newDefaultRecord(userID, branchID, s.now())
		applyGoalInput(rec, input)
		id, createErr := s.store.CreateTarget(ctx, tenantID, rec)
		if createErr != nil {
			return nil, createErr
		}
		rec.ID = id
		s.invalidate(tenantID, userID)
		return rec, nil
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(tenantID, userID)
	return rec, nil
}

// DisableRecurrence turns the schedule off and clears the interval and the
// pending trigger date. History and the active period are untouched.
func (s *Service) DisableRecurrence(ctx context.Context, tenantID, userID string) (*TargetRecord, error) {
	rec, err := s.store.ApplyLocked(ctx, tenantID, userID, func(locked *TargetRecord) error {
		locked.IsRecurring = false
		locked.RecurringInterval = ""
		locked.NextRecurrenceDate = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(tenantID, userID)
	return rec, nil
}

// DetachTarget removes the user association without purging the row or its
// history.
func (s *Service) DetachTarget(ctx context.Context, tenantID, userID string) error {
	if err := s.store.DetachTarget(ctx, tenantID, userID); err != nil {
		return err
	}
	s.invalidate(tenantID, userID)
	return nil
}

// History returns the archived period snapshots, newest first.
func (s *Service) History(ctx context.Context, tenantID, userID string) ([]PeriodSnapshot, error) {
	rec, err := s.store.GetTarget(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	out := make([]PeriodSnapshot, len(rec.History))
	for i := range rec.History {
		out[i] = rec.History[len(rec.History)-1-i]
	}
	return out, nil
}

// ListSyncTransactions pages the applied external transactions, newest first.
func (s *Service) ListSyncTransactions(ctx context.Context, tenantID, userID string, limit, offset int) ([]SyncRecord, error) {
	return s.store.ListSyncTransactions(ctx, tenantID, userID, limit, offset)
}

func (s *Service) invalidate(tenantID, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(CacheKey(tenantID, userID))
	}
}

func newDefaultRecord(userID, branchID string, now time.Time) *TargetRecord {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
	next := start.AddDate(0, 1, 0)
	return &TargetRecord{
		UserID:             userID,
		BranchID:           branchID,
		Currency:           "USD",
		PeriodStartDate:    start,
		PeriodEndDate:      end,
		TargetPeriod:       start.Format("2006-01"),
		IsRecurring:        true,
		RecurringInterval:  IntervalMonthly,
		NextRecurrenceDate: &next,
	}
}

func applyGoalInput(rec *TargetRecord, input GoalInput) {
	setIf := func(dst *float64, src *float64) {
		if src != nil {
			*dst = ParseAmount(*src)
		}
	}
	setIf(&rec.TargetSalesAmount, input.SalesAmount)
	setIf(&rec.TargetQuotationsAmount, input.QuotationsAmount)
	setIf(&rec.TargetNewLeads, input.NewLeads)
	setIf(&rec.TargetNewClients, input.NewClients)
	setIf(&rec.TargetCheckIns, input.CheckIns)
	setIf(&rec.TargetCalls, input.Calls)
	setIf(&rec.TargetHoursWorked, input.HoursWorked)
	setIf(&rec.BaseSalary, input.BaseSalary)
	setIf(&rec.Allowances, input.Allowances)

	if input.Currency != "" {
		rec.Currency = input.Currency
	}
	if input.IsRecurring != nil {
		rec.IsRecurring = *input.IsRecurring
		if !rec.IsRecurring {
			rec.RecurringInterval = ""
			rec.NextRecurrenceDate = nil
		}
	}
	if input.RecurringInterval != "" {
		rec.RecurringInterval = input.RecurringInterval
	}
	if input.CarryForwardUnfulfilled != nil {
		rec.CarryForwardUnfulfilled = *input.CarryForwardUnfulfilled
	}
}

// ProgressSummary reports achievement percentages for every metric with a
// nonzero goal.
func ProgressSummary(rec *TargetRecord) map[string]float64 {
	out := map[string]float64{}
	for _, name := range metricOrder {
		access := metricRegistry[name]
		if !access.hasGoal {
			continue
		}
		goal := access.goal(rec)
		if goal <= 0 {
			continue
		}
		out[name] = round2(access.current(rec) / goal * 100)
	}
	return out
}
