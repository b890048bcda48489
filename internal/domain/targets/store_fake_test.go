package targets

import (
	"context"
	"time"
)

// fakeStore is an in-memory StoreAPI for exercising the service logic
// without a database.
type fakeStore struct {
	rec        *TargetRecord
	userBranch string
	userActive bool

	deltas MetricDeltas
	due    []TargetRef

	// lockBusy makes the next N ApplyExternal calls fail with ErrRowLocked.
	lockBusy int

	saves int
	syncs map[string]map[string]float64
}

func newFakeStore(rec *TargetRecord) *fakeStore {
	return &fakeStore{
		rec:        rec,
		userBranch: "branch-1",
		userActive: true,
		syncs:      map[string]map[string]float64{},
	}
}

func (f *fakeStore) GetTarget(ctx context.Context, tenantID, userID string) (*TargetRecord, error) {
	if f.rec == nil {
		return nil, ErrTargetNotFound
	}
	clone := *f.rec
	return &clone, nil
}

func (f *fakeStore) CreateTarget(ctx context.Context, tenantID string, rec *TargetRecord) (string, error) {
	if f.rec != nil {
		return "", ErrTargetExists
	}
	rec.ID = "target-1"
	f.rec = rec
	return rec.ID, nil
}

func (f *fakeStore) DetachTarget(ctx context.Context, tenantID, userID string) error {
	if f.rec == nil {
		return ErrTargetNotFound
	}
	f.rec = nil
	return nil
}

func (f *fakeStore) UserActive(ctx context.Context, tenantID, userID string) (string, bool, error) {
	return f.userBranch, f.userActive, nil
}

func (f *fakeStore) ApplyLocked(ctx context.Context, tenantID, userID string, apply func(*TargetRecord) error) (*TargetRecord, error) {
	if f.rec == nil {
		return nil, ErrTargetNotFound
	}
	clone := *f.rec
	if err := apply(&clone); err != nil {
		return nil, err
	}
	f.rec = &clone
	f.saves++
	return &clone, nil
}

func (f *fakeStore) ApplyExternal(ctx context.Context, tenantID, userID string, txn SyncTransaction, apply ExternalApply) (*ExternalOutcome, error) {
	if f.lockBusy > 0 {
		f.lockBusy--
		return nil, ErrRowLocked
	}
	if recorded, ok := f.syncs[txn.Source+"/"+txn.TransactionID]; ok {
		return &ExternalOutcome{Replayed: true, UpdatedValues: recorded}, nil
	}
	if f.rec == nil {
		return nil, ErrTargetNotFound
	}
	clone := *f.rec
	changes, issues := apply(&clone)
	if len(issues) > 0 {
		return &ExternalOutcome{ValidationErrors: issues}, nil
	}
	f.rec = &clone
	f.saves++
	values := currentValues(&clone)
	f.syncs[txn.Source+"/"+txn.TransactionID] = values
	return &ExternalOutcome{UpdatedValues: values, Changes: changes, Record: &clone}, nil
}

func (f *fakeStore) ListDueRecurring(ctx context.Context, now time.Time) ([]TargetRef, error) {
	return f.due, nil
}

func (f *fakeStore) ListSyncTransactions(ctx context.Context, tenantID, userID string, limit, offset int) ([]SyncRecord, error) {
	return nil, nil
}

func (f *fakeStore) QuotationDeltas(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, float64, error) {
	return f.deltas.QuotationsAmount, f.deltas.OrdersAmount, nil
}

func (f *fakeStore) LeadDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error) {
	return f.deltas.NewLeads, nil
}

func (f *fakeStore) ClientDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error) {
	return f.deltas.NewClients, nil
}

func (f *fakeStore) CheckInDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error) {
	return f.deltas.CheckIns, nil
}

func (f *fakeStore) CallDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error) {
	return f.deltas.Calls, nil
}

func (f *fakeStore) HoursDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error) {
	return f.deltas.HoursWorked, nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(ctx context.Context, tenantID, userID, event, title, body string, payload map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) Invalidate(key string) {
	f.invalidated = append(f.invalidated, key)
}

func newTestService(store StoreAPI) (*Service, *fakeNotifier, *fakeCache) {
	notify := &fakeNotifier{}
	cache := &fakeCache{}
	svc := NewService(store, notify, cache)
	svc.now = func() time.Time { return time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC) }
	svc.sleep = func(time.Duration) {}
	return svc, notify, cache
}

func testRecord() *TargetRecord {
	start := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC)
	next := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	return &TargetRecord{
		ID:                      "target-1",
		UserID:                  "user-1",
		BranchID:                "branch-1",
		TargetSalesAmount:       50000,
		TargetQuotationsAmount:  40000,
		TargetNewLeads:          20,
		Currency:                "USD",
		CurrentSalesAmount:      30000,
		CurrentQuotationsAmount: 20000,
		CurrentOrdersAmount:     10000,
		CurrentNewLeads:         5,
		PeriodStartDate:         start,
		PeriodEndDate:           end,
		TargetPeriod:            "2024-11",
		IsRecurring:             true,
		RecurringInterval:       IntervalMonthly,
		NextRecurrenceDate:      &next,
	}
}
