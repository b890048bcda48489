package targets

import (
	"context"
	"testing"
	"time"
)

func TestApplyRecurrenceMonthly(t *testing.T) {
	rec := testRecord()
	rec.CarryForwardUnfulfilled = true
	now := time.Date(2024, 11, 30, 23, 59, 0, 0, time.UTC)

	snapshot := applyRecurrence(rec, now)

	if len(rec.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(rec.History))
	}
	if snapshot.Period != "2024-11" {
		t.Fatalf("snapshot period = %s, want 2024-11", snapshot.Period)
	}

	// sales 30000/50000 => 60%, quotations 20000/40000 => 50%, leads 5/20 => 25%.
	if snapshot.Completion != 45 {
		t.Fatalf("completion = %g, want 45", snapshot.Completion)
	}
	if snapshot.Status != PeriodStatusMissed {
		t.Fatalf("status = %s, want %s", snapshot.Status, PeriodStatusMissed)
	}

	var salesEntry *SnapshotMetric
	for i := range snapshot.Metrics {
		if snapshot.Metrics[i].Metric == MetricSalesAmount {
			salesEntry = &snapshot.Metrics[i]
		}
	}
	if salesEntry == nil {
		t.Fatalf("snapshot has no sales entry: %+v", snapshot.Metrics)
	}
	if salesEntry.Missing != 20000 {
		t.Fatalf("sales missing = %g, want 20000", salesEntry.Missing)
	}

	// Carry-forward: shortfall added on top of the standing goals.
	if rec.TargetSalesAmount != 70000 {
		t.Fatalf("new sales goal = %g, want 70000", rec.TargetSalesAmount)
	}
	if rec.TargetQuotationsAmount != 60000 {
		t.Fatalf("new quotations goal = %g, want 60000", rec.TargetQuotationsAmount)
	}
	if rec.TargetNewLeads != 35 {
		t.Fatalf("new leads goal = %g, want 35", rec.TargetNewLeads)
	}

	// All counters reset.
	for _, name := range metricOrder {
		if got := metricRegistry[name].current(rec); got != 0 {
			t.Fatalf("%s = %g after rollover, want 0", name, got)
		}
	}

	wantStart := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	wantNext := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !rec.PeriodStartDate.Equal(wantStart) || !rec.PeriodEndDate.Equal(wantEnd) {
		t.Fatalf("new period = %v..%v, want %v..%v", rec.PeriodStartDate, rec.PeriodEndDate, wantStart, wantEnd)
	}
	if rec.NextRecurrenceDate == nil || !rec.NextRecurrenceDate.Equal(wantNext) {
		t.Fatalf("nextRecurrenceDate = %v, want %v", rec.NextRecurrenceDate, wantNext)
	}
	if rec.TargetPeriod != "2024-12" {
		t.Fatalf("targetPeriod = %s, want 2024-12", rec.TargetPeriod)
	}
	if rec.RecurrenceCount != 1 {
		t.Fatalf("recurrenceCount = %d, want 1", rec.RecurrenceCount)
	}
	if rec.LastRecurrenceDate == nil || !rec.LastRecurrenceDate.Equal(now) {
		t.Fatalf("lastRecurrenceDate = %v, want %v", rec.LastRecurrenceDate, now)
	}
	if rec.LastCalculatedAt == nil || !rec.LastCalculatedAt.Equal(now) {
		t.Fatalf("lastCalculatedAt = %v, want %v", rec.LastCalculatedAt, now)
	}
}

func TestApplyRecurrenceNoCarryForward(t *testing.T) {
	rec := testRecord()
	rec.CarryForwardUnfulfilled = false
	applyRecurrence(rec, time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC))

	if rec.TargetSalesAmount != 50000 {
		t.Fatalf("sales goal = %g, goals must stand unchanged without carry-forward", rec.TargetSalesAmount)
	}
}

func TestApplyRecurrenceWeekly(t *testing.T) {
	rec := testRecord()
	rec.RecurringInterval = IntervalWeekly
	rec.PeriodStartDate = time.Date(2024, 11, 11, 0, 0, 0, 0, time.UTC)
	rec.PeriodEndDate = time.Date(2024, 11, 17, 0, 0, 0, 0, time.UTC)
	rec.TargetPeriod = "2024-11-11"

	applyRecurrence(rec, time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC))

	wantStart := time.Date(2024, 11, 18, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 11, 24, 0, 0, 0, 0, time.UTC)
	if !rec.PeriodStartDate.Equal(wantStart) || !rec.PeriodEndDate.Equal(wantEnd) {
		t.Fatalf("new period = %v..%v, want %v..%v", rec.PeriodStartDate, rec.PeriodEndDate, wantStart, wantEnd)
	}
	if rec.NextRecurrenceDate == nil || !rec.NextRecurrenceDate.Equal(time.Date(2024, 11, 24, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("nextRecurrenceDate = %v, want 2024-11-24", rec.NextRecurrenceDate)
	}
	if rec.TargetPeriod != "2024-11-18" {
		t.Fatalf("targetPeriod = %s, want 2024-11-18", rec.TargetPeriod)
	}
}

func TestApplyRecurrenceDaily(t *testing.T) {
	rec := testRecord()
	rec.RecurringInterval = IntervalDaily
	rec.PeriodStartDate = time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)
	rec.PeriodEndDate = time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)

	applyRecurrence(rec, time.Date(2024, 11, 16, 0, 5, 0, 0, time.UTC))

	want := time.Date(2024, 11, 16, 0, 0, 0, 0, time.UTC)
	if !rec.PeriodStartDate.Equal(want) || !rec.PeriodEndDate.Equal(want) {
		t.Fatalf("new period = %v..%v, want single day %v", rec.PeriodStartDate, rec.PeriodEndDate, want)
	}
}

func TestBuildPeriodSnapshotStatuses(t *testing.T) {
	cases := []struct {
		name       string
		achieved   float64
		completion float64
		status     string
	}{
		{name: "achieved", achieved: 50000, completion: 100, status: PeriodStatusAchieved},
		{name: "overachieved is capped", achieved: 90000, completion: 100, status: PeriodStatusAchieved},
		{name: "partial", achieved: 30000, completion: 60, status: PeriodStatusPartial},
		{name: "missed", achieved: 10000, completion: 20, status: PeriodStatusMissed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := testRecord()
			rec.TargetQuotationsAmount = 0
			rec.TargetNewLeads = 0
			rec.CurrentSalesAmount = tc.achieved

			snapshot := buildPeriodSnapshot(rec, time.Now())
			if snapshot.Completion != tc.completion {
				t.Fatalf("completion = %g, want %g", snapshot.Completion, tc.completion)
			}
			if snapshot.Status != tc.status {
				t.Fatalf("status = %s, want %s", snapshot.Status, tc.status)
			}
		})
	}
}

func TestBuildPeriodSnapshotNoGoals(t *testing.T) {
	rec := testRecord()
	rec.TargetSalesAmount = 0
	rec.TargetQuotationsAmount = 0
	rec.TargetNewLeads = 0

	snapshot := buildPeriodSnapshot(rec, time.Now())
	if len(snapshot.Metrics) != 0 || snapshot.Completion != 0 {
		t.Fatalf("snapshot = %+v, want empty metrics and zero completion", snapshot)
	}
	if snapshot.Status != PeriodStatusMissed {
		t.Fatalf("status = %s, want %s", snapshot.Status, PeriodStatusMissed)
	}
}

func TestRunRecurrences(t *testing.T) {
	store := newFakeStore(testRecord())
	store.due = []TargetRef{{TenantID: "tenant-1", UserID: "user-1"}}
	svc, notify, cache := newTestService(store)

	now := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	summary, err := svc.RunRecurrences(context.Background(), now)
	if err != nil {
		t.Fatalf("RunRecurrences: %v", err)
	}
	if summary.Scanned != 1 || summary.Rolled != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 1 scanned, 1 rolled", summary)
	}
	if store.rec.RecurrenceCount != 1 {
		t.Fatalf("recurrenceCount = %d, want 1", store.rec.RecurrenceCount)
	}
	if len(cache.invalidated) != 1 {
		t.Fatalf("cache invalidations = %v", cache.invalidated)
	}
	if len(notify.events) != 1 || notify.events[0] != EventNewPeriod {
		t.Fatalf("events = %v, want [%s]", notify.events, EventNewPeriod)
	}
}

func TestRecurNonRecurring(t *testing.T) {
	rec := testRecord()
	rec.IsRecurring = false
	store := newFakeStore(rec)
	svc, _, _ := newTestService(store)

	if err := svc.Recur(context.Background(), "tenant-1", "user-1", time.Now()); err == nil {
		t.Fatal("Recur on a non-recurring target must fail")
	}
	if store.rec.RecurrenceCount != 0 {
		t.Fatalf("recurrenceCount = %d, record must stay untouched", store.rec.RecurrenceCount)
	}
}
