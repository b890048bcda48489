package targets

import "time"

// TargetRecord holds one user's performance goals, live progress counters,
// the active period window and the archived period history. A user has at
// most one record; detaching keeps the row (and its history) but removes the
// user association.
type TargetRecord struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	BranchID string `json:"branchId"`

	TargetSalesAmount      float64 `json:"targetSalesAmount"`
	TargetQuotationsAmount float64 `json:"targetQuotationsAmount"`
	TargetNewLeads         float64 `json:"targetNewLeads"`
	TargetNewClients       float64 `json:"targetNewClients"`
	TargetCheckIns         float64 `json:"targetCheckIns"`
	TargetCalls            float64 `json:"targetCalls"`
	TargetHoursWorked      float64 `json:"targetHoursWorked"`
	Currency               string  `json:"currency"`

	CurrentSalesAmount      float64 `json:"currentSalesAmount"`
	CurrentQuotationsAmount float64 `json:"currentQuotationsAmount"`
	CurrentOrdersAmount     float64 `json:"currentOrdersAmount"`
	CurrentNewLeads         float64 `json:"currentNewLeads"`
	CurrentNewClients       float64 `json:"currentNewClients"`
	CurrentCheckIns         float64 `json:"currentCheckIns"`
	CurrentCalls            float64 `json:"currentCalls"`
	CurrentHoursWorked      float64 `json:"currentHoursWorked"`

	PeriodStartDate time.Time `json:"periodStartDate"`
	PeriodEndDate   time.Time `json:"periodEndDate"`
	TargetPeriod    string    `json:"targetPeriod"`

	IsRecurring             bool       `json:"isRecurring"`
	RecurringInterval       string     `json:"recurringInterval,omitempty"`
	CarryForwardUnfulfilled bool       `json:"carryForwardUnfulfilled"`
	NextRecurrenceDate      *time.Time `json:"nextRecurrenceDate,omitempty"`
	LastRecurrenceDate      *time.Time `json:"lastRecurrenceDate,omitempty"`
	RecurrenceCount         int        `json:"recurrenceCount"`
	LastCalculatedAt        *time.Time `json:"lastCalculatedAt,omitempty"`

	History []PeriodSnapshot `json:"history"`

	BaseSalary float64 `json:"baseSalary"`
	Allowances float64 `json:"allowances"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PeriodSnapshot is an immutable archive entry appended when a period closes.
type PeriodSnapshot struct {
	Period     string           `json:"period"`
	Metrics    []SnapshotMetric `json:"metrics"`
	Completion float64          `json:"completion"`
	Status     string           `json:"status"`
	ArchivedAt time.Time        `json:"archivedAt"`
}

type SnapshotMetric struct {
	Metric   string  `json:"metric"`
	Target   float64 `json:"target"`
	Achieved float64 `json:"achieved"`
	Missing  float64 `json:"missingAmount"`
}

// GoalInput carries goal values for create/update calls. Nil fields are left
// untouched on update.
type GoalInput struct {
	SalesAmount      *float64 `json:"targetSalesAmount"`
	QuotationsAmount *float64 `json:"targetQuotationsAmount"`
	NewLeads         *float64 `json:"targetNewLeads"`
	NewClients       *float64 `json:"targetNewClients"`
	CheckIns         *float64 `json:"targetCheckIns"`
	Calls            *float64 `json:"targetCalls"`
	HoursWorked      *float64 `json:"targetHoursWorked"`
	Currency         string   `json:"currency"`
	BaseSalary       *float64 `json:"baseSalary"`
	Allowances       *float64 `json:"allowances"`

	IsRecurring             *bool  `json:"isRecurring"`
	RecurringInterval       string `json:"recurringInterval"`
	CarryForwardUnfulfilled *bool  `json:"carryForwardUnfulfilled"`
}

// TargetRef identifies a record due for recurrence.
type TargetRef struct {
	TenantID string
	UserID   string
}

// FieldChange records one counter's before/after values for the audit trail.
type FieldChange struct {
	Field  string  `json:"field"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

type metricAccess struct {
	current    func(*TargetRecord) float64
	setCurrent func(*TargetRecord, float64)
	goal       func(*TargetRecord) float64
	setGoal    func(*TargetRecord, float64)
	hasGoal    bool
}

// metricOrder fixes iteration order so validation errors, audit entries and
// snapshots come out deterministic.
var metricOrder = []string{
	MetricSalesAmount,
	MetricQuotationsAmount,
	MetricOrdersAmount,
	MetricNewLeads,
	MetricNewClients,
	MetricCheckIns,
	MetricCalls,
	MetricHoursWorked,
}

var metricRegistry = map[string]metricAccess{
	MetricSalesAmount: {
		current:    func(r *TargetRecord) float64 { return r.CurrentSalesAmount },
		setCurrent: func(r *TargetRecord, v float64) { r.CurrentSalesAmount = v },
		goal:       func(r *TargetRecord) float64 { return r.TargetSalesAmount },
		setGoal:    func(r *TargetRecord, v float64) { r.TargetSalesAmount = v },
		hasGoal:    true,
	},
	MetricQuotationsAmount: {
		current:    func(r *TargetRecord) float64 { return r.CurrentQuotationsAmount },
		setCurrent: func(r *TargetRecord, v float64) { r.CurrentQuotationsAmount = v },
		goal:       func(r *TargetRecord) float64 { return r.TargetQuotationsAmount },
		setGoal:    func(r *TargetRecord, v float64) { r.TargetQuotationsAmount = v },
		hasGoal:    true,
	},
	MetricOrdersAmount: {
		current:    func(r *TargetRecord) float64 { return r.CurrentOrdersAmount },
		setCurrent: func(r *TargetRecord, v float64) { r.CurrentOrdersAmount = v },
	},
	MetricNewLeads: {
		current:    func(r *TargetRecord) float64 { return r.CurrentNewLeads },
		setCurrent: func(r *TargetRecord, v float64) { r.CurrentNewLeads = v },
		goal:       func(r *TargetRecord) float64 { return r.TargetNewLeads },
		setGoal:    func(r *TargetRecord, v float64) { r.TargetNewLeads = v },
		hasGoal:    true,
	},
	MetricNewClients: {
		current:    func(r *TargetRecord) float64 { return r.CurrentNewClients },
		setCurrent: func(r *TargetRecord, v float64) { r.CurrentNewClients = v },
		goal:       func(r *TargetRecord) float64 { return r.TargetNewClients },
		setGoal:    func(r *TargetRecord, v float64) { r.TargetNewClients = v },
		hasGoal:    true,
	},
	MetricCheckIns: {
		current:    func(r *TargetRecord) float64 { return r.CurrentCheckIns },
		setCurrent: func(r *TargetRecord, v float64) { r.CurrentCheckIns = v },
		goal:       func(r *TargetRecord) float64 { return r.TargetCheckIns },
		setGoal:    func(r *TargetRecord, v float64) { r.TargetCheckIns = v },
		hasGoal:    true,
	},
	MetricCalls: {
		current:    func(r *TargetRecord) float64 { return r.CurrentCalls },
		setCurrent: func(r *TargetRecord, v float64) { r.CurrentCalls = v },
		goal:       func(r *TargetRecord) float64 { return r.TargetCalls },
		setGoal:    func(r *TargetRecord, v float64) { r.TargetCalls = v },
		hasGoal:    true,
	},
	MetricHoursWorked: {
		current:    func(r *TargetRecord) float64 { return r.CurrentHoursWorked },
		setCurrent: func(r *TargetRecord, v float64) { r.CurrentHoursWorked = v },
		goal:       func(r *TargetRecord) float64 { return r.TargetHoursWorked },
		setGoal:    func(r *TargetRecord, v float64) { r.TargetHoursWorked = v },
		hasGoal:    true,
	},
}

// recomputeSales keeps the derived sales counter equal to quotations plus
// orders. Every writer calls this after touching either component.
func recomputeSales(rec *TargetRecord) {
	rec.CurrentSalesAmount = rec.CurrentQuotationsAmount + rec.CurrentOrdersAmount
}

func currentValues(rec *TargetRecord) map[string]float64 {
	out := make(map[string]float64, len(metricOrder))
	for _, name := range metricOrder {
		out[name] = metricRegistry[name].current(rec)
	}
	return out
}
