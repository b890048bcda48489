package targets

const (
	MetricSalesAmount      = "currentSalesAmount"
	MetricQuotationsAmount = "currentQuotationsAmount"
	MetricOrdersAmount     = "currentOrdersAmount"
	MetricNewLeads         = "currentNewLeads"
	MetricNewClients       = "currentNewClients"
	MetricCheckIns         = "currentCheckIns"
	MetricCalls            = "currentCalls"
	MetricHoursWorked      = "currentHoursWorked"

	IntervalDaily   = "daily"
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"

	PeriodStatusAchieved = "achieved"
	PeriodStatusPartial  = "partial"
	PeriodStatusMissed   = "missed"

	ModeIncrement = "INCREMENT"
	ModeDecrement = "DECREMENT"
	ModeReplace   = "REPLACE"

	// DefaultSource labels external updates whose payload omits a source.
	DefaultSource = "external_erp"

	EventTargetUpdated        = "target_updated"
	EventTargetAchievement    = "target_achievement"
	EventContributionProgress = "contribution_progress"
	EventNewPeriod            = "new_period"

	// maxSaneAmount is the bounds-validator ceiling; a computed counter above
	// it is treated as corrupt and the write is discarded.
	maxSaneAmount = 1e9

	maxUpdateAttempts = 5
)

// quotation statuses feeding the aggregator. Open quotations count toward the
// quotations amount; completed ones toward the orders amount.
var openQuotationStatuses = []string{"draft", "sent", "negotiation"}

const completedQuotationStatus = "completed"
