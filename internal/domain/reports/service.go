package reports

import (
	"context"
	"time"

	"crm/internal/domain/core"
	"crm/internal/domain/targets"
)

type Service struct {
	Store   *Store
	Targets *targets.Service
	Core    *core.Service
}

func NewService(store *Store, targetSvc *targets.Service, coreSvc *core.Service) *Service {
	return &Service{Store: store, Targets: targetSvc, Core: coreSvc}
}

func (s *Service) Dashboard(ctx context.Context, tenantID, branchID string) (map[string]any, error) {
	users, err := s.Store.ActiveUserCount(ctx, tenantID, branchID)
	if err != nil {
		return nil, err
	}
	clients, err := s.Store.ClientCount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	leads, err := s.Store.LeadCount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	openQuotations, err := s.Store.OpenQuotationTotal(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	activeTargets, err := s.Store.ActiveTargetCount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"activeUsers":        users,
		"clients":            clients,
		"leads":              leads,
		"openQuotationTotal": openQuotations,
		"activeTargets":      activeTargets,
	}, nil
}

// ProgressReport is the per-user target view with pacing context: how far
// along the period is in working days, against how far along the counters are.
type ProgressReport struct {
	Target           *targets.TargetRecord `json:"target"`
	Progress         map[string]float64    `json:"progress"`
	WorkingDaysTotal int                   `json:"workingDaysTotal"`
	WorkingDaysLeft  int                   `json:"workingDaysLeft"`
}

func (s *Service) TargetProgress(ctx context.Context, tenantID, userID string, now time.Time) (*ProgressReport, error) {
	rec, err := s.Targets.GetTarget(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	report := &ProgressReport{
		Target:   rec,
		Progress: targets.ProgressSummary(rec),
	}

	workingDays := []int{1, 2, 3, 4, 5}
	if rec.BranchID != "" {
		if branch, err := s.Core.GetBranch(ctx, tenantID, rec.BranchID); err == nil && len(branch.WorkingDays) > 0 {
			workingDays = branch.WorkingDays
		}
	}
	var holidayDates []time.Time
	if holidays, err := s.Core.ListHolidays(ctx, tenantID, rec.PeriodStartDate, rec.PeriodEndDate); err == nil {
		for _, holiday := range holidays {
			holidayDates = append(holidayDates, holiday.Date)
		}
	}

	report.WorkingDaysTotal = core.WorkingDaysBetween(workingDays, holidayDates, rec.PeriodStartDate, rec.PeriodEndDate)
	if now.Before(rec.PeriodEndDate) || now.Equal(rec.PeriodEndDate) {
		from := now
		if from.Before(rec.PeriodStartDate) {
			from = rec.PeriodStartDate
		}
		report.WorkingDaysLeft = core.WorkingDaysBetween(workingDays, holidayDates, from, rec.PeriodEndDate)
	}
	return report, nil
}

func (s *Service) JobRuns(ctx context.Context, tenantID string, filter JobRunFilter, limit, offset int) ([]map[string]any, error) {
	return s.Store.ListJobRuns(ctx, tenantID, filter, limit, offset)
}

func (s *Service) JobRunCount(ctx context.Context, tenantID string, filter JobRunFilter) (int, error) {
	return s.Store.CountJobRuns(ctx, tenantID, filter)
}

func (s *Service) JobRun(ctx context.Context, tenantID, runID string) (map[string]any, error) {
	return s.Store.JobRunByID(ctx, tenantID, runID)
}
