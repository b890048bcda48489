package reports

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"crm/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) ActiveUserCount(ctx context.Context, tenantID, branchID string) (int, error) {
	query := "SELECT COUNT(1) FROM users WHERE tenant_id = $1 AND status = 'active' AND deleted_at IS NULL"
	args := []any{tenantID}
	if branchID != "" {
		query += " AND branch_id = $2"
		args = append(args, branchID)
	}
	var count int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ClientCount(ctx context.Context, tenantID string) (int, error) {
	var count int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM clients WHERE tenant_id = $1", tenantID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) LeadCount(ctx context.Context, tenantID string) (int, error) {
	var count int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM leads WHERE tenant_id = $1", tenantID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) OpenQuotationTotal(ctx context.Context, tenantID string) (float64, error) {
	var total float64
	if err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(SUM(amount),0)
    FROM quotations
    WHERE tenant_id = $1 AND status = ANY($2)
  `, tenantID, []string{"draft", "sent", "negotiation"}).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) CompletedOrderTotal(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	var total float64
	if err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(SUM(amount),0)
    FROM quotations
    WHERE tenant_id = $1 AND status = 'completed' AND created_at >= $2 AND created_at <= $3
  `, tenantID, from, to).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ActiveTargetCount(ctx context.Context, tenantID string) (int, error) {
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM performance_targets
    WHERE tenant_id = $1 AND user_id IS NOT NULL
  `, tenantID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type JobRunFilter struct {
	JobType     string
	Status      string
	StartedFrom *time.Time
	StartedTo   *time.Time
}

func (s *Store) ListJobRuns(ctx context.Context, tenantID string, filter JobRunFilter, limit, offset int) ([]map[string]any, error) {
	query, args := buildJobRunsBaseQuery(tenantID, filter)
	query += " ORDER BY started_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []map[string]any
	for rows.Next() {
		var id, jobTypeVal, status string
		var detailsRaw []byte
		var startedAt time.Time
		var completedAt *time.Time
		if err := rows.Scan(&id, &jobTypeVal, &status, &detailsRaw, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		runs = append(runs, map[string]any{
			"id":          id,
			"jobType":     jobTypeVal,
			"status":      status,
			"details":     decodeDetails(detailsRaw),
			"startedAt":   startedAt,
			"completedAt": completedAt,
		})
	}
	return runs, nil
}

func (s *Store) CountJobRuns(ctx context.Context, tenantID string, filter JobRunFilter) (int, error) {
	query, args := buildJobRunsBaseQuery(tenantID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM ("+query+") job_runs", args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) JobRunByID(ctx context.Context, tenantID, runID string) (map[string]any, error) {
	var (
		id, jobTypeVal, status string
		detailsRaw             []byte
		startedAt              time.Time
		completedAt            *time.Time
	)
	if err := s.DB.QueryRow(ctx, `
    SELECT id, job_type, status, COALESCE(details_json, '{}'::jsonb), started_at, completed_at
    FROM job_runs
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, runID).Scan(&id, &jobTypeVal, &status, &detailsRaw, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	return map[string]any{
		"id":          id,
		"jobType":     jobTypeVal,
		"status":      status,
		"details":     decodeDetails(detailsRaw),
		"startedAt":   startedAt,
		"completedAt": completedAt,
	}, nil
}

func buildJobRunsBaseQuery(tenantID string, filter JobRunFilter) (string, []any) {
	query := `
    SELECT id, job_type, status, COALESCE(details_json, '{}'::jsonb), started_at, completed_at
    FROM job_runs
    WHERE tenant_id = $1
  `
	args := []any{tenantID}

	if value := strings.TrimSpace(filter.JobType); value != "" {
		query += " AND job_type = $" + strconv.Itoa(len(args)+1)
		args = append(args, value)
	}
	if value := strings.TrimSpace(filter.Status); value != "" {
		query += " AND status = $" + strconv.Itoa(len(args)+1)
		args = append(args, value)
	}
	if filter.StartedFrom != nil && !filter.StartedFrom.IsZero() {
		query += " AND started_at >= $" + strconv.Itoa(len(args)+1)
		args = append(args, *filter.StartedFrom)
	}
	if filter.StartedTo != nil && !filter.StartedTo.IsZero() {
		query += " AND started_at <= $" + strconv.Itoa(len(args)+1)
		args = append(args, *filter.StartedTo)
	}

	return query, args
}

func decodeDetails(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	details := map[string]any{}
	if err := json.Unmarshal(raw, &details); err != nil {
		return map[string]any{
			"raw": string(raw),
		}
	}
	return details
}
