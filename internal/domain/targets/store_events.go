package targets

import (
	"context"
	"time"
)

// Delta queries sum/count business events created inside the scan window.
// Client-placed quotations carry no owner attribution and are excluded.

func (s *Store) QuotationDeltas(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, float64, error) {
	var open, completed float64
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(SUM(amount) FILTER (WHERE status = ANY($5)), 0),
           COALESCE(SUM(amount) FILTER (WHERE status = $6), 0)
    FROM quotations
    WHERE tenant_id = $1
      AND owner_user_id = $2
      AND placed_by_client = false
      AND created_at > $3 AND created_at <= $4
  `, tenantID, userID, from, to, openQuotationStatuses, completedQuotationStatus).Scan(&open, &completed)
	if err != nil {
		return 0, 0, err
	}
	return open, completed, nil
}

func (s *Store) LeadDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error) {
	return s.countDelta(ctx, `
    SELECT COUNT(1)
    FROM leads
    WHERE tenant_id = $1 AND owner_user_id = $2 AND created_at > $3 AND created_at <= $4
  `, tenantID, userID, from, to)
}

func (s *Store) ClientDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error) {
	return s.countDelta(ctx, `
    SELECT COUNT(1)
    FROM clients
    WHERE tenant_id = $1 AND owner_user_id = $2 AND created_at > $3 AND created_at <= $4
  `, tenantID, userID, from, to)
}

func (s *Store) CheckInDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error) {
	return s.countDelta(ctx, `
    SELECT COUNT(1)
    FROM check_ins
    WHERE tenant_id = $1 AND user_id = $2 AND created_at > $3 AND created_at <= $4
  `, tenantID, userID, from, to)
}

func (s *Store) CallDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error) {
	return s.countDelta(ctx, `
    SELECT COUNT(1)
    FROM calls
    WHERE tenant_id = $1 AND user_id = $2 AND status = 'completed' AND created_at > $3 AND created_at <= $4
  `, tenantID, userID, from, to)
}

func (s *Store) HoursDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error) {
	var hours float64
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(SUM(hours), 0)
    FROM work_sessions
    WHERE tenant_id = $1 AND user_id = $2 AND created_at > $3 AND created_at <= $4
  `, tenantID, userID, from, to).Scan(&hours)
	if err != nil {
		return 0, err
	}
	return hours, nil
}

func (s *Store) countDelta(ctx context.Context, query string, args ...any) (float64, error) {
	var count float64
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
