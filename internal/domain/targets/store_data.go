package targets

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"crm/internal/platform/querier"
)

const targetColumns = `
    id,
    COALESCE(user_id::text, ''),
    COALESCE(branch_id::text, ''),
    COALESCE(target_sales_amount, 0),
    COALESCE(target_quotations_amount, 0),
    COALESCE(target_new_leads, 0),
    COALESCE(target_new_clients, 0),
    COALESCE(target_check_ins, 0),
    COALESCE(target_calls, 0),
    COALESCE(target_hours_worked, 0),
    COALESCE(currency, 'USD'),
    COALESCE(current_sales_amount, 0),
    COALESCE(current_quotations_amount, 0),
    COALESCE(current_orders_amount, 0),
    COALESCE(current_new_leads, 0),
    COALESCE(current_new_clients, 0),
    COALESCE(current_check_ins, 0),
    COALESCE(current_calls, 0),
    COALESCE(current_hours_worked, 0),
    period_start_date,
    period_end_date,
    COALESCE(target_period, ''),
    is_recurring,
    COALESCE(recurring_interval, ''),
    carry_forward_unfulfilled,
    next_recurrence_date,
    last_recurrence_date,
    recurrence_count,
    last_calculated_at,
    history,
    COALESCE(base_salary, 0),
    COALESCE(allowances, 0),
    created_at,
    updated_at`

func scanTarget(row pgx.Row) (*TargetRecord, error) {
	var rec TargetRecord
	var historyJSON []byte
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.BranchID,
		&rec.TargetSalesAmount, &rec.TargetQuotationsAmount, &rec.TargetNewLeads,
		&rec.TargetNewClients, &rec.TargetCheckIns, &rec.TargetCalls, &rec.TargetHoursWorked,
		&rec.Currency,
		&rec.CurrentSalesAmount, &rec.CurrentQuotationsAmount, &rec.CurrentOrdersAmount,
		&rec.CurrentNewLeads, &rec.CurrentNewClients, &rec.CurrentCheckIns,
		&rec.CurrentCalls, &rec.CurrentHoursWorked,
		&rec.PeriodStartDate, &rec.PeriodEndDate, &rec.TargetPeriod,
		&rec.IsRecurring, &rec.RecurringInterval, &rec.CarryForwardUnfulfilled,
		&rec.NextRecurrenceDate, &rec.LastRecurrenceDate, &rec.RecurrenceCount, &rec.LastCalculatedAt,
		&historyJSON, &rec.BaseSalary, &rec.Allowances,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &rec.History); err != nil {
			rec.History = nil
		}
	}
	return &rec, nil
}

func (s *Store) GetTarget(ctx context.Context, tenantID, userID string) (*TargetRecord, error) {
	return getTarget(ctx, s.DB, tenantID, userID, "")
}

func getTarget(ctx context.Context, q querier.Querier, tenantID, userID, lockClause string) (*TargetRecord, error) {
	rec, err := scanTarget(q.QueryRow(ctx, `
    SELECT `+targetColumns+`
    FROM performance_targets
    WHERE tenant_id = $1 AND user_id = $2`+lockClause, tenantID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) CreateTarget(ctx context.Context, tenantID string, rec *TargetRecord) (string, error) {
	historyJSON, err := json.Marshal(rec.History)
	if err != nil {
		return "", err
	}
	if len(rec.History) == 0 {
		historyJSON = []byte("[]")
	}

	var id string
	err = s.DB.QueryRow(ctx, `
    INSERT INTO performance_targets (
      tenant_id, user_id, branch_id,
      target_sales_amount, target_quotations_amount, target_new_leads,
      target_new_clients, target_check_ins, target_calls, target_hours_worked,
      currency,
      period_start_date, period_end_date, target_period,
      is_recurring, recurring_interval, carry_forward_unfulfilled, next_recurrence_date,
      base_salary, allowances, history
    )
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
    RETURNING id
  `, tenantID, rec.UserID, nullIfEmpty(rec.BranchID),
		rec.TargetSalesAmount, rec.TargetQuotationsAmount, rec.TargetNewLeads,
		rec.TargetNewClients, rec.TargetCheckIns, rec.TargetCalls, rec.TargetHoursWorked,
		rec.Currency,
		rec.PeriodStartDate, rec.PeriodEndDate, rec.TargetPeriod,
		rec.IsRecurring, nullIfEmpty(rec.RecurringInterval), rec.CarryForwardUnfulfilled, rec.NextRecurrenceDate,
		rec.BaseSalary, rec.Allowances, historyJSON).Scan(&id)
	if isPgCode(err, pgCodeUniqueViolation) {
		return "", ErrTargetExists
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) DetachTarget(ctx context.Context, tenantID, userID string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE performance_targets
    SET user_id = NULL, updated_at = now()
    WHERE tenant_id = $1 AND user_id = $2
  `, tenantID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTargetNotFound
	}
	return nil
}

func (s *Store) UserActive(ctx context.Context, tenantID, userID string) (string, bool, error) {
	var branchID string
	var status string
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(branch_id::text, ''), status
    FROM users
    WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
  `, tenantID, userID).Scan(&branchID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return branchID, status == "active", nil
}

// ApplyLocked reads the record under FOR UPDATE, runs apply and persists the
// result; the whole sequence either commits or leaves the row untouched.
func (s *Store) ApplyLocked(ctx context.Context, tenantID, userID string, apply func(*TargetRecord) error) (*TargetRecord, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := getTarget(ctx, tx, tenantID, userID, " FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if err := apply(rec); err != nil {
		return nil, err
	}
	if err := saveProgressTx(ctx, tx, tenantID, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// ApplyExternal wraps one external update: replay check, NOWAIT row lock,
// arithmetic, progress write and audit insert happen in a single transaction.
func (s *Store) ApplyExternal(ctx context.Context, tenantID, userID string, txn SyncTransaction, apply ExternalApply) (*ExternalOutcome, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if replay, err := s.findReplay(ctx, tx, tenantID, userID, txn); err != nil {
		return nil, err
	} else if replay != nil {
		return replay, nil
	}

	rec, err := getTarget(ctx, tx, tenantID, userID, " FOR UPDATE NOWAIT")
	if isPgCode(err, pgCodeLockNotAvailable) {
		return nil, ErrRowLocked
	}
	if err != nil {
		return nil, err
	}

	changes, issues := apply(rec)
	if len(issues) > 0 {
		return &ExternalOutcome{ValidationErrors: issues}, nil
	}

	if err := saveProgressTx(ctx, tx, tenantID, rec); err != nil {
		return nil, err
	}

	values := currentValues(rec)
	resultJSON, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
    INSERT INTO target_sync_transactions
      (tenant_id, user_id, transaction_id, source, mode, reason, changes_json, result_json, requested_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, tenantID, userID, txn.TransactionID, txn.Source, txn.Mode, nullIfEmpty(txn.Reason), changesJSON, resultJSON, txn.RequestedAt)
	if isPgCode(err, pgCodeUniqueViolation) {
		// A concurrent writer landed the same transaction id first; surface
		// its recorded outcome as a replay.
		_ = tx.Rollback(ctx)
		replay, replayErr := s.findReplay(ctx, s.DB, tenantID, userID, txn)
		if replayErr != nil || replay == nil {
			return nil, errors.Join(err, replayErr)
		}
		return replay, nil
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &ExternalOutcome{
		UpdatedValues: values,
		Changes:       changes,
		Record:        rec,
	}, nil
}

func (s *Store) findReplay(ctx context.Context, q querier.Querier, tenantID, userID string, txn SyncTransaction) (*ExternalOutcome, error) {
	var resultJSON []byte
	err := q.QueryRow(ctx, `
    SELECT result_json
    FROM target_sync_transactions
    WHERE tenant_id = $1 AND user_id = $2 AND source = $3 AND transaction_id = $4
  `, tenantID, userID, txn.Source, txn.TransactionID).Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var values map[string]float64
	if err := json.Unmarshal(resultJSON, &values); err != nil {
		return nil, err
	}
	return &ExternalOutcome{Replayed: true, UpdatedValues: values}, nil
}

// saveProgressTx writes back every column a locked mutation may touch: the
// counters, the goals, the period and recurrence fields and the archive.
func saveProgressTx(ctx context.Context, tx pgx.Tx, tenantID string, rec *TargetRecord) error {
	historyJSON, err := json.Marshal(rec.History)
	if err != nil {
		return err
	}
	if len(rec.History) == 0 {
		historyJSON = []byte("[]")
	}
	_, err = tx.Exec(ctx, `
    UPDATE performance_targets
    SET current_sales_amount = $1,
        current_quotations_amount = $2,
        current_orders_amount = $3,
        current_new_leads = $4,
        current_new_clients = $5,
        current_check_ins = $6,
        current_calls = $7,
        current_hours_worked = $8,
        target_sales_amount = $9,
        target_quotations_amount = $10,
        target_new_leads = $11,
        target_new_clients = $12,
        target_check_ins = $13,
        target_calls = $14,
        target_hours_worked = $15,
        currency = $16,
        period_start_date = $17,
        period_end_date = $18,
        target_period = $19,
        is_recurring = $20,
        recurring_interval = $21,
        carry_forward_unfulfilled = $22,
        next_recurrence_date = $23,
        last_recurrence_date = $24,
        recurrence_count = $25,
        last_calculated_at = $26,
        history = $27,
        base_salary = $28,
        allowances = $29,
        updated_at = now()
    WHERE tenant_id = $30 AND id = $31
  `, rec.CurrentSalesAmount, rec.CurrentQuotationsAmount, rec.CurrentOrdersAmount,
		rec.CurrentNewLeads, rec.CurrentNewClients, rec.CurrentCheckIns,
		rec.CurrentCalls, rec.CurrentHoursWorked,
		rec.TargetSalesAmount, rec.TargetQuotationsAmount, rec.TargetNewLeads,
		rec.TargetNewClients, rec.TargetCheckIns, rec.TargetCalls, rec.TargetHoursWorked,
		rec.Currency,
		rec.PeriodStartDate, rec.PeriodEndDate, rec.TargetPeriod,
		rec.IsRecurring, nullIfEmpty(rec.RecurringInterval), rec.CarryForwardUnfulfilled,
		rec.NextRecurrenceDate, rec.LastRecurrenceDate, rec.RecurrenceCount, rec.LastCalculatedAt,
		historyJSON, rec.BaseSalary, rec.Allowances, tenantID, rec.ID)
	return err
}

func (s *Store) ListDueRecurring(ctx context.Context, now time.Time) ([]TargetRef, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT tenant_id, user_id
    FROM performance_targets
    WHERE is_recurring = true
      AND user_id IS NOT NULL
      AND next_recurrence_date IS NOT NULL
      AND next_recurrence_date <= $1
    ORDER BY next_recurrence_date
  `, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []TargetRef
	for rows.Next() {
		var ref TargetRef
		if err := rows.Scan(&ref.TenantID, &ref.UserID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *Store) ListSyncTransactions(ctx context.Context, tenantID, userID string, limit, offset int) ([]SyncRecord, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT transaction_id, source, mode, COALESCE(reason, ''), changes_json, requested_at, created_at
    FROM target_sync_transactions
    WHERE tenant_id = $1 AND user_id = $2
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4
  `, tenantID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncRecord
	for rows.Next() {
		var record SyncRecord
		var changesJSON []byte
		if err := rows.Scan(&record.TransactionID, &record.Source, &record.Mode, &record.Reason, &changesJSON, &record.RequestedAt, &record.AppliedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(changesJSON, &record.Changes); err != nil {
			record.Changes = nil
		}
		out = append(out, record)
	}
	return out, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
