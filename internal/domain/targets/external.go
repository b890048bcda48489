package targets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ExternalUpdateRequest is the payload the ERP boundary delivers. Updates is
// kept untyped because the external system sends decimals both as numbers and
// as strings; values go through ParseAmount before any arithmetic.
type ExternalUpdateRequest struct {
	TransactionID string         `json:"transactionId"`
	UpdateMode    string         `json:"updateMode"`
	Updates       map[string]any `json:"updates"`
	Source        string         `json:"source,omitempty"`
	Metadata      UpdateMetadata `json:"metadata"`
}

type UpdateMetadata struct {
	UpdateReason string `json:"updateReason,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// Result statuses; callers must be able to tell a data problem from a
// contention problem from a missing record.
const (
	StatusApplied          = "applied"
	StatusValidationFailed = "validation_failed"
	StatusConflict         = "conflict"
	StatusNotFound         = "not_found"
)

type UpdateResult struct {
	Status           string             `json:"status"`
	UpdatedValues    map[string]float64 `json:"updatedValues,omitempty"`
	Progress         map[string]float64 `json:"progress,omitempty"`
	ValidationErrors []string           `json:"validationErrors,omitempty"`
	Conflict         *ConflictDetails   `json:"conflict,omitempty"`
	Replayed         bool               `json:"replayed,omitempty"`
}

type ConflictDetails struct {
	Attempts   int    `json:"attempts"`
	RetryAfter string `json:"retryAfter"`
	Message    string `json:"message"`
}

// ProcessExternalUpdate applies one increment/decrement/replace transaction
// from the external system. callerBranchID scopes the lookup when non-empty.
//
// The arithmetic runs inside a row-locked database transaction; on lock
// contention the whole transaction is retried with exponential backoff and
// exhaustion surfaces as a conflict result rather than an error. A replayed
// transactionId returns the previously recorded values without re-applying.
func (s *Service) ProcessExternalUpdate(ctx context.Context, tenantID, callerBranchID, userID string, req ExternalUpdateRequest) (UpdateResult, error) {
	branchID, active, err := s.store.UserActive(ctx, tenantID, userID)
	if err != nil {
		return UpdateResult{}, err
	}
	if !active || (callerBranchID != "" && callerBranchID != branchID) {
		return UpdateResult{Status: StatusNotFound}, nil
	}

	if _, err := s.store.GetTarget(ctx, tenantID, userID); err != nil {
		if errors.Is(err, ErrTargetNotFound) {
			return UpdateResult{Status: StatusNotFound}, nil
		}
		return UpdateResult{}, err
	}

	updates, issues := validateExternalUpdate(req)
	if len(issues) > 0 {
		return UpdateResult{Status: StatusValidationFailed, ValidationErrors: issues}, nil
	}

	source := req.Source
	if source == "" {
		source = DefaultSource
	}
	txn := SyncTransaction{
		TransactionID: req.TransactionID,
		Source:        source,
		Mode:          req.UpdateMode,
		Reason:        req.Metadata.UpdateReason,
		RequestedAt:   s.now(),
	}

	var outcome *ExternalOutcome
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		outcome, err = s.store.ApplyExternal(ctx, tenantID, userID, txn, func(locked *TargetRecord) ([]FieldChange, []string) {
			return applyExternalUpdate(locked, req.UpdateMode, updates)
		})
		if errors.Is(err, ErrRowLocked) {
			if attempt == maxUpdateAttempts {
				retryAfter := backoffDelay(s.backoffBase, attempt)
				return UpdateResult{
					Status: StatusConflict,
					Conflict: &ConflictDetails{
						Attempts:   attempt,
						RetryAfter: retryAfter.String(),
						Message:    "target row is busy; retry later",
					},
				}, nil
			}
			s.sleep(backoffDelay(s.backoffBase, attempt))
			continue
		}
		if err != nil {
			return UpdateResult{}, err
		}
		break
	}

	if len(outcome.ValidationErrors) > 0 {
		return UpdateResult{Status: StatusValidationFailed, ValidationErrors: outcome.ValidationErrors}, nil
	}
	if outcome.Replayed {
		return UpdateResult{
			Status:        StatusApplied,
			UpdatedValues: outcome.UpdatedValues,
			Replayed:      true,
		}, nil
	}

	s.invalidate(tenantID, userID)
	progress := ProgressSummary(outcome.Record)
	s.notifyExternalUpdate(ctx, tenantID, userID, req.UpdateMode, outcome.Changes, progress)

	return UpdateResult{
		Status:        StatusApplied,
		UpdatedValues: outcome.UpdatedValues,
		Progress:      progress,
	}, nil
}

// validateExternalUpdate checks request-level constraints and parses the raw
// update values, accumulating every violation so the caller sees the full
// list. Checks that depend on the record's current counters run under the row
// lock in applyExternalUpdate.
func validateExternalUpdate(req ExternalUpdateRequest) (map[string]float64, []string) {
	var issues []string

	if req.TransactionID == "" {
		issues = append(issues, "transactionId: required")
	}
	switch req.UpdateMode {
	case ModeIncrement, ModeDecrement, ModeReplace:
	default:
		issues = append(issues, fmt.Sprintf("updateMode: must be one of %s, %s, %s", ModeIncrement, ModeDecrement, ModeReplace))
	}
	if len(req.Updates) == 0 {
		issues = append(issues, "updates: at least one field is required")
	}

	updates := make(map[string]float64, len(req.Updates))
	for _, name := range metricOrder {
		raw, ok := req.Updates[name]
		if !ok {
			continue
		}
		value := ParseAmount(raw)
		switch req.UpdateMode {
		case ModeIncrement, ModeDecrement:
			if value <= 0 {
				issues = append(issues, fmt.Sprintf("%s: delta must be greater than zero", name))
				continue
			}
		case ModeReplace:
			if value < 0 {
				issues = append(issues, fmt.Sprintf("%s: replacement value must not be negative", name))
				continue
			}
			if name == MetricSalesAmount {
				issues = append(issues, fmt.Sprintf("%s: derived field; replace %s and %s instead", name, MetricQuotationsAmount, MetricOrdersAmount))
				continue
			}
		}
		updates[name] = value
	}
	for name := range req.Updates {
		if _, known := metricRegistry[name]; !known {
			issues = append(issues, fmt.Sprintf("%s: unknown metric", name))
		}
	}

	return updates, issues
}

// applyExternalUpdate performs the mode arithmetic on a record freshly read
// under the row lock. All-or-nothing: any violation leaves the record
// untouched. Deltas addressed to the derived sales counter are routed to the
// quotations component so the sales invariant holds after the recompute.
func applyExternalUpdate(rec *TargetRecord, mode string, updates map[string]float64) ([]FieldChange, []string) {
	type pending struct {
		field string
		value float64
	}
	var (
		issues  []string
		changes []FieldChange
		writes  []pending
	)

	for _, name := range metricOrder {
		delta, ok := updates[name]
		if !ok {
			continue
		}
		field := name
		if name == MetricSalesAmount && mode != ModeReplace {
			field = MetricQuotationsAmount
		}
		current := metricRegistry[field].current(rec)

		var next float64
		switch mode {
		case ModeIncrement:
			next = round2(current + delta)
		case ModeDecrement:
			next = round2(current - delta)
		case ModeReplace:
			next = round2(delta)
		}
		if next < 0 {
			issues = append(issues, fmt.Sprintf("%s: decrement of %g would make value negative", name, delta))
			continue
		}
		writes = append(writes, pending{field: field, value: next})
	}

	if len(issues) > 0 {
		return nil, issues
	}

	before := currentValues(rec)
	for _, w := range writes {
		metricRegistry[w.field].setCurrent(rec, w.value)
	}
	recomputeSales(rec)
	after := currentValues(rec)

	for _, name := range metricOrder {
		if before[name] != after[name] {
			changes = append(changes, FieldChange{Field: name, Before: before[name], After: after[name]})
		}
	}
	return changes, nil
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (s *Service) notifyExternalUpdate(ctx context.Context, tenantID, userID, mode string, changes []FieldChange, progress map[string]float64) {
	if s.notify == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	payload := map[string]any{"changes": changes, "progress": progress}
	if err := s.notify.Notify(notifyCtx, tenantID, userID, EventTargetUpdated, "Targets updated", "Your performance counters were updated by an external system.", payload); err != nil {
		slog.Warn("target update notification failed", "userId", userID, "err", err)
	}

	if mode != ModeIncrement {
		return
	}
	gains := map[string]any{}
	for _, change := range changes {
		if pct, ok := progress[change.Field]; ok && change.After > change.Before {
			gains[change.Field] = pct
		}
	}
	if len(gains) == 0 {
		return
	}
	if err := s.notify.Notify(notifyCtx, tenantID, userID, EventContributionProgress, "Progress recorded", "New contributions moved your targets forward.", gains); err != nil {
		slog.Warn("contribution progress notification failed", "userId", userID, "err", err)
	}
}
