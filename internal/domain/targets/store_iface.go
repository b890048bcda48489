package targets

import (
	"context"
	"time"
)

// ExternalApply performs the mode arithmetic on a record read under the row
// lock, returning the field changes or the violations that abort the write.
type ExternalApply func(rec *TargetRecord) ([]FieldChange, []string)

// SyncTransaction identifies one external update for the audit trail and the
// replay check.
type SyncTransaction struct {
	TransactionID string
	Source        string
	Mode          string
	Reason        string
	RequestedAt   time.Time
}

// ExternalOutcome is what the locked external-update transaction produced:
// exactly one of Replayed, ValidationErrors or a written Record.
type ExternalOutcome struct {
	Replayed         bool
	ValidationErrors []string
	UpdatedValues    map[string]float64
	Changes          []FieldChange
	Record           *TargetRecord
}

// SyncRecord is one applied external transaction as listed from the audit
// trail.
type SyncRecord struct {
	TransactionID string        `json:"transactionId"`
	Source        string        `json:"source"`
	Mode          string        `json:"mode"`
	Reason        string        `json:"reason,omitempty"`
	Changes       []FieldChange `json:"changes"`
	RequestedAt   time.Time     `json:"requestedAt"`
	AppliedAt     time.Time     `json:"appliedAt"`
}

type StoreAPI interface {
	GetTarget(ctx context.Context, tenantID, userID string) (*TargetRecord, error)
	CreateTarget(ctx context.Context, tenantID string, rec *TargetRecord) (string, error)
	DetachTarget(ctx context.Context, tenantID, userID string) error
	UserActive(ctx context.Context, tenantID, userID string) (branchID string, active bool, err error)

	// ApplyLocked runs apply on the record under SELECT ... FOR UPDATE and
	// persists the result in the same transaction.
	ApplyLocked(ctx context.Context, tenantID, userID string, apply func(*TargetRecord) error) (*TargetRecord, error)

	// ApplyExternal is ApplyLocked for the external update processor: NOWAIT
	// locking (ErrRowLocked on contention), the transaction-id replay check
	// and the audit insert all happen inside one transaction.
	ApplyExternal(ctx context.Context, tenantID, userID string, txn SyncTransaction, apply ExternalApply) (*ExternalOutcome, error)

	ListDueRecurring(ctx context.Context, now time.Time) ([]TargetRef, error)
	ListSyncTransactions(ctx context.Context, tenantID, userID string, limit, offset int) ([]SyncRecord, error)

	QuotationDeltas(ctx context.Context, tenantID, userID string, from, to time.Time) (open, completed float64, err error)
	LeadDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error)
	ClientDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error)
	CheckInDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error)
	CallDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error)
	HoursDelta(ctx context.Context, tenantID, userID string, from, to time.Time) (float64, error)
}
