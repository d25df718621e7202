package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// DefaultSettleResultTTL bounds how long a persisted settlement outcome is
// replayed verbatim before being cleaned up
const DefaultSettleResultTTL = 7 * 24 * time.Hour

// UUIDList is a uuid slice stored as a JSON column
type UUIDList []uuid.UUID

// Value implements driver.Valuer
func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *UUIDList) Scan(value interface{}) error {
	if value == nil {
		*l = UUIDList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan UUIDList: unsupported type")
	}
	if len(bytes) == 0 {
		*l = UUIDList{}
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// SettleResult persists the outcome of an auto-settlement request keyed by
// the caller's request ID. Retries replay the stored outcome after a
// revalidation pass confirms the underlying records are still posted.
type SettleResult struct {
	shared.BaseEntity
	TenantID             uuid.UUID
	UnitID               uuid.UUID
	RequestID            string
	ClosedDueCount       int
	TotalSettledMinor    int64
	RemainingCreditMinor int64
	ClosedDueIDs         UUIDList
	SettlementEntryIDs   UUIDList
	AllocationIDs        UUIDList
	ExpiresAt            time.Time
}

// NewSettleResult records a settlement outcome for replay
func NewSettleResult(tenantID, unitID uuid.UUID, requestID string, outcome SettleOutcome) *SettleResult {
	return &SettleResult{
		BaseEntity:           shared.NewBaseEntity(),
		TenantID:             tenantID,
		UnitID:               unitID,
		RequestID:            requestID,
		ClosedDueCount:       outcome.ClosedDueCount,
		TotalSettledMinor:    outcome.TotalSettledMinor,
		RemainingCreditMinor: outcome.RemainingCreditMinor,
		ClosedDueIDs:         outcome.ClosedDueIDs,
		SettlementEntryIDs:   outcome.SettlementEntryIDs,
		AllocationIDs:        outcome.AllocationIDs,
		ExpiresAt:            time.Now().Add(DefaultSettleResultTTL),
	}
}

// SettleOutcome is the result of one effective auto-settlement run
type SettleOutcome struct {
	ClosedDueCount       int      `json:"closed_due_count"`
	TotalSettledMinor    int64    `json:"total_settled_minor"`
	RemainingCreditMinor int64    `json:"remaining_credit_minor"`
	ClosedDueIDs         UUIDList `json:"closed_due_ids"`
	SettlementEntryIDs   UUIDList `json:"settlement_entry_ids"`
	AllocationIDs        UUIDList `json:"allocation_ids"`
}

// Outcome reconstructs the stored outcome
func (r *SettleResult) Outcome() SettleOutcome {
	return SettleOutcome{
		ClosedDueCount:       r.ClosedDueCount,
		TotalSettledMinor:    r.TotalSettledMinor,
		RemainingCreditMinor: r.RemainingCreditMinor,
		ClosedDueIDs:         r.ClosedDueIDs,
		SettlementEntryIDs:   r.SettlementEntryIDs,
		AllocationIDs:        r.AllocationIDs,
	}
}

// IsExpired reports whether the result has outlived its replay window
func (r *SettleResult) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
