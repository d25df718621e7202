package ledger

import (
	"fmt"
	"regexp"

	"github.com/strata/backend/internal/domain/shared"
)

// Idempotency keys are client-generated, 8-128 URL-safe characters. They
// become part of the deterministic entry number, so a retried call maps to
// the same unique row.
var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.~-]{8,128}$`)

// ValidateIdempotencyKey rejects malformed client keys before any
// transaction work starts
func ValidateIdempotencyKey(key string) error {
	if !idempotencyKeyPattern.MatchString(key) {
		return shared.NewDomainError("INVALID_IDEMPOTENCY_KEY",
			"Idempotency key must be 8-128 URL-safe characters")
	}
	return nil
}

// Deterministic entry number constructors. Replaying a call with the same
// key produces the same number and collides on the unique (tenant, number)
// constraint instead of double-posting.

// PaymentEntryNumber derives the entry number for a payment
func PaymentEntryNumber(idempotencyKey string) string {
	return "payment_" + idempotencyKey
}

// ExpenseEntryNumber derives the entry number for an expense or due
func ExpenseEntryNumber(idempotencyKey string) string {
	return "expense_" + idempotencyKey
}

// AdjustmentEntryNumber derives the entry number for a manual adjustment
func AdjustmentEntryNumber(idempotencyKey string) string {
	return "adjustment_" + idempotencyKey
}

// ReversalEntryNumber derives the compensating entry number from the
// original entry number; one reversal per original
func ReversalEntryNumber(originalEntryNumber string) string {
	return "reversal_" + originalEntryNumber
}

// SettlementEntryNumber derives the settlement entry number for a closed
// due; one settlement entry per due
func SettlementEntryNumber(dueEntryNumber string) string {
	return "settle_" + dueEntryNumber
}

// DueEntryNumber derives the generated due entry number for a unit and period
func DueEntryNumber(unitCode string, periodKey string) string {
	return fmt.Sprintf("due_%s_%s", unitCode, periodKey)
}
