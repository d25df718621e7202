package ledger

import (
	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// AuditLogEntry records an administrative action against the ledger, such
// as a cache rebuild or a manual backfill. Write failures degrade to an
// alert and never fail the primary operation.
type AuditLogEntry struct {
	shared.BaseEntity
	TenantID  uuid.UUID
	ActorID   uuid.UUID
	Action    string
	SubjectID *uuid.UUID
	Detail    string
}

// NewAuditLogEntry creates an audit record for an administrative action
func NewAuditLogEntry(tenantID, actorID uuid.UUID, action string, subjectID *uuid.UUID, detail string) *AuditLogEntry {
	return &AuditLogEntry{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     action,
		SubjectID:  subjectID,
		Detail:     detail,
	}
}
