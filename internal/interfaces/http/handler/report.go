package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/strata/backend/internal/application/report"
	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/interfaces/http/dto"
)

// ReportHandler handles financial reporting HTTP requests
type ReportHandler struct {
	BaseHandler
	reportService *report.Service
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService *report.Service) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// LedgerEntryResponse is the wire representation of a ledger entry
type LedgerEntryResponse struct {
	ID                  string  `json:"id"`
	EntryNumber         string  `json:"entry_number"`
	UnitID              *string `json:"unit_id,omitempty"`
	Type                string  `json:"type"`
	AmountMinor         int64   `json:"amount_minor"`
	Amount              string  `json:"amount"`
	Currency            string  `json:"currency"`
	Source              string  `json:"source"`
	Status              string  `json:"status"`
	Reference           string  `json:"reference,omitempty"`
	Period              string  `json:"period,omitempty"`
	DueStatus           string  `json:"due_status,omitempty"`
	DueOutstandingMinor int64   `json:"due_outstanding_minor,omitempty"`
	AppliedMinor        int64   `json:"applied_minor,omitempty"`
	UnappliedMinor      int64   `json:"unapplied_minor,omitempty"`
	AllocationStatus    string  `json:"allocation_status,omitempty"`
	RelatedDueID        *string `json:"related_due_id,omitempty"`
	ReversalOf          *string `json:"reversal_of,omitempty"`
	ReversalEntryID     *string `json:"reversal_entry_id,omitempty"`
	CreatedAt           string  `json:"created_at"`
}

// GetFinancialReport godoc
// @ID           getFinancialReport
// @Summary      Get the financial report
// @Description  Aggregate posted amounts by source with dues collection rate, optionally narrowed to one unit
// @Tags         reports
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        unit_id query string false "Narrow to a unit" format(uuid)
// @Success      200 {object} APIResponse[report.FinancialReport]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/reports/financial [get]
func (h *ReportHandler) GetFinancialReport(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	var unitID *uuid.UUID
	if raw := c.Query("unit_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid unit ID")
			return
		}
		unitID = &id
	}

	result, err := h.reportService.GetFinancialReport(c.Request.Context(), tenantID, unitID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// GetUnitBalance godoc
// @ID           getUnitBalance
// @Summary      Get a unit's cached balance
// @Description  Read the event-maintained balance cache; a unit with no activity reads as zeros
// @Tags         reports
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        unitId path string true "Unit ID" format(uuid)
// @Success      200 {object} APIResponse[report.UnitBalanceDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/units/{unitId}/balance [get]
func (h *ReportHandler) GetUnitBalance(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}
	unitID, err := parseUUIDParam(c, "unitId")
	if err != nil {
		h.BadRequest(c, "Invalid unit ID")
		return
	}

	result, err := h.reportService.GetUnitBalance(c.Request.Context(), tenantID, unitID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// ListUnitEntries godoc
// @ID           listUnitEntries
// @Summary      List a unit's ledger entries
// @Description  Get the unit's statement: its ledger entries newest first
// @Tags         reports
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        unitId path string true "Unit ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]LedgerEntryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/units/{unitId}/entries [get]
func (h *ReportHandler) ListUnitEntries(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}
	unitID, err := parseUUIDParam(c, "unitId")
	if err != nil {
		h.BadRequest(c, "Invalid unit ID")
		return
	}

	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	filter := shared.DefaultFilter()
	filter.Page = listReq.Page
	filter.PageSize = listReq.PageSize

	entries, err := h.reportService.ListUnitEntries(c.Request.Context(), tenantID, unitID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]LedgerEntryResponse, len(entries))
	for i := range entries {
		responses[i] = toLedgerEntryResponse(&entries[i])
	}
	h.Success(c, responses)
}

func toLedgerEntryResponse(e *ledger.LedgerEntry) LedgerEntryResponse {
	resp := LedgerEntryResponse{
		ID:               e.ID.String(),
		EntryNumber:      e.EntryNumber,
		Type:             string(e.Type),
		AmountMinor:      e.AmountMinor,
		Amount:           formatMinor(e.AmountMinor),
		Currency:         string(e.Currency),
		Source:           string(e.Source),
		Status:           string(e.Status),
		Reference:        e.Reference,
		AppliedMinor:     e.AppliedMinor,
		UnappliedMinor:   e.UnappliedMinor,
		AllocationStatus: string(e.AllocationStatus),
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
	}
	if e.UnitID != nil {
		s := e.UnitID.String()
		resp.UnitID = &s
	}
	if !e.Period.IsZero() {
		resp.Period = e.Period.String()
	}
	if e.IsDue() {
		resp.DueStatus = string(e.DueStatus)
		resp.DueOutstandingMinor = e.DueOutstandingMinor
	}
	if e.RelatedDueID != nil {
		s := e.RelatedDueID.String()
		resp.RelatedDueID = &s
	}
	if e.ReversalOf != nil {
		s := e.ReversalOf.String()
		resp.ReversalOf = &s
	}
	if e.ReversalEntryID != nil {
		s := e.ReversalEntryID.String()
		resp.ReversalEntryID = &s
	}
	return resp
}
