package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appledger "github.com/strata/backend/internal/application/ledger"
	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// LedgerHandler handles ledger mutation HTTP requests: payments, expenses,
// adjustments, allocation, reversal and settlement. Every mutation carries
// an idempotency key so client retries replay instead of duplicating.
type LedgerHandler struct {
	BaseHandler
	paymentService    *appledger.PaymentService
	expenseService    *appledger.ExpenseService
	reversalService   *appledger.ReversalService
	settlementService *appledger.SettlementService
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(
	paymentService *appledger.PaymentService,
	expenseService *appledger.ExpenseService,
	reversalService *appledger.ReversalService,
	settlementService *appledger.SettlementService,
) *LedgerHandler {
	return &LedgerHandler{
		paymentService:    paymentService,
		expenseService:    expenseService,
		reversalService:   reversalService,
		settlementService: settlementService,
	}
}

// RecordPaymentRequest represents the request to record a collected payment
type RecordPaymentRequest struct {
	UnitID         string `json:"unit_id" binding:"required,uuid" example:"5e0ed3da-cb5c-42ca-be79-6380d0d04c52"`
	AmountMinor    int64  `json:"amount_minor" binding:"required,gt=0" example:"125000"`
	Currency       string `json:"currency" example:"TRY"`
	Method         string `json:"method" binding:"required" example:"cash" enums:"cash,bank,stripe,auto"`
	IdempotencyKey string `json:"idempotency_key" binding:"required" example:"pay-2026-02-a12-01"`
	Reference      string `json:"reference" example:"receipt #4411"`
	RelatedDueID   string `json:"related_due_id,omitempty" format:"uuid"`
	Period         string `json:"period,omitempty" example:"2026-02"`
}

// RecordExpenseRequest represents the request to record a dues charge or expense
type RecordExpenseRequest struct {
	UnitID         string `json:"unit_id,omitempty" format:"uuid"`
	AmountMinor    int64  `json:"amount_minor" binding:"required,gt=0" example:"80000"`
	Currency       string `json:"currency" example:"TRY"`
	Source         string `json:"source" binding:"required" example:"dues" enums:"dues,adjustment"`
	IdempotencyKey string `json:"idempotency_key" binding:"required" example:"dues-2026-02-a12"`
	Reference      string `json:"reference" example:"February dues"`
	Period         string `json:"period,omitempty" example:"2026-02"`
}

// RecordAdjustmentRequest represents the request to record a manual adjustment
type RecordAdjustmentRequest struct {
	EntryType      string `json:"entry_type" binding:"required" example:"CREDIT" enums:"DEBIT,CREDIT"`
	UnitID         string `json:"unit_id,omitempty" format:"uuid"`
	AmountMinor    int64  `json:"amount_minor" binding:"required,gt=0" example:"5000"`
	Currency       string `json:"currency" example:"TRY"`
	IdempotencyKey string `json:"idempotency_key" binding:"required" example:"adj-rounding-2026-02"`
	Reference      string `json:"reference" example:"rounding correction"`
}

// AllocatePaymentRequest represents a manual allocation of payment credit to a due
type AllocatePaymentRequest struct {
	DueID    string `json:"due_id" binding:"required,uuid"`
	CapMinor *int64 `json:"cap_minor,omitempty" example:"50000"`
}

// VoidEntryRequest represents the request to void an unconsumed entry
type VoidEntryRequest struct {
	Reason string `json:"reason" binding:"required" example:"entered against wrong unit"`
}

// ReverseEntryRequest represents the request to reverse an entry
type ReverseEntryRequest struct {
	Reason string `json:"reason" binding:"required" example:"payment bounced"`
}

// AutoSettleRequest represents the request to settle open dues from unapplied credit
type AutoSettleRequest struct {
	UnitID          string `json:"unit_id" binding:"required,uuid"`
	ClientRequestID string `json:"client_request_id" binding:"required" example:"settle-a12-20260215"`
}

// RecordPayment godoc
// @ID           recordPayment
// @Summary      Record a payment
// @Description  Record a manually collected payment; open dues are settled oldest-first and surplus stays as unapplied credit. Retrying with the same idempotency key replays the stored outcome.
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        request body RecordPaymentRequest true "Payment data"
// @Success      201 {object} APIResponse[appledger.CreatePaymentResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/ledger/payments [post]
func (h *LedgerHandler) RecordPayment(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	unitID, err := uuid.Parse(req.UnitID)
	if err != nil {
		h.BadRequest(c, "Invalid unit ID")
		return
	}

	amount, err := valueobject.NewMoney(req.AmountMinor, currencyOrDefault(req.Currency))
	if err != nil {
		h.BadRequest(c, "Invalid amount: "+err.Error())
		return
	}

	var relatedDueID *uuid.UUID
	if req.RelatedDueID != "" {
		id, err := uuid.Parse(req.RelatedDueID)
		if err != nil {
			h.BadRequest(c, "Invalid related due ID")
			return
		}
		relatedDueID = &id
	}

	period, err := parsePeriodOptional(req.Period)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	actorID := actorIDPtr(c)

	result, err := h.paymentService.CreatePayment(c.Request.Context(), appledger.CreatePaymentRequest{
		TenantID:       tenantID,
		UnitID:         unitID,
		Amount:         amount,
		Method:         ledger.EntrySource(req.Method),
		IdempotencyKey: req.IdempotencyKey,
		Reference:      req.Reference,
		RelatedDueID:   relatedDueID,
		Period:         period,
		CreatedBy:      actorID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// RecordExpense godoc
// @ID           recordExpense
// @Summary      Record a due or expense
// @Description  Record a DEBIT charge against a unit (a due) or the management (a shared expense)
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        request body RecordExpenseRequest true "Charge data"
// @Success      201 {object} APIResponse[appledger.CreateEntryResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/ledger/expenses [post]
func (h *LedgerHandler) RecordExpense(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	var req RecordExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var unitID *uuid.UUID
	if req.UnitID != "" {
		id, err := uuid.Parse(req.UnitID)
		if err != nil {
			h.BadRequest(c, "Invalid unit ID")
			return
		}
		unitID = &id
	}

	amount, err := valueobject.NewMoney(req.AmountMinor, currencyOrDefault(req.Currency))
	if err != nil {
		h.BadRequest(c, "Invalid amount: "+err.Error())
		return
	}

	period, err := parsePeriodOptional(req.Period)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.expenseService.CreateExpense(c.Request.Context(), appledger.CreateExpenseRequest{
		TenantID:       tenantID,
		UnitID:         unitID,
		Amount:         amount,
		Source:         ledger.EntrySource(req.Source),
		IdempotencyKey: req.IdempotencyKey,
		Reference:      req.Reference,
		Period:         period,
		CreatedBy:      actorIDPtr(c),
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// RecordAdjustment godoc
// @ID           recordAdjustment
// @Summary      Record an adjustment
// @Description  Record a manual DEBIT or CREDIT correction entry
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        request body RecordAdjustmentRequest true "Adjustment data"
// @Success      201 {object} APIResponse[appledger.CreateEntryResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/ledger/adjustments [post]
func (h *LedgerHandler) RecordAdjustment(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	var req RecordAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var unitID *uuid.UUID
	if req.UnitID != "" {
		id, err := uuid.Parse(req.UnitID)
		if err != nil {
			h.BadRequest(c, "Invalid unit ID")
			return
		}
		unitID = &id
	}

	amount, err := valueobject.NewMoney(req.AmountMinor, currencyOrDefault(req.Currency))
	if err != nil {
		h.BadRequest(c, "Invalid amount: "+err.Error())
		return
	}

	result, err := h.expenseService.CreateAdjustment(c.Request.Context(), appledger.CreateAdjustmentRequest{
		TenantID:       tenantID,
		EntryType:      ledger.EntryType(req.EntryType),
		UnitID:         unitID,
		Amount:         amount,
		IdempotencyKey: req.IdempotencyKey,
		Reference:      req.Reference,
		CreatedBy:      actorIDPtr(c),
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// AllocatePayment godoc
// @ID           allocatePayment
// @Summary      Allocate payment credit to a due
// @Description  Manually apply a payment's unapplied credit to a specific open due, optionally capped
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        entryId path string true "Payment entry ID" format(uuid)
// @Param        request body AllocatePaymentRequest true "Allocation data"
// @Success      200 {object} APIResponse[appledger.AllocateResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/ledger/payments/{entryId}/allocations [post]
func (h *LedgerHandler) AllocatePayment(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}
	paymentID, err := parseUUIDParam(c, "entryId")
	if err != nil {
		h.BadRequest(c, "Invalid entry ID")
		return
	}

	var req AllocatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	dueID, err := uuid.Parse(req.DueID)
	if err != nil {
		h.BadRequest(c, "Invalid due ID")
		return
	}

	result, err := h.paymentService.AllocatePaymentToDue(c.Request.Context(), appledger.AllocateRequest{
		TenantID:       tenantID,
		PaymentEntryID: paymentID,
		DueID:          dueID,
		CapMinor:       req.CapMinor,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// VoidEntry godoc
// @ID           voidLedgerEntry
// @Summary      Void a ledger entry
// @Description  Void a posted entry nothing has consumed; voiding an allocated due or applied payment is rejected
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        entryId path string true "Entry ID" format(uuid)
// @Param        request body VoidEntryRequest true "Void reason"
// @Success      200 {object} APIResponse[appledger.ReversalResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/ledger/entries/{entryId}/void [post]
func (h *LedgerHandler) VoidEntry(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}
	entryID, err := parseUUIDParam(c, "entryId")
	if err != nil {
		h.BadRequest(c, "Invalid entry ID")
		return
	}

	var req VoidEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}

	result, err := h.reversalService.VoidLedgerEntry(c.Request.Context(), appledger.VoidEntryRequest{
		TenantID: tenantID,
		EntryID:  entryID,
		Reason:   req.Reason,
		ActorID:  actorID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// ReverseEntry godoc
// @ID           reverseLedgerEntry
// @Summary      Reverse a ledger entry
// @Description  Reverse a non-payment entry with an offsetting compensating entry; payments must use the payment reversal route
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        entryId path string true "Entry ID" format(uuid)
// @Param        request body ReverseEntryRequest true "Reversal reason"
// @Success      200 {object} APIResponse[appledger.ReversalResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/ledger/entries/{entryId}/reverse [post]
func (h *LedgerHandler) ReverseEntry(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}
	entryID, err := parseUUIDParam(c, "entryId")
	if err != nil {
		h.BadRequest(c, "Invalid entry ID")
		return
	}

	var req ReverseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}

	result, err := h.reversalService.ReverseLedgerEntry(c.Request.Context(), appledger.VoidEntryRequest{
		TenantID: tenantID,
		EntryID:  entryID,
		Reason:   req.Reason,
		ActorID:  actorID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// ReversePayment godoc
// @ID           reversePayment
// @Summary      Reverse a payment
// @Description  Undo a payment: releases its due allocations, restores due balances and posts a compensating DEBIT
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        entryId path string true "Payment entry ID" format(uuid)
// @Param        request body ReverseEntryRequest true "Reversal reason"
// @Success      200 {object} APIResponse[appledger.ReversalResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/ledger/payments/{entryId}/reverse [post]
func (h *LedgerHandler) ReversePayment(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}
	paymentID, err := parseUUIDParam(c, "entryId")
	if err != nil {
		h.BadRequest(c, "Invalid entry ID")
		return
	}

	var req ReverseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.reversalService.ReversePayment(c.Request.Context(), appledger.ReversePaymentRequest{
		TenantID:       tenantID,
		PaymentEntryID: paymentID,
		Reason:         req.Reason,
		ActorID:        actorIDPtr(c),
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// AutoSettle godoc
// @ID           autoSettleFromCredit
// @Summary      Settle open dues from credit
// @Description  Close fully coverable open dues from the unit's unapplied manual credit, oldest first. Retrying with the same client request ID replays the stored outcome.
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        request body AutoSettleRequest true "Settlement request"
// @Success      200 {object} APIResponse[appledger.AutoSettleResult]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/ledger/settlements [post]
func (h *LedgerHandler) AutoSettle(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	var req AutoSettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	unitID, err := uuid.Parse(req.UnitID)
	if err != nil {
		h.BadRequest(c, "Invalid unit ID")
		return
	}

	result, err := h.settlementService.AutoSettleFromCredit(c.Request.Context(), appledger.AutoSettleRequest{
		TenantID:        tenantID,
		UnitID:          unitID,
		ClientRequestID: req.ClientRequestID,
		ActorID:         actorIDPtr(c),
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// currencyOrDefault maps a request currency to the system default when empty
func currencyOrDefault(s string) valueobject.Currency {
	if s == "" {
		return valueobject.DefaultCurrency
	}
	return valueobject.Currency(s)
}

// parsePeriodOptional parses an optional "YYYY-MM" period string
func parsePeriodOptional(s string) (valueobject.Period, error) {
	if s == "" {
		return valueobject.Period{}, nil
	}
	return valueobject.ParsePeriod(s)
}

// actorIDPtr returns the authenticated user as an optional actor reference
func actorIDPtr(c *gin.Context) *uuid.UUID {
	id, err := getUserID(c)
	if err != nil {
		return nil
	}
	return &id
}
