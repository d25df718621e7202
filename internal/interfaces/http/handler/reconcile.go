package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/strata/backend/internal/application/reconcile"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/interfaces/http/dto"
)

// ReconcileHandler handles reconciliation HTTP requests: drift sampling,
// cache rebuilds, audit replay and the drift alert queue.
type ReconcileHandler struct {
	BaseHandler
	reconcileService *reconcile.Service
}

// NewReconcileHandler creates a new reconcile handler
func NewReconcileHandler(reconcileService *reconcile.Service) *ReconcileHandler {
	return &ReconcileHandler{reconcileService: reconcileService}
}

// RebuildBalanceRequest represents the request to rebuild a unit balance
type RebuildBalanceRequest struct {
	Force bool `json:"force" example:"false"`
}

// AuditReplayRequest represents the request to replay a unit's ledger history
type AuditReplayRequest struct {
	Since *time.Time `json:"since,omitempty" example:"2026-01-01T00:00:00Z"`
	Full  bool       `json:"full" example:"false"`
}

// ResolveAlertRequest represents the request to resolve a drift alert
type ResolveAlertRequest struct {
	Resolution string `json:"resolution" binding:"required" example:"rebuilt balance after cache bug fix"`
}

// SampleDrift godoc
// @ID           sampleBalanceDrift
// @Summary      Sample balances for drift
// @Description  Recompute a sample of cached unit balances against the ledger and raise alerts for mismatches
// @Tags         reconcile
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Success      200 {object} APIResponse[reconcile.DriftSampleResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/reconcile/drift-samples [post]
func (h *ReconcileHandler) SampleDrift(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	result, err := h.reconcileService.SampleBalanceDrift(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// RebuildBalance godoc
// @ID           rebuildUnitBalance
// @Summary      Rebuild a unit balance
// @Description  Recompute the unit's cached balance from its posted ledger entries and resolve matching open drift alerts
// @Tags         reconcile
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        unitId path string true "Unit ID" format(uuid)
// @Param        request body RebuildBalanceRequest false "Rebuild options"
// @Success      200 {object} APIResponse[reconcile.RebuildResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/reconcile/units/{unitId}/rebuild [post]
func (h *ReconcileHandler) RebuildBalance(c *gin.Context) {
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

	var req RebuildBalanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	actorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}

	result, err := h.reconcileService.RebuildUnitBalance(c.Request.Context(), reconcile.RebuildRequest{
		TenantID: tenantID,
		UnitID:   unitID,
		ActorID:  actorID,
		Force:    req.Force,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// RebuildDueAggregates godoc
// @ID           rebuildDueAggregates
// @Summary      Rebuild a due's allocation aggregates
// @Description  Recompute the due's allocated amount from its allocation rows and correct the denormalized columns
// @Tags         reconcile
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        entryId path string true "Due entry ID" format(uuid)
// @Success      200 {object} APIResponse[reconcile.DueRebuildResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/reconcile/dues/{entryId}/rebuild [post]
func (h *ReconcileHandler) RebuildDueAggregates(c *gin.Context) {
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

	actorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}

	result, err := h.reconcileService.RebuildDueAggregates(c.Request.Context(), tenantID, entryID, actorID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// AuditReplay godoc
// @ID           auditReplayUnit
// @Summary      Replay a unit's ledger history
// @Description  Re-derive the unit's balance and due aggregates entry by entry and report discrepancies without mutating anything
// @Tags         reconcile
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        unitId path string true "Unit ID" format(uuid)
// @Param        request body AuditReplayRequest false "Replay window"
// @Success      200 {object} APIResponse[reconcile.AuditReplayResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/reconcile/units/{unitId}/audit-replay [post]
func (h *ReconcileHandler) AuditReplay(c *gin.Context) {
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

	var req AuditReplayRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	result, err := h.reconcileService.AuditReplayUnit(c.Request.Context(), reconcile.AuditReplayRequest{
		TenantID: tenantID,
		UnitID:   unitID,
		Since:    req.Since,
		Full:     req.Full,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// ListAlerts godoc
// @ID           listAlerts
// @Summary      List drift alerts
// @Tags         reconcile
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} APIResponse[[]ledger.Alert]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/reconcile/alerts [get]
func (h *ReconcileHandler) ListAlerts(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
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

	alerts, err := h.reconcileService.ListAlerts(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, alerts)
}

// ResolveAlert godoc
// @ID           resolveAlert
// @Summary      Resolve a drift alert
// @Description  Close an open alert with an operator-supplied resolution note
// @Tags         reconcile
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        alertId path string true "Alert ID" format(uuid)
// @Param        request body ResolveAlertRequest true "Resolution"
// @Success      204
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/reconcile/alerts/{alertId}/resolve [post]
func (h *ReconcileHandler) ResolveAlert(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}
	alertID, err := parseUUIDParam(c, "alertId")
	if err != nil {
		h.BadRequest(c, "Invalid alert ID")
		return
	}

	var req ResolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}

	if err := h.reconcileService.ResolveAlert(c.Request.Context(), tenantID, alertID, actorID, req.Resolution); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}
