package handler

import (
	"github.com/gin-gonic/gin"

	apptenancy "github.com/strata/backend/internal/application/tenancy"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/interfaces/http/dto"
)

// UnitHandler handles unit HTTP requests
type UnitHandler struct {
	BaseHandler
	unitService *apptenancy.UnitService
}

// NewUnitHandler creates a new unit handler
func NewUnitHandler(unitService *apptenancy.UnitService) *UnitHandler {
	return &UnitHandler{unitService: unitService}
}

// CreateUnitRequest represents the request to create a unit
type CreateUnitRequest struct {
	Code             string `json:"code" binding:"required" example:"A-12"`
	Floor            string `json:"floor" example:"3"`
	MonthlyDuesMinor int64  `json:"monthly_dues_minor" example:"125000"`
	ExemptFromDues   bool   `json:"exempt_from_dues"`
}

// UpdateUnitRequest represents a partial unit update
type UpdateUnitRequest struct {
	Floor            *string `json:"floor,omitempty"`
	MonthlyDuesMinor *int64  `json:"monthly_dues_minor,omitempty"`
	ExemptFromDues   *bool   `json:"exempt_from_dues,omitempty"`
}

// CreateUnit godoc
// @ID           createUnit
// @Summary      Create a unit
// @Description  Register a unit under the management
// @Tags         units
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        request body CreateUnitRequest true "Unit data"
// @Success      201 {object} APIResponse[apptenancy.UnitDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/units [post]
func (h *UnitHandler) CreateUnit(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	var req CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.unitService.CreateUnit(c.Request.Context(), apptenancy.CreateUnitRequest{
		TenantID:         tenantID,
		Code:             req.Code,
		Floor:            req.Floor,
		MonthlyDuesMinor: req.MonthlyDuesMinor,
		ExemptFromDues:   req.ExemptFromDues,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

// GetUnit godoc
// @ID           getUnit
// @Summary      Get a unit
// @Tags         units
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        unitId path string true "Unit ID" format(uuid)
// @Success      200 {object} APIResponse[apptenancy.UnitDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/units/{unitId} [get]
func (h *UnitHandler) GetUnit(c *gin.Context) {
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

	result, err := h.unitService.GetUnit(c.Request.Context(), tenantID, unitID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// ListUnits godoc
// @ID           listUnits
// @Summary      List units
// @Description  Get a paginated list of the management's units
// @Tags         units
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]apptenancy.UnitDTO]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/units [get]
func (h *UnitHandler) ListUnits(c *gin.Context) {
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

	result, err := h.unitService.ListUnits(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// UpdateUnit godoc
// @ID           updateUnit
// @Summary      Update a unit
// @Description  Partially update floor, dues override or exemption
// @Tags         units
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        unitId path string true "Unit ID" format(uuid)
// @Param        request body UpdateUnitRequest true "Fields to update"
// @Success      200 {object} APIResponse[apptenancy.UnitDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/units/{unitId} [patch]
func (h *UnitHandler) UpdateUnit(c *gin.Context) {
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

	var req UpdateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.unitService.UpdateUnit(c.Request.Context(), tenantID, unitID, apptenancy.UpdateUnitRequest{
		Floor:            req.Floor,
		MonthlyDuesMinor: req.MonthlyDuesMinor,
		ExemptFromDues:   req.ExemptFromDues,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// DeactivateUnit godoc
// @ID           deactivateUnit
// @Summary      Deactivate a unit
// @Description  Retire a unit; it stops receiving generated dues and invites
// @Tags         units
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        unitId path string true "Unit ID" format(uuid)
// @Success      204
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/units/{unitId} [delete]
func (h *UnitHandler) DeactivateUnit(c *gin.Context) {
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

	if err := h.unitService.DeactivateUnit(c.Request.Context(), tenantID, unitID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}
