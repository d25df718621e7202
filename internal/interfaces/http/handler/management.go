package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apptenancy "github.com/strata/backend/internal/application/tenancy"
	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// ManagementHandler handles building-management HTTP requests
type ManagementHandler struct {
	BaseHandler
	managementService *apptenancy.ManagementService
}

// NewManagementHandler creates a new management handler
func NewManagementHandler(managementService *apptenancy.ManagementService) *ManagementHandler {
	return &ManagementHandler{managementService: managementService}
}

// CreateManagementRequest represents the request to create a management
type CreateManagementRequest struct {
	Name             string `json:"name" binding:"required" example:"Maple Court Residences"`
	Currency         string `json:"currency" example:"TRY"`
	DefaultDuesMinor int64  `json:"default_dues_minor" example:"125000"`
}

// UpdateDefaultDuesRequest represents the request to change the default dues amount
type UpdateDefaultDuesRequest struct {
	DefaultDuesMinor int64 `json:"default_dues_minor" binding:"required" example:"150000"`
}

// CreateManagement godoc
// @ID           createManagement
// @Summary      Create a management
// @Description  Create a new building management owned by the caller
// @Tags         managements
// @Accept       json
// @Produce      json
// @Param        request body CreateManagementRequest true "Management data"
// @Success      201 {object} APIResponse[apptenancy.ManagementDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements [post]
func (h *ManagementHandler) CreateManagement(c *gin.Context) {
	var req CreateManagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ownerID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}

	currency := valueobject.Currency(req.Currency)
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}

	result, err := h.managementService.CreateManagement(c.Request.Context(), apptenancy.CreateManagementRequest{
		Name:             req.Name,
		OwnerUID:         ownerID,
		Currency:         currency,
		DefaultDuesMinor: req.DefaultDuesMinor,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

// GetManagement godoc
// @ID           getManagement
// @Summary      Get a management
// @Description  Retrieve the management the route targets
// @Tags         managements
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Success      200 {object} APIResponse[apptenancy.ManagementDTO]
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId} [get]
func (h *ManagementHandler) GetManagement(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	result, err := h.managementService.GetManagement(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// ListOwnedManagements godoc
// @ID           listOwnedManagements
// @Summary      List managements owned by the caller
// @Tags         managements
// @Produce      json
// @Success      200 {object} APIResponse[[]apptenancy.ManagementDTO]
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements [get]
func (h *ManagementHandler) ListOwnedManagements(c *gin.Context) {
	ownerID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}

	result, err := h.managementService.ListOwned(c.Request.Context(), ownerID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// UpdateDefaultDues godoc
// @ID           updateManagementDefaultDues
// @Summary      Update the default monthly dues
// @Description  Change the default dues amount applied to units without an override
// @Tags         managements
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        request body UpdateDefaultDuesRequest true "New default dues"
// @Success      200 {object} APIResponse[apptenancy.ManagementDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/default-dues [put]
func (h *ManagementHandler) UpdateDefaultDues(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	var req UpdateDefaultDuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.managementService.UpdateDefaultDues(c.Request.Context(), tenantID, req.DefaultDuesMinor)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// DeactivateManagement godoc
// @ID           deactivateManagement
// @Summary      Deactivate a management
// @Description  Retire a management; its data stays readable but mutations stop
// @Tags         managements
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Success      204
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId} [delete]
func (h *ManagementHandler) DeactivateManagement(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	if err := h.managementService.DeactivateManagement(c.Request.Context(), tenantID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// parseUUIDParam parses a path parameter as a UUID
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Param(name)
	if raw == "" {
		return uuid.Nil, errors.New("missing " + name)
	}
	return uuid.Parse(raw)
}
