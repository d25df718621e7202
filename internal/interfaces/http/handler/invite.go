package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apptenancy "github.com/strata/backend/internal/application/tenancy"
)

// defaultInviteTTL is used when a create request carries no expiry
const defaultInviteTTL = 7 * 24 * time.Hour

// InviteHandler handles invite HTTP requests. The create/revoke/list
// surface is tenant-scoped; validate and consume are the public join flow
// residents walk through from an invite link.
type InviteHandler struct {
	BaseHandler
	inviteService *apptenancy.InviteService
}

// NewInviteHandler creates a new invite handler
func NewInviteHandler(inviteService *apptenancy.InviteService) *InviteHandler {
	return &InviteHandler{inviteService: inviteService}
}

// CreateInviteRequest represents the request to create an invite
type CreateInviteRequest struct {
	UnitID    string     `json:"unit_id" binding:"required,uuid"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" example:"2026-03-01T00:00:00Z"`
}

// ValidateInviteRequest represents the public validation step of the join flow
type ValidateInviteRequest struct {
	ManagementID   string `json:"management_id" binding:"required,uuid"`
	ReservationKey string `json:"reservation_key" binding:"required" example:"device-7f3a"`
}

// ConsumeInviteRequest represents the public consumption step of the join flow
type ConsumeInviteRequest struct {
	ManagementID string `json:"management_id" binding:"required,uuid"`
	Nonce        string `json:"nonce" binding:"required"`
}

// CreateInvite godoc
// @ID           createInvite
// @Summary      Create an invite
// @Description  Issue an invite for an active, unbound unit
// @Tags         invites
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        request body CreateInviteRequest true "Invite data"
// @Success      201 {object} APIResponse[apptenancy.InviteDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/invites [post]
func (h *InviteHandler) CreateInvite(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	unitID, err := uuid.Parse(req.UnitID)
	if err != nil {
		h.BadRequest(c, "Invalid unit ID")
		return
	}

	expiresAt := time.Now().Add(defaultInviteTTL)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	result, err := h.inviteService.CreateInvite(c.Request.Context(), apptenancy.CreateInviteRequest{
		TenantID:  tenantID,
		UnitID:    unitID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

// ListUnitInvites godoc
// @ID           listUnitInvites
// @Summary      List a unit's active invites
// @Tags         invites
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        unitId path string true "Unit ID" format(uuid)
// @Success      200 {object} APIResponse[[]apptenancy.InviteDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/units/{unitId}/invites [get]
func (h *InviteHandler) ListUnitInvites(c *gin.Context) {
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

	result, err := h.inviteService.ListUnitInvites(c.Request.Context(), tenantID, unitID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// RevokeInvite godoc
// @ID           revokeInvite
// @Summary      Revoke an invite
// @Description  Withdraw an unused invite; revoking twice is a no-op
// @Tags         invites
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        inviteId path string true "Invite ID" format(uuid)
// @Success      204
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/invites/{inviteId} [delete]
func (h *InviteHandler) RevokeInvite(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}
	inviteID, err := parseUUIDParam(c, "inviteId")
	if err != nil {
		h.BadRequest(c, "Invalid invite ID")
		return
	}

	if err := h.inviteService.RevokeInvite(c.Request.Context(), tenantID, inviteID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// ValidateInvite godoc
// @ID           validateInvite
// @Summary      Validate an invite
// @Description  Reserve the invite under the caller's reservation key and return the consumption nonce. Re-validating with the same key while the reservation is live returns the same nonce.
// @Tags         join
// @Accept       json
// @Produce      json
// @Param        inviteId path string true "Invite ID" format(uuid)
// @Param        request body ValidateInviteRequest true "Validation data"
// @Success      200 {object} APIResponse[apptenancy.ValidateInviteResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /join/invites/{inviteId}/validate [post]
func (h *InviteHandler) ValidateInvite(c *gin.Context) {
	inviteID, err := parseUUIDParam(c, "inviteId")
	if err != nil {
		h.BadRequest(c, "Invalid invite ID")
		return
	}

	var req ValidateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	tenantID, err := uuid.Parse(req.ManagementID)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	result, err := h.inviteService.ValidateInvite(c.Request.Context(), apptenancy.ValidateInviteRequest{
		TenantID:       tenantID,
		InviteID:       inviteID,
		ReservationKey: req.ReservationKey,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// ConsumeInvite godoc
// @ID           consumeInvite
// @Summary      Consume an invite
// @Description  Burn the invite, bind the authenticated caller to its unit and create a viewer membership if none exists
// @Tags         join
// @Accept       json
// @Produce      json
// @Param        inviteId path string true "Invite ID" format(uuid)
// @Param        request body ConsumeInviteRequest true "Consumption data"
// @Success      200 {object} APIResponse[apptenancy.ConsumeInviteResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /join/invites/{inviteId}/consume [post]
func (h *InviteHandler) ConsumeInvite(c *gin.Context) {
	inviteID, err := parseUUIDParam(c, "inviteId")
	if err != nil {
		h.BadRequest(c, "Invalid invite ID")
		return
	}

	var req ConsumeInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	tenantID, err := uuid.Parse(req.ManagementID)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}

	result, err := h.inviteService.ConsumeInvite(c.Request.Context(), apptenancy.ConsumeInviteRequest{
		TenantID: tenantID,
		InviteID: inviteID,
		Nonce:    req.Nonce,
		UserID:   userID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}
