package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apptenancy "github.com/strata/backend/internal/application/tenancy"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/internal/interfaces/http/dto"
)

// MembershipHandler handles membership HTTP requests
type MembershipHandler struct {
	BaseHandler
	membershipService *apptenancy.MembershipService
}

// NewMembershipHandler creates a new membership handler
func NewMembershipHandler(membershipService *apptenancy.MembershipService) *MembershipHandler {
	return &MembershipHandler{membershipService: membershipService}
}

// AddMemberRequest represents the request to add a member
type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	Role   string `json:"role" binding:"required,oneof=admin manager viewer" example:"manager"`
}

// ChangeRoleRequest represents the request to change a member's role
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin manager viewer" example:"viewer"`
}

// ListMembers godoc
// @ID           listMembers
// @Summary      List members
// @Description  List the management's members with their roles; the owner is not listed
// @Tags         members
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} APIResponse[[]apptenancy.MemberDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/members [get]
func (h *MembershipHandler) ListMembers(c *gin.Context) {
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

	result, err := h.membershipService.ListMembers(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// AddMember godoc
// @ID           addMember
// @Summary      Add a member
// @Description  Grant a user a role on the management
// @Tags         members
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        request body AddMemberRequest true "Member data"
// @Success      201 {object} APIResponse[any]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/members [post]
func (h *MembershipHandler) AddMember(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	if err := h.membershipService.AddMember(c.Request.Context(), tenantID, userID, tenancy.Role(req.Role)); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, gin.H{"user_id": req.UserID, "role": req.Role})
}

// ChangeRole godoc
// @ID           changeMemberRole
// @Summary      Change a member's role
// @Tags         members
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        userId path string true "User ID" format(uuid)
// @Param        request body ChangeRoleRequest true "Role data"
// @Success      200 {object} APIResponse[any]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/members/{userId} [put]
func (h *MembershipHandler) ChangeRole(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}
	userID, err := parseUUIDParam(c, "userId")
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.membershipService.ChangeRole(c.Request.Context(), tenantID, userID, tenancy.Role(req.Role)); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, gin.H{"user_id": userID.String(), "role": req.Role})
}

// RemoveMember godoc
// @ID           removeMember
// @Summary      Remove a member
// @Description  Revoke the user's membership; takes effect on their next request
// @Tags         members
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        userId path string true "User ID" format(uuid)
// @Success      204
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/members/{userId} [delete]
func (h *MembershipHandler) RemoveMember(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}
	userID, err := parseUUIDParam(c, "userId")
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	if err := h.membershipService.RemoveMember(c.Request.Context(), tenantID, userID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}
