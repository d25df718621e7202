package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/strata/backend/internal/application/dues"
	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// DuesHandler handles recurring-dues generation requests
type DuesHandler struct {
	BaseHandler
	generator *dues.Generator
}

// NewDuesHandler creates a new dues handler
func NewDuesHandler(generator *dues.Generator) *DuesHandler {
	return &DuesHandler{generator: generator}
}

// RunDuesRequest represents the request to generate monthly dues
type RunDuesRequest struct {
	Period string `json:"period" binding:"required" example:"2026-09"`
	DryRun bool   `json:"dry_run" example:"false"`
}

// RunMonthlyDues godoc
// @ID           runMonthlyDues
// @Summary      Generate monthly dues
// @Description  Post a DEBIT dues entry for every active, non-exempt unit for the given period. Re-running the same period skips units that already have one.
// @Tags         dues
// @Accept       json
// @Produce      json
// @Param        managementId path string true "Management ID" format(uuid)
// @Param        request body RunDuesRequest true "Generation parameters"
// @Success      200 {object} APIResponse[dues.RunResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /managements/{managementId}/dues/runs [post]
func (h *DuesHandler) RunMonthlyDues(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid management ID")
		return
	}

	var req RunDuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	period, err := valueobject.ParsePeriod(req.Period)
	if err != nil {
		h.BadRequest(c, "Invalid period, expected YYYY-MM")
		return
	}

	result, err := h.generator.RunMonthlyDues(c.Request.Context(), dues.RunRequest{
		TenantID: tenantID,
		Period:   period,
		DryRun:   req.DryRun,
		ActorID:  actorIDPtr(c),
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}
