package handler

import (
	"github.com/gin-gonic/gin"
	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
)

// ProgramHandler handles loyalty program endpoints
type ProgramHandler struct {
	BaseHandler
	programService ProgramService
}

// NewProgramHandler creates a new ProgramHandler
func NewProgramHandler(programService ProgramService) *ProgramHandler {
	return &ProgramHandler{programService: programService}
}

// Create godoc
// @Summary      Create a loyalty program
// @Description  Create a stamps, points or cashback program for the merchant
// @Tags         programs
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        request body loyaltyapp.CreateProgramRequest true "Program definition"
// @Success      201 {object} dto.Response{data=loyaltyapp.ProgramResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /programs [post]
func (h *ProgramHandler) Create(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var req loyaltyapp.CreateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	program, err := h.programService.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, program)
}

// List godoc
// @Summary      List loyalty programs
// @Description  List the merchant's programs, optionally only the active ones
// @Tags         programs
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        active_only query bool false "Only active programs"
// @Success      200 {object} dto.Response{data=[]loyaltyapp.ProgramResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /programs [get]
func (h *ProgramHandler) List(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var query dto.ProgramListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}

	programs, err := h.programService.List(c.Request.Context(), tenantID, query.ActiveOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, programs)
}

// GetByID godoc
// @Summary      Get a loyalty program
// @Description  Get a program by ID
// @Tags         programs
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Program ID" format(uuid)
// @Success      200 {object} dto.Response{data=loyaltyapp.ProgramResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /programs/{id} [get]
func (h *ProgramHandler) GetByID(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	program, err := h.programService.GetByID(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, program)
}

// Update godoc
// @Summary      Update a program's reward
// @Description  Change the reward description. Type, goal and rate are fixed once created
// @Tags         programs
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Program ID" format(uuid)
// @Param        request body loyaltyapp.UpdateProgramRequest true "Reward description"
// @Success      200 {object} dto.Response{data=loyaltyapp.ProgramResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /programs/{id} [patch]
func (h *ProgramHandler) Update(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	var req loyaltyapp.UpdateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	program, err := h.programService.UpdateRewardDescription(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, program)
}

// Disable godoc
// @Summary      Disable a program
// @Description  Stop accruals on a program. Redemptions stay allowed
// @Tags         programs
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Program ID" format(uuid)
// @Success      200 {object} dto.Response{data=loyaltyapp.ProgramResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /programs/{id}/disable [post]
func (h *ProgramHandler) Disable(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	program, err := h.programService.Disable(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, program)
}

// Enable godoc
// @Summary      Enable a program
// @Description  Allow accruals on a disabled program again
// @Tags         programs
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        id path string true "Program ID" format(uuid)
// @Success      200 {object} dto.Response{data=loyaltyapp.ProgramResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /programs/{id}/enable [post]
func (h *ProgramHandler) Enable(c *gin.Context) {
	tenantID, id, ok := h.scope(c)
	if !ok {
		return
	}

	program, err := h.programService.Enable(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, program)
}
