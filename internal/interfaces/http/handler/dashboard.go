package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	dashboardapp "github.com/loyalty/backend/internal/application/dashboard"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
)

// DashboardService serves the read-only merchant dashboard views
type DashboardService interface {
	DailyEnrollments(ctx context.Context, tenantID uuid.UUID) ([]dashboardapp.DailyCount, error)
	RecentActivity(ctx context.Context, tenantID uuid.UUID, limit int) ([]dashboardapp.ActivityResponse, error)
	MerchantSummary(ctx context.Context, tenantID uuid.UUID) (*dashboardapp.MerchantSummary, error)
	CustomerSummary(ctx context.Context, tenantID uuid.UUID, raw string) (*dashboardapp.CustomerSummary, error)
	TodayBookings(ctx context.Context, tenantID uuid.UUID) (*dashboardapp.TodayBookings, error)
}

// DashboardHandler serves the merchant dashboard views
type DashboardHandler struct {
	BaseHandler
	dashboard DashboardService
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(dashboard DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// DailyEnrollments godoc
// @Summary      Daily enrollment counts
// @Description  Enrollments created per local calendar day
// @Tags         dashboard
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Success      200 {object} dto.Response{data=[]dashboardapp.DailyCount}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dashboard/daily-enrollments [get]
func (h *DashboardHandler) DailyEnrollments(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	days, err := h.dashboard.DailyEnrollments(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, days)
}

// RecentActivity godoc
// @Summary      Recent ledger activity
// @Description  Latest ledger entries across the merchant's enrollments
// @Tags         dashboard
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        limit query int false "Maximum entries" maximum(100)
// @Success      200 {object} dto.Response{data=[]dashboardapp.ActivityResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dashboard/recent-activity [get]
func (h *DashboardHandler) RecentActivity(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var query dto.LimitQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}

	activity, err := h.dashboard.RecentActivity(c.Request.Context(), tenantID, query.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, activity)
}

// Summary godoc
// @Summary      Merchant summary
// @Description  Customer, program and booking counts. May lag the ledger by the cache TTL
// @Tags         dashboard
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Success      200 {object} dto.Response{data=dashboardapp.MerchantSummary}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	summary, err := h.dashboard.MerchantSummary(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// CustomerSummary godoc
// @Summary      Customer summary
// @Description  Enrollment counts and last activity of one customer
// @Tags         dashboard
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Param        identifier query string true "Email or phone number"
// @Success      200 {object} dto.Response{data=dashboardapp.CustomerSummary}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dashboard/customers/summary [get]
func (h *DashboardHandler) CustomerSummary(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var query dto.IdentifierQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}

	summary, err := h.dashboard.CustomerSummary(c.Request.Context(), tenantID, query.Identifier)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// TodayBookings godoc
// @Summary      Today's bookings
// @Description  Bookings and occupied slots of the merchant's current local day
// @Tags         dashboard
// @Produce      json
// @Param        X-Tenant-ID header string false "Merchant ID when tokens are optional"
// @Success      200 {object} dto.Response{data=dashboardapp.TodayBookings}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dashboard/bookings/today [get]
func (h *DashboardHandler) TodayBookings(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	bookings, err := h.dashboard.TodayBookings(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bookings)
}
