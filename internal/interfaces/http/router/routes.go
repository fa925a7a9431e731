package router

import (
	"github.com/loyalty/backend/internal/interfaces/http/handler"
)

// Handlers are the HTTP handlers mounted by RegisterAPI
type Handlers struct {
	Program    *handler.ProgramHandler
	Enrollment *handler.EnrollmentHandler
	Dashboard  *handler.DashboardHandler
	Identifier *handler.IdentifierHandler
	System     *handler.SystemHandler
}

// PublicPaths are served without a resolved merchant
func PublicPaths(apiVersion string) []string {
	base := "/api/" + apiVersion
	return []string{
		base + "/health",
		base + "/system/info",
		base + "/identifiers/classify",
	}
}

// RegisterAPI registers the loyalty API domain groups on r
func RegisterAPI(r *Router, h Handlers) *Router {
	programs := NewDomainGroup("programs", "/programs").
		POST("", h.Program.Create).
		GET("", h.Program.List).
		GET("/:id", h.Program.GetByID).
		PATCH("/:id", h.Program.Update).
		POST("/:id/disable", h.Program.Disable).
		POST("/:id/enable", h.Program.Enable)

	enrollments := NewDomainGroup("enrollments", "/enrollments").
		POST("", h.Enrollment.Ensure).
		GET("/lookup", h.Enrollment.Lookup).
		GET("/:id/balance", h.Enrollment.Balance).
		GET("/:id/history", h.Enrollment.History).
		GET("/:id/audit", h.Enrollment.Audit).
		POST("/:id/accruals", h.Enrollment.Accrue).
		POST("/:id/purchases", h.Enrollment.Purchase).
		POST("/:id/redemptions", h.Enrollment.Redeem).
		POST("/:id/expire", h.Enrollment.Expire).
		POST("/:id/reactivate", h.Enrollment.Reactivate)

	identifiers := NewDomainGroup("identifiers", "/identifiers").
		GET("/classify", h.Identifier.Classify)

	dashboard := NewDomainGroup("dashboard", "/dashboard").
		GET("/daily-enrollments", h.Dashboard.DailyEnrollments).
		GET("/recent-activity", h.Dashboard.RecentActivity).
		GET("/summary", h.Dashboard.Summary).
		GET("/customers/summary", h.Dashboard.CustomerSummary).
		GET("/bookings/today", h.Dashboard.TodayBookings)

	system := NewDomainGroup("system", "").
		GET("/health", h.System.Health).
		GET("/system/info", h.System.Info)

	return r.Register(programs).
		Register(enrollments).
		Register(identifiers).
		Register(dashboard).
		Register(system)
}
