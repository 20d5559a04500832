package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/zcahkwn/student-bid-sub000/internal/middleware"
	"github.com/zcahkwn/student-bid-sub000/internal/models"
	"github.com/zcahkwn/student-bid-sub000/internal/service"
	"github.com/zcahkwn/student-bid-sub000/pkg/jobs"
)

// RouterConfig bundles the handlers and cross-cutting dependencies the
// route table needs.
type RouterConfig struct {
	APIPrefix  string
	JWTSecret  string
	AuditQueue *jobs.Queue
	Metrics    *service.MetricsService

	Students      *StudentHandler
	Classes       *ClassHandler
	Enrollments   *EnrollmentHandler
	Opportunities *OpportunityHandler
	Bids          *BidHandler
	Selections    *SelectionHandler
	TokenHistory  *TokenHistoryHandler
	MetricsH      *MetricsHandler
}

// RegisterRoutes mounts every endpoint on the engine. Mutating routes
// require the admin role except bid submission and withdrawal, which any
// authenticated caller may invoke for themselves.
func RegisterRoutes(r *gin.Engine, cfg RouterConfig) {
	r.GET("/health", cfg.MetricsH.Health)
	r.GET("/metrics", cfg.MetricsH.Prometheus)

	// Signed token is the credential here, so no JWT on this route.
	r.GET("/reports/download", cfg.Opportunities.DownloadReport)

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(cfg.AuditQueue, action, resource)
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWTSecret))
	admin := middleware.RequireAdmin()

	api.GET("/students", cfg.Students.List)
	api.GET("/students/:id", cfg.Students.Get)
	api.POST("/students", admin, cfg.Students.Create)

	api.GET("/classes", cfg.Classes.List)
	api.GET("/classes/:id", cfg.Classes.Get)
	api.POST("/classes", admin, cfg.Classes.Create)
	api.DELETE("/classes/:id", admin, audit(models.AuditActionClassDelete, "class"), cfg.Classes.Delete)
	api.DELETE("/classes/:id/students/:studentId", admin, audit(models.AuditActionStudentRemove, "enrollment"), cfg.Classes.RemoveStudent)

	api.GET("/enrollments", cfg.Enrollments.List)
	api.POST("/enrollments", admin, audit(models.AuditActionEnrollmentCreate, "enrollment"), cfg.Enrollments.Create)
	api.POST("/enrollments/topup", admin, audit(models.AuditActionTokenTopup, "enrollment"), cfg.Enrollments.TopUp)

	api.GET("/opportunities", cfg.Opportunities.List)
	api.GET("/opportunities/:id", cfg.Opportunities.Get)
	api.GET("/opportunities/:id/bidders", cfg.Bids.ListBidders)
	api.GET("/opportunities/:id/report", admin, cfg.Opportunities.Report)
	api.POST("/opportunities", admin, audit(models.AuditActionOpportunityCreate, "opportunity"), cfg.Opportunities.Create)
	api.DELETE("/opportunities/:id", admin, audit(models.AuditActionOpportunityDelete, "opportunity"), cfg.Opportunities.Delete)

	api.POST("/opportunities/:id/selection", admin, audit(models.AuditActionSelectionRun, "selection"), cfg.Selections.Select)
	api.DELETE("/opportunities/:id/selection", admin, audit(models.AuditActionSelectionReset, "selection"), cfg.Selections.Reset)
	api.POST("/opportunities/:id/auto-selection", admin, audit(models.AuditActionSelectionAuto, "selection"), cfg.Selections.AutoSelect)

	api.POST("/bids", audit(models.AuditActionBidSubmit, "bid"), cfg.Bids.Submit)
	api.DELETE("/bids", audit(models.AuditActionBidWithdraw, "bid"), cfg.Bids.Withdraw)

	api.GET("/token-history", cfg.TokenHistory.List)
}
