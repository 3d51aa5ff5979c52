package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/middleware"
	"github.com/pointsheet/pointsheet-api/internal/models"
	"github.com/pointsheet/pointsheet-api/internal/repository"
	"github.com/pointsheet/pointsheet-api/internal/service"
)

// RouterDeps carries everything route registration needs.
type RouterDeps struct {
	Auth     *service.AuthService
	Schools  *service.SchoolService
	Students *service.StudentService
	Plans    *service.PlanService
	Days     *service.DayService
	Scoring  *service.ScoringService
	Staff    *service.StaffService
	Audit    *service.AuditService
	Exports  *service.ExportService

	StaffDirectory *repository.StaffRepository
	Health         *MetricsHandler
}

// RegisterRoutes mounts the API surface on the engine. Global middleware is
// the caller's responsibility; this only adds the per-group auth chain.
func RegisterRoutes(r *gin.Engine, deps RouterDeps) {
	authHandler := NewAuthHandler(deps.Auth, deps.Staff)
	schoolHandler := NewSchoolHandler(deps.Schools)
	studentHandler := NewStudentHandler(deps.Students)
	planHandler := NewPlanHandler(deps.Plans)
	dayHandler := NewDayHandler(deps.Days, deps.Scoring)
	staffHandler := NewStaffHandler(deps.Staff)
	auditHandler := NewAuditHandler(deps.Audit)

	// A typed nil would defeat the handler's not-configured guard.
	var exportsSvc exportService
	if deps.Exports != nil {
		exportsSvc = deps.Exports
	}
	exportHandler := NewExportHandler(exportsSvc)

	if deps.Health != nil {
		r.GET("/health", deps.Health.Health)
		r.GET("/ready", deps.Health.Ready)
		r.GET("/metrics", deps.Health.Prometheus)
	}

	api := r.Group("/api/v1")
	api.POST("/auth/token", authHandler.Token)
	// Download links are capability URLs; the signature is the credential.
	api.GET("/exports/:id/download", exportHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(deps.Auth))
	protected.Use(middleware.Actor(deps.StaffDirectory))

	protected.GET("/auth/me", authHandler.Me)
	protected.POST("/schools", middleware.RequireRoles(models.RoleAdmin), schoolHandler.Create)
	protected.GET("/exports/:id", exportHandler.Status)

	staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleSpecials, models.RoleAchievement)
	rosterWrite := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	school := protected.Group("/schools/:schoolId")
	school.GET("", schoolHandler.Get)
	school.PUT("/theme", adminOnly, schoolHandler.UpdateTheme)

	school.GET("/students", studentHandler.List)
	school.POST("/students", rosterWrite, studentHandler.Create)
	school.GET("/students/:studentId", studentHandler.Get)
	school.PATCH("/students/:studentId", rosterWrite, studentHandler.Update)

	school.POST("/students/:studentId/plans", rosterWrite, planHandler.Create)
	school.GET("/students/:studentId/plans", planHandler.ListByStudent)
	school.GET("/plans/:planId", planHandler.Get)
	school.PUT("/plans/:planId", rosterWrite, planHandler.Update)
	school.POST("/plans/:planId/archive", rosterWrite, planHandler.Archive)

	school.GET("/plans/:planId/days", dayHandler.List)
	school.GET("/plans/:planId/days/:dayKey", dayHandler.Get)
	school.PUT("/plans/:planId/days/:dayKey/cells", staffOnly, dayHandler.PutCell)
	school.PUT("/plans/:planId/days/:dayKey/comments", staffOnly, dayHandler.PutComment)
	school.POST("/plans/:planId/days/:dayKey/incidents", staffOnly, dayHandler.PostIncident)

	school.GET("/staff", staffOnly, staffHandler.List)
	school.GET("/staff/:uid", staffOnly, staffHandler.Get)
	school.PUT("/staff/:uid", adminOnly, staffHandler.Upsert)

	school.GET("/audit", adminOnly, auditHandler.List)

	school.POST("/plans/:planId/exports", staffOnly, exportHandler.Create)
}
