package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/middleware"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/service"
	"github.com/noah-isme/course-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-admin-api/pkg/middleware/requestid"
)

// RouterConfig carries the HTTP surface settings.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	MetricsEnabled bool
	MetricsPath    string
}

// Handlers groups every HTTP handler mounted by NewRouter.
type Handlers struct {
	Auth       *AuthHandler
	Course     *CourseHandler
	Student    *StudentHandler
	Enrollment *EnrollmentHandler
	Grade      *GradeHandler
	User       *UserHandler
	ExportJobs *ExportJobHandler
	Dashboard  *DashboardHandler
	Metrics    *MetricsHandler
}

// NewRouter builds the gin engine with global middleware and all routes.
func NewRouter(cfg RouterConfig, h Handlers, tokens middleware.TokenValidator, metrics *service.MetricsService, logr *zap.Logger) *gin.Engine {
	if logr == nil {
		logr = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/health", "/ready", cfg.MetricsPath))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	if cfg.MetricsEnabled {
		r.GET(cfg.MetricsPath, h.Metrics.Prometheus)
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.Auth.Login)
	if h.ExportJobs != nil {
		api.GET("/exports/download/:token", h.ExportJobs.Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	secured.GET("/auth/me", h.Auth.Me)
	secured.POST("/auth/change-password", h.Auth.ChangePassword)
	secured.GET("/metrics/summary", admin, h.Metrics.Snapshot)
	if h.Dashboard != nil {
		secured.GET("/dashboard", admin, h.Dashboard.Summary)
	}

	courses := secured.Group("/courses")
	courses.GET("", h.Course.List)
	courses.GET("/:id", h.Course.Get)
	courses.GET("/:id/can-enroll", h.Course.CanEnroll)
	courses.POST("", admin, h.Course.Create)
	courses.PUT("/:id", admin, h.Course.Update)
	courses.DELETE("/:id", admin, h.Course.Delete)
	courses.POST("/:id/students", staff, h.Enrollment.Enroll)
	courses.DELETE("/:id/students/:studentId", staff, h.Enrollment.Unenroll)
	courses.GET("/:id/gradebook", staff, h.Grade.Gradebook)
	courses.GET("/:id/gradebook/export", staff, h.Grade.ExportGradebook)
	if h.ExportJobs != nil {
		courses.POST("/:id/gradebook/exports", staff, h.ExportJobs.Create)
		secured.GET("/exports/:id", staff, h.ExportJobs.Status)
	}

	students := secured.Group("/students")
	students.GET("", staff, h.Student.List)
	students.GET("/:id", staff, h.Student.Get)
	students.POST("", admin, h.Student.Create)
	students.PUT("/:id", admin, h.Student.Update)
	students.DELETE("/:id", admin, h.Student.Delete)

	grades := secured.Group("/grades")
	grades.POST("/compute", h.Grade.Compute)
	grades.GET("", staff, h.Grade.List)
	grades.POST("", staff, h.Grade.Create)
	grades.GET("/:id", staff, h.Grade.Get)
	grades.DELETE("/:id", admin, h.Grade.Delete)
	grades.PATCH("/:id/publish", staff, h.Grade.Publish)
	grades.POST("/:id/components", staff, h.Grade.AddComponent)
	grades.PUT("/:id/components/:index", staff, h.Grade.UpdateComponent)
	grades.DELETE("/:id/components/:index", staff, h.Grade.RemoveComponent)

	users := secured.Group("/users", admin)
	users.GET("", h.User.List)
	users.GET("/:id", h.User.Get)
	users.POST("", h.User.Create)
	users.PUT("/:id", h.User.Update)
	users.DELETE("/:id", h.User.Delete)

	return r
}
