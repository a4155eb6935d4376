// Package handler exposes the attendance API over gin.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/auth"
	"schoolattendance/internal/directory"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Deps are the services behind the routes.
type Deps struct {
	Students      *directory.Service
	Attendance    *attendance.Service
	Auth          *auth.Service
	Signer        *auth.Signer
	Log           *zap.Logger
	MaxPhotoBytes int64
	Checks        map[string]Check
}

// Handler serves the API routes.
type Handler struct {
	students      *directory.Service
	attendance    *attendance.Service
	auth          *auth.Service
	signer        *auth.Signer
	log           *zap.Logger
	maxPhotoBytes int64
	checks        map[string]Check
}

// New creates a handler and registers the request validators.
func New(d Deps) *Handler {
	registerValidators()
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.MaxPhotoBytes <= 0 {
		d.MaxPhotoBytes = 2 << 20
	}
	return &Handler{
		students:      d.Students,
		attendance:    d.Attendance,
		auth:          d.Auth,
		signer:        d.Signer,
		log:           d.Log,
		maxPhotoBytes: d.MaxPhotoBytes,
		checks:        d.Checks,
	}
}

// Routes mounts /healthz and the /api tree on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/healthz", h.health)

	api := r.Group("/api")
	api.POST("/register", h.register)
	api.POST("/login", h.login)
	api.POST("/refresh", h.refresh)

	api.GET("/students", h.listStudents)
	api.GET("/students/:id", h.showStudent)
	api.GET("/attendances", h.listAttendances)
	api.GET("/attendances/today-summary", h.todaysSummary)
	api.GET("/attendances/stats-by-date", h.statsByDate)
	api.GET("/attendances/monthly-report", h.monthlyReport)

	protected := api.Group("", auth.RequireUser(h.signer))
	protected.POST("/logout", h.logout)
	protected.GET("/me", h.me)

	protected.POST("/students", h.createStudent)
	protected.PUT("/students/:id", h.updateStudent)
	protected.DELETE("/students/:id", h.deleteStudent)
	protected.GET("/students/:id/stats", h.studentStats)

	protected.POST("/attendances", h.storeAttendance)
	protected.POST("/attendances/bulk", h.bulkStoreAttendance)
	protected.GET("/attendances/:id", h.showAttendance)
	protected.PUT("/attendances/:id", h.updateAttendance)
	protected.DELETE("/attendances/:id", h.deleteAttendance)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		healthy := check(ctx) == nil
		body[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// PageQuery is the page and per_page query pair shared by list routes.
type PageQuery struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1"`
}
