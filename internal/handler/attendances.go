package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/auth"
	"schoolattendance/internal/model"
)

type attendanceQuery struct {
	Date      string `form:"date" binding:"omitempty,date"`
	StudentID string `form:"student_id"`
	Status    string `form:"status" binding:"omitempty,attendance_status"`
	Class     string `form:"class"`
	PageQuery
}

type attendanceRequest struct {
	StudentID string  `json:"student_id" binding:"required"`
	Date      string  `json:"date" binding:"required,date"`
	Status    string  `json:"status" binding:"required,attendance_status"`
	Note      *string `json:"note" binding:"omitempty,max=500"`
}

type bulkRow struct {
	StudentID string  `json:"student_id" binding:"required"`
	Status    string  `json:"status" binding:"required,attendance_status"`
	Note      *string `json:"note" binding:"omitempty,max=500"`
}

type bulkRequest struct {
	Date        string    `json:"date" binding:"required,date"`
	Attendances []bulkRow `json:"attendances" binding:"required,min=1,dive"`
}

type statsQuery struct {
	Date string `form:"date" binding:"required,date"`
}

type monthlyQuery struct {
	Year  *int   `form:"year" binding:"required"`
	Month int    `form:"month" binding:"required,min=1,max=12"`
	Class string `form:"class"`
}

func (h *Handler) listAttendances(c *gin.Context) {
	var q attendanceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}
	f := attendance.Filter{
		StudentID:   q.StudentID,
		Status:      model.Status(q.Status),
		Class:       q.Class,
		PageRequest: model.PageRequest{Page: q.Page, PerPage: q.PerPage},
	}
	if q.Date != "" {
		d := model.MustParseDate(q.Date)
		f.Date = &d
	}
	rows, meta, err := h.attendance.ListAttendance(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.decorate(rows), "meta": meta})
}

func (h *Handler) storeAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	if !h.studentsExist(c, map[string]string{"student_id": req.StudentID}, "The selected student id is invalid.") {
		return
	}
	a, err := h.attendance.RecordAttendance(c.Request.Context(), attendance.Input{
		StudentID: req.StudentID,
		Date:      model.MustParseDate(req.Date),
		Status:    model.Status(req.Status),
		Note:      req.Note,
	}, auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": h.decorateOne(a)})
}

func (h *Handler) bulkStoreAttendance(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	fields := make(map[string]string, len(req.Attendances))
	rows := make([]attendance.BulkRow, 0, len(req.Attendances))
	for i, row := range req.Attendances {
		fields[fmt.Sprintf("attendances.%d.student_id", i)] = row.StudentID
		rows = append(rows, attendance.BulkRow{StudentID: row.StudentID, Status: model.Status(row.Status), Note: row.Note})
	}
	if !h.studentsExist(c, fields, "One or more student IDs are invalid") {
		return
	}
	stored, err := h.attendance.BulkRecord(c.Request.Context(), model.MustParseDate(req.Date), rows, auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Bulk attendance recorded successfully",
		"count":   len(stored),
		"data":    h.decorate(stored),
	})
}

func (h *Handler) showAttendance(c *gin.Context) {
	a, err := h.attendance.GetAttendance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.decorateOne(a)})
}

func (h *Handler) updateAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	if _, err := h.attendance.GetAttendance(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	if !h.studentsExist(c, map[string]string{"student_id": req.StudentID}, "The selected student id is invalid.") {
		return
	}
	a, err := h.attendance.UpdateAttendance(c.Request.Context(), c.Param("id"), attendance.Input{
		StudentID: req.StudentID,
		Date:      model.MustParseDate(req.Date),
		Status:    model.Status(req.Status),
		Note:      req.Note,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.decorateOne(a)})
}

func (h *Handler) deleteAttendance(c *gin.Context) {
	if err := h.attendance.DeleteAttendance(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attendance deleted successfully"})
}

func (h *Handler) todaysSummary(c *gin.Context) {
	stats, err := h.attendance.GetTodaysSummary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) statsByDate(c *gin.Context) {
	var q statsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}
	stats, err := h.attendance.GetAttendanceStatsByDate(c.Request.Context(), model.MustParseDate(q.Date))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) monthlyReport(c *gin.Context) {
	var q monthlyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}
	report, err := h.attendance.GetMonthlyReport(c.Request.Context(), *q.Year, q.Month, q.Class)
	if err != nil {
		h.fail(c, err)
		return
	}
	for i := range report.Students {
		h.decorateStudent(&report.Students[i].Student)
	}
	c.JSON(http.StatusOK, report)
}

// studentsExist answers 422 with msg on every field whose student id is unknown.
func (h *Handler) studentsExist(c *gin.Context, fields map[string]string, msg string) bool {
	ids := make([]string, 0, len(fields))
	for _, id := range fields {
		ids = append(ids, id)
	}
	missing, err := h.students.Missing(c.Request.Context(), ids)
	if err != nil {
		h.fail(c, err)
		return false
	}
	if len(missing) == 0 {
		return true
	}
	unknown := make(map[string]bool, len(missing))
	for _, id := range missing {
		unknown[id] = true
	}
	errs := fieldErrors{}
	for field, id := range fields {
		if unknown[id] {
			errs.add(field, msg)
		}
	}
	unprocessable(c, errs)
	return false
}

func (h *Handler) decorate(rows []model.Attendance) []model.Attendance {
	for i := range rows {
		rows[i] = h.decorateOne(rows[i])
	}
	return rows
}

func (h *Handler) decorateOne(a model.Attendance) model.Attendance {
	if a.Student != nil {
		h.decorateStudent(a.Student)
	}
	return a
}

func (h *Handler) decorateStudent(st *model.Student) {
	h.students.Decorate(st)
}
