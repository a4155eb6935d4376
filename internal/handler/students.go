package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolattendance/internal/directory"
	"schoolattendance/internal/model"
)

type studentQuery struct {
	Search  string `form:"search"`
	Class   string `form:"class"`
	Section string `form:"section"`
	PageQuery
}

type createStudentRequest struct {
	Name      string `form:"name" json:"name" binding:"required,max=255"`
	StudentID string `form:"student_id" json:"student_id" binding:"required,max=50"`
	Class     string `form:"class" json:"class" binding:"required,max=50"`
	Section   string `form:"section" json:"section" binding:"required,max=50"`
}

type updateStudentRequest struct {
	Name      *string `form:"name" json:"name" binding:"omitempty,min=1,max=255"`
	StudentID *string `form:"student_id" json:"student_id" binding:"omitempty,min=1,max=50"`
	Class     *string `form:"class" json:"class" binding:"omitempty,min=1,max=50"`
	Section   *string `form:"section" json:"section" binding:"omitempty,min=1,max=50"`
}

func (h *Handler) listStudents(c *gin.Context) {
	var q studentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}
	students, meta, err := h.students.List(c.Request.Context(), directory.Filter{
		Search:      q.Search,
		Class:       q.Class,
		Section:     q.Section,
		PageRequest: model.PageRequest{Page: q.Page, PerPage: q.PerPage},
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": students, "meta": meta})
}

func (h *Handler) showStudent(c *gin.Context) {
	st, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (h *Handler) createStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	photo, ok := h.photo(c)
	if !ok {
		return
	}
	st, err := h.students.Create(c.Request.Context(), directory.Input{
		StudentID: req.StudentID,
		Name:      req.Name,
		Class:     req.Class,
		Section:   req.Section,
	}, photo)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": st})
}

func (h *Handler) updateStudent(c *gin.Context) {
	var req updateStudentRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	photo, ok := h.photo(c)
	if !ok {
		return
	}
	st, err := h.students.Update(c.Request.Context(), c.Param("id"), directory.Patch{
		StudentID: req.StudentID,
		Name:      req.Name,
		Class:     req.Class,
		Section:   req.Section,
	}, photo)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (h *Handler) deleteStudent(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student deleted successfully"})
}

func (h *Handler) studentStats(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.students.Get(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	stats, err := h.attendance.GetStudentStats(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// photo reads the optional multipart "photo" file. It answers the request itself and
// returns false when the upload is unusable.
func (h *Handler) photo(c *gin.Context) (*directory.Photo, bool) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, true
	}
	header, err := c.FormFile("photo")
	if err == http.ErrMissingFile {
		return nil, true
	}
	if err != nil {
		unprocessable(c, fieldErrors{"photo": {"The photo failed to upload."}})
		return nil, false
	}
	f, err := header.Open()
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxPhotoBytes+1))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if int64(len(data)) > h.maxPhotoBytes {
		h.fail(c, directory.ErrPhotoTooLarge)
		return nil, false
	}
	return &directory.Photo{Filename: header.Filename, Data: data}, true
}
