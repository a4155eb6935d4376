package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/auth"
	"schoolattendance/internal/cache"
	"schoolattendance/internal/directory"
	"schoolattendance/internal/photos"
	"schoolattendance/internal/testutil/testdb"
)

var today = time.Date(2025, 11, 5, 8, 30, 0, 0, time.UTC)

type api struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testdb.SQLite(t)

	att := attendance.NewService(attendance.NewRepository(db.Client), cache.NewInMemory(), time.Hour, time.UTC, nil, nil).
		WithClock(func() time.Time { return today })
	students := directory.NewService(directory.NewRepository(db.Client), photos.NewDisk(t.TempDir(), "/storage"), 1024, att, nil)
	signer := auth.NewSigner("test", "secret", time.Hour, 24*time.Hour)
	authSvc := auth.NewService(auth.NewRepository(db.Client), signer)
	authSvc.SetCost(bcrypt.MinCost)

	r := gin.New()
	New(Deps{
		Students:      students,
		Attendance:    att,
		Auth:          authSvc,
		Signer:        signer,
		MaxPhotoBytes: 1024,
		Checks: map[string]Check{
			"db": func(ctx context.Context) error { return db.Ping(ctx) },
		},
	}).Routes(r)

	a := &api{t: t, router: r}
	var session struct {
		AccessToken string `json:"access_token"`
	}
	a.decode(a.do(http.MethodPost, "/api/register", map[string]string{
		"name": "Admin", "email": "admin@school.com", "password": "password123",
	}, http.StatusCreated), &session)
	a.token = session.AccessToken
	return a
}

func (a *api) do(method, path string, body any, want int) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(a.t, want, w.Code, w.Body.String())
	return w
}

func (a *api) decode(w *httptest.ResponseRecorder, dest any) {
	a.t.Helper()
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), dest))
}

func (a *api) student(schoolID, class string) string {
	a.t.Helper()
	var res struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	a.decode(a.do(http.MethodPost, "/api/students", map[string]string{
		"name": "Student " + schoolID, "student_id": schoolID, "class": class, "section": "A",
	}, http.StatusCreated), &res)
	return res.Data.ID
}

type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func TestWriteRoutesNeedToken(t *testing.T) {
	a := newAPI(t)
	a.token = ""
	a.do(http.MethodPost, "/api/attendances", map[string]string{}, http.StatusUnauthorized)
	a.do(http.MethodPost, "/api/students", map[string]string{}, http.StatusUnauthorized)
	a.do(http.MethodGet, "/api/students", nil, http.StatusOK)
}

func TestStudentValidationAndUniqueness(t *testing.T) {
	a := newAPI(t)

	var e errorBody
	a.decode(a.do(http.MethodPost, "/api/students", map[string]string{"class": "5"}, http.StatusUnprocessableEntity), &e)
	assert.Equal(t, []string{"Student name is required"}, e.Errors["name"])
	assert.Equal(t, []string{"Student ID is required"}, e.Errors["student_id"])
	assert.Contains(t, e.Errors, "section")

	a.student("STU1001", "5")
	e = errorBody{}
	a.decode(a.do(http.MethodPost, "/api/students", map[string]string{
		"name": "Other", "student_id": "STU1001", "class": "5", "section": "B",
	}, http.StatusUnprocessableEntity), &e)
	assert.Equal(t, []string{"This student ID already exists"}, e.Errors["student_id"])
}

func TestStudentCRUD(t *testing.T) {
	a := newAPI(t)
	id := a.student("STU1001", "5")
	a.student("STU1002", "6")

	var list struct {
		Data []map[string]any `json:"data"`
		Meta map[string]int   `json:"meta"`
	}
	a.decode(a.do(http.MethodGet, "/api/students?class=5", nil, http.StatusOK), &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, 1, list.Meta["total"])
	assert.Equal(t, 15, list.Meta["per_page"])

	var shown struct {
		Data map[string]any `json:"data"`
	}
	a.decode(a.do(http.MethodPut, "/api/students/"+id, map[string]string{"section": "C"}, http.StatusOK), &shown)
	assert.Equal(t, "C", shown.Data["section"])
	assert.Equal(t, "STU1001", shown.Data["student_id"])

	a.do(http.MethodPut, "/api/students/"+id, map[string]string{"name": ""}, http.StatusUnprocessableEntity)
	a.do(http.MethodDelete, "/api/students/"+id, nil, http.StatusOK)
	a.do(http.MethodGet, "/api/students/"+id, nil, http.StatusNotFound)
}

func TestStudentPhotoUpload(t *testing.T) {
	a := newAPI(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{"name": "Ada", "student_id": "STU1", "class": "5", "section": "A"} {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("photo", "ada.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/students", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res struct {
		Data struct {
			Photo    string `json:"photo"`
			PhotoURL string `json:"photo_url"`
		} `json:"data"`
	}
	a.decode(w, &res)
	assert.NotEmpty(t, res.Data.Photo)
	assert.Equal(t, "/storage/"+res.Data.Photo, res.Data.PhotoURL)
}

func TestRecordAttendanceAndStats(t *testing.T) {
	a := newAPI(t)
	s1 := a.student("STU1", "5")
	s2 := a.student("STU2", "5")

	var e errorBody
	a.decode(a.do(http.MethodPost, "/api/attendances", map[string]string{
		"student_id": s1, "date": "2025-11-05", "status": "sleeping",
	}, http.StatusUnprocessableEntity), &e)
	assert.Contains(t, e.Errors, "status")

	e = errorBody{}
	a.decode(a.do(http.MethodPost, "/api/attendances", map[string]string{
		"student_id": "ghost", "date": "2025-11-05", "status": "present",
	}, http.StatusUnprocessableEntity), &e)
	assert.Contains(t, e.Errors, "student_id")

	e = errorBody{}
	a.decode(a.do(http.MethodPost, "/api/attendances", map[string]any{
		"student_id": s1, "date": "2025-11-05", "status": "present", "note": strings.Repeat("x", 501),
	}, http.StatusUnprocessableEntity), &e)
	assert.Contains(t, e.Errors, "note")
	a.do(http.MethodPost, "/api/attendances", map[string]any{
		"student_id": s1, "date": "2025-11-05", "status": "present", "note": strings.Repeat("é", 500),
	}, http.StatusCreated)
	a.do(http.MethodPost, "/api/attendances", map[string]any{
		"student_id": s1, "date": "05/11/2025", "status": "present",
	}, http.StatusUnprocessableEntity)

	var created struct {
		Data struct {
			ID       string `json:"id"`
			Date     string `json:"date"`
			Status   string `json:"status"`
			Recorder struct {
				Name string `json:"name"`
			} `json:"recorder"`
			Student struct {
				StudentID string `json:"student_id"`
			} `json:"student"`
		} `json:"data"`
	}
	a.decode(a.do(http.MethodPost, "/api/attendances", map[string]string{
		"student_id": s1, "date": "2025-11-05", "status": "present",
	}, http.StatusCreated), &created)
	assert.Equal(t, "2025-11-05", created.Data.Date)
	assert.Equal(t, "Admin", created.Data.Recorder.Name)
	assert.Equal(t, "STU1", created.Data.Student.StudentID)

	a.do(http.MethodPost, "/api/attendances", map[string]string{
		"student_id": s2, "date": "2025-11-05", "status": "late",
	}, http.StatusCreated)

	var stats map[string]any
	a.decode(a.do(http.MethodGet, "/api/attendances/today-summary", nil, http.StatusOK), &stats)
	assert.Equal(t, map[string]any{
		"date": "2025-11-05", "total": 2.0, "present": 1.0, "absent": 0.0, "late": 1.0, "present_percentage": 50.0,
	}, stats)

	a.do(http.MethodGet, "/api/attendances/stats-by-date", nil, http.StatusUnprocessableEntity)
	a.decode(a.do(http.MethodGet, "/api/attendances/stats-by-date?date=2025-11-01", nil, http.StatusOK), &stats)
	assert.Equal(t, 0.0, stats["total"])

	var single struct {
		Data map[string]any `json:"data"`
	}
	a.decode(a.do(http.MethodGet, "/api/attendances/"+created.Data.ID, nil, http.StatusOK), &single)
	assert.Equal(t, "present", single.Data["status"])
	a.do(http.MethodGet, "/api/attendances/missing", nil, http.StatusNotFound)

	var studentStats map[string]any
	a.decode(a.do(http.MethodGet, "/api/students/"+s1+"/stats", nil, http.StatusOK), &studentStats)
	assert.Equal(t, 1.0, studentStats["total"])
	assert.Equal(t, 100.0, studentStats["present_percentage"])
}

func TestBulkAttendance(t *testing.T) {
	a := newAPI(t)
	s1 := a.student("STU1", "5")
	s2 := a.student("STU2", "5")
	s3 := a.student("STU3", "5")

	var e errorBody
	a.decode(a.do(http.MethodPost, "/api/attendances/bulk", map[string]any{
		"date": "2025-11-04", "attendances": []any{},
	}, http.StatusUnprocessableEntity), &e)
	assert.Equal(t, []string{"At least one attendance record is required"}, e.Errors["attendances"])

	e = errorBody{}
	a.decode(a.do(http.MethodPost, "/api/attendances/bulk", map[string]any{
		"date": "2025-11-04",
		"attendances": []map[string]string{
			{"student_id": s1, "status": "present"},
			{"student_id": "ghost", "status": "present"},
			{"student_id": s2, "status": "nope"},
		},
	}, http.StatusUnprocessableEntity), &e)
	assert.Equal(t, []string{"Status must be present, absent, or late"}, e.Errors["attendances.2.status"])

	e = errorBody{}
	a.decode(a.do(http.MethodPost, "/api/attendances/bulk", map[string]any{
		"date":        "2025-11-04",
		"attendances": []map[string]string{{"student_id": "ghost", "status": "present"}},
	}, http.StatusUnprocessableEntity), &e)
	assert.Equal(t, []string{"One or more student IDs are invalid"}, e.Errors["attendances.0.student_id"])

	var res struct {
		Message string           `json:"message"`
		Count   int              `json:"count"`
		Data    []map[string]any `json:"data"`
	}
	a.decode(a.do(http.MethodPost, "/api/attendances/bulk", map[string]any{
		"date": "2025-11-04",
		"attendances": []map[string]string{
			{"student_id": s1, "status": "present"},
			{"student_id": s2, "status": "absent", "note": "sick"},
			{"student_id": s3, "status": "late"},
		},
	}, http.StatusCreated), &res)
	assert.Equal(t, "Bulk attendance recorded successfully", res.Message)
	assert.Equal(t, 3, res.Count)
	assert.Len(t, res.Data, 3)

	var list struct {
		Data []map[string]any `json:"data"`
		Meta map[string]int   `json:"meta"`
	}
	a.decode(a.do(http.MethodGet, "/api/attendances?date=2025-11-04&status=absent", nil, http.StatusOK), &list)
	assert.Equal(t, 1, list.Meta["total"])
	a.do(http.MethodGet, "/api/attendances?status=nope", nil, http.StatusUnprocessableEntity)
}

func TestMonthlyReportRoute(t *testing.T) {
	a := newAPI(t)
	s1 := a.student("STU1", "5")
	for date, status := range map[string]string{"2025-11-03": "absent", "2025-11-04": "late"} {
		a.do(http.MethodPost, "/api/attendances", map[string]string{
			"student_id": s1, "date": date, "status": status,
		}, http.StatusCreated)
	}

	a.do(http.MethodGet, "/api/attendances/monthly-report?year=2025&month=13", nil, http.StatusUnprocessableEntity)
	var e errorBody
	a.decode(a.do(http.MethodGet, "/api/attendances/monthly-report?month=11", nil, http.StatusUnprocessableEntity), &e)
	assert.Contains(t, e.Errors, "year")

	var report struct {
		Year     int     `json:"year"`
		Month    int     `json:"month"`
		Class    *string `json:"class"`
		Students []struct {
			TotalDays         int     `json:"total_days"`
			Present           int     `json:"present"`
			Absent            int     `json:"absent"`
			Late              int     `json:"late"`
			PresentPercentage float64 `json:"present_percentage"`
		} `json:"students"`
	}
	a.decode(a.do(http.MethodGet, "/api/attendances/monthly-report?year=0&month=11", nil, http.StatusOK), &report)
	assert.Equal(t, 0, report.Year)
	assert.Empty(t, report.Students)

	a.decode(a.do(http.MethodGet, "/api/attendances/monthly-report?year=2025&month=11", nil, http.StatusOK), &report)
	assert.Nil(t, report.Class)
	require.Len(t, report.Students, 1)
	assert.Equal(t, 2, report.Students[0].TotalDays)
	assert.Equal(t, 1, report.Students[0].Absent)
	assert.Equal(t, 1, report.Students[0].Late)
	assert.Equal(t, 0.0, report.Students[0].PresentPercentage)
}

func TestUpdateAttendanceConflict(t *testing.T) {
	a := newAPI(t)
	s1 := a.student("STU1", "5")
	var first struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	a.decode(a.do(http.MethodPost, "/api/attendances", map[string]string{
		"student_id": s1, "date": "2025-11-03", "status": "present",
	}, http.StatusCreated), &first)
	a.do(http.MethodPost, "/api/attendances", map[string]string{
		"student_id": s1, "date": "2025-11-04", "status": "present",
	}, http.StatusCreated)

	a.do(http.MethodPut, "/api/attendances/"+first.Data.ID, map[string]string{
		"student_id": s1, "date": "2025-11-04", "status": "late",
	}, http.StatusConflict)
	a.do(http.MethodPut, "/api/attendances/"+first.Data.ID, map[string]string{
		"student_id": s1, "date": "2025-11-03", "status": "late",
	}, http.StatusOK)
	a.do(http.MethodDelete, "/api/attendances/"+first.Data.ID, nil, http.StatusOK)
	a.do(http.MethodDelete, "/api/attendances/"+first.Data.ID, nil, http.StatusNotFound)
}

func TestAuthRoutes(t *testing.T) {
	a := newAPI(t)
	token := a.token
	a.token = ""

	a.do(http.MethodPost, "/api/login", map[string]string{"email": "admin@school.com", "password": "bad"}, http.StatusUnauthorized)
	var session struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	a.decode(a.do(http.MethodPost, "/api/login", map[string]string{
		"email": "admin@school.com", "password": "password123",
	}, http.StatusOK), &session)
	assert.NotEmpty(t, session.RefreshToken)

	a.token = token
	var me map[string]any
	a.decode(a.do(http.MethodGet, "/api/me", nil, http.StatusOK), &me)
	assert.Equal(t, "admin@school.com", me["email"])
	assert.NotContains(t, me, "password_hash")

	a.do(http.MethodPost, "/api/logout", map[string]string{"refresh_token": session.RefreshToken}, http.StatusOK)
	a.do(http.MethodPost, "/api/refresh", map[string]string{"refresh_token": session.RefreshToken}, http.StatusUnauthorized)
	a.do(http.MethodPost, "/api/register", map[string]string{
		"name": "Dup", "email": "admin@school.com", "password": "password123",
	}, http.StatusUnprocessableEntity)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(Deps{Checks: map[string]Check{
		"db":    func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("down") },
	}}).Routes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["db"])
	assert.Equal(t, false, body["redis"])
}
