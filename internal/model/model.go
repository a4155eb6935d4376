package model

import (
	"math"
	"time"
)

// Status is the recorded attendance state for a day.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

// Statuses lists every accepted status in display order.
var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate}

// Valid returns true when the status is a supported value.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	default:
		return false
	}
}

// Student is a directory entry. StudentID is the school-issued identifier.
type Student struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Name      string    `db:"name" json:"name"`
	Class     string    `db:"class" json:"class"`
	Section   string    `db:"section" json:"section"`
	Photo     *string   `db:"photo" json:"photo"`
	PhotoURL  *string   `db:"-" json:"photo_url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// User is someone allowed to record attendance.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Recorder is the short form of the user who entered an attendance record.
type Recorder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Attendance is one ledger row: a student's status on one calendar day.
type Attendance struct {
	ID         string    `json:"id"`
	Student    *Student  `json:"student,omitempty"`
	StudentID  string    `json:"student_id"`
	Date       Date      `json:"date"`
	Status     Status    `json:"status"`
	Note       *string   `json:"note"`
	RecordedBy string    `json:"recorded_by"`
	Recorder   *Recorder `json:"recorder,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DailyStats is the per-date status breakdown.
type DailyStats struct {
	Date              string  `json:"date"`
	Total             int     `json:"total"`
	Present           int     `json:"present"`
	Absent            int     `json:"absent"`
	Late              int     `json:"late"`
	PresentPercentage float64 `json:"present_percentage"`
}

// StudentSummary is one row of a monthly report.
type StudentSummary struct {
	Student           Student `json:"student"`
	TotalDays         int     `json:"total_days"`
	Present           int     `json:"present"`
	Absent            int     `json:"absent"`
	Late              int     `json:"late"`
	PresentPercentage float64 `json:"present_percentage"`
}

// MonthlyReport groups a month of records by student, in first-seen order.
type MonthlyReport struct {
	Year     int              `json:"year"`
	Month    int              `json:"month"`
	Class    *string          `json:"class"`
	Students []StudentSummary `json:"students"`
}

// StudentStats is the lifetime breakdown for one student.
type StudentStats struct {
	StudentID         string  `json:"student_id"`
	Total             int     `json:"total"`
	Present           int     `json:"present"`
	Absent            int     `json:"absent"`
	Late              int     `json:"late"`
	PresentPercentage float64 `json:"present_percentage"`
}

// PresentPercentage is present/total*100 rounded to two decimals, 0 when total is 0.
func PresentPercentage(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*100*100) / 100
}
