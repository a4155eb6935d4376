package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"schoolattendance/internal/model"
	"schoolattendance/internal/store"
)

var (
	ErrNotFound     = errors.New("attendance record not found")
	ErrDuplicateDay = errors.New("attendance for this student and date already exists")
)

// Filter narrows a ledger listing. Empty fields do not filter.
type Filter struct {
	Date      *model.Date
	StudentID string
	Status    model.Status
	Class     string
	model.PageRequest
}

// Repository persists the attendance ledger.
type Repository struct {
	db   sqlx.ExtContext
	conn *sqlx.DB
	now  func() time.Time
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, conn: db, now: func() time.Time { return time.Now().UTC() }}
}

// InTx runs fn with a repository bound to one transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	return store.InTx(ctx, r.conn, func(tx *sqlx.Tx) error {
		return fn(&Repository{db: tx, conn: r.conn, now: r.now})
	})
}

const selectJoined = `
	SELECT a.id, a.student_id, a.date, a.status, a.note, a.recorded_by, a.created_at, a.updated_at,
		s.student_id AS s_student_id, s.name AS s_name, s.class AS s_class, s.section AS s_section,
		s.photo AS s_photo, s.created_at AS s_created_at, s.updated_at AS s_updated_at,
		u.name AS recorder_name
	FROM attendances a
	JOIN students s ON s.id = a.student_id
	LEFT JOIN users u ON u.id = a.recorded_by`

type joinedRow struct {
	ID         string       `db:"id"`
	StudentID  string       `db:"student_id"`
	Date       model.Date   `db:"date"`
	Status     model.Status `db:"status"`
	Note       *string      `db:"note"`
	RecordedBy string       `db:"recorded_by"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`

	SchoolID         string    `db:"s_student_id"`
	StudentName      string    `db:"s_name"`
	StudentClass     string    `db:"s_class"`
	StudentSection   string    `db:"s_section"`
	StudentPhoto     *string   `db:"s_photo"`
	StudentCreatedAt time.Time `db:"s_created_at"`
	StudentUpdatedAt time.Time `db:"s_updated_at"`
	RecorderName     *string   `db:"recorder_name"`
}

func (j joinedRow) record() model.Attendance {
	a := model.Attendance{
		ID:         j.ID,
		StudentID:  j.StudentID,
		Date:       j.Date,
		Status:     j.Status,
		Note:       j.Note,
		RecordedBy: j.RecordedBy,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
		Student: &model.Student{
			ID:        j.StudentID,
			StudentID: j.SchoolID,
			Name:      j.StudentName,
			Class:     j.StudentClass,
			Section:   j.StudentSection,
			Photo:     j.StudentPhoto,
			CreatedAt: j.StudentCreatedAt,
			UpdatedAt: j.StudentUpdatedAt,
		},
	}
	if j.RecorderName != nil {
		a.Recorder = &model.Recorder{ID: j.RecordedBy, Name: *j.RecorderName}
	}
	return a
}

// Upsert writes the record for (student, date), overwriting status, note and recorder
// when one exists. It returns the stored row.
func (r *Repository) Upsert(ctx context.Context, a model.Attendance) (model.Attendance, error) {
	now := r.now()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendances (id, student_id, date, status, note, recorded_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, date) DO UPDATE SET
			status = excluded.status,
			note = excluded.note,
			recorded_by = excluded.recorded_by,
			updated_at = excluded.updated_at
	`), uuid.NewString(), a.StudentID, a.Date, a.Status, a.Note, a.RecordedBy, now, now)
	if err != nil {
		return model.Attendance{}, fmt.Errorf("upsert attendance: %w", err)
	}
	return r.getWhere(ctx, "a.student_id = ? AND a.date = ?", a.StudentID, a.Date)
}

// Get returns one record with its student and recorder.
func (r *Repository) Get(ctx context.Context, id string) (model.Attendance, error) {
	return r.getWhere(ctx, "a.id = ?", id)
}

func (r *Repository) getWhere(ctx context.Context, cond string, args ...any) (model.Attendance, error) {
	var row joinedRow
	err := sqlx.GetContext(ctx, r.db, &row, r.db.Rebind(selectJoined+" WHERE "+cond), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Attendance{}, ErrNotFound
	}
	if err != nil {
		return model.Attendance{}, fmt.Errorf("get attendance: %w", err)
	}
	return row.record(), nil
}

// Update rewrites student, date, status and note of an existing record.
func (r *Repository) Update(ctx context.Context, a model.Attendance) (model.Attendance, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE attendances SET student_id = ?, date = ?, status = ?, note = ?, updated_at = ?
		WHERE id = ?
	`), a.StudentID, a.Date, a.Status, a.Note, r.now(), a.ID)
	if store.IsUniqueViolation(err) {
		return model.Attendance{}, ErrDuplicateDay
	}
	if err != nil {
		return model.Attendance{}, fmt.Errorf("update attendance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Attendance{}, ErrNotFound
	}
	return r.Get(ctx, a.ID)
}

// Delete removes one record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM attendances WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of records, most recent date first, plus the total match count.
func (r *Repository) List(ctx context.Context, f Filter) ([]model.Attendance, int, error) {
	clauses := []string{}
	args := []any{}
	if f.Date != nil {
		clauses = append(clauses, "a.date = ?")
		args = append(args, *f.Date)
	}
	if f.StudentID != "" {
		clauses = append(clauses, "a.student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.Status != "" {
		clauses = append(clauses, "a.status = ?")
		args = append(args, f.Status)
	}
	if f.Class != "" {
		clauses = append(clauses, "s.class = ?")
		args = append(args, f.Class)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	count := `SELECT COUNT(*) FROM attendances a JOIN students s ON s.id = a.student_id` + where
	if err := sqlx.GetContext(ctx, r.db, &total, r.db.Rebind(count), args...); err != nil {
		return nil, 0, fmt.Errorf("count attendances: %w", err)
	}

	page := f.PageRequest.Normalize()
	query := selectJoined + where + ` ORDER BY a.date DESC, a.created_at DESC, a.id LIMIT ? OFFSET ?`
	rows, err := r.selectJoined(ctx, query, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list attendances: %w", err)
	}
	return rows, total, nil
}

// CountByStatus tallies the records of one date by status.
func (r *Repository) CountByStatus(ctx context.Context, date model.Date) (map[model.Status]int, error) {
	return r.countByStatus(ctx, `WHERE date = ?`, date)
}

// StudentCounts tallies all records of one student by status.
func (r *Repository) StudentCounts(ctx context.Context, studentID string) (map[model.Status]int, error) {
	return r.countByStatus(ctx, `WHERE student_id = ?`, studentID)
}

// StudentDates lists the distinct dates a student has records on.
func (r *Repository) StudentDates(ctx context.Context, studentID string) ([]model.Date, error) {
	var dates []model.Date
	err := sqlx.SelectContext(ctx, r.db, &dates,
		r.db.Rebind(`SELECT DISTINCT date FROM attendances WHERE student_id = ? ORDER BY date`), studentID)
	if err != nil {
		return nil, fmt.Errorf("student dates: %w", err)
	}
	return dates, nil
}

func (r *Repository) countByStatus(ctx context.Context, where string, args ...any) (map[model.Status]int, error) {
	var rows []struct {
		Status model.Status `db:"status"`
		N      int          `db:"n"`
	}
	query := `SELECT status, COUNT(*) AS n FROM attendances ` + where + ` GROUP BY status`
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	counts := make(map[model.Status]int, len(model.Statuses))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

// ListMonth returns every record of the month, optionally restricted to one class,
// in date then insertion order.
func (r *Repository) ListMonth(ctx context.Context, year, month int, class string) ([]model.Attendance, error) {
	from, to := model.MonthRange(year, month)
	query := selectJoined + ` WHERE a.date >= ? AND a.date < ?`
	args := []any{from, to}
	if class != "" {
		query += ` AND s.class = ?`
		args = append(args, class)
	}
	query += ` ORDER BY a.date, a.created_at, a.id`
	rows, err := r.selectJoined(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list month: %w", err)
	}
	return rows, nil
}

func (r *Repository) selectJoined(ctx context.Context, query string, args ...any) ([]model.Attendance, error) {
	var rows []joinedRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]model.Attendance, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}
