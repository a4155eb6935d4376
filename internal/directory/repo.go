package directory

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
	ErrNotFound           = errors.New("student not found")
	ErrDuplicateStudentID = errors.New("this student ID already exists")
)

const studentColumns = `id, student_id, name, class, section, photo, created_at, updated_at`

// Filter narrows a student listing.
type Filter struct {
	Search  string
	Class   string
	Section string
	model.PageRequest
}

// Repository persists students.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a student, assigning its surrogate id and timestamps.
func (r *Repository) Create(ctx context.Context, st *model.Student) error {
	st.ID = uuid.NewString()
	st.CreatedAt = r.now()
	st.UpdatedAt = st.CreatedAt
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO students (id, student_id, name, class, section, photo, created_at, updated_at)
		VALUES (:id, :student_id, :name, :class, :section, :photo, :created_at, :updated_at)
	`, st)
	if store.IsUniqueViolation(err) {
		return ErrDuplicateStudentID
	}
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Get returns a student by surrogate id.
func (r *Repository) Get(ctx context.Context, id string) (*model.Student, error) {
	var st model.Student
	err := r.db.GetContext(ctx, &st, r.db.Rebind(`SELECT `+studentColumns+` FROM students WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &st, nil
}

// Update overwrites the mutable fields of a student.
func (r *Repository) Update(ctx context.Context, st *model.Student) error {
	st.UpdatedAt = r.now()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE students
		SET student_id = :student_id, name = :name, class = :class, section = :section,
			photo = :photo, updated_at = :updated_at
		WHERE id = :id
	`, st)
	if store.IsUniqueViolation(err) {
		return ErrDuplicateStudentID
	}
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a student; attendance rows go with it.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM students WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of students, newest first, plus the total match count.
func (r *Repository) List(ctx context.Context, f Filter) ([]model.Student, int, error) {
	clauses := []string{}
	args := []any{}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		clauses = append(clauses, "(LOWER(name) LIKE ? OR LOWER(student_id) LIKE ?)")
		args = append(args, like, like)
	}
	if f.Class != "" {
		clauses = append(clauses, "class = ?")
		args = append(args, f.Class)
	}
	if f.Section != "" {
		clauses = append(clauses, "section = ?")
		args = append(args, f.Section)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM students`+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	page := f.PageRequest.Normalize()
	query := `SELECT ` + studentColumns + ` FROM students` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	students := []model.Student{}
	if err := r.db.SelectContext(ctx, &students, r.db.Rebind(query), append(args, page.PerPage, page.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	return students, total, nil
}

// Missing returns the ids from ids that do not name a student.
func (r *Repository) Missing(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM students WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var found []string
	if err := r.db.SelectContext(ctx, &found, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("check students: %w", err)
	}
	seen := make(map[string]bool, len(found))
	for _, id := range found {
		seen[id] = true
	}
	var missing []string
	for _, id := range ids {
		if !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	return missing, nil
}
