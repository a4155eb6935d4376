// Package seed fills a database with an admin account, sample students and their recent attendance.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/auth"
	"schoolattendance/internal/directory"
	"schoolattendance/internal/model"
	"schoolattendance/internal/store"
)

const (
	AdminName     = "Admin User"
	AdminEmail    = "admin@school.com"
	AdminPassword = "password123"

	firstNumber = 1000
	lastNumber  = 9999
)

var (
	classes  = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	sections = []string{"A", "B", "C", "D"}

	// present three times out of five
	weightedStatuses = []model.Status{
		model.StatusPresent, model.StatusPresent, model.StatusPresent,
		model.StatusAbsent, model.StatusLate,
	}

	firstNames = []string{
		"Aarav", "Maya", "Liam", "Sofia", "Noah", "Priya", "Ethan", "Zara", "Lucas", "Amara",
		"Oliver", "Hana", "Mateo", "Leila", "Kai", "Chloe", "Ravi", "Elena", "Omar", "Isla",
	}
	lastNames = []string{
		"Sharma", "Nguyen", "Okafor", "Garcia", "Smith", "Kim", "Rossi", "Patel", "Haddad",
		"Johnson", "Silva", "Müller", "Tanaka", "Cohen", "Brown", "Ivanova",
	}
	notes = []string{"Arrived after first bell", "Parent called in", "Medical appointment"}
)

// Options controls how much data Run creates.
type Options struct {
	Students int
	Days     int
	Seed     uint64
	Today    model.Date
	Cost     int
}

// DefaultOptions mirrors the stock dataset: 50 students over the last 30 days.
func DefaultOptions() Options {
	return Options{Students: 50, Days: 30, Seed: uint64(time.Now().UnixNano()), Cost: bcrypt.DefaultCost}
}

// Result summarises what Run wrote.
type Result struct {
	AdminID     string
	Students    int
	Attendances int
}

// Run seeds db. The admin account is reused when it already exists.
func Run(ctx context.Context, db *store.DB, opts Options, log *zap.Logger) (Result, error) {
	if opts.Students < 0 || opts.Students > lastNumber-firstNumber+1 {
		return Result{}, fmt.Errorf("students must be between 0 and %d", lastNumber-firstNumber+1)
	}
	if opts.Days < 0 {
		return Result{}, errors.New("days must not be negative")
	}
	if opts.Today.IsZero() {
		opts.Today = model.DateOf(time.Now())
	}
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	admin, err := ensureAdmin(ctx, auth.NewRepository(db.Client), opts.Cost)
	if err != nil {
		return Result{}, err
	}
	log.Info("admin user ready", zap.String("email", admin.Email))

	students, err := createStudents(ctx, directory.NewRepository(db.Client), rng, opts.Students)
	if err != nil {
		return Result{}, err
	}
	log.Info("students created", zap.Int("count", len(students)))

	written := 0
	err = attendance.NewRepository(db.Client).InTx(ctx, func(tx *attendance.Repository) error {
		for _, st := range students {
			for i := 0; i < opts.Days; i++ {
				rec := model.Attendance{
					StudentID:  st.ID,
					Date:       opts.Today.AddDays(-i),
					Status:     weightedStatuses[rng.IntN(len(weightedStatuses))],
					RecordedBy: admin.ID,
				}
				if rec.Status != model.StatusPresent && rng.IntN(3) == 0 {
					note := notes[rng.IntN(len(notes))]
					rec.Note = &note
				}
				if _, err := tx.Upsert(ctx, rec); err != nil {
					return err
				}
				written++
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed attendance: %w", err)
	}
	log.Info("attendance created", zap.Int("count", written), zap.Int("days", opts.Days))

	return Result{AdminID: admin.ID, Students: len(students), Attendances: written}, nil
}

func ensureAdmin(ctx context.Context, repo *auth.Repository, cost int) (model.User, error) {
	u, err := repo.UserByEmail(ctx, AdminEmail)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, auth.ErrUserNotFound) {
		return model.User{}, err
	}
	hash, err := auth.HashPassword(AdminPassword, cost)
	if err != nil {
		return model.User{}, err
	}
	return repo.CreateUser(ctx, AdminName, AdminEmail, hash)
}

// createStudents draws distinct STU numbers; numbers already taken by earlier runs are skipped.
func createStudents(ctx context.Context, repo *directory.Repository, rng *rand.Rand, n int) ([]model.Student, error) {
	out := make([]model.Student, 0, n)
	for _, off := range rng.Perm(lastNumber - firstNumber + 1) {
		if len(out) == n {
			break
		}
		st := model.Student{
			StudentID: fmt.Sprintf("STU%d", firstNumber+off),
			Name:      firstNames[rng.IntN(len(firstNames))] + " " + lastNames[rng.IntN(len(lastNames))],
			Class:     classes[rng.IntN(len(classes))],
			Section:   sections[rng.IntN(len(sections))],
		}
		err := repo.Create(ctx, &st)
		if errors.Is(err, directory.ErrDuplicateStudentID) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if len(out) < n {
		return out, fmt.Errorf("only %d free student numbers left", len(out))
	}
	return out, nil
}
