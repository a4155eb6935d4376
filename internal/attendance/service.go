// Package attendance records daily attendance and computes the statistics built on it.
package attendance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"schoolattendance/internal/cache"
	"schoolattendance/internal/metrics"
	"schoolattendance/internal/model"
)

// DefaultStatsTTL bounds how long derived statistics are served from cache.
const DefaultStatsTTL = time.Hour

// Notifier is told about every stored record. Implementations must not block.
type Notifier interface {
	AttendanceRecorded(ctx context.Context, a model.Attendance)
}

// Input is the caller-supplied part of an attendance record.
type Input struct {
	StudentID string
	Date      model.Date
	Status    model.Status
	Note      *string
}

// BulkRow is one student's entry in a bulk submission.
type BulkRow struct {
	StudentID string
	Status    model.Status
	Note      *string
}

// Service records attendance and serves cached statistics.
type Service struct {
	repo     *Repository
	cache    cache.Cache
	ttl      time.Duration
	loc      *time.Location
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewService creates a service backed by a repository and a stats cache.
// loc decides which calendar day counts as today.
func NewService(repo *Repository, c cache.Cache, ttl time.Duration, loc *time.Location, notifier Notifier, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, cache: c, ttl: ttl, loc: loc, notifier: notifier, log: log, now: time.Now}
}

// WithClock replaces the clock used to decide today's date.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Today is the current calendar day in the service's location.
func (s *Service) Today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

func dateKey(d model.Date) string       { return "attendance_date_" + d.String() }
func todayKey(d model.Date) string      { return "attendance_today_" + d.String() }
func studentKey(studentID string) string { return "attendance_stats_" + studentID }

// RecordAttendance upserts the record for (student, date). Overwriting an existing
// record is not an error.
func (s *Service) RecordAttendance(ctx context.Context, in Input, recordedBy string) (model.Attendance, error) {
	a, err := s.repo.Upsert(ctx, model.Attendance{
		StudentID:  in.StudentID,
		Date:       in.Date,
		Status:     in.Status,
		Note:       in.Note,
		RecordedBy: recordedBy,
	})
	if err != nil {
		return model.Attendance{}, err
	}
	s.invalidate(ctx, []model.Date{a.Date}, []string{a.StudentID})
	s.recorded(ctx, a)
	return a, nil
}

// BulkRecord upserts one record per row, all on date, in a single transaction.
func (s *Service) BulkRecord(ctx context.Context, date model.Date, rows []BulkRow, recordedBy string) ([]model.Attendance, error) {
	if len(rows) == 0 {
		return []model.Attendance{}, nil
	}
	stored := make([]model.Attendance, 0, len(rows))
	err := s.repo.InTx(ctx, func(tx *Repository) error {
		for _, row := range rows {
			a, err := tx.Upsert(ctx, model.Attendance{
				StudentID:  row.StudentID,
				Date:       date,
				Status:     row.Status,
				Note:       row.Note,
				RecordedBy: recordedBy,
			})
			if err != nil {
				return err
			}
			stored = append(stored, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	students := make([]string, 0, len(stored))
	for _, a := range stored {
		students = append(students, a.StudentID)
	}
	s.invalidate(ctx, []model.Date{date}, students)
	for _, a := range stored {
		s.recorded(ctx, a)
	}
	return stored, nil
}

// GetAttendance returns one record.
func (s *Service) GetAttendance(ctx context.Context, id string) (model.Attendance, error) {
	return s.repo.Get(ctx, id)
}

// ListAttendance returns a filtered page of records.
func (s *Service) ListAttendance(ctx context.Context, f Filter) ([]model.Attendance, model.PageMeta, error) {
	rows, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, model.PageMeta{}, err
	}
	return rows, f.PageRequest.Meta(total), nil
}

// UpdateAttendance rewrites a record. Moving it onto an occupied (student, date)
// fails with ErrDuplicateDay.
func (s *Service) UpdateAttendance(ctx context.Context, id string, in Input) (model.Attendance, error) {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Attendance{}, err
	}
	after, err := s.repo.Update(ctx, model.Attendance{
		ID:        id,
		StudentID: in.StudentID,
		Date:      in.Date,
		Status:    in.Status,
		Note:      in.Note,
	})
	if err != nil {
		return model.Attendance{}, err
	}
	s.invalidate(ctx, []model.Date{before.Date, after.Date}, []string{before.StudentID, after.StudentID})
	s.recorded(ctx, after)
	return after, nil
}

// DeleteAttendance removes a record.
func (s *Service) DeleteAttendance(ctx context.Context, id string) error {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, []model.Date{a.Date}, []string{a.StudentID})
	return nil
}

// GetAttendanceStatsByDate returns the status breakdown of one date, cached for the TTL.
func (s *Service) GetAttendanceStatsByDate(ctx context.Context, date model.Date) (model.DailyStats, error) {
	key := dateKey(date)
	var stats model.DailyStats
	if s.cached(ctx, key, &stats) {
		return stats, nil
	}

	counts, err := s.repo.CountByStatus(ctx, date)
	if err != nil {
		return model.DailyStats{}, err
	}
	stats = model.DailyStats{
		Date:    date.String(),
		Present: counts[model.StatusPresent],
		Absent:  counts[model.StatusAbsent],
		Late:    counts[model.StatusLate],
	}
	stats.Total = stats.Present + stats.Absent + stats.Late
	stats.PresentPercentage = model.PresentPercentage(stats.Present, stats.Total)
	s.store(ctx, key, stats)
	return stats, nil
}

// GetTodaysSummary is GetAttendanceStatsByDate for the current day.
func (s *Service) GetTodaysSummary(ctx context.Context) (model.DailyStats, error) {
	return s.GetAttendanceStatsByDate(ctx, s.Today())
}

// GetMonthlyReport groups the month's records by student, in the order students
// first appear. It is computed on every call.
func (s *Service) GetMonthlyReport(ctx context.Context, year, month int, class string) (model.MonthlyReport, error) {
	rows, err := s.repo.ListMonth(ctx, year, month, class)
	if err != nil {
		return model.MonthlyReport{}, err
	}

	report := model.MonthlyReport{Year: year, Month: month, Students: []model.StudentSummary{}}
	if class != "" {
		report.Class = &class
	}
	index := map[string]int{}
	for _, a := range rows {
		i, ok := index[a.StudentID]
		if !ok {
			i = len(report.Students)
			index[a.StudentID] = i
			report.Students = append(report.Students, model.StudentSummary{Student: *a.Student})
		}
		sum := &report.Students[i]
		sum.TotalDays++
		switch a.Status {
		case model.StatusPresent:
			sum.Present++
		case model.StatusAbsent:
			sum.Absent++
		case model.StatusLate:
			sum.Late++
		}
	}
	for i := range report.Students {
		sum := &report.Students[i]
		sum.PresentPercentage = model.PresentPercentage(sum.Present, sum.TotalDays)
	}
	return report, nil
}

// GetStudentStats returns one student's lifetime breakdown, cached for the TTL.
func (s *Service) GetStudentStats(ctx context.Context, studentID string) (model.StudentStats, error) {
	key := studentKey(studentID)
	var stats model.StudentStats
	if s.cached(ctx, key, &stats) {
		return stats, nil
	}

	counts, err := s.repo.StudentCounts(ctx, studentID)
	if err != nil {
		return model.StudentStats{}, err
	}
	stats = model.StudentStats{
		StudentID: studentID,
		Present:   counts[model.StatusPresent],
		Absent:    counts[model.StatusAbsent],
		Late:      counts[model.StatusLate],
	}
	stats.Total = stats.Present + stats.Absent + stats.Late
	stats.PresentPercentage = model.PresentPercentage(stats.Present, stats.Total)
	s.store(ctx, key, stats)
	return stats, nil
}

// StudentDates lists the dates whose statistics include studentID. Callers removing
// a student read them before the rows go away.
func (s *Service) StudentDates(ctx context.Context, studentID string) ([]model.Date, error) {
	return s.repo.StudentDates(ctx, studentID)
}

// ForgetStudent drops cached statistics for a student, for today and for each of dates.
func (s *Service) ForgetStudent(ctx context.Context, studentID string, dates []model.Date) error {
	today := s.Today()
	keys := []string{studentKey(studentID), todayKey(today), dateKey(today)}
	for _, d := range dates {
		if !d.Equal(today) {
			keys = append(keys, dateKey(d))
		}
	}
	return s.cache.Delete(ctx, keys...)
}

// invalidate drops every cached payload a write can have changed.
func (s *Service) invalidate(ctx context.Context, dates []model.Date, students []string) {
	today := s.Today()
	keys := []string{todayKey(today), dateKey(today)}
	seen := map[string]bool{keys[0]: true, keys[1]: true}
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, d := range dates {
		add(dateKey(d))
	}
	for _, id := range students {
		add(studentKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn("stats cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *Service) cached(ctx context.Context, key string, dest any) bool {
	ok, err := s.cache.Get(ctx, key, dest)
	switch {
	case err != nil:
		s.log.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		metrics.StatsCache.WithLabelValues("error").Inc()
		return false
	case ok:
		metrics.StatsCache.WithLabelValues("hit").Inc()
	default:
		metrics.StatsCache.WithLabelValues("miss").Inc()
	}
	return ok
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.log.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) recorded(ctx context.Context, a model.Attendance) {
	metrics.RecordsWritten.WithLabelValues(string(a.Status)).Inc()
	s.log.Debug("attendance stored",
		zap.String("student_id", a.StudentID),
		zap.String("date", a.Date.String()),
		zap.String("status", string(a.Status)))
	if s.notifier != nil {
		s.notifier.AttendanceRecorded(ctx, a)
	}
}
