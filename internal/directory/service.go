// Package directory manages student records and their photos.
package directory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"schoolattendance/internal/model"
	"schoolattendance/internal/photos"
)

// ErrPhotoTooLarge is returned for photos above the configured size limit.
var ErrPhotoTooLarge = errors.New("photo is too large")

// Invalidator drops cached statistics that mention a student. StudentDates is read
// before the student's attendance rows are deleted.
type Invalidator interface {
	StudentDates(ctx context.Context, studentID string) ([]model.Date, error)
	ForgetStudent(ctx context.Context, studentID string, dates []model.Date) error
}

// Photo is an uploaded image waiting to be stored.
type Photo struct {
	Filename string
	Data     []byte
}

// Input carries the editable fields of a student.
type Input struct {
	StudentID string
	Name      string
	Class     string
	Section   string
}

// Patch carries the fields an update changes; nil fields keep their value.
type Patch struct {
	StudentID *string
	Name      *string
	Class     *string
	Section   *string
}

func (p Patch) apply(st *model.Student) {
	for _, f := range []struct {
		src *string
		dst *string
	}{
		{p.StudentID, &st.StudentID},
		{p.Name, &st.Name},
		{p.Class, &st.Class},
		{p.Section, &st.Section},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
}

// Service coordinates the student repository, photo storage and stats invalidation.
type Service struct {
	repo         *Repository
	photos       photos.Storage
	maxPhotoSize int
	invalidator  Invalidator
	log          *zap.Logger
}

// NewService wires a directory service. invalidator may be nil.
func NewService(repo *Repository, store photos.Storage, maxPhotoSize int, invalidator Invalidator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, photos: store, maxPhotoSize: maxPhotoSize, invalidator: invalidator, log: log}
}

// Create stores a student and, when given, its photo.
func (s *Service) Create(ctx context.Context, in Input, photo *Photo) (*model.Student, error) {
	st := &model.Student{StudentID: in.StudentID, Name: in.Name, Class: in.Class, Section: in.Section}
	ref, err := s.savePhoto(ctx, photo)
	if err != nil {
		return nil, err
	}
	if ref != "" {
		st.Photo = &ref
	}
	if err := s.repo.Create(ctx, st); err != nil {
		s.dropPhoto(ctx, ref)
		return nil, err
	}
	s.log.Info("student created", zap.String("student_id", st.ID), zap.String("school_id", st.StudentID))
	return s.Decorate(st), nil
}

// Get returns one student.
func (s *Service) Get(ctx context.Context, id string) (*model.Student, error) {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Decorate(st), nil
}

// List returns a filtered page of students.
func (s *Service) List(ctx context.Context, f Filter) ([]model.Student, model.PageMeta, error) {
	students, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, model.PageMeta{}, err
	}
	for i := range students {
		s.Decorate(&students[i])
	}
	return students, f.PageRequest.Meta(total), nil
}

// Update changes the patched fields. A new photo replaces and removes the old one.
func (s *Service) Update(ctx context.Context, id string, p Patch, photo *Photo) (*model.Student, error) {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.apply(st)

	ref, err := s.savePhoto(ctx, photo)
	if err != nil {
		return nil, err
	}
	var previous string
	if ref != "" {
		if st.Photo != nil {
			previous = *st.Photo
		}
		st.Photo = &ref
	}
	if err := s.repo.Update(ctx, st); err != nil {
		s.dropPhoto(ctx, ref)
		return nil, err
	}
	s.dropPhoto(ctx, previous)
	return s.Decorate(st), nil
}

// Delete removes a student with its attendance rows and photo.
func (s *Service) Delete(ctx context.Context, id string) error {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	var dates []model.Date
	if s.invalidator != nil {
		if dates, err = s.invalidator.StudentDates(ctx, id); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if st.Photo != nil {
		s.dropPhoto(ctx, *st.Photo)
	}
	if s.invalidator != nil {
		if err := s.invalidator.ForgetStudent(ctx, id, dates); err != nil {
			s.log.Warn("stats invalidation failed", zap.String("student_id", id), zap.Error(err))
		}
	}
	s.log.Info("student deleted", zap.String("student_id", id))
	return nil
}

// Exists reports whether id names a student.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	missing, err := s.repo.Missing(ctx, []string{id})
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// Missing returns the ids that do not name a student.
func (s *Service) Missing(ctx context.Context, ids []string) ([]string, error) {
	return s.repo.Missing(ctx, ids)
}

func (s *Service) savePhoto(ctx context.Context, photo *Photo) (string, error) {
	if photo == nil || len(photo.Data) == 0 {
		return "", nil
	}
	if s.photos == nil {
		return "", errors.New("photo storage not configured")
	}
	if s.maxPhotoSize > 0 && len(photo.Data) > s.maxPhotoSize {
		return "", ErrPhotoTooLarge
	}
	ref, err := s.photos.Save(ctx, photo.Filename, photo.Data)
	if err != nil {
		if errors.Is(err, photos.ErrNotImage) {
			return "", err
		}
		return "", fmt.Errorf("store photo: %w", err)
	}
	return ref, nil
}

func (s *Service) dropPhoto(ctx context.Context, ref string) {
	if ref == "" || s.photos == nil {
		return
	}
	if err := s.photos.Delete(ctx, ref); err != nil {
		s.log.Warn("photo delete failed", zap.String("photo", ref), zap.Error(err))
	}
}

// Decorate fills PhotoURL from the stored photo reference.
func (s *Service) Decorate(st *model.Student) *model.Student {
	if st.Photo != nil && s.photos != nil {
		url := s.photos.URL(*st.Photo)
		st.PhotoURL = &url
	}
	return st
}
