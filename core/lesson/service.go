// Package lesson manages the lessons, their files and the per-user lesson progress.
package lesson

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

var (
	ErrNotFound     = core.NewNotFoundError("lesson")
	ErrFileNotFound = core.NewNotFoundError("file")
	// ErrNoProgress is returned by Repository.GetProgress when the user never touched the lesson.
	ErrNoProgress = core.NewNotFoundError("lesson progress")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
		// GetLesson & QueryLessons return the lessons with their files.
		GetLesson(ctx context.Context, id string) (Lesson, error)
		QueryLessons(ctx context.Context, filter QueryFilter) ([]Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson) (Lesson, error)
		// DeleteLesson deletes the lesson, its files and the related progress.
		DeleteLesson(ctx context.Context, id string) error

		// CreateFiles creates all the files or none.
		CreateFiles(ctx context.Context, files []File) error
		DeleteFile(ctx context.Context, id string) error
		// FindFilesByName returns the files of category whose name is one of names (case-insensitive).
		FindFilesByName(ctx context.Context, category string, names []string) ([]File, error)

		GetProgress(ctx context.Context, userID, lessonID string) (Progress, error)
		SaveProgress(ctx context.Context, p Progress) (Progress, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, li LessonInput) (Lesson, error)
		GetByID(ctx context.Context, id string) (Lesson, error)
		Query(ctx context.Context, filter QueryFilter) ([]Lesson, error)
		Update(ctx context.Context, id string, li LessonInput) (Lesson, error)
		Delete(ctx context.Context, id string) error

		Status(ctx context.Context, userID, lessonID string) (Progress, error)
		UpdateStatus(ctx context.Context, userID, lessonID, status string) (Progress, error)
		TimeSpent(ctx context.Context, userID, lessonID string) (time.Duration, error)

		BulkUpload(ctx context.Context, bu BulkUpload) ([]string, error)
		DeleteFile(ctx context.Context, id string) error
		CheckForDuplicates(ctx context.Context, dc DuplicateCheck) ([]string, error)
		ValidateFileSize(size int64, fileType string) bool
	}

	Service struct {
		conf core.StorageConfig
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(conf core.StorageConfig, repo Repository) *Service {
	return &Service{conf: conf, repo: repo}
}

func (svc *Service) apply(l *Lesson, li LessonInput) {
	l.Title = li.Title
	l.Description = li.Description
	l.TeacherName = li.TeacherName
	l.VideoLink = null.NewString(li.VideoLink, li.VideoLink != "")
	l.Branch = li.Branch
	l.Semester = li.Semester
	l.Subject = li.Subject
	l.StartTime = li.StartTime.UTC()
	l.EndTime = li.EndTime.UTC()
	l.Rating = li.Rating
	l.RatingsCount = li.RatingsCount
}

// Create creates a lesson; li must have been validated.
func (svc *Service) Create(ctx context.Context, li LessonInput) (Lesson, error) {
	now := NowFunc().UTC()
	l := Lesson{ID: uuid.New().String(), Files: []File{}, CreatedAt: now, UpdatedAt: now}
	svc.apply(&l, li)
	l, err := svc.repo.CreateLesson(ctx, l)
	return l, errors.Wrap(err, "creating lesson")
}

func (svc *Service) GetByID(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, id string, li LessonInput) (Lesson, error) {
	l, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	svc.apply(&l, li)
	l.UpdatedAt = NowFunc().UTC()
	l, err = svc.repo.UpdateLesson(ctx, l)
	return l, errors.Wrap(err, "updating lesson")
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetLesson(ctx, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteLesson(ctx, id), "deleting lesson")
}

// Status returns the progress of userID on the lesson; notStarted if never touched.
func (svc *Service) Status(ctx context.Context, userID, lessonID string) (Progress, error) {
	if _, err := svc.repo.GetLesson(ctx, lessonID); err != nil {
		return Progress{}, err
	}
	p, err := svc.repo.GetProgress(ctx, userID, lessonID)
	if err != nil {
		if errors.Cause(err) != ErrNoProgress {
			return Progress{}, errors.Wrap(err, "getting progress")
		}
		p = Progress{UserID: userID, LessonID: lessonID, Status: StatusNotStarted}
	}
	return p, nil
}

// UpdateStatus moves the lesson progress of userID to status.
// Time is accounted between a start and the next pause or completion; notStarted resets it.
func (svc *Service) UpdateStatus(ctx context.Context, userID, lessonID, status string) (Progress, error) {
	p, err := svc.Status(ctx, userID, lessonID)
	if err != nil {
		return Progress{}, err
	}
	now := NowFunc().UTC()

	switch {
	case status == StatusNotStarted:
		p.TimeSpent = 0
		p.StartedAt = null.Time{}
	case status == StatusStarted && p.Status != StatusStarted:
		p.StartedAt = null.TimeFrom(now)
	case status != StatusStarted && p.Status == StatusStarted:
		p.TimeSpent = int64(p.Spent(now) / time.Second)
		p.StartedAt = null.Time{}
	}
	p.Status = status
	p.UpdatedAt = now

	p, err = svc.repo.SaveProgress(ctx, p)
	return p, errors.Wrap(err, "saving progress")
}

func (svc *Service) TimeSpent(ctx context.Context, userID, lessonID string) (time.Duration, error) {
	p, err := svc.Status(ctx, userID, lessonID)
	if err != nil {
		return 0, err
	}
	return p.Spent(NowFunc().UTC()), nil
}

// BulkUpload records the metadata of uploaded files and returns their IDs; bu must have been validated.
func (svc *Service) BulkUpload(ctx context.Context, bu BulkUpload) ([]string, error) {
	fields := make([]core.FieldError, 0)
	for _, nf := range bu.Files {
		if !svc.ValidateFileSize(nf.Size, nf.FileType) {
			fields = append(fields, core.FieldError{Field: nf.Name, Error: core.ErrFileTooLarge.Error()})
		}
		if nf.LessonID != "" {
			if _, err := svc.repo.GetLesson(ctx, nf.LessonID); err != nil {
				if errors.Cause(err) != ErrNotFound {
					return nil, err
				}
				fields = append(fields, core.FieldError{Field: nf.Name, Error: err.Error()})
			}
		}
	}
	if len(fields) > 0 {
		return nil, core.NewValidationError(errors.New("invalid files"), fields...)
	}

	now := NowFunc().UTC()
	files := make([]File, 0, len(bu.Files))
	ids := make([]string, 0, len(bu.Files))
	for _, nf := range bu.Files {
		f := File{
			ID:          uuid.New().String(),
			LessonID:    null.NewString(nf.LessonID, nf.LessonID != ""),
			Name:        nf.Name,
			Category:    nf.Category,
			IsEncrypted: nf.IsEncrypted || nf.FileType == FilePDFEncrypted,
			FileLink:    null.NewString(nf.FileLink, nf.FileLink != ""),
			FileType:    nf.FileType,
			Size:        nf.Size,
			CreatedAt:   now,
		}
		files = append(files, f)
		ids = append(ids, f.ID)
	}
	if err := svc.repo.CreateFiles(ctx, files); err != nil {
		return nil, errors.Wrap(err, "creating files")
	}
	return ids, nil
}

func (svc *Service) DeleteFile(ctx context.Context, id string) error {
	return svc.repo.DeleteFile(ctx, id)
}

// CheckForDuplicates returns the names already used by files of the same category.
func (svc *Service) CheckForDuplicates(ctx context.Context, dc DuplicateCheck) ([]string, error) {
	names := make([]string, 0, len(dc.Names))
	for _, n := range dc.Names {
		if n = core.CleanString(n); n != "" {
			names = append(names, n)
		}
	}
	dups := make([]string, 0)
	if len(names) == 0 {
		return dups, nil
	}

	files, err := svc.repo.FindFilesByName(ctx, core.CleanString(dc.Category), names)
	if err != nil {
		return nil, errors.Wrap(err, "finding files")
	}
	existing := make(map[string]bool, len(files))
	for _, f := range files {
		existing[strings.ToLower(f.Name)] = true
	}
	for _, n := range names {
		if existing[strings.ToLower(n)] {
			dups = append(dups, n)
		}
	}
	return dups, nil
}

func (svc *Service) ValidateFileSize(size int64, fileType string) bool {
	return core.CheckSize(size, IsVideoFileType(fileType), svc.conf) == nil
}
