package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
)

type lessonRepository struct {
	db *DB
}

func NewLessonRepository(db *DB) lesson.Repository {
	return &lessonRepository{db: db}
}

// withFiles must be called with the lock held.
func (repo *lessonRepository) withFiles(l lesson.Lesson) lesson.Lesson {
	l.Files = make([]lesson.File, 0)
	for _, f := range repo.db.files {
		if f.LessonID.Valid && f.LessonID.String == l.ID {
			l.Files = append(l.Files, *f)
		}
	}
	sort.Slice(l.Files, func(i, j int) bool {
		if c := compareTimes(l.Files[i].CreatedAt, l.Files[j].CreatedAt); c != 0 {
			return c < 0
		}
		return l.Files[i].ID < l.Files[j].ID
	})
	return l
}

func (repo *lessonRepository) CreateLesson(_ context.Context, l lesson.Lesson) (lesson.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	l.Files = nil
	repo.db.lessons[l.ID] = &l
	return repo.withFiles(l), nil
}

func (repo *lessonRepository) GetLesson(_ context.Context, id string) (lesson.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return repo.withFiles(*l), nil
	}
	return lesson.Lesson{}, lesson.ErrNotFound
}

func (repo *lessonRepository) QueryLessons(_ context.Context, filter lesson.QueryFilter) ([]lesson.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lessons := make([]lesson.Lesson, 0)
	for _, l := range repo.db.lessons {
		if (filter.Branch != "" && l.Branch != filter.Branch) ||
			(filter.Semester != "" && l.Semester != filter.Semester) ||
			(filter.Subject != "" && l.Subject != filter.Subject) {
			continue
		}
		lessons = append(lessons, repo.withFiles(*l))
	}
	sort.Slice(lessons, func(i, j int) bool {
		if c := compareTimes(lessons[i].StartTime, lessons[j].StartTime); c != 0 {
			return c < 0
		}
		return lessons[i].ID < lessons[j].ID
	})
	return lessons, nil
}

func (repo *lessonRepository) UpdateLesson(_ context.Context, l lesson.Lesson) (lesson.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.lessons[l.ID]; !ok {
		return lesson.Lesson{}, lesson.ErrNotFound
	}
	l.Files = nil
	repo.db.lessons[l.ID] = &l
	return repo.withFiles(l), nil
}

func (repo *lessonRepository) DeleteLesson(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.lessons[id]; !ok {
		return lesson.ErrNotFound
	}
	for fID, f := range repo.db.files {
		if f.LessonID.Valid && f.LessonID.String == id {
			delete(repo.db.files, fID)
		}
	}
	for key := range repo.db.progress {
		if key.lessonID == id {
			delete(repo.db.progress, key)
		}
	}
	delete(repo.db.lessons, id)
	return nil
}

func (repo *lessonRepository) CreateFiles(_ context.Context, files []lesson.File) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, f := range files {
		if f.LessonID.Valid {
			if _, ok := repo.db.lessons[f.LessonID.String]; !ok {
				return lesson.ErrNotFound
			}
		}
	}
	for i := range files {
		f := files[i]
		repo.db.files[f.ID] = &f
	}
	return nil
}

func (repo *lessonRepository) DeleteFile(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.files[id]; !ok {
		return lesson.ErrFileNotFound
	}
	delete(repo.db.files, id)
	return nil
}

func (repo *lessonRepository) FindFilesByName(_ context.Context, category string, names []string) ([]lesson.File, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(n)] = true
	}
	files := make([]lesson.File, 0)
	for _, f := range repo.db.files {
		if f.Category == category && wanted[strings.ToLower(f.Name)] {
			files = append(files, *f)
		}
	}
	return files, nil
}

func (repo *lessonRepository) GetProgress(_ context.Context, userID, lessonID string) (lesson.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.progress[progressKey{userID, lessonID}]; ok {
		return *p, nil
	}
	return lesson.Progress{}, lesson.ErrNoProgress
}

func (repo *lessonRepository) SaveProgress(_ context.Context, p lesson.Progress) (lesson.Progress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.progress[progressKey{p.UserID, p.LessonID}] = &p
	return p, nil
}
