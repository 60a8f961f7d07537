package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
)

const (
	lessonColumns = "id, title, description, teacher_name, video_link, branch, semester, subject, start_time, end_time, " +
		"rating, ratings_count, created_at, updated_at"
	fileColumns     = "id, lesson_id, name, category, is_encrypted, file_link, file_type, size, created_at"
	progressColumns = "user_id, lesson_id, status, started_at, time_spent, updated_at"
)

type lessonRepository struct {
	repository
}

var _ lesson.Repository = (*lessonRepository)(nil) // interface compliance check

func NewLessonRepository(db *sqlx.DB) lesson.Repository {
	return &lessonRepository{repository{db: db}}
}

func (repo *lessonRepository) attachFiles(ctx context.Context, lessons []lesson.Lesson) error {
	if len(lessons) == 0 {
		return nil
	}
	ids := make([]string, 0, len(lessons))
	byID := make(map[string]*lesson.Lesson, len(lessons))
	for i := range lessons {
		l := &lessons[i]
		l.Files = make([]lesson.File, 0)
		ids = append(ids, l.ID)
		byID[l.ID] = l
	}

	q, args, err := repo.in("SELECT "+fileColumns+" FROM lesson_files WHERE lesson_id IN (?) ORDER BY created_at, id", ids)
	if err != nil {
		return errors.Wrap(err, "building files query")
	}
	files := make([]lesson.File, 0)
	if err = repo.db.SelectContext(ctx, &files, q, args...); err != nil {
		return errors.Wrap(err, "querying lesson files")
	}
	for _, f := range files {
		l := byID[f.LessonID.String]
		l.Files = append(l.Files, f)
	}
	return nil
}

func (repo *lessonRepository) CreateLesson(ctx context.Context, l lesson.Lesson) (lesson.Lesson, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO lessons (`+lessonColumns+`)
		VALUES (:id, :title, :description, :teacher_name, :video_link, :branch, :semester, :subject, :start_time,
			:end_time, :rating, :ratings_count, :created_at, :updated_at)`, l)
	if err != nil {
		return lesson.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	l.Files = make([]lesson.File, 0)
	return l, nil
}

func (repo *lessonRepository) GetLesson(ctx context.Context, id string) (lesson.Lesson, error) {
	var l lesson.Lesson
	if err := repo.get(ctx, &l, "SELECT "+lessonColumns+" FROM lessons WHERE id = ?", id); err != nil {
		return lesson.Lesson{}, trapNoRowsErr(err, lesson.ErrNotFound, "getting lesson")
	}
	lessons := []lesson.Lesson{l}
	if err := repo.attachFiles(ctx, lessons); err != nil {
		return lesson.Lesson{}, err
	}
	return lessons[0], nil
}

func (repo *lessonRepository) QueryLessons(ctx context.Context, filter lesson.QueryFilter) ([]lesson.Lesson, error) {
	conds := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	for _, f := range []struct{ column, value string }{
		{"branch", filter.Branch},
		{"semester", filter.Semester},
		{"subject", filter.Subject},
	} {
		if f.value != "" {
			conds = append(conds, f.column+" = ?")
			args = append(args, f.value)
		}
	}

	lessons := make([]lesson.Lesson, 0)
	q := "SELECT " + lessonColumns + " FROM lessons" + where(conds) + " ORDER BY start_time, id"
	if err := repo.selectAll(ctx, &lessons, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	if err := repo.attachFiles(ctx, lessons); err != nil {
		return nil, err
	}
	return lessons, nil
}

func (repo *lessonRepository) UpdateLesson(ctx context.Context, l lesson.Lesson) (lesson.Lesson, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE lessons SET
			title = :title, description = :description, teacher_name = :teacher_name, video_link = :video_link,
			branch = :branch, semester = :semester, subject = :subject, start_time = :start_time,
			end_time = :end_time, rating = :rating, ratings_count = :ratings_count, updated_at = :updated_at
		WHERE id = :id`, l)
	if err != nil {
		return lesson.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return lesson.Lesson{}, lesson.ErrNotFound
	}
	return repo.GetLesson(ctx, l.ID)
}

func (repo *lessonRepository) DeleteLesson(ctx context.Context, id string) error {
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			"DELETE FROM lesson_progress WHERE lesson_id = ?",
			"DELETE FROM lesson_files WHERE lesson_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), id); err != nil {
				return errors.Wrap(err, "deleting lesson dependants")
			}
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM lessons WHERE id = ?"), id)
		if err != nil {
			return errors.Wrap(err, "deleting lesson")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return lesson.ErrNotFound
		}
		return nil
	})
}

func (repo *lessonRepository) CreateFiles(ctx context.Context, files []lesson.File) error {
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, f := range files {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO lesson_files (`+fileColumns+`)
				VALUES (:id, :lesson_id, :name, :category, :is_encrypted, :file_link, :file_type, :size, :created_at)`, f)
			if err != nil {
				return errors.Wrapf(err, "inserting file %s", f.Name)
			}
		}
		return nil
	})
}

func (repo *lessonRepository) DeleteFile(ctx context.Context, id string) error {
	n, err := repo.exec(ctx, "DELETE FROM lesson_files WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting file")
	}
	if n == 0 {
		return lesson.ErrFileNotFound
	}
	return nil
}

func (repo *lessonRepository) FindFilesByName(ctx context.Context, category string, names []string) ([]lesson.File, error) {
	files := make([]lesson.File, 0)
	if len(names) == 0 {
		return files, nil
	}
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		lowered = append(lowered, strings.ToLower(n))
	}

	q, args, err := repo.in(
		"SELECT "+fileColumns+" FROM lesson_files WHERE category = ? AND LOWER(name) IN (?)", category, lowered)
	if err != nil {
		return nil, errors.Wrap(err, "building files query")
	}
	err = repo.db.SelectContext(ctx, &files, q, args...)
	return files, errors.Wrap(err, "finding files by name")
}

func (repo *lessonRepository) GetProgress(ctx context.Context, userID, lessonID string) (lesson.Progress, error) {
	var p lesson.Progress
	err := repo.get(ctx, &p, "SELECT "+progressColumns+" FROM lesson_progress WHERE user_id = ? AND lesson_id = ?", userID, lessonID)
	if err != nil {
		return lesson.Progress{}, trapNoRowsErr(err, lesson.ErrNoProgress, "getting lesson progress")
	}
	return p, nil
}

func (repo *lessonRepository) SaveProgress(ctx context.Context, p lesson.Progress) (lesson.Progress, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE lesson_progress SET
			status = :status, started_at = :started_at, time_spent = :time_spent, updated_at = :updated_at
		WHERE user_id = :user_id AND lesson_id = :lesson_id`, p)
	if err != nil {
		return lesson.Progress{}, errors.Wrap(err, "updating lesson progress")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return p, nil
	}

	_, err = repo.db.NamedExecContext(ctx, `
		INSERT INTO lesson_progress (`+progressColumns+`)
		VALUES (:user_id, :lesson_id, :status, :started_at, :time_spent, :updated_at)`, p)
	if err != nil {
		return lesson.Progress{}, errors.Wrap(err, "inserting lesson progress")
	}
	return p, nil
}
