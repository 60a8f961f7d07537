package lesson_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
	"github.com/caffeinepub/diploma-smart-study-hub/storage/database/inmem"
)

func newService() *lesson.Service {
	conf := core.StorageConfig{MaxFileSize: 1 << 20, MaxVideoSize: 2 << 20}
	return lesson.NewService(conf, inmemdb.NewLessonRepository(inmemdb.Open()))
}

func createLesson(t *testing.T, svc *lesson.Service, title string) lesson.Lesson {
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	l, err := svc.Create(context.Background(), lesson.LessonInput{
		Title:       title,
		TeacherName: "R. Rao",
		Branch:      "Computer",
		Semester:    "3",
		Subject:     "DBMS",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
	})
	require.NoError(t, err)
	return l
}

func TestService_UpdateStatus(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	l := createLesson(t, svc, "Normalization")

	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	lesson.NowFunc = func() time.Time { return now }
	defer func() { lesson.NowFunc = time.Now }()

	p, err := svc.Status(ctx, "u1", l.ID)
	require.NoError(t, err)
	assert.Equal(t, lesson.StatusNotStarted, p.Status)

	_, err = svc.Status(ctx, "u1", "missing")
	assert.Equal(t, lesson.ErrNotFound, errors.Cause(err))

	steps := []struct {
		after     time.Duration
		status    string
		wantSpent time.Duration
	}{
		{0, lesson.StatusStarted, 0},
		{10 * time.Minute, lesson.StatusPaused, 10 * time.Minute},
		{time.Hour, lesson.StatusStarted, 10 * time.Minute}, // paused time is not accounted
		{5 * time.Minute, lesson.StatusStarted, 15 * time.Minute}, // started again: the running session goes on
		{5 * time.Minute, lesson.StatusCompleted, 20 * time.Minute},
		{time.Hour, lesson.StatusNotStarted, 0},
	}
	for _, s := range steps {
		now = now.Add(s.after)
		p, err = svc.UpdateStatus(ctx, "u1", l.ID, s.status)
		require.NoError(t, err)
		assert.Equal(t, s.status, p.Status)

		spent, err := svc.TimeSpent(ctx, "u1", l.ID)
		require.NoError(t, err)
		assert.Equal(t, s.wantSpent, spent, "after moving to %s", s.status)
	}

	// progress is per user
	p, err = svc.Status(ctx, "u2", l.ID)
	require.NoError(t, err)
	assert.Equal(t, lesson.StatusNotStarted, p.Status)
}

func TestService_TimeSpentWhileStarted(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	l := createLesson(t, svc, "Joins")

	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	lesson.NowFunc = func() time.Time { return now }
	defer func() { lesson.NowFunc = time.Now }()

	_, err := svc.UpdateStatus(ctx, "u1", l.ID, lesson.StatusStarted)
	require.NoError(t, err)
	now = now.Add(90 * time.Second)

	spent, err := svc.TimeSpent(ctx, "u1", l.ID)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, spent)
}

func TestService_BulkUpload(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	l := createLesson(t, svc, "Indexes")

	tests := []struct {
		name       string
		files      []lesson.NewFile
		wantFields []string
	}{
		{
			name: "too large document",
			files: []lesson.NewFile{
				{LessonID: l.ID, Name: "ok.pdf", FileType: lesson.FilePDF, Size: 1 << 20},
				{LessonID: l.ID, Name: "big.pdf", FileType: lesson.FilePDF, Size: 1<<20 + 1},
			},
			wantFields: []string{"big.pdf"},
		},
		{
			name:       "too large video",
			files:      []lesson.NewFile{{Name: "lecture.mp4", FileType: lesson.FileLongVideo, Size: 2<<20 + 1}},
			wantFields: []string{"lecture.mp4"},
		},
		{
			name:       "unknown lesson",
			files:      []lesson.NewFile{{LessonID: "missing", Name: "notes.pdf", FileType: lesson.FileNotes, Size: 10}},
			wantFields: []string{"notes.pdf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.BulkUpload(ctx, lesson.BulkUpload{Files: tt.files})
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "got %v", err)
			var fields []string
			for _, f := range vErr.Fields {
				fields = append(fields, f.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}

	l, err := svc.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, l.Files, "a rejected batch records nothing")

	ids, err := svc.BulkUpload(ctx, lesson.BulkUpload{Files: []lesson.NewFile{
		{LessonID: l.ID, Name: "Unit 1.pdf", Category: "Computer/3", FileType: lesson.FilePDFEncrypted, Size: 100},
		{LessonID: l.ID, Name: "lecture.mp4", Category: "Computer/3", FileType: lesson.FileMP4, Size: 2 << 20, FileLink: "https://cdn.test/lecture.mp4"},
		{Name: "loose.jpeg", Category: "Computer/3", FileType: lesson.FileJPEG, Size: 10},
	}})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	l, err = svc.GetByID(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, l.Files, 2)
	byName := map[string]lesson.File{}
	for _, f := range l.Files {
		byName[f.Name] = f
	}
	assert.True(t, byName["Unit 1.pdf"].IsEncrypted, "encrypted PDFs are flagged")
	assert.False(t, byName["lecture.mp4"].IsEncrypted)
	assert.Equal(t, "https://cdn.test/lecture.mp4", byName["lecture.mp4"].FileLink.String)

	dups, err := svc.CheckForDuplicates(ctx, lesson.DuplicateCheck{
		Category: " Computer/3 ",
		Names:    []string{"unit 1.PDF", "new.pdf", " ", "LOOSE.jpeg"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"unit 1.PDF", "LOOSE.jpeg"}, dups)

	dups, err = svc.CheckForDuplicates(ctx, lesson.DuplicateCheck{Category: "Civil/1", Names: []string{"Unit 1.pdf"}})
	require.NoError(t, err)
	assert.Empty(t, dups)

	require.NoError(t, svc.DeleteFile(ctx, ids[0]))
	assert.Equal(t, lesson.ErrFileNotFound, errors.Cause(svc.DeleteFile(ctx, ids[0])))
}

func TestService_ValidateFileSize(t *testing.T) {
	svc := newService()
	tests := []struct {
		size     int64
		fileType string
		want     bool
	}{
		{0, lesson.FilePDF, true},
		{1 << 20, lesson.FileNotes, true},
		{1<<20 + 1, lesson.FileNotes, false},
		{1<<20 + 1, lesson.FileShortVideo, true},
		{2 << 20, lesson.FileMP4, true},
		{2<<20 + 1, lesson.FileMP4, false},
		{-1, lesson.FilePDF, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, svc.ValidateFileSize(tt.size, tt.fileType), "ValidateFileSize(%d, %s)", tt.size, tt.fileType)
	}
}

func TestService_CRUD(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	a := createLesson(t, svc, "Transactions")
	b := createLesson(t, svc, "Locks")

	li := lesson.LessonInput{
		Title:       "Transactions & ACID",
		TeacherName: "R. Rao",
		Branch:      "Computer",
		Semester:    "4",
		Subject:     "DBMS",
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		VideoLink:   "https://video.test/acid",
	}
	a, err := svc.Update(ctx, a.ID, li)
	require.NoError(t, err)
	assert.Equal(t, "Transactions & ACID", a.Title)
	assert.Equal(t, "https://video.test/acid", a.VideoLink.String)

	lessons, err := svc.Query(ctx, lesson.QueryFilter{Semester: "3"})
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, b.ID, lessons[0].ID)

	_, err = svc.UpdateStatus(ctx, "u1", b.ID, lesson.StatusStarted)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, b.ID))
	_, err = svc.Status(ctx, "u1", b.ID)
	assert.Equal(t, lesson.ErrNotFound, errors.Cause(err))
	assert.Equal(t, lesson.ErrNotFound, errors.Cause(svc.Delete(ctx, b.ID)))

	_, err = svc.Update(ctx, "missing", li)
	assert.Equal(t, lesson.ErrNotFound, errors.Cause(err))
}
