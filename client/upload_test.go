package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
)

const bulkPath = "/v1/files/bulk"

func content(s string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func failingContent() (io.ReadCloser, error) {
	return nil, errors.New("disk unplugged")
}

type progressLog struct {
	mu    sync.Mutex
	items map[string][]Item
}

func (pl *progressLog) record(it Item) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.items == nil {
		pl.items = make(map[string][]Item)
	}
	pl.items[it.ID] = append(pl.items[it.ID], it)
}

func (pl *progressLog) progress(id string) []int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	var steps []int
	for _, it := range pl.items[id] {
		if it.Status == StatusUploading {
			steps = append(steps, it.Progress)
		}
	}
	return steps
}

func uploadSetup(t *testing.T) (*fakeAPI, *UploadQueue, *progressLog) {
	api := newFakeAPI(t)
	c := newTestClient(api, clock.WallClock)
	login(c, "admin")
	pl := &progressLog{}
	return api, c.NewUploadQueue(StepDelay(time.Microsecond), OnProgress(pl.record)), pl
}

var notesMeta = Metadata{LessonID: "l1", Category: "Computer/Sem 3", FileType: lesson.FileNotes}

func TestUploadQueue_AddToQueue(t *testing.T) {
	_, q, _ := uploadSetup(t)

	ids, err := q.AddToQueue(
		File{Name: "notes.pdf", Size: 1024},
		File{Name: "huge.pdf", Size: MaxFileSizeBytes + 1},
		File{Name: "lecture.mp4", Size: MaxFileSizeBytes + 1},
		File{Name: "lecture.mkv", ContentType: "video/x-matroska", Size: 10},
		File{Name: "long.mov", Size: MaxVideoSizeBytes + 1},
	)
	assert.Len(t, ids, 2)

	var rejected RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Len(t, rejected, 3)
	assert.Equal(t, "huge.pdf: File size exceeds maximum limit of 50 MB", rejected[0].Error())
	assert.Equal(t, "lecture.mkv: Video type not allowed. Allowed types: mp4, webm, mov", rejected[1].Error())
	assert.Equal(t, "long.mov: Video size exceeds maximum limit of 100 MB", rejected[2].Error())

	items := q.Items()
	require.Len(t, items, 2)
	for i, it := range items {
		assert.Equal(t, ids[i], it.ID)
		assert.Equal(t, StatusPending, it.Status)
		assert.Equal(t, 0, it.Progress)
	}
}

func TestUploadQueue_Upload(t *testing.T) {
	api, q, pl := uploadSetup(t)
	api.respond(http.MethodPost, bulkPath, http.StatusCreated, map[string][]string{"ids": {"f1", "f2"}})

	ids, err := q.AddToQueue(
		File{Name: "unit-1.pdf", Size: 999, Open: content("unit one")},
		File{Name: "unit-2.pdf", Size: 2048},
	)
	require.NoError(t, err)

	got, err := q.Upload(context.Background(), notesMeta)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, got)
	assert.False(t, q.Uploading())

	for _, it := range q.Items() {
		assert.Equal(t, StatusSuccess, it.Status)
		assert.Equal(t, 100, it.Progress)
	}
	for _, id := range ids {
		assert.Equal(t, []int{0, 0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, pl.progress(id))
	}

	var bu lesson.BulkUpload
	api.lastBody(t, http.MethodPost, bulkPath, &bu)
	assert.Equal(t, []lesson.NewFile{
		{LessonID: "l1", Name: "unit-1.pdf", Category: "Computer/Sem 3", FileType: lesson.FileNotes, Size: int64(len("unit one"))},
		{LessonID: "l1", Name: "unit-2.pdf", Category: "Computer/Sem 3", FileType: lesson.FileNotes, Size: 2048},
	}, bu.Files)
	assert.Equal(t, "Bearer token-admin", api.lastAuth(http.MethodPost, bulkPath))

	// nothing left to upload
	got, err = q.Upload(context.Background(), notesMeta)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, api.hitCount(http.MethodPost, bulkPath))

	q.ClearCompleted()
	assert.Empty(t, q.Items())
}

func TestUploadQueue_UploadAbortsOnFirstFailure(t *testing.T) {
	api, q, _ := uploadSetup(t)
	api.respond(http.MethodPost, bulkPath, http.StatusCreated, map[string][]string{"ids": {"f1", "f2"}})

	ids, err := q.AddToQueue(
		File{Name: "unit-1.pdf", Size: 10, Open: content("ok")},
		File{Name: "unit-2.pdf", Size: 10, Open: failingContent},
		File{Name: "unit-3.pdf", Size: 10, Open: content("never read")},
	)
	require.NoError(t, err)

	_, err = q.Upload(context.Background(), notesMeta)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uploading unit-2.pdf")
	assert.Equal(t, 0, api.hitCount(http.MethodPost, bulkPath))

	items := q.Items()
	assert.Equal(t, StatusSuccess, items[0].Status)
	assert.Equal(t, StatusError, items[1].Status)
	assert.Equal(t, "disk unplugged", items[1].Error)
	assert.Equal(t, StatusPending, items[2].Status)

	// the failed item can be removed, then the rest uploaded
	assert.True(t, q.RemoveFromQueue(ids[1]))
	got, err := q.Upload(context.Background(), notesMeta)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, got)

	var bu lesson.BulkUpload
	api.lastBody(t, http.MethodPost, bulkPath, &bu)
	require.Len(t, bu.Files, 1)
	assert.Equal(t, "unit-3.pdf", bu.Files[0].Name)
}

func TestUploadQueue_BulkFailure(t *testing.T) {
	api, q, _ := uploadSetup(t)
	api.respond(http.MethodPost, bulkPath, http.StatusForbidden, map[string]string{"error": "permission denied"})

	_, err := q.AddToQueue(File{Name: "a.pdf", Size: 1}, File{Name: "b.pdf", Size: 1})
	require.NoError(t, err)

	_, err = q.Upload(context.Background(), notesMeta)
	require.Error(t, err)
	for _, it := range q.Items() {
		assert.Equal(t, StatusError, it.Status)
		assert.Equal(t, "permission denied", it.Error)
	}
}

func TestUploadQueue_Retry(t *testing.T) {
	api, q, _ := uploadSetup(t)
	api.respond(http.MethodPost, bulkPath, http.StatusCreated, map[string][]string{"ids": {"f9"}})

	attempts := 0
	flaky := func() (io.ReadCloser, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection reset")
		}
		return io.NopCloser(strings.NewReader("data")), nil
	}
	ids, err := q.AddToQueue(File{Name: "flaky.pdf", Size: 4, Open: flaky})
	require.NoError(t, err)

	_, err = q.Upload(context.Background(), notesMeta)
	require.Error(t, err)
	assert.Equal(t, StatusError, q.Items()[0].Status)

	got, err := q.Retry(context.Background(), ids[0], notesMeta)
	require.NoError(t, err)
	assert.Equal(t, []string{"f9"}, got)
	it := q.Items()[0]
	assert.Equal(t, StatusSuccess, it.Status)
	assert.Empty(t, it.Error)

	_, err = q.Retry(context.Background(), "unknown", notesMeta)
	assert.Equal(t, ErrItemNotFound, err)
}

func TestUploadQueue_guards(t *testing.T) {
	api, q, _ := uploadSetup(t)

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := func() (io.ReadCloser, error) {
		close(started)
		<-release
		return io.NopCloser(strings.NewReader("x")), nil
	}
	api.respond(http.MethodPost, bulkPath, http.StatusCreated, map[string][]string{"ids": {"f1"}})
	ids, err := q.AddToQueue(File{Name: "slow.pdf", Size: 1, Open: blocking})
	require.NoError(t, err)

	_, err = q.Upload(context.Background(), Metadata{})
	assert.Equal(t, ErrFileTypeRequired, err)

	done := make(chan error, 1)
	go func() {
		_, err := q.Upload(context.Background(), notesMeta)
		done <- err
	}()
	<-started

	assert.True(t, q.Uploading())
	assert.False(t, q.RemoveFromQueue(ids[0]), "an uploading item cannot be removed")
	_, err = q.Upload(context.Background(), notesMeta)
	assert.Equal(t, ErrUploadInProgress, err)

	close(release)
	require.NoError(t, <-done)
	assert.True(t, q.RemoveFromQueue(ids[0]))
}

func TestUploadQueue_retryWhileUploading(t *testing.T) {
	api, q, _ := uploadSetup(t)
	api.respond(http.MethodPost, bulkPath, http.StatusCreated, map[string][]string{"ids": {"f1"}})

	ids, err := q.AddToQueue(File{Name: "notes.pdf", Size: 1, Open: content("x")})
	require.NoError(t, err)
	q.update(ids[0], func(it *Item) { it.Status, it.Progress, it.Error = StatusError, 40, "disk unplugged" })

	require.True(t, q.begin(), "another upload is running")
	_, err = q.Retry(context.Background(), ids[0], notesMeta)
	assert.Equal(t, ErrUploadInProgress, err)
	it := q.Items()[0]
	assert.Equal(t, StatusError, it.Status)
	assert.Equal(t, "disk unplugged", it.Error)
	assert.Equal(t, 40, it.Progress)

	_, err = q.Upload(context.Background(), notesMeta)
	assert.Equal(t, ErrUploadInProgress, err)
	q.end()

	got, err := q.Retry(context.Background(), ids[0], notesMeta)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, got)
	assert.Equal(t, StatusSuccess, q.Items()[0].Status)

	got, err = q.Upload(context.Background(), notesMeta)
	require.NoError(t, err)
	assert.Empty(t, got, "nothing left to upload")
}

func TestUploadQueue_cancel(t *testing.T) {
	api, q, _ := uploadSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	q.stepDelay = time.Hour

	_, err := q.AddToQueue(File{Name: "a.pdf", Size: 1})
	require.NoError(t, err)
	q.onProgress = func(it Item) {
		if it.Status == StatusUploading && it.Progress == 0 {
			cancel()
		}
	}

	_, err = q.Upload(ctx, notesMeta)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusError, q.Items()[0].Status)
	assert.Equal(t, 0, api.hitCount(http.MethodPost, bulkPath))
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name    string
		file    File
		wantErr string
	}{
		{name: "small pdf", file: File{Name: "a.pdf", Size: 10}},
		{name: "pdf at limit", file: File{Name: "a.pdf", Size: MaxFileSizeBytes}},
		{name: "pdf over limit", file: File{Name: "a.pdf", Size: MaxFileSizeBytes + 1}, wantErr: "a.pdf: File size exceeds maximum limit of 50 MB"},
		{name: "video over file limit", file: File{Name: "a.MP4", Size: MaxFileSizeBytes + 1}},
		{name: "video at limit", file: File{Name: "a.webm", Size: MaxVideoSizeBytes}},
		{name: "video by mime type", file: File{Name: "clip", ContentType: "video/quicktime", Size: 10}},
		{name: "video over limit", file: File{Name: "a.mov", Size: MaxVideoSizeBytes + 1}, wantErr: "a.mov: Video size exceeds maximum limit of 100 MB"},
		{name: "unsupported video", file: File{Name: "a.avi", ContentType: "video/x-msvideo", Size: 10}, wantErr: "a.avi: Video type not allowed. Allowed types: mp4, webm, mov"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFile(tt.file)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 Bytes"},
		{-5, "0 Bytes"},
		{1, "1 Bytes"},
		{1023, "1023 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1234567, "1.18 MB"},
		{MaxFileSizeBytes, "50 MB"},
		{3 * 1024 * 1024 * 1024, "3 GB"},
		{5 * 1024 * 1024 * 1024 * 1024, "5120 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFileSize(tt.bytes), "FormatFileSize(%d)", tt.bytes)
	}
	assert.Equal(t, "1.5 KB/s", FormatUploadSpeed(1536))
}
