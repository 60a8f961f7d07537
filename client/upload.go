package client

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
)

// Upload item statuses
const (
	StatusPending   = "pending"
	StatusUploading = "uploading"
	StatusSuccess   = "success"
	StatusError     = "error"
)

const (
	DefaultStepDelay = 100 * time.Millisecond
	progressStep     = 10
)

var (
	ErrUploadInProgress = errors.New("an upload is already in progress")
	ErrItemNotFound     = errors.New("upload item not found")
	ErrFileTypeRequired = errors.New("file type is required")
)

// File is a local file to upload. Open is optional; when set, the content is read during the transfer.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

type Item struct {
	ID       string
	File     File
	Progress int     // percent
	Status   string  // pending | uploading | success | error
	Speed    float64 // bytes per second, simulated
	Error    string
}

// Metadata is shared by all the files of an upload.
type Metadata struct {
	LessonID    string
	Category    string
	FileType    string // one of lesson.AllFileTypes
	FileLink    string
	IsEncrypted bool
}

// RejectedError lists the files refused by AddToQueue.
type RejectedError []*FileError

func (e RejectedError) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Error())
	}
	return strings.Join(msgs, "; ")
}

// UploadQueue simulates the transfer of the queued files, then registers them with one bulk call.
// The progress is not measured: it advances by 10% every step delay.
type UploadQueue struct {
	client     *Client
	stepDelay  time.Duration
	onProgress func(Item)

	mu        sync.Mutex
	items     []*Item
	uploading bool
}

type QueueOption func(*UploadQueue)

func StepDelay(d time.Duration) QueueOption {
	return func(q *UploadQueue) { q.stepDelay = d }
}

// OnProgress registers fn to be called on every change of an item.
func OnProgress(fn func(Item)) QueueOption {
	return func(q *UploadQueue) { q.onProgress = fn }
}

func (c *Client) NewUploadQueue(opts ...QueueOption) *UploadQueue {
	q := &UploadQueue{client: c, stepDelay: DefaultStepDelay}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddToQueue appends the valid files as pending items and returns their IDs.
// Invalid files are left out and reported in a RejectedError.
func (q *UploadQueue) AddToQueue(files ...File) ([]string, error) {
	var rejected RejectedError
	ids := make([]string, 0, len(files))

	q.mu.Lock()
	for _, f := range files {
		if err := ValidateFile(f); err != nil {
			rejected = append(rejected, err.(*FileError))
			continue
		}
		item := &Item{ID: uuid.New().String(), File: f, Status: StatusPending}
		q.items = append(q.items, item)
		ids = append(ids, item.ID)
	}
	q.mu.Unlock()

	if len(rejected) > 0 {
		return ids, rejected
	}
	return ids, nil
}

// Items returns a snapshot of the queue.
func (q *UploadQueue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]Item, 0, len(q.items))
	for _, it := range q.items {
		items = append(items, *it)
	}
	return items
}

func (q *UploadQueue) Uploading() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.uploading
}

// RemoveFromQueue removes the item id; items being uploaded cannot be removed.
func (q *UploadQueue) RemoveFromQueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.ID == id && it.Status != StatusUploading {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// ClearCompleted removes the successfully uploaded items.
func (q *UploadQueue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items[:0]
	for _, it := range q.items {
		if it.Status != StatusSuccess {
			items = append(items, it)
		}
	}
	q.items = items
}

// Upload uploads the pending & failed items and returns the IDs of the registered files.
// The first failing item is marked error and aborts the batch: no file is registered then.
func (q *UploadQueue) Upload(ctx context.Context, meta Metadata) ([]string, error) {
	if meta.FileType == "" {
		return nil, ErrFileTypeRequired
	}
	if !q.begin() {
		return nil, ErrUploadInProgress
	}
	defer q.end()

	q.mu.Lock()
	batch := make([]string, 0, len(q.items))
	for _, it := range q.items {
		if it.Status == StatusPending || it.Status == StatusError {
			batch = append(batch, it.ID)
		}
	}
	q.mu.Unlock()
	if len(batch) == 0 {
		return []string{}, nil
	}
	return q.upload(ctx, batch, meta)
}

// Retry uploads the item id again, with the same file & meta.
// The item keeps its failure state when the retry cannot start.
func (q *UploadQueue) Retry(ctx context.Context, id string, meta Metadata) ([]string, error) {
	if meta.FileType == "" {
		return nil, ErrFileTypeRequired
	}
	if !q.begin() {
		return nil, ErrUploadInProgress
	}
	defer q.end()

	found := q.update(id, func(it *Item) {
		it.Status = StatusPending
		it.Progress, it.Speed, it.Error = 0, 0, ""
	})
	if !found {
		return nil, ErrItemNotFound
	}
	return q.upload(ctx, []string{id}, meta)
}

func (q *UploadQueue) begin() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.uploading {
		return false
	}
	q.uploading = true
	return true
}

func (q *UploadQueue) end() {
	q.mu.Lock()
	q.uploading = false
	q.mu.Unlock()
}

// update applies fn to the item id, then notifies the progress listener.
func (q *UploadQueue) update(id string, fn func(*Item)) bool {
	var snapshot Item
	found := false
	q.mu.Lock()
	for _, it := range q.items {
		if it.ID == id {
			fn(it)
			snapshot, found = *it, true
			break
		}
	}
	q.mu.Unlock()
	if found && q.onProgress != nil {
		q.onProgress(snapshot)
	}
	return found
}

func (q *UploadQueue) get(id string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.ID == id {
			return *it, true
		}
	}
	return Item{}, false
}

// upload transfers batch then registers it; the caller holds the upload guard.
func (q *UploadQueue) upload(ctx context.Context, batch []string, meta Metadata) ([]string, error) {
	files := make([]lesson.NewFile, 0, len(batch))
	for _, id := range batch {
		item, ok := q.get(id)
		if !ok { // removed meanwhile
			continue
		}
		size, err := q.transfer(ctx, item)
		if err != nil {
			q.update(id, func(it *Item) {
				it.Status, it.Speed, it.Error = StatusError, 0, err.Error()
			})
			return nil, errors.Wrapf(err, "uploading %s", item.File.Name)
		}
		q.update(id, func(it *Item) { it.Status, it.Speed = StatusSuccess, 0 })

		files = append(files, lesson.NewFile{
			LessonID:    meta.LessonID,
			Name:        item.File.Name,
			Category:    meta.Category,
			IsEncrypted: meta.IsEncrypted,
			FileLink:    meta.FileLink,
			FileType:    meta.FileType,
			Size:        size,
		})
	}

	var res struct {
		IDs []string `json:"ids"`
	}
	if err := q.client.call(ctx, rest.Post, "/files/bulk", nil, lesson.BulkUpload{Files: files}, &res); err != nil {
		for _, id := range batch {
			q.update(id, func(it *Item) { it.Status, it.Error = StatusError, err.Error() })
		}
		return nil, errors.Wrap(err, "registering files")
	}
	return res.IDs, nil
}

// transfer reads the content of the item, then advances its progress from 0 to 100. It returns the size read.
func (q *UploadQueue) transfer(ctx context.Context, item Item) (int64, error) {
	q.update(item.ID, func(it *Item) { it.Status, it.Progress, it.Speed, it.Error = StatusUploading, 0, 0, "" })

	size := item.File.Size
	if item.File.Open != nil {
		rc, err := item.File.Open()
		if err != nil {
			return 0, err
		}
		n, err := io.Copy(io.Discard, rc)
		_ = rc.Close()
		if err != nil {
			return 0, err
		}
		size = n
	}

	clk := q.client.clock
	last := clk.Now()
	for p := 0; p <= 100; p += progressStep {
		now := clk.Now()
		var speed float64
		if elapsed := now.Sub(last).Seconds(); elapsed > 0 {
			speed = float64(size) * progressStep / 100 / elapsed
		}
		last = now
		q.update(item.ID, func(it *Item) { it.Progress, it.Speed = p, speed })

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-clk.After(q.stepDelay):
		}
	}
	return size, nil
}
