package lesson

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

// Lesson statuses (per user)
const (
	StatusNotStarted = "notStarted"
	StatusStarted    = "started"
	StatusCompleted  = "completed"
	StatusPaused     = "paused"
)

// File types
const (
	FileMP4             = "mp4"
	FilePDF             = "pdf"
	FileClarifiedPDF    = "clarifiedPdf"
	FileJPEG            = "jpeg"
	FileAnsweredQueries = "answeredQueries"
	FileShortVideo      = "shortVideo"
	FileNotes           = "notes"
	FileLongVideo       = "longVideo"
	FileMP3Audio        = "mp3Audio"
	FilePDFEncrypted    = "pdfEncrypted"
	FileZoomChart       = "zoomChart"
	FileScreenshot      = "screenshot"
	FilePDFWithQRCode   = "pdfWithQRCode"
)

var (
	AllStatuses  = []string{StatusNotStarted, StatusStarted, StatusCompleted, StatusPaused}
	AllFileTypes = []string{
		FileMP4, FilePDF, FileClarifiedPDF, FileJPEG, FileAnsweredQueries, FileShortVideo, FileNotes,
		FileLongVideo, FileMP3Audio, FilePDFEncrypted, FileZoomChart, FileScreenshot, FilePDFWithQRCode,
	}
)

// IsVideoFileType reports whether files of type ft are subject to the video size limit.
func IsVideoFileType(ft string) bool {
	return ft == FileMP4 || ft == FileShortVideo || ft == FileLongVideo
}

type Lesson struct {
	ID           string      `json:"id" db:"id"`
	Title        string      `json:"title" db:"title"`
	Description  string      `json:"description" db:"description"`
	TeacherName  string      `json:"teacherName" db:"teacher_name"`
	VideoLink    null.String `json:"videoLink" db:"video_link"`
	Branch       string      `json:"branch" db:"branch"`
	Semester     string      `json:"semester" db:"semester"`
	Subject      string      `json:"subject" db:"subject"`
	StartTime    time.Time   `json:"startTime" db:"start_time"`
	EndTime      time.Time   `json:"endTime" db:"end_time"`
	Files        []File      `json:"files" db:"-"`
	Rating       float64     `json:"rating" db:"rating"`
	RatingsCount int64       `json:"ratingsCount" db:"ratings_count"`
	CreatedAt    time.Time   `json:"-" db:"created_at"`
	UpdatedAt    time.Time   `json:"-" db:"updated_at"`
}

type File struct {
	ID          string      `json:"id" db:"id"`
	LessonID    null.String `json:"lessonId" db:"lesson_id"`
	Name        string      `json:"name" db:"name"`
	Category    string      `json:"category" db:"category"`
	IsEncrypted bool        `json:"isEncrypted" db:"is_encrypted"`
	FileLink    null.String `json:"fileLink" db:"file_link"`
	FileType    string      `json:"fileType" db:"file_type"`
	Size        int64       `json:"size" db:"size"`
	CreatedAt   time.Time   `json:"-" db:"created_at"`
}

// Progress is the state of a lesson for one user.
type Progress struct {
	UserID    string    `json:"-" db:"user_id"`
	LessonID  string    `json:"lessonId" db:"lesson_id"`
	Status    string    `json:"status" db:"status"`
	StartedAt null.Time `json:"-" db:"started_at"` // start of the running session, if started
	TimeSpent int64     `json:"timeSpent" db:"time_spent"` // seconds, closed sessions only
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// Spent returns the total time spent on the lesson at now, running session included.
func (p Progress) Spent(now time.Time) time.Duration {
	spent := time.Duration(p.TimeSpent) * time.Second
	if p.Status == StatusStarted && p.StartedAt.Valid && now.After(p.StartedAt.Time) {
		spent += now.Sub(p.StartedAt.Time)
	}
	return spent
}

// LessonInput contains information needed to create or update a Lesson.
type LessonInput struct {
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description"`
	TeacherName  string    `json:"teacherName" validate:"required"`
	VideoLink    string    `json:"videoLink" validate:"omitempty,url"`
	Branch       string    `json:"branch"`
	Semester     string    `json:"semester"`
	Subject      string    `json:"subject"`
	StartTime    time.Time `json:"startTime" validate:"required"`
	EndTime      time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
	Rating       float64   `json:"rating" validate:"min=0,max=5"`
	RatingsCount int64     `json:"ratingsCount" validate:"min=0"`
}

func (li *LessonInput) Validate(validate *validator.Validate) error {
	li.Title = core.CleanString(li.Title)
	li.Description = core.CleanString(li.Description)
	li.TeacherName = core.CleanString(li.TeacherName)
	li.VideoLink = core.CleanString(li.VideoLink)
	li.Branch = core.CleanString(li.Branch)
	li.Semester = core.CleanString(li.Semester)
	li.Subject = core.CleanString(li.Subject)
	return validate.Struct(li)
}

type NewFile struct {
	LessonID    string `json:"lessonId"`
	Name        string `json:"name" validate:"required"`
	Category    string `json:"category"`
	IsEncrypted bool   `json:"isEncrypted"`
	FileLink    string `json:"fileLink" validate:"omitempty,url"`
	FileType    string `json:"fileType" validate:"required,oneof=mp4 pdf clarifiedPdf jpeg answeredQueries shortVideo notes longVideo mp3Audio pdfEncrypted zoomChart screenshot pdfWithQRCode"`
	Size        int64  `json:"size" validate:"min=0"`
}

// BulkUpload is the metadata of the files uploaded in one batch.
type BulkUpload struct {
	Files []NewFile `json:"files" validate:"required,min=1,dive"`
}

func (bu *BulkUpload) Validate(validate *validator.Validate) error {
	for i := range bu.Files {
		f := &bu.Files[i]
		f.LessonID = core.CleanString(f.LessonID)
		f.Name = core.CleanString(f.Name)
		f.Category = core.CleanString(f.Category)
		f.FileLink = core.CleanString(f.FileLink)
	}
	return validate.Struct(bu)
}

type DuplicateCheck struct {
	Category string   `json:"category"`
	Names    []string `json:"names" validate:"required,min=1"`
}

type SizeCheck struct {
	Size     int64  `json:"size" query:"size"`
	FileType string `json:"fileType" query:"fileType"`
}

type StatusUpdate struct {
	Status string `json:"newStatus" validate:"required,oneof=notStarted started completed paused"`
}

type QueryFilter struct {
	Branch   string `query:"branch"`
	Semester string `query:"semester"`
	Subject  string `query:"subject"`
}
