package client

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
)

const (
	MaxFileSizeBytes  = 50 * 1024 * 1024
	MaxVideoSizeBytes = 100 * 1024 * 1024
)

var (
	videoExtensions = []string{"mp4", "webm", "mov"}
	videoMimeTypes  = []string{"video/mp4", "video/webm", "video/quicktime"}
	sizeUnits       = []string{"Bytes", "KB", "MB", "GB"}
)

// FileError is a file rejected before queueing.
type FileError struct {
	Name string
	Msg  string
}

func (e *FileError) Error() string {
	return e.Name + ": " + e.Msg
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

// IsVideo reports whether f is a video by content type or by extension.
func (f File) IsVideo() bool {
	return strings.HasPrefix(f.ContentType, "video/") || contains(videoExtensions, extension(f.Name))
}

// ValidateFile checks the size of f against its limit, and the type of the videos.
func ValidateFile(f File) error {
	if f.IsVideo() {
		if !contains(videoExtensions, extension(f.Name)) && !contains(videoMimeTypes, f.ContentType) {
			return &FileError{f.Name, "Video type not allowed. Allowed types: " + strings.Join(videoExtensions, ", ")}
		}
		if f.Size > MaxVideoSizeBytes {
			return &FileError{f.Name, "Video size exceeds maximum limit of " + FormatFileSize(MaxVideoSizeBytes)}
		}
		return nil
	}
	if f.Size > MaxFileSizeBytes {
		return &FileError{f.Name, "File size exceeds maximum limit of " + FormatFileSize(MaxFileSizeBytes)}
	}
	return nil
}

// FormatFileSize renders bytes with a binary unit and at most 2 decimals: 1536 -> "1.5 KB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := math.Round(float64(bytes)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatUploadSpeed renders a speed in bytes per second.
func FormatUploadSpeed(bytesPerSecond float64) string {
	return fmt.Sprintf("%s/s", FormatFileSize(int64(bytesPerSecond)))
}
