package core

import (
	"mime"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Default upload limits, overridable with the storage config.
const (
	MaxFileSize  int64 = 50 << 20
	MaxVideoSize int64 = 100 << 20
)

var (
	ErrFileTooLarge        = errors.New("file is too large")
	ErrUnsupportedFileType = errors.New("unsupported file type")

	videoTypes = map[string]string{
		".mp4":  "video/mp4",
		".webm": "video/webm",
		".mov":  "video/quicktime",
	}
)

// ContentType guesses the content type of fileName when the declared one is empty or generic.
func ContentType(fileName, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
	}
	ext := strings.ToLower(path.Ext(fileName))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		mt, _, _ := mime.ParseMediaType(ct)
		return mt
	}
	return "application/octet-stream"
}

// IsVideo reports whether contentType is one of the accepted video types (mp4, webm, mov).
func IsVideo(contentType string) bool {
	for _, ct := range videoTypes {
		if ct == contentType {
			return true
		}
	}
	return false
}

func IsImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// CheckSize returns ErrFileTooLarge when size exceeds the limit of its kind (video or document).
func CheckSize(size int64, video bool, conf StorageConfig) error {
	limit := conf.MaxFileSize
	if video {
		limit = conf.MaxVideoSize
	}
	if limit <= 0 {
		limit = MaxFileSize
		if video {
			limit = MaxVideoSize
		}
	}
	if size < 0 || size > limit {
		return ErrFileTooLarge
	}
	return nil
}
