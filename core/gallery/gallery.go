// Package gallery manages the image & video galleries attached to the study categories
// (branch > semester > subject > chapter).
package gallery

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

// Media kinds
const (
	KindImage = "image"
	KindVideo = "video"
)

var (
	ErrNotFound      = core.NewNotFoundError("gallery")
	ErrMediaNotFound = core.NewNotFoundError("gallery media")

	NowFunc = time.Now // mockable
)

type Gallery struct {
	ID          string      `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	Branch      null.String `json:"branch" db:"branch"`
	Semester    null.String `json:"semester" db:"semester"`
	Subject     null.String `json:"subject" db:"subject"`
	Chapter     null.String `json:"chapter" db:"chapter"`
	Images      []Media     `json:"images" db:"-"`
	Videos      []Media     `json:"videos" db:"-"`
	Locked      bool        `json:"locked,omitempty" db:"-"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time   `json:"-" db:"updated_at"`
}

// LockedView returns the gallery metadata only: what callers without access get to see.
func (g Gallery) LockedView() Gallery {
	g.Images = []Media{}
	g.Videos = []Media{}
	g.Locked = true
	return g
}

// Media is an image or a video of a gallery. Its content lives in the blob store.
type Media struct {
	ID          string    `json:"id" db:"id"`
	GalleryID   string    `json:"galleryId" db:"gallery_id"`
	Kind        string    `json:"kind" db:"kind"`
	FileName    string    `json:"fileName" db:"file_name"`
	ContentType string    `json:"contentType" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	BlobKey     string    `json:"-" db:"blob_key"`
	URL         string    `json:"url" db:"-"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// NewGallery contains information needed to create a Gallery.
type NewGallery struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=2000"`
	Branch      *string `json:"branch"`
	Semester    *string `json:"semester"`
	Subject     *string `json:"subject"`
	Chapter     *string `json:"chapter"`
}

func (ng *NewGallery) Validate(validate *validator.Validate) error {
	ng.Title = core.CleanString(ng.Title)
	ng.Description = core.CleanString(ng.Description)
	return validate.Struct(ng)
}

// CategoryFilter applies AND operation on the non-empty fields.
type CategoryFilter struct {
	Branch   string `query:"branch"`
	Semester string `query:"semester"`
	Subject  string `query:"subject"`
	Chapter  string `query:"chapter"`
}

func (cf *CategoryFilter) Clean() {
	cf.Branch = core.CleanString(cf.Branch)
	cf.Semester = core.CleanString(cf.Semester)
	cf.Subject = core.CleanString(cf.Subject)
	cf.Chapter = core.CleanString(cf.Chapter)
}

// Upload is a media file to add to a gallery.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type (
	Repository interface {
		CreateGallery(ctx context.Context, g Gallery) (Gallery, error)
		// GetGallery & QueryGalleries return the galleries with their media.
		GetGallery(ctx context.Context, id string) (Gallery, error)
		QueryGalleries(ctx context.Context, filter CategoryFilter) ([]Gallery, error)
		// DeleteGallery deletes the gallery along with its media.
		DeleteGallery(ctx context.Context, id string) error
		AddMedia(ctx context.Context, m Media) (Media, error)
		GetMedia(ctx context.Context, galleryID, id string) (Media, error)
		DeleteMedia(ctx context.Context, galleryID, id string) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, ng NewGallery) (Gallery, error)
		GetByID(ctx context.Context, id string) (Gallery, error)
		QueryByCategory(ctx context.Context, filter CategoryFilter) ([]Gallery, error)
		Videos(ctx context.Context, id string) ([]Media, error)
		UploadImages(ctx context.Context, id string, uploads ...Upload) ([]Media, error)
		UploadVideos(ctx context.Context, id string, uploads ...Upload) ([]Media, error)
		OpenMedia(ctx context.Context, galleryID, id string) (Media, core.Blob, error)
		DeleteMedia(ctx context.Context, galleryID, id, kind string) error
		Delete(ctx context.Context, id string) error
	}

	Service struct {
		conf   core.StorageConfig
		logger core.Logger
		repo   Repository
		blobs  core.BlobStore
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(conf core.StorageConfig, logger core.Logger, repo Repository, blobs core.BlobStore) *Service {
	return &Service{conf: conf, logger: logger, repo: repo, blobs: blobs}
}

func optional(s *string) null.String {
	if s == nil {
		return null.String{}
	}
	v := core.CleanString(*s)
	return null.NewString(v, v != "")
}

// Create creates an empty gallery; ng must have been validated.
func (svc *Service) Create(ctx context.Context, ng NewGallery) (Gallery, error) {
	now := NowFunc().UTC()
	g, err := svc.repo.CreateGallery(ctx, Gallery{
		ID:          uuid.New().String(),
		Title:       ng.Title,
		Description: ng.Description,
		Branch:      optional(ng.Branch),
		Semester:    optional(ng.Semester),
		Subject:     optional(ng.Subject),
		Chapter:     optional(ng.Chapter),
		Images:      []Media{},
		Videos:      []Media{},
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return g, errors.Wrap(err, "creating gallery")
}

func (svc *Service) GetByID(ctx context.Context, id string) (Gallery, error) {
	return svc.repo.GetGallery(ctx, id)
}

func (svc *Service) QueryByCategory(ctx context.Context, filter CategoryFilter) ([]Gallery, error) {
	filter.Clean()
	return svc.repo.QueryGalleries(ctx, filter)
}

func (svc *Service) Videos(ctx context.Context, id string) ([]Media, error) {
	g, err := svc.repo.GetGallery(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.Videos, nil
}

func (svc *Service) UploadImages(ctx context.Context, id string, uploads ...Upload) ([]Media, error) {
	return svc.upload(ctx, id, KindImage, uploads)
}

func (svc *Service) UploadVideos(ctx context.Context, id string, uploads ...Upload) ([]Media, error) {
	return svc.upload(ctx, id, KindVideo, uploads)
}

// upload checks every file first, then stores them one by one. Already stored files are kept on failure.
func (svc *Service) upload(ctx context.Context, id, kind string, uploads []Upload) ([]Media, error) {
	if _, err := svc.repo.GetGallery(ctx, id); err != nil {
		return nil, err
	}

	fields := make([]core.FieldError, 0)
	for i := range uploads {
		up := &uploads[i]
		up.FileName = path.Base(strings.ReplaceAll(core.CleanString(up.FileName), "\\", "/"))
		up.ContentType = core.ContentType(up.FileName, up.ContentType)

		var err error
		switch {
		case kind == KindImage && !core.IsImage(up.ContentType):
			err = core.ErrUnsupportedFileType
		case kind == KindVideo && !core.IsVideo(up.ContentType):
			err = core.ErrUnsupportedFileType
		default:
			err = core.CheckSize(up.Size, kind == KindVideo, svc.conf)
		}
		if err != nil {
			fields = append(fields, core.FieldError{Field: up.FileName, Error: err.Error()})
		}
	}
	if len(fields) > 0 {
		return nil, core.NewValidationError(errors.Errorf("invalid %s files", kind), fields...)
	}

	media := make([]Media, 0, len(uploads))
	for _, up := range uploads {
		mID := uuid.New().String()
		key := fmt.Sprintf("galleries/%s/%ss/%s/%s", id, kind, mID, up.FileName)
		if err := svc.blobs.Put(ctx, key, up.ContentType, up.Size, up.Body); err != nil {
			return media, errors.Wrapf(err, "storing %s", up.FileName)
		}
		m, err := svc.repo.AddMedia(ctx, Media{
			ID:          mID,
			GalleryID:   id,
			Kind:        kind,
			FileName:    up.FileName,
			ContentType: up.ContentType,
			Size:        up.Size,
			BlobKey:     key,
			CreatedAt:   NowFunc().UTC(),
		})
		if err != nil {
			svc.deleteBlobs(ctx, key)
			return media, errors.Wrapf(err, "adding %s", up.FileName)
		}
		media = append(media, m)
	}
	return media, nil
}

func (svc *Service) OpenMedia(ctx context.Context, galleryID, id string) (Media, core.Blob, error) {
	m, err := svc.repo.GetMedia(ctx, galleryID, id)
	if err != nil {
		return Media{}, core.Blob{}, err
	}
	blob, err := svc.blobs.Get(ctx, m.BlobKey)
	if err != nil {
		return Media{}, core.Blob{}, errors.Wrap(err, "getting blob")
	}
	if blob.ContentType == "" {
		blob.ContentType = m.ContentType
	}
	return m, blob, nil
}

// DeleteMedia deletes an image or a video (kind) of a gallery.
func (svc *Service) DeleteMedia(ctx context.Context, galleryID, id, kind string) error {
	m, err := svc.repo.GetMedia(ctx, galleryID, id)
	if err != nil {
		return err
	}
	if m.Kind != kind {
		return ErrMediaNotFound
	}
	if err = svc.repo.DeleteMedia(ctx, galleryID, id); err != nil {
		return errors.Wrap(err, "deleting media")
	}
	svc.deleteBlobs(ctx, m.BlobKey)
	return nil
}

// Delete deletes the gallery and all its media.
func (svc *Service) Delete(ctx context.Context, id string) error {
	g, err := svc.repo.GetGallery(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteGallery(ctx, id); err != nil {
		return errors.Wrap(err, "deleting gallery")
	}

	keys := make([]string, 0, len(g.Images)+len(g.Videos))
	for _, m := range append(g.Images, g.Videos...) {
		keys = append(keys, m.BlobKey)
	}
	svc.deleteBlobs(ctx, keys...)
	return nil
}

// deleteBlobs is best effort: orphan blobs are only logged.
func (svc *Service) deleteBlobs(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := svc.blobs.Delete(ctx, keys...); err != nil {
		svc.logger.Warn(fmt.Sprintf("deleting blobs %v: %v", keys, err))
	}
}
