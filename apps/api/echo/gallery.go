package echoapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/access"
	"github.com/caffeinepub/diploma-smart-study-hub/core/gallery"
)

const uploadFormField = "files"

type galleryApi struct {
	decide   func(ctx echo.Context) access.Decision
	svc      gallery.ServiceInterface
	validate *validator.Validate
}

func registerGalleryAPI(
	g *echo.Group,
	mw middlewares,
	svc gallery.ServiceInterface,
	validate *validator.Validate,
) {
	api := galleryApi{decide: mw.decide, svc: svc, validate: validate}

	gg := g.Group("/galleries")
	gg.GET("", api.query)
	gg.POST("", api.create, mw.auth, mw.admin)
	gg.GET("/:id", api.retrieve, mw.gated)
	gg.DELETE("/:id", api.destroy, mw.auth, mw.admin)
	gg.GET("/:id/videos", api.videos, mw.gated)
	gg.GET("/:id/media/:mid", api.media, mw.gated)
	gg.POST("/:id/images", api.uploadImages, mw.auth, mw.admin)
	gg.POST("/:id/videos", api.uploadVideos, mw.auth, mw.admin)
	gg.DELETE("/:id/images/:mid", api.destroyImage, mw.auth, mw.admin)
	gg.DELETE("/:id/videos/:mid", api.destroyVideo, mw.auth, mw.admin)
}

func mediaURL(m gallery.Media) string {
	return fmt.Sprintf("/v1/galleries/%s/media/%s", m.GalleryID, m.ID)
}

func withURLs(media []gallery.Media) []gallery.Media {
	for i := range media {
		media[i].URL = mediaURL(media[i])
	}
	return media
}

func withMediaURLs(g gallery.Gallery) gallery.Gallery {
	g.Images = withURLs(g.Images)
	g.Videos = withURLs(g.Videos)
	return g
}

// query lists the galleries of a category; callers without access only get the locked placeholders.
func (api *galleryApi) query(ctx echo.Context) error {
	var filter gallery.CategoryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []gallery.Gallery{})
	}
	galleries, err := api.svc.QueryByCategory(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying galleries")
	}

	d := api.decide(ctx)
	res := make([]gallery.Gallery, 0, len(galleries))
	for _, g := range galleries {
		if d.HasAccess {
			res = append(res, withMediaURLs(g))
		} else {
			res = append(res, g.LockedView())
		}
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *galleryApi) create(ctx echo.Context) error {
	var data gallery.NewGallery
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGallery")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	g, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating gallery")
	}
	return ctx.JSON(http.StatusCreated, g)
}

func (api *galleryApi) retrieve(ctx echo.Context) error {
	g, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, withMediaURLs(g))
}

func (api *galleryApi) videos(ctx echo.Context) error {
	videos, err := api.svc.Videos(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, withURLs(videos))
}

// media streams the content of an image or a video from the blob store.
func (api *galleryApi) media(ctx echo.Context) error {
	m, blob, err := api.svc.OpenMedia(ctx.Request().Context(), ctx.Param("id"), ctx.Param("mid"))
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer blob.Body.Close()

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", m.FileName))
	if blob.Size > 0 {
		resp.Header().Set(echo.HeaderContentLength, strconv.FormatInt(blob.Size, 10))
	}
	return ctx.Stream(http.StatusOK, blob.ContentType, blob.Body)
}

func (api *galleryApi) uploadImages(ctx echo.Context) error {
	return api.upload(ctx, api.svc.UploadImages)
}

func (api *galleryApi) uploadVideos(ctx echo.Context) error {
	return api.upload(ctx, api.svc.UploadVideos)
}

type uploadFunc func(ctx context.Context, id string, uploads ...gallery.Upload) ([]gallery.Media, error)

func (api *galleryApi) upload(ctx echo.Context, fn uploadFunc) error {
	form, err := ctx.MultipartForm()
	if err != nil {
		return core.NewValidationError(errors.Wrap(err, "parsing multipart form"))
	}
	headers := form.File[uploadFormField]
	if len(headers) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: uploadFormField, Error: "this field is required"})
	}

	uploads := make([]gallery.Upload, 0, len(headers))
	closers := make([]io.Closer, 0, len(headers))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return errors.Wrapf(err, "opening %s", fh.Filename)
		}
		closers = append(closers, f)
		uploads = append(uploads, gallery.Upload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Body:        f,
		})
	}

	media, err := fn(ctx.Request().Context(), ctx.Param("id"), uploads...)
	if err != nil {
		return errors.Wrap(err, "uploading media")
	}
	return ctx.JSON(http.StatusCreated, withURLs(media))
}

func (api *galleryApi) destroyImage(ctx echo.Context) error {
	return api.destroyMedia(ctx, gallery.KindImage)
}

func (api *galleryApi) destroyVideo(ctx echo.Context) error {
	return api.destroyMedia(ctx, gallery.KindVideo)
}

func (api *galleryApi) destroyMedia(ctx echo.Context, kind string) error {
	if err := api.svc.DeleteMedia(ctx.Request().Context(), ctx.Param("id"), ctx.Param("mid"), kind); err != nil {
		return errors.Wrap(err, "deleting media")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *galleryApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting gallery")
	}
	return ctx.NoContent(http.StatusNoContent)
}
