package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
)

type lessonApi struct {
	svc      lesson.ServiceInterface
	validate *validator.Validate
}

// TimeSpentResponse is the time spent on a lesson, in seconds.
type TimeSpentResponse struct {
	Seconds int64 `json:"seconds"`
}

type IDsResponse struct {
	IDs []string `json:"ids"`
}

type DuplicatesResponse struct {
	Duplicates []string `json:"duplicates"`
}

type ValidResponse struct {
	Valid bool `json:"valid"`
}

func registerLessonAPI(g *echo.Group, mw middlewares, svc lesson.ServiceInterface, validate *validator.Validate) {
	api := lessonApi{svc: svc, validate: validate}

	lg := g.Group("/lessons")
	lg.GET("", api.query, mw.gated)
	lg.POST("", api.create, mw.auth, mw.admin)
	lg.GET("/:id", api.retrieve, mw.gated)
	lg.PUT("/:id", api.update, mw.auth, mw.admin)
	lg.DELETE("/:id", api.destroy, mw.auth, mw.admin)
	lg.GET("/:id/status", api.status, mw.auth)
	lg.PUT("/:id/status", api.updateStatus, mw.auth)
	lg.GET("/:id/time-spent", api.timeSpent, mw.auth)

	fg := g.Group("/files")
	fg.POST("/bulk", api.bulkUpload, mw.auth, mw.admin)
	fg.POST("/duplicates", api.duplicates, mw.auth, mw.admin)
	fg.GET("/validate-size", api.validateSize)
	fg.DELETE("/:id", api.destroyFile, mw.auth, mw.admin)
}

func (api *lessonApi) query(ctx echo.Context) error {
	var filter lesson.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []lesson.Lesson{})
	}
	lessons, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []lesson.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *lessonApi) bindInput(ctx echo.Context) (lesson.LessonInput, error) {
	var data lesson.LessonInput
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to LessonInput")
	}
	return data, data.Validate(api.validate)
}

func (api *lessonApi) create(ctx echo.Context) error {
	data, err := api.bindInput(ctx)
	if err != nil {
		return err
	}
	l, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *lessonApi) retrieve(ctx echo.Context) error {
	l, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *lessonApi) update(ctx echo.Context) error {
	data, err := api.bindInput(ctx)
	if err != nil {
		return err
	}
	l, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *lessonApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *lessonApi) status(ctx echo.Context) error {
	p, err := api.svc.Status(ctx.Request().Context(), contextUserID(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *lessonApi) updateStatus(ctx echo.Context) error {
	var data lesson.StatusUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	p, err := api.svc.UpdateStatus(ctx.Request().Context(), contextUserID(ctx), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "updating lesson status")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *lessonApi) timeSpent(ctx echo.Context) error {
	d, err := api.svc.TimeSpent(ctx.Request().Context(), contextUserID(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TimeSpentResponse{Seconds: int64(d.Seconds())})
}

func (api *lessonApi) bulkUpload(ctx echo.Context) error {
	var data lesson.BulkUpload
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkUpload")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ids, err := api.svc.BulkUpload(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "uploading files")
	}
	return ctx.JSON(http.StatusCreated, IDsResponse{IDs: ids})
}

func (api *lessonApi) duplicates(ctx echo.Context) error {
	var data lesson.DuplicateCheck
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DuplicateCheck")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	dups, err := api.svc.CheckForDuplicates(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "checking for duplicates")
	}
	return ctx.JSON(http.StatusOK, DuplicatesResponse{Duplicates: dups})
}

func (api *lessonApi) validateSize(ctx echo.Context) error {
	var data lesson.SizeCheck
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SizeCheck")
	}
	return ctx.JSON(http.StatusOK, ValidResponse{Valid: api.svc.ValidateFileSize(data.Size, data.FileType)})
}

func (api *lessonApi) destroyFile(ctx echo.Context) error {
	if err := api.svc.DeleteFile(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting file")
	}
	return ctx.NoContent(http.StatusNoContent)
}
