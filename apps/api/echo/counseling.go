package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core/counseling"
)

type counselingApi struct {
	svc      *counseling.Service
	validate *validator.Validate
}

func registerCounselingAPI(e *echo.Echo, g guards, svc *counseling.Service, validate *validator.Validate) {
	api := counselingApi{svc: svc, validate: validate}

	e.GET("/video-counseling", api.query, g.admin...)

	sg := e.Group("/video-session/:id", g.admin...)
	sg.GET("", api.retrieve)
	sg.POST("/join", api.join)
	sg.POST("/end", api.end)
	sg.POST("/update-status", api.updateStatus)
	sg.POST("/send-reminder", api.sendReminder)
	sg.POST("/reschedule", api.reschedule)
	sg.POST("/save-notes", api.saveNotes)
}

// Handlers

func (api *counselingApi) query(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter counseling.ListFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ListFilter")
	}
	if err = filter.Validate(api.validate); err != nil {
		return err
	}

	page, err := api.svc.List(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "listing sessions")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *counselingApi) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	view, err := api.svc.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *counselingApi) join(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	info := counseling.JoinInfo{DeviceInfo: ctx.Request().UserAgent(), IPAddress: ctx.RealIP()}
	view, err := api.svc.Join(ctx.Request().Context(), p, ctx.Param("id"), info)
	if err != nil {
		return errors.Wrap(err, "joining session")
	}
	return ctx.JSON(http.StatusOK, view)
}

// end accepts a JSON body or a multipart form carrying an optional `recording` file.
func (api *counselingApi) end(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var end counseling.End
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		end.Notes = ctx.FormValue("notes")
		fh, err := ctx.FormFile("recording")
		if err != nil && err != http.ErrMissingFile {
			return errors.Wrap(err, "reading recording upload")
		}
		if fh != nil {
			f, err := fh.Open()
			if err != nil {
				return errors.Wrap(err, "opening recording upload")
			}
			defer f.Close()
			end.Recording = &counseling.RecordingUpload{
				Filename:         fh.Filename,
				Content:          f,
				StudentConsent:   formBool(ctx, "student_consent"),
				CounselorConsent: formBool(ctx, "counselor_consent"),
			}
		}
	} else {
		var data NotesRequest
		if err = ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NotesRequest")
		}
		end.Notes = data.Notes
	}

	view, err := api.svc.End(ctx.Request().Context(), p, ctx.Param("id"), end)
	if err != nil {
		return errors.Wrap(err, "ending session")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *counselingApi) updateStatus(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data counseling.UpdateStatus
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.UpdateStatus(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating session status")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *counselingApi) sendReminder(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data counseling.SendReminder
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendReminder")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rem, err := api.svc.SendReminder(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "sending reminder")
	}
	return ctx.JSON(http.StatusOK, rem)
}

func (api *counselingApi) reschedule(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data counseling.Reschedule
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Reschedule")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Reschedule(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "rescheduling session")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *counselingApi) saveNotes(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data NotesRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NotesRequest")
	}

	s, err := api.svc.SaveNotes(ctx.Request().Context(), p, ctx.Param("id"), data.Notes)
	if err != nil {
		return errors.Wrap(err, "saving notes")
	}
	return ctx.JSON(http.StatusOK, s)
}

func formBool(ctx echo.Context, name string) bool {
	b, _ := strconv.ParseBool(ctx.FormValue(name))
	return b
}

type NotesRequest struct {
	Notes string `json:"notes" form:"notes"`
}
