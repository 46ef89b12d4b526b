package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/concern"
)

// Concern type actions
const (
	actionAdd       = "add"
	actionEdit      = "edit"
	actionRemove    = "remove"
	actionAutoReply = "auto_reply"
)

var errTypeIDRequired = errors.New("concern_type_id is required")

type concernApi struct {
	svc      *concern.Service
	validate *validator.Validate
}

func registerConcernAPI(e *echo.Echo, g guards, svc *concern.Service, validate *validator.Validate) {
	api := concernApi{svc: svc, validate: validate}

	cg := e.Group("/counseling-concern-types", g.admin...)
	cg.GET("", api.query)
	cg.POST("", api.act)
	cg.GET("/:id", api.retrieve)
}

// Handlers

func (api *concernApi) query(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	octs, err := api.svc.List(ctx.Request().Context(), p, concern.DomainCounseling)
	if err != nil {
		return errors.Wrap(err, "listing concern types")
	}
	return ctx.JSON(http.StatusOK, octs)
}

func (api *concernApi) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting concern type")
	}
	return ctx.JSON(http.StatusOK, d)
}

// act dispatches the management action named in the body. Every action is scoped to
// the counseling domain of the principal's office.
func (api *concernApi) act(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data ConcernActionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConcernActionRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	if data.Action != actionAdd && data.ConcernTypeID == "" {
		return core.NewValidationError(errTypeIDRequired, core.FieldError{Field: "concern_type_id", Error: "this field is required"})
	}

	reqCtx := ctx.Request().Context()
	switch data.Action {
	case actionAdd:
		nc := concern.NewConcern{
			Name:          core.CleanName(data.Name),
			Description:   data.Description,
			AllowsOther:   data.AllowsOther,
			ForCounseling: true,
		}
		if err = nc.Validate(api.validate); err != nil {
			return err
		}
		oct, err := api.svc.Add(reqCtx, p, nc)
		if err != nil {
			return errors.Wrap(err, "adding concern type")
		}
		return ctx.JSON(http.StatusCreated, oct)

	case actionEdit:
		ec := concern.EditConcern{
			Name:        core.CleanName(data.Name),
			Description: data.Description,
			AllowsOther: data.AllowsOther,
		}
		if err = ec.Validate(api.validate); err != nil {
			return err
		}
		oct, err := api.svc.Edit(reqCtx, p, data.ConcernTypeID, ec)
		if err != nil {
			return errors.Wrap(err, "editing concern type")
		}
		return ctx.JSON(http.StatusOK, oct)

	case actionRemove:
		res, err := api.svc.Remove(reqCtx, p, data.ConcernTypeID, concern.DomainCounseling)
		if err != nil {
			return errors.Wrap(err, "removing concern type")
		}
		return ctx.JSON(http.StatusOK, res)

	default: // actionAutoReply
		ar := concern.AutoReply{Enabled: data.AutoReplyEnabled, Message: data.AutoReplyMessage}
		if err = api.validate.Struct(ar); err != nil {
			return err
		}
		oct, err := api.svc.SetAutoReply(reqCtx, p, data.ConcernTypeID, ar)
		if err != nil {
			return errors.Wrap(err, "setting auto reply")
		}
		return ctx.JSON(http.StatusOK, oct)
	}
}

type ConcernActionRequest struct {
	Action           string `json:"action" form:"action" validate:"required,oneof=add edit remove auto_reply"`
	ConcernTypeID    string `json:"concern_type_id" form:"concern_type_id"`
	Name             string `json:"name" form:"name"`
	Description      string `json:"description" form:"description"`
	AllowsOther      bool   `json:"allows_other" form:"allows_other"`
	AutoReplyEnabled bool   `json:"auto_reply_enabled" form:"auto_reply_enabled"`
	AutoReplyMessage string `json:"auto_reply_message" form:"auto_reply_message"`
}
