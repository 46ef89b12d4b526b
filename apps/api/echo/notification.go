package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/notification"
)

var errBadReadFilter = errors.New("read must be true or false")

type notificationApi struct {
	gw       *notification.Gateway
	validate *validator.Validate
}

func registerNotificationAPI(e *echo.Echo, g guards, gw *notification.Gateway, validate *validator.Validate) {
	api := notificationApi{gw: gw, validate: validate}

	ng := e.Group("/notifications", g.authed...)
	ng.GET("", api.query)
	ng.GET("/get-unread-count", api.unreadCount)
	ng.POST("/mark-read/:id", api.markRead)
	ng.POST("/mark-all-read", api.markAllRead)
	ng.DELETE("/delete/:id", api.destroy)
	ng.DELETE("/delete-all-read", api.destroyAllRead)

	e.POST("/announcements/notify", api.announce, g.admin...)
}

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var query NotificationQuery
	if err = ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to NotificationQuery")
	}
	if err = api.validate.Struct(query); err != nil {
		return err
	}
	filter, err := query.filter()
	if err != nil {
		return err
	}

	page, err := api.gw.List(ctx.Request().Context(), p.UserID, filter, query.Page, query.PerPage)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	n, err := api.gw.UnreadCount(ctx.Request().Context(), p.UserID)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, UnreadCountResponse{UnreadCount: n})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.gw.MarkRead(ctx.Request().Context(), p.UserID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	n, err := api.gw.MarkAllRead(ctx.Request().Context(), p.UserID)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *notificationApi) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.gw.Delete(ctx.Request().Context(), p.UserID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) destroyAllRead(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	n, err := api.gw.DeleteAllRead(ctx.Request().Context(), p.UserID)
	if err != nil {
		return errors.Wrap(err, "deleting read notifications")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *notificationApi) announce(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data notification.Announcement
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Announcement")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	n, err := api.gw.Announce(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "announcing")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

type (
	NotificationQuery struct {
		Read    string `query:"read"`
		Type    string `query:"type" validate:"omitempty,oneof=video_session announcement inquiry system"`
		Page    int    `query:"page"`
		PerPage int    `query:"per_page"`
	}

	UnreadCountResponse struct {
		UnreadCount int `json:"unread_count"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}
)

func (q NotificationQuery) filter() (notification.QueryFilter, error) {
	filter := notification.QueryFilter{Type: q.Type}
	if q.Read != "" {
		read, err := strconv.ParseBool(q.Read)
		if err != nil {
			return filter, core.NewValidationError(errBadReadFilter, core.FieldError{Field: "read", Error: errBadReadFilter.Error()})
		}
		filter.IsRead = &read
	}
	return filter, nil
}
