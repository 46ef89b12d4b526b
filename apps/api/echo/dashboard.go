package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core/dashboard"
	"github.com/trezcool/piyuguide/core/user"
)

type dashboardApi struct {
	svc   *dashboard.Service
	users *user.Service
}

func registerDashboardAPI(e *echo.Echo, g guards, svc *dashboard.Service, users *user.Service) {
	api := dashboardApi{svc: svc, users: users}

	e.GET("/dashboard", api.view, g.admin...)
	e.GET("/dashboard_data", api.data, g.admin...)
}

// Handlers

func (api *dashboardApi) view(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	off, err := api.users.GetOffice(ctx.Request().Context(), p.OfficeID)
	if err != nil {
		return errors.Wrap(err, "getting office")
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "computing dashboard stats")
	}
	return ctx.JSON(http.StatusOK, DashboardResponse{User: p, Office: off, Stats: stats})
}

func (api *dashboardApi) data(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "computing dashboard stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

type DashboardResponse struct {
	User   user.Principal  `json:"user"`
	Office user.Office     `json:"office"`
	Stats  dashboard.Stats `json:"stats"`
}
