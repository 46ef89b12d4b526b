package echoapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core/user"
)

// Streamer pumps real-time events to a user's websocket until it closes.
type Streamer interface {
	Serve(userID string, conn *websocket.Conn)
}

type presenceApi struct {
	svc      *user.Service
	streams  Streamer
	upgrader websocket.Upgrader
}

func registerPresenceAPI(e *echo.Echo, g guards, svc *user.Service, streams Streamer) {
	api := presenceApi{
		svc:     svc,
		streams: streams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	e.GET("/api/me", api.me, g.authed...)
	e.POST("/api/heartbeat", api.heartbeat, g.authed...)
	e.POST("/api/logout", api.logout, g.authed...)
	e.GET("/ws", api.stream, g.stream...)
}

// Handlers

func (api *presenceApi) me(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *presenceApi) heartbeat(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Heartbeat(ctx.Request().Context(), p.UserID); err != nil {
		return errors.Wrap(err, "recording heartbeat")
	}
	return ctx.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

func (api *presenceApi) logout(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.SetOffline(ctx.Request().Context(), p.UserID); err != nil {
		return errors.Wrap(err, "setting user offline")
	}
	return ctx.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

func (api *presenceApi) stream(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader already answered the client
		ctx.Logger().Warnf("upgrading websocket of %s: %v", p.UserID, err)
		return nil
	}
	api.streams.Serve(p.UserID, conn)
	return nil
}

type (
	StatusResponse struct {
		Status string `json:"status"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)
