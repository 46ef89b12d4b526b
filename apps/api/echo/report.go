package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core/report"
)

type reportApi struct {
	svc      *report.Service
	validate *validator.Validate
}

func registerReportAPI(e *echo.Echo, g guards, svc *report.Service, validate *validator.Validate) {
	api := reportApi{svc: svc, validate: validate}

	rg := e.Group("/reports", g.admin...)
	rg.GET("", api.catalog)
	rg.POST("/generate", api.generate)
}

// Handlers

func (api *reportApi) catalog(ctx echo.Context) error {
	formats := make(map[string][]string, len(report.Kinds))
	for _, kind := range report.Kinds {
		formats[kind] = report.Formats(kind)
	}
	return ctx.JSON(http.StatusOK, CatalogResponse{
		ReportTypes: report.Kinds,
		DateRanges:  report.Ranges,
		Formats:     formats,
	})
}

func (api *reportApi) generate(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data report.Request
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Request")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.Generate(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "generating report")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", f.Name))
	return ctx.Blob(http.StatusOK, f.ContentType, f.Content)
}

type CatalogResponse struct {
	ReportTypes []string            `json:"report_types"`
	DateRanges  []string            `json:"date_ranges"`
	Formats     map[string][]string `json:"formats"`
}
