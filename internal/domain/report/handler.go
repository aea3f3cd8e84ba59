package report

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mchtrack/mch/internal/platform/auth"
	"github.com/mchtrack/mch/pkg/pagination"
)

const errReportUnavailable = "report data is temporarily unavailable"

// Handler serves the report endpoints under /reports.
type Handler struct {
	svc *Service
}

// NewHandler creates a report Handler backed by svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the report routes on api. All of them need the
// admin or data_officer role.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleAdmin, auth.RoleDataOfficer))
	g.GET("", h.GetReport)
	g.GET("/data", h.GetData)
	g.GET("/summary", h.GetSummary)
	g.GET("/charts", h.GetCharts)
	g.GET("/export", h.Export)
}

// GetReport returns meta, summary and charts computed over one store read.
func (h *Handler) GetReport(c echo.Context) error {
	f, err := ParseFilter(c.QueryParam)
	if err != nil {
		return httpError(err)
	}
	r, err := h.svc.Generate(c.Request().Context(), f, false)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

// GetData returns the row extract one page at a time.
func (h *Handler) GetData(c echo.Context) error {
	f, err := ParseFilter(c.QueryParam)
	if err != nil {
		return httpError(err)
	}
	rows, err := h.svc.GenerateReport(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	start, end := pg.Bounds(len(rows))
	return c.JSON(http.StatusOK, pagination.NewResponse(rows[start:end], len(rows), pg.Limit, pg.Offset))
}

func (h *Handler) GetSummary(c echo.Context) error {
	f, err := ParseFilter(c.QueryParam)
	if err != nil {
		return httpError(err)
	}
	s, err := h.svc.GenerateSummary(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetCharts(c echo.Context) error {
	f, err := ParseFilter(c.QueryParam)
	if err != nil {
		return httpError(err)
	}
	ch, err := h.svc.GenerateCharts(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ch)
}

// Export streams the rows as a CSV or XLSX attachment.
func (h *Handler) Export(c echo.Context) error {
	f, err := ParseFilter(c.QueryParam)
	if err != nil {
		return httpError(err)
	}
	format, err := ParseFormat(c.QueryParam("format"))
	if err != nil {
		return httpError(err)
	}
	a, err := h.svc.Export(c.Request().Context(), ExportRequest{Filter: f, Format: format})
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", a.FileName))
	return c.Blob(http.StatusOK, a.ContentType, a.Body)
}

// httpError maps validation failures to 422 with the field list; anything
// else is a store failure, reported with a fixed message and the cause kept
// for the request log.
func httpError(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, verr)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, errReportUnavailable).SetInternal(err)
}
