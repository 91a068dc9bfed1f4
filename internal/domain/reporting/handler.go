package reporting

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/carepoint/opd/internal/platform/auth"
	report "github.com/carepoint/opd/internal/platform/reporting"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.List)
	g.GET("/op-summary", h.OPSummary)
	g.GET("/revenue", h.Revenue)
	g.GET("/dispensing", h.Dispensing)
	g.GET("/treatments", h.Treatments)
	g.GET("/stock", h.Stock)
	g.GET("/:id", h.Describe)
}

// tabular is a report that can be written as a workbook.
type tabular interface {
	Tables() []report.Table
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, report.Catalog)
}

// Describe returns the definition of a single report.
func (h *Handler) Describe(c echo.Context) error {
	d := report.Find(c.Param("id"))
	if d == nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) rangeParam(c echo.Context) (Range, error) {
	r, err := h.svc.ParseRange(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return Range{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return r, nil
}

// respond writes data as JSON, or as a workbook when format=xlsx.
func respond(c echo.Context, name string, data tabular) error {
	switch c.QueryParam("format") {
	case "", "json":
		return c.JSON(http.StatusOK, data)
	case "xlsx":
		var buf bytes.Buffer
		if err := report.WriteXLSX(&buf, data.Tables()...); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.xlsx"`, name))
		return c.Blob(http.StatusOK, report.ContentTypeXLSX, buf.Bytes())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be json or xlsx")
	}
}

func fileName(id string, r Range) string {
	return fmt.Sprintf("%s-%s-%s", id, r.From.Format("20060102"), r.To.Format("20060102"))
}

func failed(err error) error {
	if errors.Is(err, ErrInvalidRange) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func (h *Handler) OPSummary(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.OPSummary(c.Request().Context(), r)
	if err != nil {
		return failed(err)
	}
	return respond(c, fileName("op-summary", r), out)
}

func (h *Handler) Revenue(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Revenue(c.Request().Context(), r)
	if err != nil {
		return failed(err)
	}
	return respond(c, fileName("revenue", r), out)
}

func (h *Handler) Dispensing(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Dispensing(c.Request().Context(), r)
	if err != nil {
		return failed(err)
	}
	return respond(c, fileName("dispensing", r), out)
}

func (h *Handler) Treatments(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Treatments(c.Request().Context(), r)
	if err != nil {
		return failed(err)
	}
	return respond(c, fileName("treatments", r), out)
}

func (h *Handler) Stock(c echo.Context) error {
	lowOnly := false
	if v := c.QueryParam("low_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "low_only must be a boolean")
		}
		lowOnly = b
	}
	out, err := h.svc.Stock(c.Request().Context(), lowOnly)
	if err != nil {
		return failed(err)
	}
	return respond(c, "stock-"+out.GeneratedAt.Format("20060102"), out)
}
