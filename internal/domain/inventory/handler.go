package inventory

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carepoint/opd/internal/platform/apperr"
	"github.com/carepoint/opd/internal/platform/auth"
	"github.com/carepoint/opd/internal/platform/db"
	"github.com/carepoint/opd/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Doctors pick medicines while prescribing, so every role can read the catalogue.
	api.GET("/medicines", h.SearchMedicines)
	api.GET("/medicines/:id", h.GetMedicine)

	stores := api.Group("", auth.RequireRole(auth.RolePharmacist, auth.RoleStorekeeper))
	stores.POST("/medicines", h.CreateMedicine)
	stores.PUT("/medicines/:id", h.UpdateMedicine)
	stores.DELETE("/medicines/:id", h.DeleteMedicine)

	stores.GET("/suppliers", h.SearchSuppliers)
	stores.GET("/suppliers/:id", h.GetSupplier)
	stores.POST("/suppliers", h.CreateSupplier)
	stores.PUT("/suppliers/:id", h.UpdateSupplier)
	stores.DELETE("/suppliers/:id", h.DeleteSupplier)

	stores.GET("/stock", h.SearchStock)
	stores.GET("/stock/low", h.LowStock)
	stores.GET("/stock/:id", h.GetStockItem)
	stores.GET("/stock/:id/transactions", h.Ledger)
	stores.POST("/stock/:id/transactions", h.RecordTransaction)

	keeper := api.Group("", auth.RequireRole(auth.RoleStorekeeper))
	keeper.POST("/stock", h.CreateStockItem)
	keeper.PUT("/stock/:id", h.UpdateStockItem)
}

// writeError maps service errors onto HTTP status codes.
func writeError(err error, notFound string) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	case errors.Is(err, ErrMedicineExists), errors.Is(err, ErrSupplierExists),
		errors.Is(err, ErrStockItemExists), errors.Is(err, ErrInUse),
		errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrNoStockItem):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case apperr.IsInvalid(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Medicine Handlers --

func (h *Handler) CreateMedicine(c echo.Context) error {
	var m Medicine
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateMedicine(c.Request().Context(), &m); err != nil {
		return writeError(err, "medicine not found")
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedicine(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedicine(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "medicine not found")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var m Medicine
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.ID = id
	if err := h.svc.UpdateMedicine(c.Request().Context(), &m); err != nil {
		return writeError(err, "medicine not found")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedicine(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedicine(c.Request().Context(), id); err != nil {
		return writeError(err, "medicine not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchMedicines(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "name", "form", "active")
	meds, total, err := h.svc.SearchMedicines(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(meds, total, p.Limit, p.Offset))
}

// -- Supplier Handlers --

func (h *Handler) CreateSupplier(c echo.Context) error {
	var s Supplier
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateSupplier(c.Request().Context(), &s); err != nil {
		return writeError(err, "supplier not found")
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) GetSupplier(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.GetSupplier(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "supplier not found")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateSupplier(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var s Supplier
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.ID = id
	if err := h.svc.UpdateSupplier(c.Request().Context(), &s); err != nil {
		return writeError(err, "supplier not found")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteSupplier(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSupplier(c.Request().Context(), id); err != nil {
		return writeError(err, "supplier not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchSuppliers(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "name", "active")
	sups, total, err := h.svc.SearchSuppliers(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(sups, total, p.Limit, p.Offset))
}

// -- Stock Handlers --

func (h *Handler) CreateStockItem(c echo.Context) error {
	var item StockItem
	if err := c.Bind(&item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateStockItem(c.Request().Context(), &item); err != nil {
		return writeError(err, "stock item not found")
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) GetStockItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	item, err := h.svc.GetStockItem(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "stock item not found")
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) UpdateStockItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var item StockItem
	if err := c.Bind(&item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item.ID = id
	if err := h.svc.UpdateStockItem(c.Request().Context(), &item); err != nil {
		return writeError(err, "stock item not found")
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) SearchStock(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "name", "category", "supplier_id", "low")
	items, total, err := h.svc.SearchStock(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) LowStock(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.LowStock(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) Ledger(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	txs, total, err := h.svc.Ledger(c.Request().Context(), id, p.Limit, p.Offset)
	if err != nil {
		return writeError(err, "stock item not found")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(txs, total, p.Limit, p.Offset))
}

func (h *Handler) RecordTransaction(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req TransactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.svc.RecordTransaction(c.Request().Context(), id, req, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err, "stock item not found")
	}
	return c.JSON(http.StatusCreated, t)
}
