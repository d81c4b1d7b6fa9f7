package visit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/httpx"
	"github.com/mcare/mcare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole(auth.RoleHealthWorker)

	api.POST("/visits", h.Create, staff)
	api.GET("/visits", h.List, staff)
	api.GET("/visits/:id", h.Get)
	api.PUT("/visits/:id", h.Update, staff)
	api.PATCH("/visits/:id/status", h.UpdateStatus, staff)
	api.DELETE("/visits/:id", h.Delete, staff)
	api.GET("/mothers/:id/visits", h.ListByMother)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Create(c.Request().Context(), auth.CallerFrom(c), p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, v, "Visit created successfully")
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), auth.CallerFrom(c), id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, v, "")
}

func (h *Handler) List(c echo.Context) error {
	f := Filter{Status: c.QueryParam("status"), VisitType: c.QueryParam("visit_type")}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), auth.CallerFrom(c), f, pg)
	if err != nil {
		return err
	}
	return httpx.Page(c, items, pg, total)
}

func (h *Handler) ListByMother(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	limit := pagination.Limit(c, DefaultMotherLimit, pagination.MaxPerPage)
	items, err := h.svc.ListByMother(c.Request().Context(), auth.CallerFrom(c), id, limit)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, items, "")
}

func (h *Handler) Update(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Update(c.Request().Context(), auth.CallerFrom(c), id, p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, v, "Visit updated successfully")
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	v, err := h.svc.UpdateStatus(c.Request().Context(), auth.CallerFrom(c), id, p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, v, "Visit status updated successfully")
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), auth.CallerFrom(c), id); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, nil, "Visit deleted successfully")
}
