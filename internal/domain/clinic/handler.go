package clinic

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
	api.POST("/clinics", h.Create, auth.RequireRole(auth.RoleAdmin))
	api.GET("/clinics", h.List)
	api.GET("/clinics/:id", h.Get)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	cl, err := h.svc.Create(c.Request().Context(), auth.CallerFrom(c), p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, cl, "Clinic created successfully")
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	cl, err := h.svc.Get(c.Request().Context(), auth.CallerFrom(c), id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, cl, "")
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), auth.CallerFrom(c), pg)
	if err != nil {
		return err
	}
	return httpx.Page(c, items, pg, total)
}
