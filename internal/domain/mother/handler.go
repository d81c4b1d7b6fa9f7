package mother

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

	api.POST("/mothers", h.Create)
	api.GET("/mothers", h.List, staff)
	api.GET("/mothers/search", h.Search, staff)
	api.GET("/mothers/profile", h.Profile, auth.RequireRole(auth.RoleMother))
	api.GET("/mothers/:id", h.Get)
	api.PUT("/mothers/:id", h.Update)
	api.DELETE("/mothers/:id", h.Deactivate, staff)
	api.GET("/mothers/:id/summary", h.Summary)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	m, err := h.svc.Create(c.Request().Context(), auth.CallerFrom(c), p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, m, "Mother profile created successfully")
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	m, err := h.svc.Get(c.Request().Context(), auth.CallerFrom(c), id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, m, "")
}

func (h *Handler) Profile(c echo.Context) error {
	m, err := h.svc.GetForUser(c.Request().Context(), auth.CallerFrom(c))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, m, "")
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
	m, err := h.svc.Update(c.Request().Context(), auth.CallerFrom(c), id, p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, m, "Mother profile updated successfully")
}

func (h *Handler) Deactivate(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Deactivate(c.Request().Context(), auth.CallerFrom(c), id); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, nil, "Mother profile deactivated successfully")
}

func (h *Handler) List(c echo.Context) error {
	clinicID, err := httpx.OptionalIDQuery(c, "clinic_id")
	if err != nil {
		return err
	}
	f := Filter{ClinicID: clinicID, PregnancyStatus: c.QueryParam("status")}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), auth.CallerFrom(c), f, pg)
	if err != nil {
		return err
	}
	return httpx.Page(c, items, pg, total)
}

func (h *Handler) Search(c echo.Context) error {
	clinicID, err := httpx.OptionalIDQuery(c, "clinic_id")
	if err != nil {
		return err
	}
	items, err := h.svc.Search(c.Request().Context(), auth.CallerFrom(c), c.QueryParam("q"), clinicID)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, items, "")
}

func (h *Handler) Summary(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	sum, err := h.svc.PregnancySummary(c.Request().Context(), auth.CallerFrom(c), id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, sum, "")
}
