package child

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

	api.POST("/children", h.Create)
	api.GET("/children", h.List, staff)
	api.GET("/children/:id", h.Get)
	api.PUT("/children/:id", h.Update)
	api.DELETE("/children/:id", h.Delete, staff)
	api.POST("/children/:id/medical-records", h.AddMedicalRecord, staff)
	api.GET("/children/:id/medical-records", h.ListMedicalRecords)
	api.GET("/mothers/:id/children", h.ListByMother)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	ch, err := h.svc.Create(c.Request().Context(), auth.CallerFrom(c), p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, ch, "Child registered successfully")
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	ch, err := h.svc.Get(c.Request().Context(), auth.CallerFrom(c), id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, ch, "")
}

func (h *Handler) List(c echo.Context) error {
	motherID, err := httpx.OptionalIDQuery(c, "mother_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), auth.CallerFrom(c), motherID, pg)
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
	items, err := h.svc.ListByMother(c.Request().Context(), auth.CallerFrom(c), id)
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
	ch, err := h.svc.Update(c.Request().Context(), auth.CallerFrom(c), id, p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, ch, "Child updated successfully")
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), auth.CallerFrom(c), id); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, nil, "Child deleted successfully")
}

func (h *Handler) AddMedicalRecord(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.AddMedicalRecord(c.Request().Context(), auth.CallerFrom(c), id, p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, rec, "Medical record added successfully")
}

func (h *Handler) ListMedicalRecords(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListMedicalRecords(c.Request().Context(), auth.CallerFrom(c), id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, items, "")
}
