package vaccination

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

	api.POST("/vaccinations", h.Record, staff)
	api.GET("/vaccinations", h.List, staff)
	api.GET("/vaccinations/alerts", h.Alerts, staff)
	api.GET("/vaccinations/:id", h.Get)
	api.PUT("/vaccinations/:id", h.Update, staff)
	api.DELETE("/vaccinations/:id", h.Delete, staff)
	api.GET("/children/:id/vaccinations", h.ListByChild)
}

func (h *Handler) Record(c echo.Context) error {
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Record(c.Request().Context(), auth.CallerFrom(c), p)
	if err != nil {
		return err
	}
	msg := "Vaccination recorded successfully"
	if res.VisitID != nil {
		msg = "Vaccination recorded and follow-up visit scheduled"
	}
	return httpx.OK(c, http.StatusCreated, res, msg)
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
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), auth.CallerFrom(c), pg)
	if err != nil {
		return err
	}
	return httpx.Page(c, items, pg, total)
}

func (h *Handler) ListByChild(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListByChild(c.Request().Context(), auth.CallerFrom(c), id)
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
	return httpx.OK(c, http.StatusOK, v, "Vaccination updated successfully")
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := httpx.IDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), auth.CallerFrom(c), id); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, nil, "Vaccination deleted successfully")
}

func (h *Handler) Alerts(c echo.Context) error {
	alerts, err := h.svc.Alerts(c.Request().Context(), auth.CallerFrom(c))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, alerts, "")
}
