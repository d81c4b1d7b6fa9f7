package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the auth and user endpoints. limiter guards the
// unauthenticated endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group, limiter echo.MiddlewareFunc) {
	var guard []echo.MiddlewareFunc
	if limiter != nil {
		guard = append(guard, limiter)
	}
	api.POST("/auth/register", h.Register, guard...)
	api.POST("/auth/login", h.Login, guard...)

	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", h.Me)
	api.POST("/users", h.CreateUser, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Register(c echo.Context) error {
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Register(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, u, "User registered successfully")
}

func (h *Handler) Login(c echo.Context) error {
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.Login(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, sess, "Login successful")
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), auth.CallerFrom(c)); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, nil, "Logged out successfully")
}

func (h *Handler) Me(c echo.Context) error {
	prof, err := h.svc.Me(c.Request().Context(), auth.CallerFrom(c))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, prof, "")
}

func (h *Handler) CreateUser(c echo.Context) error {
	p, err := httpx.BindPayload(c)
	if err != nil {
		return err
	}
	u, err := h.svc.CreateUser(c.Request().Context(), auth.CallerFrom(c), p)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, u, "User created successfully")
}
