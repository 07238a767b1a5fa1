package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the auth endpoints on g (/api/auth). Register, login
// and refresh are public; logout requires a bearer token.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/register/", h.Register)
	g.POST("/login/", h.Login)
	g.POST("/token/refresh/", h.Refresh)
	g.POST("/logout/", h.Logout)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		User:    u,
	})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	pair, u, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LoginResponse{
		Message: "Login successful",
		Tokens:  pair,
		User:    u,
	})
}

func (h *Handler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	access, err := h.svc.Refresh(c.Request().Context(), req.Refresh)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RefreshResponse{Access: access})
}

func (h *Handler) Logout(c echo.Context) error {
	caller, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return apperr.Authentication("authentication credentials were not provided")
	}
	var req RefreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.svc.Logout(c.Request().Context(), caller, req.Refresh); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		return apperr.Validation(map[string]string{"body": "request body must be valid JSON"})
	}
	return nil
}
