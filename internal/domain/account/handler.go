package account

import (
	"github.com/labstack/echo/v4"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/internal/platform/auth"
	"github.com/bloodlab/bloodlab/internal/platform/request"
	"github.com/bloodlab/bloodlab/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the endpoints that need no token.
func (h *Handler) RegisterPublicRoutes(api *echo.Group) {
	g := api.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
}

// RegisterRoutes mounts the signed-in user's own account endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/auth")
	g.GET("/profile", h.GetProfile)
	g.PUT("/profile", h.UpdateProfile)
	g.POST("/change-password", h.ChangePassword)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return response.Created(c, "User registered successfully", res)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return response.OKMessage(c, "Login successful", res)
}

func (h *Handler) GetProfile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Profile(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return response.OK(c, u)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var in ProfileUpdate
	if err := request.Bind(c, &in); err != nil {
		return err
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), userID, in)
	if err != nil {
		return err
	}
	return response.OKMessage(c, "Profile updated successfully", u)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req ChangePasswordRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request().Context(), userID, req); err != nil {
		return err
	}
	return response.OKMessage(c, "Password changed successfully", nil)
}

func currentUser(c echo.Context) (int64, error) {
	id := auth.UserIDFromContext(c.Request().Context())
	if id == 0 {
		return 0, apperr.Unauthorized("authentication required")
	}
	return id, nil
}
