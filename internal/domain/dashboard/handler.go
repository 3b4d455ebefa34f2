package dashboard

import (
	"github.com/labstack/echo/v4"

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

// RegisterRoutes mounts /dashboard and the admin-only /patients/stats.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard")
	g.GET("/stats", h.Stats)
	g.GET("/monthly-trend", h.MonthlyTrend)
	g.GET("/gender-distribution", h.GenderDistribution)
	g.GET("/age-group-distribution", h.AgeGroupDistribution)
	g.GET("/reports-by-status", h.ReportsByStatus)
	g.GET("/top-tests", h.TopTests)
	g.GET("/patient-growth", h.PatientGrowth)
	g.GET("/custom-date-range", h.CustomDateRange)
	g.GET("/summary", h.Summary)

	api.GET("/patients/stats", h.PatientStats, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, stats)
}

func (h *Handler) MonthlyTrend(c echo.Context) error {
	out, err := h.svc.MonthlyTrend(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, out)
}

func (h *Handler) GenderDistribution(c echo.Context) error {
	out, err := h.svc.GenderDistribution(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, out)
}

func (h *Handler) AgeGroupDistribution(c echo.Context) error {
	out, err := h.svc.AgeGroupDistribution(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, out)
}

func (h *Handler) ReportsByStatus(c echo.Context) error {
	out, err := h.svc.ReportsByStatus(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, out)
}

func (h *Handler) TopTests(c echo.Context) error {
	out, err := h.svc.TopTests(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, out)
}

func (h *Handler) PatientGrowth(c echo.Context) error {
	out, err := h.svc.PatientGrowth(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, out)
}

func (h *Handler) CustomDateRange(c echo.Context) error {
	start, err := request.Date(c, "startDate")
	if err != nil {
		return err
	}
	end, err := request.Date(c, "endDate")
	if err != nil {
		return err
	}
	if err := validateRange(start, end); err != nil {
		return err
	}
	out, err := h.svc.CustomDateRange(c.Request().Context(), *start, *end)
	if err != nil {
		return err
	}
	return response.OK(c, out)
}

func (h *Handler) Summary(c echo.Context) error {
	out, err := h.svc.Summary(c.Request().Context(), c.QueryParam("period"))
	if err != nil {
		return err
	}
	return response.OK(c, out)
}

func (h *Handler) PatientStats(c echo.Context) error {
	out, err := h.svc.PatientStats(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, out)
}
