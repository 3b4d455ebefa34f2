package patient

import (
	"github.com/labstack/echo/v4"

	"github.com/bloodlab/bloodlab/internal/platform/auth"
	"github.com/bloodlab/bloodlab/internal/platform/request"
	"github.com/bloodlab/bloodlab/pkg/pagination"
	"github.com/bloodlab/bloodlab/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts /patients on an authenticated group. Reads are open
// to any signed-in user; writes need admin.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients")
	g.GET("", h.ListPatients)
	g.GET("/search", h.SearchPatients)
	g.GET("/:id", h.GetPatient)

	admin := auth.RequireRole(auth.RoleAdmin)
	g.POST("", h.CreatePatient, admin)
	g.PUT("/:id", h.UpdatePatient, admin)
	g.DELETE("/:id", h.DeletePatient, admin)
}

type listResult struct {
	Patients   []*Patient      `json:"patients"`
	Pagination pagination.Meta `json:"pagination"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var in Input
	if err := request.Bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return response.Created(c, "Patient created successfully", p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := request.ID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	f := ListFilter{
		Name:   c.QueryParam("name"),
		Phone:  c.QueryParam("phone"),
		Gender: c.QueryParam("gender"),
	}
	items, meta, err := h.svc.ListPatients(c.Request().Context(), f, pagination.FromContext(c))
	if err != nil {
		return err
	}
	return response.OK(c, listResult{Patients: items, Pagination: meta})
}

func (h *Handler) SearchPatients(c echo.Context) error {
	items, err := h.svc.SearchPatients(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return err
	}
	return response.OK(c, items)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := request.ID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := request.Bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return response.OKMessage(c, "Patient updated successfully", p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := request.ID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return err
	}
	return response.OKMessage(c, "Patient deleted successfully", nil)
}
