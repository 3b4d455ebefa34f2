package bloodreport

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/internal/platform/auth"
	"github.com/bloodlab/bloodlab/internal/platform/request"
	"github.com/bloodlab/bloodlab/pkg/pagination"
	"github.com/bloodlab/bloodlab/pkg/response"
)

type Handler struct {
	svc *Service
	pdf Renderer
}

func NewHandler(svc *Service, pdf Renderer) *Handler {
	return &Handler{svc: svc, pdf: pdf}
}

// RegisterRoutes mounts the report routes under /reports and again under
// /blood-reports.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	for _, prefix := range []string{"/reports", "/blood-reports"} {
		h.mount(api.Group(prefix))
	}
}

func (h *Handler) mount(g *echo.Group) {
	admin := auth.RequireRole(auth.RoleAdmin)

	g.GET("", h.ListReports)
	g.GET("/stats", h.Stats)
	g.GET("/date-range", h.DateRange)
	g.GET("/:id", h.GetReport)
	g.GET("/:id/preview", h.PreviewReport)
	g.GET("/:id/pdf", h.DownloadPDF)

	g.POST("", h.CreateReport, admin)
	g.POST("/bulk-delete", h.BulkDelete, admin)
	g.PUT("/:id", h.UpdateReport, admin)
	g.DELETE("/:id", h.DeleteReport, admin)
}

type listResult struct {
	Reports    []*Report       `json:"reports"`
	Pagination pagination.Meta `json:"pagination"`
}

func (h *Handler) CreateReport(c echo.Context) error {
	var req CreateRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	rep, err := h.svc.CreateReport(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return response.Created(c, "Blood report created successfully", rep)
}

func (h *Handler) ListReports(c echo.Context) error {
	f := ListFilter{
		PatientName:  c.QueryParam("patientName"),
		PatientPhone: c.QueryParam("patientPhone"),
		Status:       c.QueryParam("status"),
	}
	var err error
	if f.StartDate, err = request.Date(c, "startDate"); err != nil {
		return err
	}
	if f.EndDate, err = request.Date(c, "endDate"); err != nil {
		return err
	}

	items, meta, err := h.svc.ListReports(c.Request().Context(), f, pagination.FromContext(c))
	if err != nil {
		return err
	}
	return response.OK(c, listResult{Reports: items, Pagination: meta})
}

func (h *Handler) GetReport(c echo.Context) error {
	id, err := request.ID(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.GetReport(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, rep)
}

// PreviewReport returns the same payload as GetReport for the print view.
func (h *Handler) PreviewReport(c echo.Context) error {
	return h.GetReport(c)
}

func (h *Handler) UpdateReport(c echo.Context) error {
	id, err := request.ID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	rep, err := h.svc.UpdateReport(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return response.OKMessage(c, "Blood report updated successfully", rep)
}

func (h *Handler) DeleteReport(c echo.Context) error {
	id, err := request.ID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteReport(c.Request().Context(), id); err != nil {
		return err
	}
	return response.OKMessage(c, "Blood report deleted successfully", nil)
}

type bulkDeleteRequest struct {
	ReportIDs []int64 `json:"reportIds"`
}

func (h *Handler) BulkDelete(c echo.Context) error {
	var req bulkDeleteRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.BulkDelete(c.Request().Context(), req.ReportIDs)
	if err != nil {
		return err
	}
	return response.OKMessage(c, fmt.Sprintf("%d reports deleted successfully", len(res.Deleted)), res)
}

func (h *Handler) DateRange(c echo.Context) error {
	if c.QueryParam("startDate") == "" || c.QueryParam("endDate") == "" {
		return apperr.Validation("start date and end date are required", map[string]string{
			"startDate": "required", "endDate": "required",
		})
	}
	start, err := request.Date(c, "startDate")
	if err != nil {
		return err
	}
	end, err := request.Date(c, "endDate")
	if err != nil {
		return err
	}
	items, err := h.svc.ReportsByDateRange(c.Request().Context(), *start, *end)
	if err != nil {
		return err
	}
	return response.OK(c, items)
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context(), c.QueryParam("period"))
	if err != nil {
		return err
	}
	return response.OK(c, stats)
}

func (h *Handler) DownloadPDF(c echo.Context) error {
	id, err := request.ID(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	rep, err := h.svc.ExportPDF(c.Request().Context(), id, h.pdf, &buf)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=blood-report-%s.pdf", rep.ReportNumber))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}
