package reports

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roadwatch/roadwatch/internal/apperror"
)

// Handler exposes report intake and administration over JSON HTTP.
type Handler struct {
	service ReportService
}

// NewHandler creates the reports HTTP handler.
func NewHandler(service ReportService) *Handler {
	return &Handler{service: service}
}

// Create handles POST /api/reports (public intake).
func (h *Handler) Create(c echo.Context) error {
	var req CreateReportRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body")
	}

	report, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, report)
}

// List handles GET /api/reports (public browse).
func (h *Handler) List(c echo.Context) error {
	reports, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}

	if reports == nil {
		reports = []PotholeReport{}
	}
	return c.JSON(http.StatusOK, reports)
}

// Resolve handles POST /api/reports/:id/resolve (admin only).
func (h *Handler) Resolve(c echo.Context) error {
	if err := h.service.Resolve(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Report marked as resolved",
	})
}

// Delete handles DELETE /api/reports/:id (admin only).
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Report deleted",
	})
}
