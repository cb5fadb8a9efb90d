package library

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/measurekit/measurekit/internal/domain/component"
	"github.com/measurekit/measurekit/internal/platform/auth"
	"github.com/measurekit/measurekit/pkg/criteria"
	"github.com/measurekit/measurekit/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("analyst", "reviewer"))
	read.GET("/components", h.ListComponents)
	read.GET("/components/:id", h.GetComponent)
	read.POST("/components/match", h.Match)

	write := api.Group("", auth.RequireRole("analyst"))
	write.POST("/components", h.CreateComponent)
	write.PUT("/components/:id/status", h.UpdateStatus)
	write.POST("/components/:id/sync", h.Sync)
	write.POST("/components/:id/fork", h.Fork)
	write.POST("/library/rebuild-usage", h.RebuildUsage)
}

func (h *Handler) CreateComponent(c echo.Context) error {
	var comp component.Component
	if err := c.Bind(&comp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateComponent(c.Request().Context(), &comp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, comp)
}

func (h *Handler) GetComponent(c echo.Context) error {
	comp, err := h.svc.GetComponent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "component not found")
	}
	return c.JSON(http.StatusOK, comp)
}

func (h *Handler) ListComponents(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListComponents(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req struct {
		Status component.Status `json:"status"`
		Note   string           `json:"note,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	comp, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status, req.Note)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, comp)
}

func (h *Handler) Match(c echo.Context) error {
	var elem criteria.DataElement
	if err := c.Bind(&elem); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Match(c.Request().Context(), &elem)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Sync(c echo.Context) error {
	var req SyncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Sync(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !res.Success {
		return c.JSON(http.StatusNotFound, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Fork(c echo.Context) error {
	var req struct {
		MeasureID string `json:"measureId"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.MeasureID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "measureId is required")
	}
	res, err := h.svc.Fork(c.Request().Context(), c.Param("id"), req.MeasureID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !res.Success {
		return c.JSON(http.StatusNotFound, res)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) RebuildUsage(c echo.Context) error {
	report, err := h.svc.RebuildUsage(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
