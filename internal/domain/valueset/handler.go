package valueset

import (
	"net/http"

	"github.com/labstack/echo/v4"

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
	read.GET("/valuesets", h.ListValueSets)
	read.GET("/valuesets/:oid", h.GetValueSet)

	write := api.Group("", auth.RequireRole("analyst"))
	write.POST("/valuesets", h.UpsertValueSet)
}

func (h *Handler) ListValueSets(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListValueSets(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetValueSet(c echo.Context) error {
	vs, err := h.svc.GetByOID(c.Request().Context(), c.Param("oid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "value set not found")
	}
	return c.JSON(http.StatusOK, vs)
}

func (h *Handler) UpsertValueSet(c echo.Context) error {
	var ref criteria.ValueSetRef
	if err := c.Bind(&ref); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpsertRef(c.Request().Context(), ref); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
