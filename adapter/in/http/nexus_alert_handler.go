package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	in "nexus_server/core/port/in"
	"nexus_server/infra/middleware"
	"nexus_server/pkg/apperr"
)

// AlertHandler serves the agenda views and state transitions.
type AlertHandler struct {
	alerts in.AlertService
}

func NewAlertHandler(alerts in.AlertService) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

func (h *AlertHandler) Register(router fiber.Router) {
	group := router.Group("/api/alertas")
	group.Get("/", h.List)
	group.Get("/prioritarias", h.ListPriority)
	group.Patch("/:id", h.Update)
}

// List returns the user's alerts, optionally filtered by estado.
func (h *AlertHandler) List(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	alerts, err := h.alerts.ListAlerts(c.Context(), userID, c.Query("estado", "todas"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"alertas": alerts})
}

// ListPriority returns the pending agenda ordered by urgency.
func (h *AlertHandler) ListPriority(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	alerts, total, err := h.alerts.ListPriorityAlerts(c.Context(), userID, c.QueryInt("limite", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"alertas": alerts, "total": total})
}

type updateAlertRequest struct {
	Estado   *string `json:"estado"`
	Etiqueta *string `json:"etiqueta"`
}

// Update patches estado and/or etiqueta of one alert.
func (h *AlertHandler) Update(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return apperr.InvalidInput("id", "must be numeric")
	}

	var req updateAlertRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if req.Estado == nil && req.Etiqueta == nil {
		return apperr.BadRequest("nothing to update")
	}

	alert, err := h.alerts.UpdateAlert(c.Context(), userID, id, req.Estado, req.Etiqueta)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "data": alert})
}
