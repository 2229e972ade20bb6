package http

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	in "nexus_server/core/port/in"
	"nexus_server/infra/middleware"
	"nexus_server/pkg/apperr"
)

// EmailHandler serves the triage trigger and the analyzed-mail views.
type EmailHandler struct {
	emails in.EmailService
}

func NewEmailHandler(emails in.EmailService) *EmailHandler {
	return &EmailHandler{emails: emails}
}

func (h *EmailHandler) Register(router fiber.Router) {
	router.Post("/api/sincronizar-correos", h.Sync)
	router.Post("/api/analizar-historial-gmail", h.AnalyzeHistory)
	router.Post("/api/enviar-correo", h.Send)
	router.Get("/api/correos-pendientes", h.ListPending)
	router.Get("/api/correos-respondidos", h.ListAnswered)

	group := router.Group("/api/correos")
	group.Patch("/:id/marcar-leido", h.MarkRead)
	group.Patch("/:id/marcar-respondido", h.MarkAnswered)
	group.Patch("/:id/revertir-respondido", h.RevertAnswered)
}

// Sync runs the three-layer triage over the unread inbox.
func (h *EmailHandler) Sync(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	var req in.SyncEmailsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if req.GmailAccessToken == "" {
		return apperr.MissingField("gmail_access_token")
	}

	result, err := h.emails.SyncEmails(c.Context(), userID, &req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status":              "success",
		"estadisticas":        result.Estadisticas,
		"correos_importantes": result.CorreosImportantes,
		"top_correo":          result.TopCorreo,
	})
}

// AnalyzeHistory runs the one-shot mailbox pass that profiles frequent
// senders.
func (h *EmailHandler) AnalyzeHistory(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	var req in.SyncEmailsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if req.GmailAccessToken == "" {
		return apperr.MissingField("gmail_access_token")
	}

	result, err := h.emails.AnalyzeHistory(c.Context(), userID, &req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status":                "success",
		"total_correos":         result.TotalEmails,
		"remitentes_perfilados": result.SendersProfiled,
		"llamadas_llm":          result.LLMCalls,
		"ahorro_pct":            result.SavingsPct,
		"ya_procesado":          result.AlreadyDone,
	})
}

// Send dispatches one outbound reply through the mailbox.
func (h *EmailHandler) Send(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	var req in.SendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	if err := h.emails.SendEmail(c.Context(), userID, &req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success"})
}

// ListPending returns actionable analyzed emails. filtro=pendientes
// narrows to unread ones.
func (h *EmailHandler) ListPending(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	onlyPending := c.Query("filtro", "todos") == "pendientes"
	emails, err := h.emails.ListEmails(c.Context(), userID, onlyPending)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"correos": emails})
}

// ListAnswered returns the answered-mail history.
func (h *EmailHandler) ListAnswered(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	emails, total, err := h.emails.ListAnswered(c.Context(), userID, c.QueryInt("limite", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"correos": emails, "total": total})
}

func (h *EmailHandler) MarkRead(c *fiber.Ctx) error {
	userID, id, err := emailTarget(c)
	if err != nil {
		return err
	}
	if err := h.emails.MarkRead(c.Context(), userID, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"mensaje": "correo marcado como leído"})
}

type markAnsweredRequest struct {
	FechaRespuesta   string `json:"fecha_respuesta"`
	RespuestaEnviada string `json:"respuesta_enviada"`
}

func (h *EmailHandler) MarkAnswered(c *fiber.Ctx) error {
	userID, id, err := emailTarget(c)
	if err != nil {
		return err
	}

	var req markAnsweredRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	answeredAt := time.Time{}
	if req.FechaRespuesta != "" {
		parsed, err := time.Parse(time.RFC3339, req.FechaRespuesta)
		if err != nil {
			return apperr.InvalidInput("fecha_respuesta", "RFC3339 expected")
		}
		answeredAt = parsed
	}

	if err := h.emails.MarkAnswered(c.Context(), userID, id, answeredAt, req.RespuestaEnviada); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success"})
}

func (h *EmailHandler) RevertAnswered(c *fiber.Ctx) error {
	userID, id, err := emailTarget(c)
	if err != nil {
		return err
	}
	if err := h.emails.RevertAnswered(c.Context(), userID, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success"})
}

func emailTarget(c *fiber.Ctx) (uuid.UUID, int64, error) {
	uid, ok := middleware.UserID(c)
	if !ok {
		return uid, 0, apperr.Unauthorized("")
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return uid, 0, apperr.InvalidInput("id", "must be numeric")
	}
	return uid, id, nil
}
