// Package http wires the HTTP surface to the inbound ports.
package http

import (
	"io"

	"github.com/gofiber/fiber/v2"

	in "nexus_server/core/port/in"
	"nexus_server/infra/middleware"
	"nexus_server/pkg/apperr"
	"nexus_server/pkg/logger"
)

const maxAnalyzeFiles = 5

// errDBResponse is the shape the mobile client expects when the alert
// insert path hits a data-integrity failure after the provision retry.
var errDBResponse = fiber.Map{
	"status":    "error_db",
	"respuesta": "Error de sincronización con tu cuenta. Por favor cierra sesión y vuelve a entrar (relogin).",
}

// ChatHandler serves the conversational endpoints and the telco
// webhook.
type ChatHandler struct {
	chat in.ChatService
	log  *logger.Logger
}

func NewChatHandler(chat in.ChatService) *ChatHandler {
	return &ChatHandler{
		chat: chat,
		log:  logger.WithField("handler", "chat"),
	}
}

// Register mounts the authenticated chat routes.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Post("/chat", h.Chat)
	router.Post("/api/analizar", h.AnalyzeFiles)
}

// RegisterPublic mounts the unauthenticated webhook.
func (h *ChatHandler) RegisterPublic(router fiber.Router) {
	router.Post("/webhook", h.Webhook)
}

type chatRequest struct {
	Mensaje      string `json:"mensaje"`
	ModoProfundo bool   `json:"modo_profundo"`
}

// Chat runs one utterance through the intent gate.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if req.Mensaje == "" {
		return apperr.MissingField("mensaje")
	}

	result, err := h.chat.HandleChat(c.Context(), userID, middleware.UserEmail(c), req.Mensaje, req.ModoProfundo)
	if err != nil {
		if apperr.IsDataIntegrity(err) {
			return c.Status(fiber.StatusInternalServerError).JSON(errDBResponse)
		}
		return err
	}
	return c.JSON(result)
}

// AnalyzeFiles runs one LLM analysis over the uploaded documents.
func (h *ChatHandler) AnalyzeFiles(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return apperr.BadRequest("multipart form expected")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return apperr.MissingField("files")
	}
	if len(files) > maxAnalyzeFiles {
		files = files[:maxAnalyzeFiles]
	}

	contents := make([]string, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			return apperr.BadRequest("unreadable upload: " + header.Filename)
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return apperr.BadRequest("unreadable upload: " + header.Filename)
		}
		contents = append(contents, string(data))
	}

	result, err := h.chat.AnalyzeFiles(c.Context(), userID, middleware.UserEmail(c), contents)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "data": result})
}

// Webhook ingests the Twilio-style form post. The telco retries on
// non-200, so failures are swallowed and the empty TwiML response goes
// back regardless.
func (h *ChatHandler) Webhook(c *fiber.Ctx) error {
	body := c.FormValue("Body")
	if body != "" {
		if err := h.chat.HandleWebhookMessage(c.Context(), body); err != nil {
			h.log.WithError(err).Warn("webhook message not processed")
		}
	}

	c.Set(fiber.HeaderContentType, "text/xml")
	return c.SendString("<Response></Response>")
}
