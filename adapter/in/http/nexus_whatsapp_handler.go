package http

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"nexus_server/core/domain"
	in "nexus_server/core/port/in"
	"nexus_server/infra/middleware"
	"nexus_server/pkg/apperr"
	"nexus_server/pkg/logger"
)

// WhatsAppHandler serves the device sync surface.
type WhatsAppHandler struct {
	whatsapp in.WhatsAppService
	maxBatch int
	log      *logger.Logger
}

func NewWhatsAppHandler(whatsapp in.WhatsAppService, maxBatch int) *WhatsAppHandler {
	return &WhatsAppHandler{
		whatsapp: whatsapp,
		maxBatch: maxBatch,
		log:      logger.WithField("handler", "whatsapp"),
	}
}

// Register mounts the bearer-protected device routes.
func (h *WhatsAppHandler) Register(router fiber.Router) {
	group := router.Group("/nexus")
	group.Post("/sync/batch", h.SyncBatch)
	group.Post("/cerebro/activar", h.ActivateBrain)
	group.Post("/transcribir_audio", h.TranscribeAudio)
}

// RegisterDevice mounts the routes that additionally require the
// shared x-api-key header on top of the bearer token.
func (h *WhatsAppHandler) RegisterDevice(router fiber.Router) {
	router.Get("/nexus/estadisticas/:user_id", h.Stats)
}

type syncMessage struct {
	ID         string `json:"id"`
	ChatID     string `json:"chat_id"`
	ChatNombre string `json:"chat_nombre"`
	Contenido  string `json:"contenido"`
	Timestamp  int64  `json:"timestamp"` // unix millis
	EsMio      bool   `json:"es_mio"`
	Tipo       string `json:"tipo"`
}

// SyncBatch bulk-upserts one device batch. The body may arrive
// gzip-encoded; either way it is a JSON array of messages.
func (h *WhatsAppHandler) SyncBatch(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	raw, err := decodeBody(c)
	if err != nil {
		return apperr.BadRequest("unreadable body")
	}

	var incoming []syncMessage
	if err := json.Unmarshal(raw, &incoming); err != nil {
		return apperr.BadRequest("invalid message batch")
	}
	if len(incoming) > h.maxBatch {
		return apperr.InvalidInput("batch", "too many messages")
	}

	messages := make([]*domain.WhatsAppMessage, len(incoming))
	for i, msg := range incoming {
		messages[i] = &domain.WhatsAppMessage{
			ID:        msg.ID,
			ChatID:    msg.ChatID,
			ChatName:  msg.ChatNombre,
			Content:   msg.Contenido,
			Timestamp: time.UnixMilli(msg.Timestamp),
			IsMine:    msg.EsMio,
			Kind:      msg.Tipo,
		}
	}

	written, err := h.whatsapp.IngestBatch(c.Context(), userID, c.Get("x-device-id"), messages)
	if err != nil {
		return err
	}

	h.log.Debug("batch ingested: declared=%s received=%d written=%d",
		c.Get("x-batch-size"), len(messages), written)
	return c.JSON(fiber.Map{"status": "success", "mensajes_guardados": written})
}

// ActivateBrain runs the distillation pass over every unprocessed
// message for the caller.
func (h *WhatsAppHandler) ActivateBrain(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	operations, err := h.whatsapp.RunBrain(c.Context(), userID)
	if err != nil {
		return err
	}
	if operations == nil {
		return c.JSON(fiber.Map{"status": "debounced", "resumen_operacion": []domain.ChatOperation{}})
	}
	return c.JSON(fiber.Map{"status": "success", "resumen_operacion": operations})
}

// Stats returns the caller's sync counters. The path user_id must
// match the token subject; the shared app password alone never grants
// access to another user's counters.
func (h *WhatsAppHandler) Stats(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	target, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return apperr.InvalidInput("user_id", "must be a uuid")
	}
	if target != userID {
		return apperr.Forbidden("")
	}

	stats, err := h.whatsapp.GetStats(c.Context(), target)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// TranscribeAudio stores the uploaded voice note in a temp file and
// schedules background transcription.
func (h *WhatsAppHandler) TranscribeAudio(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.Unauthorized("")
	}

	messageID := c.FormValue("mensaje_id")
	if messageID == "" {
		return apperr.MissingField("mensaje_id")
	}
	chatName := c.FormValue("chat_nombre")

	file, err := c.FormFile("archivo")
	if err != nil {
		return apperr.MissingField("archivo")
	}

	tmpPath := filepath.Join(os.TempDir(), "nexus_audio_"+uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveFile(file, tmpPath); err != nil {
		return apperr.InternalWithError(err)
	}

	h.whatsapp.TranscribeAudio(c.Context(), userID, messageID, chatName, tmpPath)
	return c.JSON(fiber.Map{"status": "encolado"})
}

// decodeBody returns the request body, transparently gunzipping when
// the client declared gzip and the payload really is gzip. Some fiber
// versions already decompress, hence the magic-byte check.
func decodeBody(c *fiber.Ctx) ([]byte, error) {
	raw := c.Body()
	if c.Get(fiber.HeaderContentEncoding) != "gzip" {
		return raw, nil
	}
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		return raw, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
