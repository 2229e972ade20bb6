package domain

import (
	"time"

	"github.com/google/uuid"
)

// WhatsAppMessage is one synced device message. The id comes from the
// device and is globally unique; re-uploads upsert on it.
type WhatsAppMessage struct {
	ID            string         `json:"id"`
	UserID        uuid.UUID      `json:"user_id"`
	ChatID        string         `json:"chat_id"`
	ChatName      string         `json:"chat_name"`
	Content       string         `json:"content"`
	Timestamp     time.Time      `json:"timestamp"`
	IsMine        bool           `json:"is_mine"`
	Kind          string         `json:"kind"` // text|audio|image|...
	DeviceID      string         `json:"device_id,omitempty"`
	Synced        bool           `json:"synced"`
	ProcessedByAI bool           `json:"processed_by_ai"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TranscribedPrefix marks message content replaced by an audio
// transcription.
const TranscribedPrefix = "[AUDIO TRANSCRITO] "

// ChatMemory is the per-chat running summary advanced by each brain
// pass. Unique on (user_id, chat_name).
type ChatMemory struct {
	ID             int64     `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	ChatName       string    `json:"chat_name"`
	CurrentSummary string    `json:"current_summary"`
	OpenTopics     string    `json:"open_topics,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// NoHistorySentinel seeds the first brain pass over a chat.
const NoHistorySentinel = "Sin historial previo"

// BrainResult is the LLM response for one chat inside a brain pass.
type BrainResult struct {
	NuevoResumen string      `json:"nuevo_resumen"`
	Tareas       []BrainTask `json:"tareas"`
	Intencion    string      `json:"intencion,omitempty"`
}

// BrainTask is one actionable item distilled from a chat window.
type BrainTask struct {
	Titulo      string `json:"titulo"`
	Descripcion string `json:"descripcion"`
	Prioridad   string `json:"prioridad"`
}

// ChatOperation summarises what the brain pass did to one chat.
type ChatOperation struct {
	Chat          string `json:"chat"`
	Mensajes      int    `json:"mensajes"`
	TareasCreadas int    `json:"tareas_creadas"`
	Error         string `json:"error,omitempty"`
}

// WhatsAppStats is the per-user sync counters view.
type WhatsAppStats struct {
	TotalMessages int `json:"total_mensajes"`
	Unprocessed   int `json:"sin_procesar"`
	Chats         int `json:"chats"`
	AlertsCreated int `json:"alertas_creadas"`
}
