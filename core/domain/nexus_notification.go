package domain

import (
	"github.com/goccy/go-json"
)

// PushNotification is one outbound push. Data values must be plain
// strings on the wire; complex values are JSON-stringified first.
type PushNotification struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Known data-payload keys.
const (
	PushKeyTipo        = "tipo"
	PushKeyAlertaID    = "alerta_id"
	PushKeyAccionesJSON = "acciones_json"
	PushKeyMetadata    = "metadata"
	PushKeyIrA         = "ir_a"
	PushKeyClickAction = "click_action"
	PushKeyAutoExec    = "ejecutar_automatico"
)

// SetJSON stores a complex value under key as a JSON string.
func (n *PushNotification) SetJSON(key string, value any) {
	if n.Data == nil {
		n.Data = make(map[string]string)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	n.Data[key] = string(raw)
}

// Set stores a plain string value.
func (n *PushNotification) Set(key, value string) {
	if n.Data == nil {
		n.Data = make(map[string]string)
	}
	n.Data[key] = value
}
