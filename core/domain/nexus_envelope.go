package domain

// ActionType is the closed action vocabulary of the deterministic
// extractor, in its wire form.
type ActionType string

const (
	ActionAlarm       ActionType = "alarma"
	ActionCalendar    ActionType = "agendar_calendario"
	ActionMeet        ActionType = "crear_meet"
	ActionLocation    ActionType = "ver_ubicacion"
	ActionCall        ActionType = "llamar"
	ActionWhatsApp    ActionType = "whatsapp"
	ActionEmail       ActionType = "email"
	ActionPayment     ActionType = "pago"
	ActionGeneralTask ActionType = "tarea_general"
	ActionMultiple    ActionType = "multiple"
)

// SuggestedAction values the rule table can emit.
const (
	SuggestPonerAlarma       = "poner_alarma"
	SuggestAgendarCalendario = "agendar_calendario"
	SuggestCrearMeet         = "crear_meet"
	SuggestVerUbicacion      = "ver_ubicacion"
	SuggestLlamar            = "llamar"
	SuggestWhatsApp          = "whatsapp"
	SuggestEmail             = "email"
	SuggestAbrirYape         = "abrir_yape"
)

// EnvelopeDateTime is the resolved calendar slot of an utterance.
type EnvelopeDateTime struct {
	Fecha     string `json:"fecha"`     // YYYY-MM-DD
	Hora      string `json:"hora"`      // HH:MM:SS
	Timestamp string `json:"timestamp"` // YYYY-MM-DDTHH:MM:SS-05:00
}

// EnvelopeLocation is a detected address or known place.
type EnvelopeLocation struct {
	Direccion   string `json:"direccion,omitempty"`
	LugarNombre string `json:"lugar_nombre,omitempty"`
}

// EnvelopePerson is a detected contact reference.
type EnvelopePerson struct {
	Nombre   string `json:"nombre"`
	Telefono string `json:"telefono,omitempty"` // E.164, +51 default
	Email    string `json:"email,omitempty"`
}

// EnvelopeDetails carries free-form extraction detail.
type EnvelopeDetails struct {
	Tema            string `json:"tema,omitempty"`
	DuracionMinutos int    `json:"duracion_minutos,omitempty"`
	Notas           string `json:"notas,omitempty"`
}

// ScheduledAction is one dated sub-action inside an action bundle.
type ScheduledAction struct {
	Tipo                 string `json:"tipo"`
	Titulo               string `json:"titulo"`
	FechaHoraEspecifica  string `json:"fecha_hora_especifica"`
	DatoExtra            string `json:"dato_extra,omitempty"`
}

// Envelope is the structured extraction produced by the deterministic
// pre-pass, later fused with LLM output and stored in Alert.Metadata.
type Envelope struct {
	FechaHora           *EnvelopeDateTime `json:"fecha_hora,omitempty"`
	HoraAlarma          *string           `json:"hora_alarma,omitempty"`
	TimestampAlarma     *string           `json:"timestamp_alarma,omitempty"`
	Ubicacion           *EnvelopeLocation `json:"ubicacion,omitempty"`
	Personas            []EnvelopePerson  `json:"personas,omitempty"`
	TipoAccion          ActionType        `json:"tipo_accion"`
	Detalles            *EnvelopeDetails  `json:"detalles,omitempty"`
	AccionesSugeridas   []string          `json:"acciones_sugeridas,omitempty"`
	AccionesProgramadas []ScheduledAction `json:"acciones_programadas,omitempty"`
	Completitud         int               `json:"completitud"`
	LinkMeet            *string           `json:"link_meet,omitempty"`
}

// HasDate reports whether a calendar date was resolved.
func (e *Envelope) HasDate() bool {
	return e.FechaHora != nil && e.FechaHora.Fecha != ""
}

// HasLocation reports whether any location was detected.
func (e *Envelope) HasLocation() bool {
	return e.Ubicacion != nil && (e.Ubicacion.Direccion != "" || e.Ubicacion.LugarNombre != "")
}

// SubAction is one element of the task extractor's LLM response.
type SubAction struct {
	Titulo     string `json:"titulo"`
	Descripcion string `json:"descripcion"`
	TipoAccion string `json:"tipo_accion"` // poner_alarma|agendar_calendario|crear_meet|ver_ubicacion
	Prioridad  string `json:"prioridad"`   // ALTA|MEDIA
	Etiqueta   string `json:"etiqueta"`
	FechaISO   string `json:"fecha_iso"` // YYYY-MM-DDTHH:MM:SS local
	DatoExtra  string `json:"dato_extra,omitempty"`
}

// MeetPlaceholder is the placeholder link recorded for crear_meet
// sub-actions until a store-side trigger rewrites it.
const MeetPlaceholder = "https://meet.google.com/new"
