package domain

// IntentKind is the three-way routing decision of the intent gate.
type IntentKind string

const (
	IntentNoise IntentKind = "NOISE"
	IntentTask  IntentKind = "TASK"
	IntentValue IntentKind = "VALUE"
)

// Intent is the gate's classification of one utterance.
type Intent struct {
	Kind    IntentKind `json:"tipo"`
	Subtype string     `json:"subtipo,omitempty"`
	Urgency Urgency    `json:"urgencia"`
	// Fallback marks classifications produced by the rule-based path
	// after an LLM failure.
	Fallback bool `json:"-"`
}

// ValueResult is the value processor's LLM response.
type ValueResult struct {
	ResumenGuardar      string        `json:"resumen_guardar"`
	TipoEvento          string        `json:"tipo_evento"`
	AprendizajesUsuario []string      `json:"aprendizajes_usuario"`
	Tareas              []DerivedTask `json:"tareas"`
}

// DerivedTask is a task the value processor spotted inside valuable
// context.
type DerivedTask struct {
	Titulo      string `json:"titulo"`
	Prioridad   string `json:"prioridad"`
	Descripcion string `json:"descripcion"`
	Etiqueta    string `json:"etiqueta"`
}
