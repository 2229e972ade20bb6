package llm

import (
	"strings"
	"testing"
)

func TestDecodeJSONStripsFences(t *testing.T) {
	var dst struct {
		Tipo string `json:"tipo"`
	}

	inputs := []string{
		`{"tipo":"TASK"}`,
		"```json\n{\"tipo\":\"TASK\"}\n```",
		"```\n{\"tipo\":\"TASK\"}\n```",
		"  {\"tipo\":\"TASK\"}  ",
	}

	for _, in := range inputs {
		dst.Tipo = ""
		if err := decodeJSON(in, &dst); err != nil {
			t.Fatalf("decodeJSON(%q) = %v", in, err)
		}
		if dst.Tipo != "TASK" {
			t.Errorf("decodeJSON(%q) tipo = %q", in, dst.Tipo)
		}
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	var dst map[string]any
	if err := decodeJSON("lo siento, no puedo", &dst); err == nil {
		t.Error("expected error for non-JSON response")
	}
}

func TestDecodeSubActions(t *testing.T) {
	bare := `[{"titulo":"Alarma","tipo_accion":"poner_alarma","prioridad":"ALTA","fecha_iso":"2026-02-05T14:00:00"}]`
	actions, err := decodeSubActions(bare)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].TipoAccion != "poner_alarma" {
		t.Errorf("bare array decoded wrong: %+v", actions)
	}

	wrapped := `{"sub_acciones":[{"titulo":"Reunión","tipo_accion":"agendar_calendario","prioridad":"MEDIA","fecha_iso":"2026-02-05T17:00:00"}]}`
	actions, err = decodeSubActions(wrapped)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].Titulo != "Reunión" {
		t.Errorf("wrapped object decoded wrong: %+v", actions)
	}

	fenced := "```json\n" + bare + "\n```"
	if actions, err = decodeSubActions(fenced); err != nil || len(actions) != 1 {
		t.Errorf("fenced array decoded wrong: %v %+v", err, actions)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hola", 10); got != "hola" {
		t.Errorf("short string changed: %q", got)
	}
	long := strings.Repeat("a", 20)
	if got := truncate(long, 10); got != strings.Repeat("a", 10)+"..." {
		t.Errorf("truncate = %q", got)
	}
}
