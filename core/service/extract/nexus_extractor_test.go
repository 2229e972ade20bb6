package extract

import (
	"reflect"
	"testing"
	"time"

	"nexus_server/core/domain"
)

// reference: Wednesday 2026-02-04 10:00 Lima
func refNow() time.Time {
	return time.Date(2026, 2, 4, 10, 0, 0, 0, Lima())
}

func TestExtractDateTime(t *testing.T) {
	e := New()
	now := refNow()

	tests := []struct {
		name     string
		text     string
		wantDate string
		wantHour string
	}{
		{"explicit text date", "reunión el 31 de enero del 2026", "2026-01-31", "09:00:00"},
		{"explicit slash date", "cita el 15/03/2026 a las 10:30", "2026-03-15", "10:30:00"},
		{"explicit iso date", "entrega 2026-12-01", "2026-12-01", "09:00:00"},
		{"hoy", "paga la luz hoy a las 8", "2026-02-04", "08:00:00"},
		{"mañana", "reunión mañana", "2026-02-05", "09:00:00"},
		{"pasado mañana", "cita pasado mañana a las 11:00", "2026-02-06", "11:00:00"},
		{"colloquial afternoon", "entrevista mañana a las 5 de la tarde", "2026-02-05", "17:00:00"},
		{"colloquial morning keeps hour", "despiértame mañana a las 6 de la mañana", "2026-02-05", "06:00:00"},
		{"colloquial night", "cena mañana a las 8 de la noche", "2026-02-05", "20:00:00"},
		{"ampm", "reunión mañana 2pm", "2026-02-05", "14:00:00"},
		{"24h", "reunión mañana 17:45", "2026-02-05", "17:45:00"},
		{"bare a las low is afternoon", "cita mañana a las 3", "2026-02-05", "15:00:00"},
		{"bare a las high is morning", "cita mañana a las 8", "2026-02-05", "08:00:00"},
		{"fuzzy short no year", "cita el 20 de marzo", "2026-03-20", "09:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.ExtractDateTime(tt.text, now)
			if got == nil {
				t.Fatalf("ExtractDateTime(%q) = nil", tt.text)
			}
			if got.Fecha != tt.wantDate {
				t.Errorf("fecha = %s, want %s", got.Fecha, tt.wantDate)
			}
			if got.Hora != tt.wantHour {
				t.Errorf("hora = %s, want %s", got.Hora, tt.wantHour)
			}
			wantTS := tt.wantDate + "T" + tt.wantHour + LimaOffset
			if got.Timestamp != wantTS {
				t.Errorf("timestamp = %s, want %s", got.Timestamp, wantTS)
			}
		})
	}
}

func TestExtractDateTimeNoDate(t *testing.T) {
	e := New()
	if got := e.ExtractDateTime("hola como estas", refNow()); got != nil {
		t.Errorf("expected nil envelope, got %+v", got)
	}
}

func TestWeekdayResolution(t *testing.T) {
	e := New()
	now := refNow() // Wednesday

	days := map[string]time.Weekday{
		"lunes":     time.Monday,
		"martes":    time.Tuesday,
		"miércoles": time.Wednesday,
		"jueves":    time.Thursday,
		"viernes":   time.Friday,
		"sábado":    time.Saturday,
		"domingo":   time.Sunday,
	}

	for name, wd := range days {
		got := e.ExtractDateTime("reunión el "+name, now)
		if got == nil {
			t.Fatalf("no date for weekday %s", name)
		}
		d, err := time.ParseInLocation("2006-01-02", got.Fecha, Lima())
		if err != nil {
			t.Fatal(err)
		}
		if d.Weekday() != wd {
			t.Errorf("%s resolved to %s (%s)", name, got.Fecha, d.Weekday())
		}
		diff := int(d.Sub(midnight(now)).Hours() / 24)
		if diff <= 0 || diff > 7 {
			t.Errorf("%s: day delta %d out of (0,7]", name, diff)
		}
	}

	// Same weekday maps to next week, never today.
	got := e.ExtractDateTime("reunión el miércoles", now)
	if got.Fecha != "2026-02-11" {
		t.Errorf("same-day weekday = %s, want 2026-02-11", got.Fecha)
	}
}

func TestPhoneNormalization(t *testing.T) {
	e := New()

	tests := []struct {
		text string
		want string
	}{
		{"llama al 987654321", "+51987654321"},
		{"llama al +51 987654321", "+51987654321"},
		{"llama al +51987654321", "+51987654321"},
	}

	for _, tt := range tests {
		persons := e.ExtractPersons(tt.text)
		if len(persons) != 1 {
			t.Fatalf("ExtractPersons(%q) = %d entries, want 1", tt.text, len(persons))
		}
		if persons[0].Telefono != tt.want {
			t.Errorf("phone = %s, want %s", persons[0].Telefono, tt.want)
		}
		if persons[0].Nombre != "Contacto" {
			t.Errorf("unnamed contact = %s, want Contacto", persons[0].Nombre)
		}
	}
}

func TestExtractPersonsPairing(t *testing.T) {
	e := New()
	persons := e.ExtractPersons("Reunión con Carlos Méndez, su número es 987654321 y su correo carlos@acme.pe")
	if len(persons) != 1 {
		t.Fatalf("got %d persons, want 1", len(persons))
	}
	p := persons[0]
	if p.Nombre != "Carlos Méndez" {
		t.Errorf("nombre = %s", p.Nombre)
	}
	if p.Telefono != "+51987654321" {
		t.Errorf("telefono = %s", p.Telefono)
	}
	if p.Email != "carlos@acme.pe" {
		t.Errorf("email = %s", p.Email)
	}
}

func TestExtractLocation(t *testing.T) {
	e := New()

	tests := []struct {
		name      string
		text      string
		wantNil   bool
		wantAddr  string
		wantVenue string
	}{
		{"street address", "nos vemos en Av. Larco 1234, Miraflores", false, "Av. Larco 1234 Miraflores", ""},
		{"bare district", "la cita es en San Isidro", false, "San Isidro", ""},
		{"known venue", "te espero en Larcomar", false, "Larcomar", "Larcomar"},
		{"generic word alone", "tengo que ir al hospital", true, "", ""},
		{"no location", "recuerda comprar pan", true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.ExtractLocation(tt.text)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("want nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("want location, got nil")
			}
			if got.Direccion != tt.wantAddr {
				t.Errorf("direccion = %q, want %q", got.Direccion, tt.wantAddr)
			}
			if got.LugarNombre != tt.wantVenue {
				t.Errorf("lugar_nombre = %q, want %q", got.LugarNombre, tt.wantVenue)
			}
		})
	}
}

func TestDetectActionType(t *testing.T) {
	e := New()

	tests := []struct {
		text string
		want domain.ActionType
	}{
		{"pon una alarma para mañana", domain.ActionAlarm},
		{"reunión con el equipo", domain.ActionCalendar},
		{"videollamada por zoom", domain.ActionMeet},
		{"tengo que llamar al banco", domain.ActionCall},
		{"mandar wsp a Pedro", domain.ActionWhatsApp},
		{"enviar mail al proveedor", domain.ActionEmail},
		{"yapear 150 soles", domain.ActionPayment},
		{"comprar pan", domain.ActionGeneralTask},
		// alarm group wins over calendar when both match
		{"pon una alarma para la reunión", domain.ActionAlarm},
	}

	for _, tt := range tests {
		if got := e.DetectActionType(tt.text); got != tt.want {
			t.Errorf("DetectActionType(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestExtractEndToEnd(t *testing.T) {
	e := New()
	env := e.Extract("Recuérdame la entrevista mañana a las 5 de la tarde en Av. Larco 1234, Miraflores", refNow())

	if env.FechaHora == nil || env.FechaHora.Timestamp != "2026-02-05T17:00:00-05:00" {
		t.Fatalf("fecha_hora = %+v", env.FechaHora)
	}
	if env.TipoAccion != domain.ActionCalendar {
		t.Errorf("tipo_accion = %s", env.TipoAccion)
	}
	if !env.HasLocation() {
		t.Fatal("no location extracted")
	}

	wantActions := map[string]bool{
		domain.SuggestAgendarCalendario: false,
		domain.SuggestVerUbicacion:      false,
	}
	for _, a := range env.AccionesSugeridas {
		if _, ok := wantActions[a]; ok {
			wantActions[a] = true
		}
	}
	for a, found := range wantActions {
		if !found {
			t.Errorf("missing suggested action %s in %v", a, env.AccionesSugeridas)
		}
	}
}

func TestExtractAlarmEnvelope(t *testing.T) {
	e := New()
	env := e.Extract("Despiértame mañana a las 6 de la mañana para correr", refNow())

	if env.TipoAccion != domain.ActionAlarm {
		t.Fatalf("tipo_accion = %s", env.TipoAccion)
	}
	if env.HoraAlarma == nil || *env.HoraAlarma != "06:00:00" {
		t.Errorf("hora_alarma = %v", env.HoraAlarma)
	}
	if env.TimestampAlarma == nil || *env.TimestampAlarma != "2026-02-05T06:00:00-05:00" {
		t.Errorf("timestamp_alarma = %v", env.TimestampAlarma)
	}
	if len(env.AccionesSugeridas) == 0 || env.AccionesSugeridas[0] != domain.SuggestPonerAlarma {
		t.Errorf("acciones_sugeridas = %v", env.AccionesSugeridas)
	}
}

func TestExtractDeterminism(t *testing.T) {
	e := New()
	now := refNow()
	text := "Reunión con Ana García mañana a las 3pm en Miraflores"

	first := e.Extract(text, now)
	second := e.Extract(text, now)
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated extraction differs")
	}

	padded := e.Extract("   "+text+"  ", now)
	if !reflect.DeepEqual(first, padded) {
		t.Error("surrounding whitespace changes extraction")
	}
}

func TestCleanNoise(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[Mensaje] Reunión mañana", "Reunión mañana"},
		{"Procesando... paga la luz", "paga la luz"},
		{"[Instrucción] Procesando... hola", "hola"},
		{"texto normal", "texto normal"},
		{"prefijo [Mensaje] lo que importa", "lo que importa"},
	}

	for _, tt := range tests {
		if got := CleanNoise(tt.in); got != tt.want {
			t.Errorf("CleanNoise(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompleteness(t *testing.T) {
	e := New()

	full := e.Extract("Reunión de 2 horas con Carlos Méndez mañana a las 3pm en Av. Pardo 500, Miraflores", refNow())
	if full.Completitud != 10 {
		t.Errorf("full envelope completitud = %d, want 10", full.Completitud)
	}

	empty := e.Extract("comprar pan", refNow())
	if empty.Completitud != 0 {
		t.Errorf("empty envelope completitud = %d, want 0", empty.Completitud)
	}
}
