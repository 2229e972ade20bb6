// Package extract is the deterministic pre-pass over raw utterances:
// Spanish dates and times, Lima addresses, Peruvian phone numbers,
// persons and action keywords. It never errors; failed sub-parses are
// simply omitted from the envelope.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"nexus_server/core/domain"
)

// LimaOffset is the fixed local offset; Peru has no DST.
const LimaOffset = "-05:00"

// Lima returns the America/Lima location, falling back to a fixed
// zone when the tz database is unavailable.
func Lima() *time.Location {
	loc, err := time.LoadLocation("America/Lima")
	if err != nil {
		return time.FixedZone("-05", -5*3600)
	}
	return loc
}

var spanishMonths = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"octubre": time.October, "noviembre": time.November, "diciembre": time.December,
}

var spanishWeekdays = []struct {
	name string
	day  time.Weekday
}{
	{"lunes", time.Monday},
	{"martes", time.Tuesday},
	{"miércoles", time.Wednesday},
	{"miercoles", time.Wednesday},
	{"jueves", time.Thursday},
	{"viernes", time.Friday},
	{"sábado", time.Saturday},
	{"sabado", time.Saturday},
	{"domingo", time.Sunday},
}

var (
	reDateText  = regexp.MustCompile(`(\d{1,2})\s+de\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)\s+del?\s+(\d{4})`)
	reDateSlash = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	reDateISO   = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	// fuzzy forms, only consulted on short inputs
	reDateTextNoYear = regexp.MustCompile(`(\d{1,2})\s+de\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)`)

	reTimeContext = regexp.MustCompile(`(?:a\s+las?\s+)?(\d{1,2})\s+de\s+la\s+(mañana|tarde|noche)`)
	reTime24h     = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	reTimeAmPm    = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
	reTimeSimple  = regexp.MustCompile(`a\s+las?\s+(\d{1,2})\b`)

	reDuration = regexp.MustCompile(`(\d+)\s*(horas?|hrs?|minutos?|min)\b`)

	rePhonePeru    = regexp.MustCompile(`\+?51\s?9\d{8}`)
	rePhoneShort   = regexp.MustCompile(`\b9\d{8}\b`)
	rePhoneGeneric = regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{3}\b`)
	reNonDigit     = regexp.MustCompile(`\D`)

	reEmail = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	reName  = regexp.MustCompile(`\b[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(?:\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)+\b`)

	reStreet         = regexp.MustCompile(`(?i)(Av\.|Avenida|Jr\.|Jirón|Jiron|Calle|Ca\.|Psje\.|Pasaje)\s+([\p{L}\s]+?)\s+(\d{1,5})(?:\s*,\s*([\p{L}\s]+))?`)
	reNoisePrefix    = regexp.MustCompile(`^\s*(?:\[Instrucción\]|Procesando\.\.\.)\s*`)
	reMorningContext = regexp.MustCompile(`de\s+la\s+mañana`)
)

// limaDistricts is the closed district set for bare-district matches.
var limaDistricts = []string{
	"Miraflores", "San Isidro", "Santiago de Surco", "Surco",
	"La Molina", "Barranco", "Jesús María", "San Miguel",
	"Pueblo Libre", "Magdalena", "San Borja", "Lince",
}

// knownVenues is the closed venue set (malls, hospitals, landmarks).
var knownVenues = []string{
	"Larcomar", "Jockey Plaza", "Real Plaza", "Open Plaza",
	"Clínica Ricardo Palma", "Hospital Loayza", "Hospital Rebagliati",
	"Parque Kennedy", "Ovalo Gutierrez", "Estadio Nacional",
}

// actionKeywords is ordered; the first group with a hit wins.
var actionKeywords = []struct {
	action   domain.ActionType
	keywords []string
}{
	{domain.ActionAlarm, []string{"despiértame", "alarma", "despertador", "despertar", "avísame a las", "pon una alarma"}},
	{domain.ActionCalendar, []string{"reunión", "cita", "junta", "encuentro", "visita", "entrevista", "ir a"}},
	{domain.ActionMeet, []string{"zoom", "meet", "teams", "videollamada", "video llamada", "reunión virtual", "entrevista virtual"}},
	{domain.ActionCall, []string{"llamar", "telefonear", "contactar por teléfono"}},
	{domain.ActionWhatsApp, []string{"whatsapp", "escribir por wsp", "mensaje wsp", "mandar wsp"}},
	{domain.ActionEmail, []string{"email", "correo", "enviar mail", "mandar correo"}},
	{domain.ActionPayment, []string{"pagar", "yapear", "transferir", "plin", "depositar"}},
}

// Extractor runs the deterministic context pass. Safe for concurrent
// use; all state is immutable.
type Extractor struct {
	loc *time.Location
}

// New creates an extractor bound to the Lima zone.
func New() *Extractor {
	return &Extractor{loc: Lima()}
}

// Location exposes the extractor's zone for callers that need "now".
func (e *Extractor) Location() *time.Location {
	return e.loc
}

// Extract runs the full pass over text with the given reference time.
func (e *Extractor) Extract(text string, now time.Time) *domain.Envelope {
	text = CleanNoise(text)
	now = now.In(e.loc)

	env := &domain.Envelope{
		FechaHora:  e.ExtractDateTime(text, now),
		Ubicacion:  e.ExtractLocation(text),
		Personas:   e.ExtractPersons(text),
		TipoAccion: e.DetectActionType(text),
		Detalles:   e.extractDetails(text),
	}

	if env.TipoAccion == domain.ActionAlarm && env.FechaHora != nil && env.FechaHora.Hora != "" {
		hora := env.FechaHora.Hora
		ts := env.FechaHora.Timestamp
		env.HoraAlarma = &hora
		env.TimestampAlarma = &ts
	}

	env.AccionesSugeridas = SuggestActions(env)
	env.Completitud = Completeness(env)
	return env
}

// CleanNoise strips system-log markers from the start of the input.
// A "[Mensaje]" tag anywhere keeps only what follows it.
func CleanNoise(text string) string {
	if idx := strings.Index(text, "[Mensaje]"); idx >= 0 {
		text = text[idx+len("[Mensaje]"):]
	}
	for {
		cleaned := reNoisePrefix.ReplaceAllString(text, "")
		if cleaned == text {
			break
		}
		text = cleaned
	}
	return strings.TrimSpace(text)
}

// ExtractDateTime resolves the calendar slot of the utterance, or nil
// when no date is found. Resolution precedence: explicit full dates,
// relative words, weekday names, then a fuzzy form only on short
// inputs.
func (e *Extractor) ExtractDateTime(text string, now time.Time) *domain.EnvelopeDateTime {
	lower := strings.ToLower(text)

	date, dateOK := e.resolveDate(lower, now)
	hour, minute, timeOK := resolveTime(lower)

	if !dateOK {
		return nil
	}
	if !timeOK {
		// Date without time defaults to 09:00 local.
		hour, minute = 9, 0
	}

	fecha := date.Format("2006-01-02")
	hora := fmt.Sprintf("%02d:%02d:00", hour, minute)
	return &domain.EnvelopeDateTime{
		Fecha:     fecha,
		Hora:      hora,
		Timestamp: fecha + "T" + hora + LimaOffset,
	}
}

func (e *Extractor) resolveDate(lower string, now time.Time) (time.Time, bool) {
	// 1. Explicit full dates.
	if m := reDateText.FindStringSubmatch(lower); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		if d, ok := makeDate(year, spanishMonths[m[2]], day, e.loc); ok {
			return d, true
		}
	}
	if m := reDateSlash.FindStringSubmatch(lower); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if d, ok := makeDate(year, time.Month(month), day, e.loc); ok {
			return d, true
		}
	}
	if m := reDateISO.FindStringSubmatch(lower); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if d, ok := makeDate(year, time.Month(month), day, e.loc); ok {
			return d, true
		}
	}

	// 2. Relative words. Time-of-day phrases like "de la mañana" must
	// not count as the relative word "mañana".
	relText := reMorningContext.ReplaceAllString(lower, "")
	switch {
	case strings.Contains(relText, "pasado mañana"):
		return midnight(now.AddDate(0, 0, 2)), true
	case strings.Contains(relText, "mañana"):
		return midnight(now.AddDate(0, 0, 1)), true
	case strings.Contains(relText, "hoy"):
		return midnight(now), true
	}

	// 3. Weekday names resolve to the next occurrence strictly after
	// today; the same weekday maps to +7.
	for _, wd := range spanishWeekdays {
		if strings.Contains(lower, wd.name) {
			ahead := (int(wd.day) - int(now.Weekday()) + 7) % 7
			if ahead == 0 {
				ahead = 7
			}
			return midnight(now.AddDate(0, 0, ahead)), true
		}
	}

	// 4. Fuzzy form, only when the whole input is short enough that a
	// loose match cannot be an accident.
	if len([]rune(lower)) < 50 {
		if m := reDateTextNoYear.FindStringSubmatch(lower); m != nil {
			day, _ := strconv.Atoi(m[1])
			if d, ok := makeDate(now.Year(), spanishMonths[m[2]], day, e.loc); ok {
				if d.Before(midnight(now)) {
					d = d.AddDate(1, 0, 0)
				}
				return d, true
			}
		}
	}

	return time.Time{}, false
}

func makeDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	if year < 1 || month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	// Reject overflowed dates like 31/02.
	if d.Day() != day || d.Month() != month {
		return time.Time{}, false
	}
	return d, true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// resolveTime applies the four-step time ladder.
func resolveTime(lower string) (hour, minute int, ok bool) {
	// 1. "<n> de la (mañana|tarde|noche)".
	if m := reTimeContext.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		if (m[2] == "tarde" || m[2] == "noche") && h < 12 {
			h += 12
		}
		if h < 24 {
			return h, 0, true
		}
	}
	// 2. 24-hour HH:MM.
	if m := reTime24h.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h < 24 && mm < 60 {
			return h, mm, true
		}
	}
	// 3. am/pm.
	if m := reTimeAmPm.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		if m[2] == "pm" && h < 12 {
			h += 12
		}
		if h < 24 {
			return h, 0, true
		}
	}
	// 4. Bare "a las <n>": 1-6 reads as afternoon, the rest as morning.
	if m := reTimeSimple.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 6 {
			h += 12
		}
		if h < 24 {
			return h, 0, true
		}
	}
	return 0, 0, false
}

// ExtractLocation detects street addresses, known districts and known
// venues. A generic word with no specifier emits nothing.
func (e *Extractor) ExtractLocation(text string) *domain.EnvelopeLocation {
	loc := &domain.EnvelopeLocation{}

	if m := reStreet.FindStringSubmatch(text); m != nil {
		parts := []string{m[1], strings.TrimSpace(m[2]), m[3]}
		if m[4] != "" {
			parts = append(parts, strings.TrimSpace(m[4]))
		}
		loc.Direccion = strings.Join(parts, " ")
	}

	lower := strings.ToLower(text)
	if loc.Direccion == "" {
		for _, district := range limaDistricts {
			if strings.Contains(lower, strings.ToLower(district)) {
				loc.Direccion = district
				break
			}
		}
	}

	for _, venue := range knownVenues {
		if strings.Contains(lower, strings.ToLower(venue)) {
			loc.LugarNombre = venue
			if loc.Direccion == "" {
				loc.Direccion = venue
			}
			break
		}
	}

	if loc.Direccion == "" && loc.LugarNombre == "" {
		return nil
	}
	return loc
}

// ExtractPersons detects capitalised names and pairs them in order
// with detected phones and emails. A contact with no name becomes a
// generic "Contacto" entry.
func (e *Extractor) ExtractPersons(text string) []domain.EnvelopePerson {
	names := reName.FindAllString(text, -1)
	phones := extractPhones(text)
	emails := reEmail.FindAllString(text, -1)

	var persons []domain.EnvelopePerson
	for i, name := range names {
		p := domain.EnvelopePerson{Nombre: name}
		if i < len(phones) {
			p.Telefono = phones[i]
		}
		if i < len(emails) {
			p.Email = emails[i]
		}
		persons = append(persons, p)
	}

	if len(persons) == 0 && (len(phones) > 0 || len(emails) > 0) {
		p := domain.EnvelopePerson{Nombre: "Contacto"}
		if len(phones) > 0 {
			p.Telefono = phones[0]
		}
		if len(emails) > 0 {
			p.Email = emails[0]
		}
		persons = append(persons, p)
	}

	return persons
}

// extractPhones normalises every candidate to E.164 with Peru default.
func extractPhones(text string) []string {
	var raw []string
	raw = append(raw, rePhonePeru.FindAllString(text, -1)...)
	raw = append(raw, rePhoneShort.FindAllString(text, -1)...)
	raw = append(raw, rePhoneGeneric.FindAllString(text, -1)...)

	seen := make(map[string]bool)
	var out []string
	for _, candidate := range raw {
		digits := reNonDigit.ReplaceAllString(candidate, "")
		if len(digits) < 9 {
			continue
		}
		normalized := "+51" + digits[len(digits)-9:]
		if !seen[normalized] {
			seen[normalized] = true
			out = append(out, normalized)
		}
	}
	return out
}

// DetectActionType walks the ordered keyword table; first match wins.
func (e *Extractor) DetectActionType(text string) domain.ActionType {
	lower := strings.ToLower(text)
	for _, group := range actionKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.action
			}
		}
	}
	return domain.ActionGeneralTask
}

func (e *Extractor) extractDetails(text string) *domain.EnvelopeDetails {
	details := &domain.EnvelopeDetails{}
	if len(text) > 200 {
		details.Notas = text[:200]
	} else {
		details.Notas = text
	}

	if m := reDuration.FindStringSubmatch(strings.ToLower(text)); m != nil {
		qty, _ := strconv.Atoi(m[1])
		if strings.HasPrefix(m[2], "hora") || strings.HasPrefix(m[2], "hr") {
			qty *= 60
		}
		details.DuracionMinutos = qty
	}

	return details
}

// SuggestActions applies the rule table over an extracted envelope:
// dedup preserving order, capped at 4.
func SuggestActions(env *domain.Envelope) []string {
	var actions []string

	hasTime := env.FechaHora != nil
	switch {
	case env.TipoAccion == domain.ActionAlarm && hasTime:
		actions = append(actions, domain.SuggestPonerAlarma)
	case env.TipoAccion == domain.ActionMeet && hasTime:
		actions = append(actions, domain.SuggestCrearMeet, domain.SuggestAgendarCalendario)
	case hasTime:
		actions = append(actions, domain.SuggestAgendarCalendario)
	}

	if env.HasLocation() {
		actions = append(actions, domain.SuggestVerUbicacion)
	}

	for _, p := range env.Personas {
		if p.Telefono != "" {
			actions = append(actions, domain.SuggestLlamar)
			if env.TipoAccion == domain.ActionWhatsApp {
				actions = append(actions, domain.SuggestWhatsApp)
			}
			break
		}
		if p.Email != "" {
			actions = append(actions, domain.SuggestEmail)
			break
		}
	}

	if env.TipoAccion == domain.ActionPayment {
		actions = append(actions, domain.SuggestAbrirYape)
	}

	seen := make(map[string]bool)
	var out []string
	for _, a := range actions {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
		if len(out) == 4 {
			break
		}
	}
	return out
}

// Completeness scores how actionable the envelope is, 0..10.
func Completeness(env *domain.Envelope) int {
	score := 0
	if env.HasDate() {
		score += 3
	}
	if env.HasLocation() {
		score += 2
	}
	if len(env.Personas) > 0 {
		score += 2
	}
	if env.TipoAccion != domain.ActionGeneralTask {
		score += 2
	}
	if env.Detalles != nil && env.Detalles.DuracionMinutos > 0 {
		score++
	}
	if score > 10 {
		score = 10
	}
	return score
}
