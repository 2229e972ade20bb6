package extract

import (
	"regexp"
	"sort"
	"strings"

	"nexus_server/core/domain"
)

// Fragment is one ordered sub-utterance of a multi-action input.
type Fragment struct {
	Text       string
	Position   int
	IsPrimary  bool
	ActionType domain.ActionType
}

// preambleLimit caps the contextual preamble carried by the first
// fragment.
const preambleLimit = 100

var (
	reEnumeration = regexp.MustCompile(`(?:^|\s)(\d+[.)]\s|primero|segundo|tercero|cuarto|quinto)`)
	reSequence    = regexp.MustCompile(`\b(luego|después|despues|también|tambien|finalmente)\b`)
)

// actionVerbs are imperative stems that open an independent action.
var actionVerbs = []string{
	"llama", "llamar", "compra", "comprar", "envía", "envia", "enviar",
	"recuerda", "recuérdame", "agenda", "agendar", "paga", "pagar",
	"escribe", "escribir", "pon", "poner", "manda", "mandar", "avisa",
	"confirma", "reserva",
}

// Fragmenter splits multi-action utterances into ordered fragments.
type Fragmenter struct {
	extractor *Extractor
}

// NewFragmenter creates a fragmenter sharing the extractor's keyword
// table for quick action detection.
func NewFragmenter(extractor *Extractor) *Fragmenter {
	return &Fragmenter{extractor: extractor}
}

// HasMultipleActions reports whether the utterance looks like a
// sequential bundle: two enumerations, two sequence markers, or three
// action verbs.
func (f *Fragmenter) HasMultipleActions(text string) bool {
	lower := strings.ToLower(text)
	if len(reEnumeration.FindAllString(lower, -1)) >= 2 {
		return true
	}
	if len(reSequence.FindAllString(lower, -1)) >= 2 {
		return true
	}
	return countActionVerbs(lower) >= 3
}

func countActionVerbs(lower string) int {
	count := 0
	for _, verb := range actionVerbs {
		count += countWord(lower, verb)
	}
	return count
}

func countWord(lower, word string) int {
	count := 0
	for idx := 0; ; {
		i := strings.Index(lower[idx:], word)
		if i < 0 {
			break
		}
		pos := idx + i
		end := pos + len(word)
		beforeOK := pos == 0 || !isLetter(lower[pos-1])
		afterOK := end >= len(lower) || !isLetter(lower[end])
		if beforeOK && afterOK {
			count++
		}
		idx = end
	}
	return count
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Split cuts the utterance at each detected marker. The first fragment
// carries the pre-marker preamble truncated to 100 chars; the rest are
// independent. When no bundle is detected the whole text comes back as
// a single primary fragment.
func (f *Fragmenter) Split(text string) []Fragment {
	if !f.HasMultipleActions(text) {
		return []Fragment{{
			Text:       strings.TrimSpace(text),
			Position:   0,
			IsPrimary:  true,
			ActionType: f.extractor.DetectActionType(text),
		}}
	}

	lower := strings.ToLower(text)
	cuts := markerOffsets(lower)
	if len(cuts) == 0 {
		return []Fragment{{
			Text:       strings.TrimSpace(text),
			Position:   0,
			IsPrimary:  true,
			ActionType: f.extractor.DetectActionType(text),
		}}
	}

	var fragments []Fragment
	for i, cut := range cuts {
		end := len(text)
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		body := strings.TrimSpace(text[cut:end])
		if body == "" {
			continue
		}

		if len(fragments) == 0 && cut > 0 {
			preamble := strings.TrimSpace(text[:cut])
			if runes := []rune(preamble); len(runes) > preambleLimit {
				preamble = string(runes[len(runes)-preambleLimit:])
			}
			if preamble != "" {
				body = preamble + " " + body
			}
		}

		fragments = append(fragments, Fragment{
			Text:       body,
			Position:   len(fragments),
			IsPrimary:  len(fragments) == 0,
			ActionType: f.extractor.DetectActionType(body),
		})
	}

	if len(fragments) == 0 {
		return []Fragment{{
			Text:       strings.TrimSpace(text),
			Position:   0,
			IsPrimary:  true,
			ActionType: f.extractor.DetectActionType(text),
		}}
	}
	return fragments
}

// markerOffsets collects the byte offsets of every enumeration and
// sequence marker, sorted ascending and deduplicated.
func markerOffsets(lower string) []int {
	var offsets []int
	for _, loc := range reEnumeration.FindAllStringIndex(lower, -1) {
		start := loc[0]
		// The group may start after leading whitespace.
		for start < loc[1] && (lower[start] == ' ' || lower[start] == '\t') {
			start++
		}
		offsets = append(offsets, start)
	}
	for _, loc := range reSequence.FindAllStringIndex(lower, -1) {
		offsets = append(offsets, loc[0])
	}

	sort.Ints(offsets)
	var out []int
	for _, o := range offsets {
		if len(out) == 0 || o != out[len(out)-1] {
			out = append(out, o)
		}
	}
	return out
}
