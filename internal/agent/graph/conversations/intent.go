package conversations

import (
	"strings"
	"unicode/utf8"

	"github.com/Chative-reservations/server/internal/agent/model"
)

// keyword groups are checked in order; cancel and modify come first so "cancelar la
// reserva" is not read as a new booking.
var intentKeywords = []struct {
	intent   model.Intent
	keywords []string
}{
	{model.IntentCancel, []string{"cancelar", "anular", "cancela", "anula"}},
	{model.IntentModify, []string{"cambiar", "modificar", "mover", "cambia", "modifica"}},
	{model.IntentCreate, []string{"reservar", "reserva", "mesa"}},
	{model.IntentQueryMenu, []string{"menú", "menu", "carta", "platos"}},
	{model.IntentQueryHours, []string{"horario", "abierto", "abren", "cierran"}},
}

// DetectIntent maps Spanish keywords in text to an intent, IntentNone when nothing matches.
func DetectIntent(text string) model.Intent {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r == 'ñ' || r == 'á' || r == 'é' || r == 'í' || r == 'ó' || r == 'ú' || r == 'ü' ||
			(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	for _, group := range intentKeywords {
		for _, k := range group.keywords {
			if _, ok := set[k]; ok {
				return group.intent
			}
		}
	}
	return model.IntentNone
}

// TruncateMessage cuts text to at most max runes; max <= 0 disables the limit.
func TruncateMessage(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}
