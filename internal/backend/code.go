package backend

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ReservationCode identifies an existing reservation: 8 uppercase alphanumerics.
type ReservationCode string

var (
	ErrCodeRequired = errors.New("reservation code required")
	ErrCodeInvalid  = errors.New("reservation code invalid")

	codePattern        = regexp.MustCompile(`^[A-Z0-9]{8}$`)
	messageCodePattern = regexp.MustCompile(`\b[A-Za-z0-9]{8}\b`)
	hasDigit           = regexp.MustCompile(`[0-9]`)
	hasLetter          = regexp.MustCompile(`[A-Za-z]`)
)

// ParseReservationCode canonicalises raw to uppercase and validates it.
func ParseReservationCode(raw string) (ReservationCode, error) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "" {
		return "", ErrCodeRequired
	}
	if !codePattern.MatchString(c) {
		return "", ErrCodeInvalid
	}
	return ReservationCode(c), nil
}

func (c ReservationCode) String() string { return string(c) }

// FindReservationCode looks for a code-like token in free text. Tokens need both a letter
// and a digit so ordinary 8-letter words and phone fragments are skipped.
func FindReservationCode(text string) (ReservationCode, bool) {
	for _, tok := range messageCodePattern.FindAllString(text, -1) {
		if !hasDigit.MatchString(tok) || !hasLetter.MatchString(tok) {
			continue
		}
		if code, err := ParseReservationCode(tok); err == nil {
			return code, true
		}
	}
	return "", false
}

// CodeRequiredResult is returned before any backend call when a code is missing.
func CodeRequiredResult(operation string) Result {
	return Result{
		keySuccess:        false,
		"requiere_codigo": true,
		keyMessage: fmt.Sprintf("📋 Para %s tu reserva necesito tu código de confirmación. "+
			"Es un código de 8 caracteres (letras y números, por ejemplo ABC12345) que recibiste al reservar.", operation),
	}
}

// CodeInvalidResult is returned before any backend call when a code is malformed.
func CodeInvalidResult() Result {
	return Result{
		keySuccess:        false,
		"codigo_invalido": true,
		keyMessage:        "❌ El código de reserva no es válido. Debe tener 8 caracteres (ej: ABC12345).",
	}
}

// CodeResult maps a ParseReservationCode error to its short-circuit payload.
func CodeResult(err error, operation string) Result {
	if errors.Is(err, ErrCodeRequired) {
		return CodeRequiredResult(operation)
	}
	return CodeInvalidResult()
}
