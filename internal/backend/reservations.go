package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Chative-reservations/server/internal/backend/slots"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

const defaultCancelReason = "Cancelado por el cliente"

// ReservationRequest carries everything needed to book a table.
type ReservationRequest struct {
	Name      string
	Phone     string
	Email     string
	Date      string
	Time      string
	PartySize int
	Zone      string
	Allergies string
	Comments  string
}

func (r ReservationRequest) validate() string {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return "Necesito el nombre para la reserva."
	case len(nonDigit.ReplaceAllString(r.Phone, "")) < 9:
		return "El teléfono debe tener al menos 9 dígitos."
	}
	return AvailabilityQuery{Date: r.Date, Time: r.Time, PartySize: r.PartySize}.validate()
}

type createRequest struct {
	Name      string `json:"nombre"`
	Phone     string `json:"telefono"`
	Email     string `json:"email,omitempty"`
	Date      string `json:"fecha"`
	Time      string `json:"hora"`
	PartySize int    `json:"personas"`
	TableID   int    `json:"mesa_id"`
	Duration  int    `json:"duracion"`
	Notes     string `json:"notas,omitempty"`
	Allergies string `json:"alergias,omitempty"`
	Zone      string `json:"zona_preferida,omitempty"`
}

// CreateReservation re-checks availability with a fresh duration and writes the booking only
// when that check found a table. A failed check is returned as a failure and nothing is written.
func (g *Gateway) CreateReservation(ctx context.Context, r ReservationRequest) Result {
	if msg := r.validate(); msg != "" {
		return Fail(msg)
	}

	check := g.CheckAvailability(ctx, AvailabilityQuery{Date: r.Date, Time: r.Time, PartySize: r.PartySize})
	if !check.Available {
		out := Result{}
		for k, v := range check.Payload {
			out[k] = v
		}
		out[keySuccess] = false
		if check.Payload.OK() {
			out[keyMessage] = "⚠️ Ese horario ya no está disponible. " + check.Payload.Message()
		}
		logx.Info().Str("fecha", r.Date).Str("hora", r.Time).Msg("create skipped, slot no longer available")
		return out
	}

	res := g.call(ctx, http.MethodPost, "/crear-reserva", nil, createRequest{
		Name:      strings.TrimSpace(r.Name),
		Phone:     NormalizePhone(r.Phone),
		Email:     r.Email,
		Date:      r.Date,
		Time:      r.Time,
		PartySize: r.PartySize,
		TableID:   check.Table.ID,
		Duration:  check.DurationMinutes,
		Notes:     r.Comments,
		Allergies: r.Allergies,
		Zone:      r.Zone,
	})
	if !res.OK() {
		if mentionsDuration(res.Message()) {
			g.durations.Invalidate()
		}
		return res
	}

	canonicalCode(res)
	if _, ok := res["duracion"]; !ok {
		res["duracion"] = check.DurationMinutes
	}
	if _, ok := res["mesa"]; !ok {
		res["mesa"] = check.Table
	}
	return res
}

// canonicalCode uppercases the reservation code wherever the backend placed it.
func canonicalCode(res Result) {
	if c := res.String("codigo_reserva"); c != "" {
		res["codigo_reserva"] = strings.ToUpper(c)
	}
	if rsv := res.Map("reserva"); rsv != nil {
		if c, ok := rsv["codigo_reserva"].(string); ok {
			rsv["codigo_reserva"] = strings.ToUpper(c)
			if res.String("codigo_reserva") == "" {
				res["codigo_reserva"] = strings.ToUpper(c)
			}
		}
	}
}

// ReservationChanges lists the fields to update; zero values are left untouched.
type ReservationChanges struct {
	Date      string
	Time      string
	PartySize *int
	Zone      string
	Allergies string
	Comments  string
}

// Empty reports whether no change was requested.
func (c ReservationChanges) Empty() bool {
	return c.Date == "" && c.Time == "" && c.PartySize == nil && c.Zone == "" && c.Allergies == "" && c.Comments == ""
}

type modifyRequest struct {
	Code      string `json:"codigo_reserva"`
	Date      string `json:"fecha,omitempty"`
	Time      string `json:"hora,omitempty"`
	PartySize *int   `json:"personas,omitempty"`
	Zone      string `json:"zona_preferida,omitempty"`
	Allergies string `json:"alergias,omitempty"`
	Notes     string `json:"notas,omitempty"`
}

// ModifyReservation updates an existing reservation. A missing or malformed code and an
// empty change set are answered locally.
func (g *Gateway) ModifyReservation(ctx context.Context, rawCode string, c ReservationChanges) Result {
	code, err := ParseReservationCode(rawCode)
	if err != nil {
		return CodeResult(err, "modificar")
	}
	if c.Empty() {
		return Fail("No se especificaron cambios para la reserva.")
	}
	if c.PartySize != nil && (*c.PartySize < MinPartySize || *c.PartySize > MaxPartySize) {
		return Fail(fmt.Sprintf("El número de comensales debe estar entre %d y %d.", MinPartySize, MaxPartySize))
	}
	if c.Time != "" {
		if _, ok := slots.ParseClock(c.Time); !ok {
			return Fail("La hora debe tener el formato HH:MM.")
		}
	}

	res := g.call(ctx, http.MethodPut, "/modificar-reserva", nil, modifyRequest{
		Code:      code.String(),
		Date:      c.Date,
		Time:      c.Time,
		PartySize: c.PartySize,
		Zone:      c.Zone,
		Allergies: c.Allergies,
		Notes:     c.Comments,
	})
	if !res.OK() && mentionsDuration(res.Message()) {
		g.durations.Invalidate()
	}
	canonicalCode(res)
	return flagNotFound(res)
}

type cancelRequest struct {
	Code   string `json:"codigo_reserva"`
	Reason string `json:"motivo"`
}

// CancelReservation cancels by code.
func (g *Gateway) CancelReservation(ctx context.Context, rawCode, reason string) Result {
	code, err := ParseReservationCode(rawCode)
	if err != nil {
		return CodeResult(err, "cancelar")
	}
	if strings.TrimSpace(reason) == "" {
		reason = defaultCancelReason
	}
	res := g.call(ctx, http.MethodDelete, "/cancelar-reserva", nil, cancelRequest{Code: code.String(), Reason: reason})
	if res.OK() && res.String("codigo_reserva") == "" {
		res["codigo_reserva"] = code.String()
	}
	return flagNotFound(res)
}

// GetReservation reads a reservation by code.
func (g *Gateway) GetReservation(ctx context.Context, rawCode string) Result {
	code, err := ParseReservationCode(rawCode)
	if err != nil {
		return CodeResult(err, "consultar")
	}
	res := g.call(ctx, http.MethodGet, "/consultar-reserva", url.Values{"codigo": {code.String()}}, nil)
	canonicalCode(res)
	return flagNotFound(res)
}
