package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Chative-reservations/server/internal/backend/slots"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

const (
	MinPartySize = 1
	MaxPartySize = 20
)

// AvailabilityQuery asks for a table. DurationMinutes overrides the policy duration when set.
type AvailabilityQuery struct {
	Date            string
	Time            string
	PartySize       int
	DurationMinutes int
}

// Table is the table the backend would assign.
type Table struct {
	ID       int `json:"id"`
	Number   int `json:"numero"`
	Capacity int `json:"capacidad"`
}

// AvailabilityResult is the outcome of CheckAvailability. Payload is what the model sees.
type AvailabilityResult struct {
	Available       bool
	Table           *Table
	DurationMinutes int
	Ranking         slots.Ranking
	Payload         Result
}

type searchRequest struct {
	Date      string `json:"fecha"`
	Time      string `json:"hora"`
	PartySize int    `json:"personas"`
	Duration  int    `json:"duracion"`
}

type searchAlternative struct {
	Date          string `json:"fecha"`
	Time          string `json:"hora"`
	Capacity      int    `json:"capacidad"`
	Release       bool   `json:"es_liberacion"`
	MinutesOffset *int   `json:"diferencia_minutos"`
	FreeTables    int    `json:"mesas_libres"`
}

type searchResponse struct {
	Success          bool                `json:"exito"`
	Message          string              `json:"mensaje"`
	Table            *Table              `json:"mesa_disponible"`
	Alternatives     []searchAlternative `json:"alternativas"`
	ConflictDetected bool                `json:"conflicto_detectado"`
	ConflictDetails  string              `json:"detalle_conflicto"`
}

func (a searchAlternative) slot() slots.Slot {
	s := slots.Slot{
		Date:           a.Date,
		Time:           a.Time,
		Capacity:       a.Capacity,
		IsReleaseEvent: a.Release,
		FreeTables:     a.FreeTables,
	}
	if a.MinutesOffset != nil {
		s.MinutesOffset = *a.MinutesOffset
		s.HasOffset = true
	}
	return s
}

func (q AvailabilityQuery) validate() string {
	switch {
	case strings.TrimSpace(q.Date) == "":
		return "Necesito la fecha de la reserva."
	case strings.TrimSpace(q.Time) == "":
		return "Necesito la hora de la reserva."
	case q.PartySize < MinPartySize || q.PartySize > MaxPartySize:
		return fmt.Sprintf("El número de comensales debe estar entre %d y %d.", MinPartySize, MaxPartySize)
	}
	if _, ok := slots.ParseClock(q.Time); !ok {
		return "La hora debe tener el formato HH:MM."
	}
	return ""
}

// CheckAvailability decides whether the requested slot is bookable. The reservation duration
// is always read fresh. A rejected slot is a successful, negative answer carrying ranked
// alternatives; only transport failures and backend refusals produce exito=false.
func (g *Gateway) CheckAvailability(ctx context.Context, q AvailabilityQuery) AvailabilityResult {
	if msg := q.validate(); msg != "" {
		return AvailabilityResult{Payload: Fail(msg)}
	}

	duration, err := g.durations.Read(ctx, true)
	if err != nil {
		logx.Warn().Err(err).Int("duration_min", duration).Msg("fresh duration read failed, checking with last known value")
	}
	if q.DurationMinutes > 0 {
		duration = clampDuration(q.DurationMinutes)
	}

	raw, err := g.do(ctx, http.MethodPost, "/buscar-mesa", nil, searchRequest{
		Date: q.Date, Time: q.Time, PartySize: q.PartySize, Duration: duration,
	})
	if err != nil {
		res := g.failure(http.MethodPost, "/buscar-mesa", err)
		return AvailabilityResult{DurationMinutes: duration, Payload: g.refineRejection(ctx, q, duration, res)}
	}

	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		logx.Error().Err(err).Msg("backend returned invalid availability payload")
		return AvailabilityResult{DurationMinutes: duration, Payload: Fail("Respuesta inválida del sistema de reservas")}
	}

	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "No se pudo comprobar la disponibilidad."
		}
		return AvailabilityResult{DurationMinutes: duration, Payload: g.refineRejection(ctx, q, duration, Fail(msg))}
	}

	if resp.Table != nil {
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("Hay mesa disponible para %d personas el %s a las %s.", q.PartySize, q.Date, q.Time)
		}
		return AvailabilityResult{
			Available:       true,
			Table:           resp.Table,
			DurationMinutes: duration,
			Payload: Result{
				keySuccess:     true,
				"disponible":   true,
				"fecha":        q.Date,
				"hora":         q.Time,
				"comensales":   q.PartySize,
				"mesa":         resp.Table,
				"duracion_min": duration,
				keyMessage:     msg,
			},
		}
	}

	return g.conflict(q, duration, resp)
}

func (g *Gateway) conflict(q AvailabilityQuery, duration int, resp searchResponse) AvailabilityResult {
	alts := make([]slots.Slot, 0, len(resp.Alternatives))
	for _, a := range resp.Alternatives {
		alts = append(alts, a.slot())
	}
	rk := g.resolver.Rank(q.Date, q.Time, alts)

	// a success envelope without a table carries no useful message of its own
	payload := Result{
		keySuccess:                  true,
		"disponible":                false,
		"fecha":                     q.Date,
		"hora":                      q.Time,
		"comensales":                q.PartySize,
		"duracion_min":              duration,
		"conflicto_detectado":       resp.ConflictDetected,
		"alternativas":              rk.Slots(),
		"sin_alternativa_mismo_dia": rk.NoSameDayAlternative,
		keyMessage:                  g.resolver.Explain(rk, resp.ConflictDetected, resp.ConflictDetails, ""),
	}
	if resp.ConflictDetails != "" {
		payload["detalle_conflicto"] = resp.ConflictDetails
	}
	if rk.Headline != nil {
		payload["sugerencia"] = rk.HeadlineText
	}
	if len(rk.OtherDays) > 0 {
		payload["otros_dias"] = rk.OtherDays
	}
	logx.Info().
		Str("fecha", q.Date).
		Str("hora", q.Time).
		Int("alternatives", len(rk.Slots())).
		Bool("conflict", resp.ConflictDetected).
		Msg("requested slot unavailable")
	return AvailabilityResult{DurationMinutes: duration, Ranking: rk, Payload: payload}
}

// refineRejection invalidates the duration cache when the rejection mentions the duration or
// closing time, and explains the last entry time when the request falls after it.
func (g *Gateway) refineRejection(ctx context.Context, q AvailabilityQuery, duration int, res Result) Result {
	if !mentionsDuration(res.Message()) {
		return res
	}
	g.durations.Invalidate()

	hours := g.GetHours(ctx, q.Date)
	if !hours.OK() {
		return res
	}
	schedule := hours.Map("horario")
	opening, _ := schedule["apertura"].(string)
	closing, _ := schedule["cierre"].(string)
	last, ok := LastEntry(opening, closing, duration)
	if !ok || !after(q.Time, opening, last) {
		return res
	}

	res["ultima_hora_entrada"] = last
	res[keyMessage] = fmt.Sprintf("%s La última hora de entrada para una reserva de %d minutos es a las %s (cerramos a las %s).",
		res.Message(), duration, last, closing)
	return res
}

var durationWords = []string{"duración", "duracion", "tarde", "cierre", "última hora", "ultima hora"}

func mentionsDuration(msg string) bool {
	lower := strings.ToLower(msg)
	for _, w := range durationWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// LastEntry returns the latest start time, as HH:MM, that still ends a reservation of
// duration minutes by closing. Closing times at or before opening are read as past midnight.
func LastEntry(opening, closing string, duration int) (string, bool) {
	closeAt, ok := slots.ParseClock(closing)
	if !ok {
		return "", false
	}
	if openAt, ok := slots.ParseClock(opening); ok && !closeAt.After(openAt) {
		closeAt = closeAt.Add(24 * time.Hour)
	}
	return closeAt.Add(-time.Duration(duration) * time.Minute).Format("15:04"), true
}

// after reports whether requested is later than last on a service day starting at opening.
func after(requested, opening, last string) bool {
	req, ok := slots.ParseClock(requested)
	if !ok {
		return false
	}
	lastAt, _ := slots.ParseClock(last)
	if openAt, ok := slots.ParseClock(opening); ok {
		if req.Before(openAt) {
			req = req.Add(24 * time.Hour)
		}
		if lastAt.Before(openAt) {
			lastAt = lastAt.Add(24 * time.Hour)
		}
	}
	return req.After(lastAt)
}
