package tools

import (
	"github.com/Chative-reservations/server/internal/agent/model"
	"github.com/Chative-reservations/server/internal/backend"
)

var actionKinds = map[string]string{
	CreateReservation: model.ActionCreate,
	ModifyReservation: model.ActionModify,
	CancelReservation: model.ActionCancel,
}

// DeriveAction returns the structured action of the last successful create, modify or
// cancel call, or nil when there is none. Failed calls never produce an action.
func DeriveAction(outcomes []model.ToolOutcome) *model.Action {
	for i := len(outcomes) - 1; i >= 0; i-- {
		o := outcomes[i]
		kind, ok := actionKinds[o.Name]
		if !ok || !o.Succeeded() {
			continue
		}
		return buildAction(kind, o)
	}
	return nil
}

func buildAction(kind string, o model.ToolOutcome) *model.Action {
	res := backend.Result(o.Result)
	reservation := res.Map("reserva")
	args := o.Arguments
	if changes, ok := args["cambios"].(map[string]any); ok {
		args = changes
	}

	pick := func(keys ...string) any {
		for _, src := range []map[string]any{reservation, res, args} {
			for _, k := range keys {
				if v, ok := src[k]; ok && v != nil && v != "" {
					return v
				}
			}
		}
		return nil
	}
	str := func(keys ...string) string {
		s, _ := pick(keys...).(string)
		return s
	}
	num := func(keys ...string) int {
		n, _ := backend.IntValue(pick(keys...))
		return n
	}

	code := res.String("codigo_reserva")
	if code == "" {
		code, _ = reservation["codigo_reserva"].(string)
	}
	if code == "" {
		code, _ = o.Arguments["codigo_reserva"].(string)
	}

	var table any
	if reservation != nil {
		table = reservation["mesa_id"]
	}
	if table == nil {
		table = pick("mesa_id", "mesa")
	}

	return &model.Action{
		Kind:          kind,
		ReservationID: pick("id", "id_reserva"),
		Code:          code,
		Summary:       res.Message(),
		Details: model.ActionDetails{
			Date:            str("fecha"),
			Time:            str("hora"),
			PartySize:       num("personas", "comensales"),
			Table:           table,
			Zone:            str("zona", "zona_preferida"),
			DurationMinutes: num("duracion", "duracion_min"),
		},
	}
}
