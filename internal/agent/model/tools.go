package model

// ToolOutcome is what one executed tool call produced: the payload handed back to the
// language model and the state patches to commit.
type ToolOutcome struct {
	CallID    string         `json:"call_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    map[string]any `json:"result"`
	Patches   []StatePatch   `json:"-"`
}

// Succeeded reports whether the result carries exito=true.
func (o ToolOutcome) Succeeded() bool {
	ok, _ := o.Result["exito"].(bool)
	return ok
}

// Action values reported in a structured action.
const (
	ActionCreate = "crear"
	ActionModify = "modificar"
	ActionCancel = "cancelar"
)

// ActionDetails are the key reservation facts of a structured action.
type ActionDetails struct {
	Date            string `json:"fecha,omitempty"`
	Time            string `json:"hora,omitempty"`
	PartySize       int    `json:"comensales,omitempty"`
	Table           any    `json:"mesa,omitempty"`
	Zone            string `json:"zona,omitempty"`
	DurationMinutes int    `json:"duracion_min,omitempty"`
}

// Action is the structured summary of a successful create/modify/cancel in a turn.
type Action struct {
	Kind          string        `json:"accion"`
	ReservationID any           `json:"id_reserva,omitempty"`
	Code          string        `json:"codigo_reserva,omitempty"`
	Summary       string        `json:"resumen,omitempty"`
	Details       ActionDetails `json:"datos_clave"`
}
