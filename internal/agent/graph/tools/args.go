package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Chative-reservations/server/internal/backend"
)

// ===================================
// Typed arguments, one per tool
// ===================================

type CheckAvailabilityArgs struct {
	Fecha       string `json:"fecha"`
	Hora        string `json:"hora"`
	Comensales  int    `json:"comensales"`
	DuracionMin int    `json:"duracion_min,omitempty"`
}

type CreateReservationArgs struct {
	Nombre      string `json:"nombre"`
	Telefono    string `json:"telefono"`
	Fecha       string `json:"fecha"`
	Hora        string `json:"hora"`
	Comensales  int    `json:"comensales"`
	Zona        string `json:"zona,omitempty"`
	Alergias    string `json:"alergias,omitempty"`
	Comentarios string `json:"comentarios,omitempty"`
}

// fields returns the arguments as conversation fields, skipping empty optionals.
func (a CreateReservationArgs) fields() map[string]any {
	out := map[string]any{
		"nombre":     a.Nombre,
		"telefono":   a.Telefono,
		"fecha":      a.Fecha,
		"hora":       a.Hora,
		"comensales": a.Comensales,
	}
	for k, v := range map[string]string{"zona": a.Zona, "alergias": a.Alergias, "comentarios": a.Comentarios} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

type ReservationChangesArgs struct {
	Fecha       string `json:"fecha,omitempty"`
	Hora        string `json:"hora,omitempty"`
	Comensales  *int   `json:"comensales,omitempty"`
	Zona        string `json:"zona,omitempty"`
	Alergias    string `json:"alergias,omitempty"`
	Comentarios string `json:"comentarios,omitempty"`
}

type ModifyReservationArgs struct {
	CodigoReserva string                 `json:"codigo_reserva"`
	Cambios       ReservationChangesArgs `json:"cambios"`
}

type CancelReservationArgs struct {
	CodigoReserva string `json:"codigo_reserva"`
	Motivo        string `json:"motivo,omitempty"`
}

type GetReservationInfoArgs struct {
	CodigoReserva string `json:"codigo_reserva"`
}

type GetMenuArgs struct {
	Categoria       string `json:"categoria,omitempty"`
	MostrarImagenes bool   `json:"mostrar_imagenes,omitempty"`
	NombrePlato     string `json:"nombre_plato,omitempty"`
}

type GetHoursArgs struct {
	Fecha string `json:"fecha,omitempty"`
}

type NoArgs struct{}

type GetRestaurantInfoArgs struct {
	TipoConsulta string `json:"tipo_consulta"`
	TipoPolitica string `json:"tipo_politica,omitempty"`
}

type OrderLineArgs struct {
	Plato          string  `json:"plato"`
	Cantidad       int     `json:"cantidad"`
	PrecioUnitario float64 `json:"precio_unitario"`
	Notas          string  `json:"notas,omitempty"`
}

type CreateOrderArgs struct {
	ClienteNombre   string          `json:"cliente_nombre"`
	ClienteTelefono string          `json:"cliente_telefono"`
	DetallesPedido  []OrderLineArgs `json:"detalles_pedido"`
	Total           float64         `json:"total"`
	MesaID          *int            `json:"mesa_id,omitempty"`
	Notas           string          `json:"notas,omitempty"`
}

// ===================================
// Sanitising
// ===================================

// sanitizeArgs normalises model output against the declared parameter types: strings are
// trimmed and empty ones dropped, numeric strings become numbers, "sí"/"no" become booleans.
func sanitizeArgs(args map[string]any, params map[string]*schema.ParameterInfo) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		p, ok := params[k]
		if !ok {
			continue
		}
		if sv, keep := sanitizeValue(v, p); keep {
			out[k] = sv
		}
	}
	return out
}

func sanitizeValue(v any, p *schema.ParameterInfo) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch p.Type {
	case schema.String:
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			s = fmt.Sprint(t)
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case schema.Integer, schema.Number:
		if s, ok := v.(string); ok {
			s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
			if s == "" {
				return nil, false
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
		return v, true
	case schema.Boolean:
		if s, ok := v.(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true", "si", "sí", "yes", "1":
				return true, true
			case "false", "no", "0":
				return false, true
			case "":
				return nil, false
			}
		}
		return v, true
	case schema.Object:
		if m, ok := v.(map[string]any); ok && p.SubParams != nil {
			return sanitizeArgs(m, p.SubParams), true
		}
		return v, true
	case schema.Array:
		if list, ok := v.([]any); ok && p.ElemInfo != nil {
			out := make([]any, 0, len(list))
			for _, item := range list {
				if sv, keep := sanitizeValue(item, p.ElemInfo); keep {
					out = append(out, sv)
				}
			}
			return out, true
		}
		return v, true
	}
	return v, true
}

// ===================================
// Validation
// ===================================

// jsonSchemaOf renders parameter definitions as a JSON Schema object.
func jsonSchemaOf(params map[string]*schema.ParameterInfo) map[string]any {
	props := make(map[string]any, len(params))
	var required []string
	for name, p := range params {
		props[name] = paramSchema(p)
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func paramSchema(p *schema.ParameterInfo) map[string]any {
	switch p.Type {
	case schema.Object:
		return jsonSchemaOf(p.SubParams)
	case schema.Array:
		out := map[string]any{"type": "array"}
		if p.ElemInfo != nil {
			out["items"] = paramSchema(p.ElemInfo)
		}
		return out
	}
	out := map[string]any{"type": string(p.Type)}
	if len(p.Enum) > 0 {
		out["enum"] = p.Enum
	}
	return out
}

// argValidator checks sanitised arguments against a tool's schema.
type argValidator struct {
	schema *gojsonschema.Schema
}

func newArgValidator(params map[string]*schema.ParameterInfo) (*argValidator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(jsonSchemaOf(params)))
	if err != nil {
		return nil, err
	}
	return &argValidator{schema: s}, nil
}

// validate returns nil when args conform, otherwise the failure payload for the model.
func (v *argValidator) validate(args map[string]any) backend.Result {
	res, err := v.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return backend.Fail("Argumentos no válidos.")
	}
	if res.Valid() {
		return nil
	}

	var missing, problems []string
	for _, e := range res.Errors() {
		if e.Type() == "required" {
			field := fmt.Sprint(e.Details()["property"])
			if ctx := e.Field(); ctx != "" && ctx != "(root)" {
				field = ctx + "." + field
			}
			missing = append(missing, field)
			continue
		}
		problems = append(problems, e.Field()+": "+e.Description())
	}
	if len(missing) > 0 {
		return backend.Fail("Faltan datos obligatorios: "+strings.Join(missing, ", ")).With("campos_faltantes", missing)
	}
	return backend.Fail("Datos no válidos: "+strings.Join(problems, "; ")).With("errores", problems)
}

func marshalArgs(args map[string]any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
