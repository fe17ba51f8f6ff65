package tools

import (
	"github.com/cloudwego/eino/schema"
)

// Tool names offered to the model.
const (
	CheckAvailability  = "check_availability"
	CreateReservation  = "create_reservation"
	ModifyReservation  = "modify_reservation"
	CancelReservation  = "cancel_reservation"
	GetReservationInfo = "get_reservation_info"
	GetMenu            = "get_menu"
	GetHours           = "get_hours"
	GetPolicies        = "get_policies"
	GetRestaurantInfo  = "get_restaurant_info"
	GetSocialMedia     = "get_social_media"
	CreateOrder        = "create_order"
)

// toolSpec is the single source for a tool's model-facing description and its parameters;
// both the eino ToolInfo and the argument validator are derived from it.
type toolSpec struct {
	name   string
	desc   string
	params map[string]*schema.ParameterInfo
}

func (s toolSpec) info() *schema.ToolInfo {
	info := &schema.ToolInfo{Name: s.name, Desc: s.desc}
	if len(s.params) > 0 {
		info.ParamsOneOf = schema.NewParamsOneOfByParams(s.params)
	}
	return info
}

var codeParam = &schema.ParameterInfo{
	Type:     schema.String,
	Desc:     "Código de confirmación de 8 caracteres alfanuméricos (ej: ABC12345). Obligatorio; nunca lo inventes.",
	Required: true,
}

var specs = []toolSpec{
	{
		name: CheckAvailability,
		desc: "Comprueba si hay mesa para una fecha, hora y número de comensales. Úsala antes de crear una reserva. " +
			"Si no hay mesa devuelve alternativas reales; ofrece solo esas horas.",
		params: map[string]*schema.ParameterInfo{
			"fecha":        {Type: schema.String, Desc: "Fecha en formato YYYY-MM-DD", Required: true},
			"hora":         {Type: schema.String, Desc: "Hora en formato HH:MM (24h)", Required: true},
			"comensales":   {Type: schema.Integer, Desc: "Número de personas (1-20)", Required: true},
			"duracion_min": {Type: schema.Integer, Desc: "Duración en minutos; omítela para usar la configurada por el restaurante"},
		},
	},
	{
		name: CreateReservation,
		desc: "Crea la reserva cuando el cliente ha confirmado y la disponibilidad ya se ha comprobado. " +
			"Llámala una sola vez por confirmación.",
		params: map[string]*schema.ParameterInfo{
			"nombre":      {Type: schema.String, Desc: "Nombre del cliente", Required: true},
			"telefono":    {Type: schema.String, Desc: "Teléfono de contacto (al menos 9 dígitos)", Required: true},
			"fecha":       {Type: schema.String, Desc: "Fecha en formato YYYY-MM-DD", Required: true},
			"hora":        {Type: schema.String, Desc: "Hora en formato HH:MM (24h)", Required: true},
			"comensales":  {Type: schema.Integer, Desc: "Número de personas (1-20)", Required: true},
			"zona":        {Type: schema.String, Desc: "Zona preferida: interior, terraza o barra"},
			"alergias":    {Type: schema.String, Desc: "Alergias o intolerancias del grupo"},
			"comentarios": {Type: schema.String, Desc: "Peticiones especiales"},
		},
	},
	{
		name: ModifyReservation,
		desc: "Modifica una reserva existente identificada por su código. Incluye solo los campos que cambian.",
		params: map[string]*schema.ParameterInfo{
			"codigo_reserva": codeParam,
			"cambios": {
				Type:     schema.Object,
				Desc:     "Campos a cambiar",
				Required: true,
				SubParams: map[string]*schema.ParameterInfo{
					"fecha":       {Type: schema.String, Desc: "Nueva fecha YYYY-MM-DD"},
					"hora":        {Type: schema.String, Desc: "Nueva hora HH:MM"},
					"comensales":  {Type: schema.Integer, Desc: "Nuevo número de personas"},
					"zona":        {Type: schema.String, Desc: "Nueva zona preferida"},
					"alergias":    {Type: schema.String, Desc: "Alergias actualizadas"},
					"comentarios": {Type: schema.String, Desc: "Comentarios actualizados"},
				},
			},
		},
	},
	{
		name: CancelReservation,
		desc: "Cancela una reserva existente identificada por su código.",
		params: map[string]*schema.ParameterInfo{
			"codigo_reserva": codeParam,
			"motivo":         {Type: schema.String, Desc: "Motivo de la cancelación"},
		},
	},
	{
		name: GetReservationInfo,
		desc: "Consulta los datos de una reserva existente por su código.",
		params: map[string]*schema.ParameterInfo{
			"codigo_reserva": codeParam,
		},
	},
	{
		name: GetMenu,
		desc: "Consulta la carta, completa, por categoría o un plato concreto.",
		params: map[string]*schema.ParameterInfo{
			"categoria":        {Type: schema.String, Desc: "Categoría: entrantes, principales, postres, bebidas"},
			"mostrar_imagenes": {Type: schema.Boolean, Desc: "Incluir URLs de imágenes de los platos"},
			"nombre_plato":     {Type: schema.String, Desc: "Nombre (o parte) de un plato concreto"},
		},
	},
	{
		name: GetHours,
		desc: "Consulta el horario de apertura, en general o para una fecha.",
		params: map[string]*schema.ParameterInfo{
			"fecha": {Type: schema.String, Desc: "Fecha YYYY-MM-DD; omítela para el horario semanal"},
		},
	},
	{
		name: GetPolicies,
		desc: "Consulta las políticas del restaurante: duración de las reservas, cancelación, grupos.",
	},
	{
		name: GetRestaurantInfo,
		desc: "Responde preguntas generales del restaurante (ubicación, contacto, políticas, servicios).",
		params: map[string]*schema.ParameterInfo{
			"tipo_consulta": {Type: schema.String, Desc: "Sección: general, ubicacion, contacto, politicas, servicios", Required: true},
			"tipo_politica": {Type: schema.String, Desc: "Con tipo_consulta=politicas: cancelacion, mascotas, grupos..."},
		},
	},
	{
		name: GetSocialMedia,
		desc: "Devuelve las redes sociales del restaurante.",
	},
	{
		name: CreateOrder,
		desc: "Registra un pedido de comida para un cliente.",
		params: map[string]*schema.ParameterInfo{
			"cliente_nombre":   {Type: schema.String, Desc: "Nombre del cliente", Required: true},
			"cliente_telefono": {Type: schema.String, Desc: "Teléfono del cliente", Required: true},
			"detalles_pedido": {
				Type:     schema.Array,
				Desc:     "Platos del pedido",
				Required: true,
				ElemInfo: &schema.ParameterInfo{
					Type: schema.Object,
					SubParams: map[string]*schema.ParameterInfo{
						"plato":           {Type: schema.String, Desc: "Nombre del plato", Required: true},
						"cantidad":        {Type: schema.Integer, Desc: "Unidades", Required: true},
						"precio_unitario": {Type: schema.Number, Desc: "Precio por unidad en euros", Required: true},
						"notas":           {Type: schema.String, Desc: "Indicaciones del plato"},
					},
				},
			},
			"total":   {Type: schema.Number, Desc: "Importe total en euros", Required: true},
			"mesa_id": {Type: schema.Integer, Desc: "Mesa, si el pedido es en sala"},
			"notas":   {Type: schema.String, Desc: "Notas generales"},
		},
	},
}

var specsByName = func() map[string]toolSpec {
	m := make(map[string]toolSpec, len(specs))
	for _, s := range specs {
		m[s.name] = s
	}
	return m
}()

// Catalog returns the tool signatures offered to the model, in a stable order.
func Catalog() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.info())
	}
	return out
}

// Known reports whether name is a tool of the catalog.
func Known(name string) bool {
	_, ok := specsByName[name]
	return ok
}
