package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-reservations/server/internal/agent/model"
	"github.com/Chative-reservations/server/internal/backend"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

// Gateway is the set of backend operations the tools call.
type Gateway interface {
	CheckAvailability(ctx context.Context, q backend.AvailabilityQuery) backend.AvailabilityResult
	CreateReservation(ctx context.Context, r backend.ReservationRequest) backend.Result
	ModifyReservation(ctx context.Context, code string, c backend.ReservationChanges) backend.Result
	CancelReservation(ctx context.Context, code, reason string) backend.Result
	GetReservation(ctx context.Context, code string) backend.Result
	GetMenu(ctx context.Context, q backend.MenuQuery) backend.Result
	GetHours(ctx context.Context, date string) backend.Result
	GetPolicies(ctx context.Context) backend.Result
	GetRestaurantInfo(ctx context.Context, topic, policyType string) backend.Result
	GetSocialMedia(ctx context.Context) backend.Result
	CreateOrder(ctx context.Context, o backend.OrderRequest) backend.Result
}

const (
	unknownToolError   = "Función no reconocida"
	unknownToolMessage = "Esta operación no está disponible"
	toolPanicMessage   = "No se pudo completar la operación. Inténtalo de nuevo."
)

// codeOperations names, per tool, the verb used in the "code required" message.
var codeOperations = map[string]string{
	ModifyReservation:  "modificar",
	CancelReservation:  "cancelar",
	GetReservationInfo: "consultar",
}

// Executor runs one tool call against the gateway and reports its state patches.
// It never returns an error: every failure becomes an exito=false payload.
type Executor struct {
	gateway      Gateway
	validators   map[string]*argValidator
	repeatWindow time.Duration
	now          func() time.Time
}

type ExecutorOption func(*Executor)

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(gateway Gateway, repeatWindow time.Duration, opts ...ExecutorOption) (*Executor, error) {
	e := &Executor{
		gateway:      gateway,
		validators:   make(map[string]*argValidator, len(specs)),
		repeatWindow: repeatWindow,
		now:          time.Now,
	}
	for _, s := range specs {
		v, err := newArgValidator(s.params)
		if err != nil {
			return nil, fmt.Errorf("compile %s argument schema: %w", s.name, err)
		}
		e.validators[s.name] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// callScope collects what a single call produced. Tools are built per call around it.
type callScope struct {
	snapshot *model.ConversationState
	result   backend.Result
	patches  []model.StatePatch
}

func (sc *callScope) done(res backend.Result, patches ...model.StatePatch) (backend.Result, error) {
	sc.result = res
	sc.patches = append(sc.patches, patches...)
	return res, nil
}

// Execute runs call against snapshot, which it reads but never mutates.
func (e *Executor) Execute(ctx context.Context, snapshot *model.ConversationState, call schema.ToolCall) model.ToolOutcome {
	name := call.Function.Name
	out := model.ToolOutcome{CallID: call.ID, Name: name}
	log := logx.With("tool", name, "call_id", call.ID)

	spec, ok := specsByName[name]
	if !ok {
		log.Warn().Msg("model requested an unknown tool")
		out.Result = backend.Result{"exito": false, "error": unknownToolError, "mensaje": unknownToolMessage}
		return out
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			log.Warn().Err(err).Str("arguments", backend.MaskPII(raw)).Msg("tool arguments are not a JSON object")
			out.Result = backend.Fail("Los argumentos de la operación no son válidos.")
			return out
		}
	}
	args = sanitizeArgs(args, spec.params)
	out.Arguments = args

	if op, ok := codeOperations[name]; ok {
		raw, _ := args["codigo_reserva"].(string)
		if _, err := backend.ParseReservationCode(raw); err != nil {
			log.Info().Err(err).Msg("reservation code check failed, backend not called")
			out.Result = backend.CodeResult(err, op)
			return out
		}
	}

	if res := e.validators[name].validate(args); res != nil {
		log.Info().Str("mensaje", res.Message()).Msg("tool arguments rejected")
		out.Result = res
		return out
	}

	encoded, err := marshalArgs(args)
	if err != nil {
		out.Result = backend.Fail("Los argumentos de la operación no son válidos.")
		return out
	}

	scope := &callScope{snapshot: snapshot}
	start := e.now()
	if err := e.invoke(ctx, name, e.buildTool(spec, scope), encoded); err != nil {
		log.Error().Err(err).Str("arguments", backend.MaskPII(encoded)).Msg("tool execution failed")
		out.Result = backend.Fail(toolPanicMessage)
		return out
	}

	out.Result = scope.result
	out.Patches = scope.patches
	log.Info().
		Bool("exito", out.Succeeded()).
		Dur("elapsed", e.now().Sub(start)).
		Strs("patches", model.PatchKinds(out.Patches)).
		Msg("tool executed")
	return out
}

// invoke runs the tool, turning a panic into an error so one bad call cannot end the turn.
// Tool callbacks registered on ctx observe the call.
func (e *Executor) invoke(ctx context.Context, name string, t tool.InvokableTool, args string) (err error) {
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{Name: name, Type: "Reservation", Component: components.ComponentOfTool})
	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: args})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()
	out, err := t.InvokableRun(ctx, args)
	if err == nil {
		callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: out})
	}
	return err
}

func (e *Executor) buildTool(spec toolSpec, sc *callScope) tool.InvokableTool {
	info := spec.info()
	switch spec.name {
	case CheckAvailability:
		return utils.NewTool(info, func(ctx context.Context, in *CheckAvailabilityArgs) (backend.Result, error) {
			return e.checkAvailability(ctx, sc, in)
		})
	case CreateReservation:
		return utils.NewTool(info, func(ctx context.Context, in *CreateReservationArgs) (backend.Result, error) {
			return e.createReservation(ctx, sc, in)
		})
	case ModifyReservation:
		return utils.NewTool(info, func(ctx context.Context, in *ModifyReservationArgs) (backend.Result, error) {
			return e.modifyReservation(ctx, sc, in)
		})
	case CancelReservation:
		return utils.NewTool(info, func(ctx context.Context, in *CancelReservationArgs) (backend.Result, error) {
			res := e.gateway.CancelReservation(ctx, in.CodigoReserva, in.Motivo)
			if !res.OK() {
				return sc.done(res)
			}
			return sc.done(res, model.ClearCurrentReservationPatch{}, model.ResetRecordPatch{})
		})
	case GetReservationInfo:
		return utils.NewTool(info, func(ctx context.Context, in *GetReservationInfoArgs) (backend.Result, error) {
			return sc.done(e.gateway.GetReservation(ctx, in.CodigoReserva))
		})
	case GetMenu:
		return utils.NewTool(info, func(ctx context.Context, in *GetMenuArgs) (backend.Result, error) {
			return sc.done(e.gateway.GetMenu(ctx, backend.MenuQuery{
				Category: in.Categoria, ShowImages: in.MostrarImagenes, DishName: in.NombrePlato,
			}))
		})
	case GetHours:
		return utils.NewTool(info, func(ctx context.Context, in *GetHoursArgs) (backend.Result, error) {
			return sc.done(e.gateway.GetHours(ctx, in.Fecha))
		})
	case GetPolicies:
		return utils.NewTool(info, func(ctx context.Context, _ *NoArgs) (backend.Result, error) {
			return sc.done(e.gateway.GetPolicies(ctx))
		})
	case GetRestaurantInfo:
		return utils.NewTool(info, func(ctx context.Context, in *GetRestaurantInfoArgs) (backend.Result, error) {
			return sc.done(e.gateway.GetRestaurantInfo(ctx, in.TipoConsulta, in.TipoPolitica))
		})
	case GetSocialMedia:
		return utils.NewTool(info, func(ctx context.Context, _ *NoArgs) (backend.Result, error) {
			return sc.done(e.gateway.GetSocialMedia(ctx))
		})
	case CreateOrder:
		return utils.NewTool(info, func(ctx context.Context, in *CreateOrderArgs) (backend.Result, error) {
			return sc.done(e.gateway.CreateOrder(ctx, in.request()))
		})
	}
	// specsByName and this switch list the same tools
	panic("tool without implementation: " + spec.name)
}

func (e *Executor) checkAvailability(ctx context.Context, sc *callScope, in *CheckAvailabilityArgs) (backend.Result, error) {
	check := model.AvailabilityCheck{Date: in.Fecha, Time: in.Hora, PartySize: in.Comensales, CheckedAt: e.now()}
	repeated := sc.snapshot != nil && sc.snapshot.IsRepeatedCheck(check, e.repeatWindow)

	avail := e.gateway.CheckAvailability(ctx, backend.AvailabilityQuery{
		Date: in.Fecha, Time: in.Hora, PartySize: in.Comensales, DurationMinutes: in.DuracionMin,
	})
	res := avail.Payload
	if res == nil {
		res = backend.Fail("No se pudo comprobar la disponibilidad.")
	}
	res["repeated_check_warning"] = repeated

	patches := []model.StatePatch{model.RecordAvailabilityCheckPatch{Check: check, Repeated: repeated}}
	if avail.Available {
		pending := map[string]any{
			model.FieldDate:      in.Fecha,
			model.FieldTime:      in.Hora,
			model.FieldPartySize: in.Comensales,
			"duracion_min":       avail.DurationMinutes,
		}
		if avail.Table != nil {
			pending["mesa_id"] = avail.Table.ID
		}
		patches = append(patches, model.MarkReadyToCreatePatch{Pending: pending})
	} else {
		patches = append(patches, model.ClearReadyToCreatePatch{})
	}
	if repeated {
		logx.Warn().Str("fecha", in.Fecha).Str("hora", in.Hora).Int("comensales", in.Comensales).Msg("same availability query repeated within window")
	}
	return sc.done(res, patches...)
}

func (e *Executor) createReservation(ctx context.Context, sc *callScope, in *CreateReservationArgs) (backend.Result, error) {
	res := e.gateway.CreateReservation(ctx, backend.ReservationRequest{
		Name:      in.Nombre,
		Phone:     in.Telefono,
		Date:      in.Fecha,
		Time:      in.Hora,
		PartySize: in.Comensales,
		Zone:      in.Zona,
		Allergies: in.Alergias,
		Comments:  in.Comentarios,
	})
	if !res.OK() {
		return sc.done(res)
	}

	reservation := res.Map("reserva")
	if reservation == nil {
		reservation = map[string]any{"codigo_reserva": res.String("codigo_reserva")}
	}
	return sc.done(res,
		model.MergeFieldsPatch{Fields: in.fields()},
		model.SetCurrentReservationPatch{Reservation: reservation},
		model.ClearAvailabilityCheckPatch{},
		model.SetReservationCodePatch{Code: res.String("codigo_reserva")},
		model.ClearReadyToCreatePatch{},
	)
}

func (e *Executor) modifyReservation(ctx context.Context, sc *callScope, in *ModifyReservationArgs) (backend.Result, error) {
	c := in.Cambios
	res := e.gateway.ModifyReservation(ctx, in.CodigoReserva, backend.ReservationChanges{
		Date:      c.Fecha,
		Time:      c.Hora,
		PartySize: c.Comensales,
		Zone:      c.Zona,
		Allergies: c.Alergias,
		Comments:  c.Comentarios,
	})
	if !res.OK() {
		return sc.done(res)
	}

	reservation := res.Map("reserva")
	if reservation == nil {
		reservation = map[string]any{"codigo_reserva": strings.ToUpper(in.CodigoReserva)}
		if sc.snapshot != nil {
			for k, v := range sc.snapshot.CurrentReservation {
				reservation[k] = v
			}
		}
	}
	return sc.done(res, model.SetCurrentReservationPatch{Reservation: reservation}, model.ClearReadyToCreatePatch{})
}

func (a *CreateOrderArgs) request() backend.OrderRequest {
	lines := make([]backend.OrderLine, 0, len(a.DetallesPedido))
	for _, l := range a.DetallesPedido {
		lines = append(lines, backend.OrderLine{Dish: l.Plato, Quantity: l.Cantidad, UnitPrice: l.PrecioUnitario, Notes: l.Notas})
	}
	return backend.OrderRequest{
		CustomerName:  a.ClienteNombre,
		CustomerPhone: a.ClienteTelefono,
		Lines:         lines,
		Total:         a.Total,
		TableID:       a.MesaID,
		Notes:         a.Notas,
	}
}
