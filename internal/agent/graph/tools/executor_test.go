package tools

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-reservations/server/internal/agent/model"
	"github.com/Chative-reservations/server/internal/backend"
)

var t0 = time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)

// fakeGateway records calls and answers with canned results.
type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	availability backend.AvailabilityResult
	create       backend.Result
	modify       backend.Result
	cancel       backend.Result
	panicOn      string

	lastQuery   backend.AvailabilityQuery
	lastRequest backend.ReservationRequest
	lastChanges backend.ReservationChanges
}

func (f *fakeGateway) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.panicOn == name {
		panic("boom")
	}
}

func (f *fakeGateway) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGateway) CheckAvailability(_ context.Context, q backend.AvailabilityQuery) backend.AvailabilityResult {
	f.record(CheckAvailability)
	f.lastQuery = q
	return f.availability
}

func (f *fakeGateway) CreateReservation(_ context.Context, r backend.ReservationRequest) backend.Result {
	f.record(CreateReservation)
	f.lastRequest = r
	return f.create
}

func (f *fakeGateway) ModifyReservation(_ context.Context, _ string, c backend.ReservationChanges) backend.Result {
	f.record(ModifyReservation)
	f.lastChanges = c
	return f.modify
}

func (f *fakeGateway) CancelReservation(context.Context, string, string) backend.Result {
	f.record(CancelReservation)
	return f.cancel
}

func (f *fakeGateway) GetReservation(context.Context, string) backend.Result {
	f.record(GetReservationInfo)
	return backend.Result{"exito": true}
}

func (f *fakeGateway) GetMenu(context.Context, backend.MenuQuery) backend.Result {
	f.record(GetMenu)
	return backend.Result{"exito": true}
}

func (f *fakeGateway) GetHours(context.Context, string) backend.Result {
	f.record(GetHours)
	return backend.Result{"exito": true}
}

func (f *fakeGateway) GetPolicies(context.Context) backend.Result {
	f.record(GetPolicies)
	return backend.Result{"exito": true}
}

func (f *fakeGateway) GetRestaurantInfo(context.Context, string, string) backend.Result {
	f.record(GetRestaurantInfo)
	return backend.Result{"exito": true}
}

func (f *fakeGateway) GetSocialMedia(context.Context) backend.Result {
	f.record(GetSocialMedia)
	return backend.Result{"exito": true}
}

func (f *fakeGateway) CreateOrder(context.Context, backend.OrderRequest) backend.Result {
	f.record(CreateOrder)
	return backend.Result{"exito": true}
}

func newTestExecutor(t *testing.T, gw Gateway, now *time.Time) *Executor {
	t.Helper()
	e, err := NewExecutor(gw, 30*time.Second, WithExecutorClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return e
}

func toolCall(name string, args any) schema.ToolCall {
	raw, _ := json.Marshal(args)
	return schema.ToolCall{ID: "call_1", Function: schema.FunctionCall{Name: name, Arguments: string(raw)}}
}

func availableResult() backend.AvailabilityResult {
	return backend.AvailabilityResult{
		Available:       true,
		Table:           &backend.Table{ID: 7, Number: 12, Capacity: 4},
		DurationMinutes: 120,
		Payload:         backend.Result{"exito": true, "disponible": true, "mensaje": "Hay mesa"},
	}
}

func TestCatalog_DeclaresEveryTool(t *testing.T) {
	var names []string
	for _, info := range Catalog() {
		names = append(names, info.Name)
	}
	assert.ElementsMatch(t, []string{
		CheckAvailability, CreateReservation, ModifyReservation, CancelReservation, GetReservationInfo,
		GetMenu, GetHours, GetPolicies, GetRestaurantInfo, GetSocialMedia, CreateOrder,
	}, names)

	e, err := NewExecutor(&fakeGateway{}, time.Second)
	require.NoError(t, err)
	for _, s := range specs {
		assert.NotPanics(t, func() { e.buildTool(s, &callScope{}) }, s.name)
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	now := t0
	gw := &fakeGateway{}
	e := newTestExecutor(t, gw, &now)

	out := e.Execute(context.Background(), nil, toolCall("book_helicopter", map[string]any{}))
	assert.False(t, out.Succeeded())
	assert.Equal(t, "Función no reconocida", out.Result["error"])
	assert.Equal(t, "Esta operación no está disponible", out.Result["mensaje"])
	assert.Empty(t, gw.Calls())
}

func TestExecute_CodeRequiredNeverCallsBackend(t *testing.T) {
	now := t0
	gw := &fakeGateway{}
	e := newTestExecutor(t, gw, &now)

	cases := []struct {
		name string
		args map[string]any
		flag string
	}{
		{ModifyReservation, map[string]any{"cambios": map[string]any{"hora": "22:00"}}, "requiere_codigo"},
		{CancelReservation, map[string]any{"codigo_reserva": "   "}, "requiere_codigo"},
		{CancelReservation, map[string]any{"codigo_reserva": "ABC123"}, "codigo_invalido"},
		{ModifyReservation, map[string]any{"codigo_reserva": "ABC-1234", "cambios": map[string]any{}}, "codigo_invalido"},
		{GetReservationInfo, map[string]any{}, "requiere_codigo"},
	}
	for _, tc := range cases {
		out := e.Execute(context.Background(), nil, toolCall(tc.name, tc.args))
		assert.False(t, out.Succeeded(), tc.name)
		assert.Equal(t, true, out.Result[tc.flag], "%s %v", tc.name, tc.args)
		assert.Empty(t, out.Patches)
	}
	assert.Empty(t, gw.Calls())
}

func TestExecute_MissingRequiredArguments(t *testing.T) {
	now := t0
	gw := &fakeGateway{}
	e := newTestExecutor(t, gw, &now)

	out := e.Execute(context.Background(), nil, toolCall(CreateReservation, map[string]any{
		"nombre": "Ana", "fecha": "2026-10-16", "hora": "21:00", "comensales": 4, "telefono": "  ",
	}))
	assert.False(t, out.Succeeded())
	assert.Equal(t, []string{"telefono"}, out.Result["campos_faltantes"])
	assert.Empty(t, gw.Calls())
}

func TestExecute_SanitisesArguments(t *testing.T) {
	now := t0
	gw := &fakeGateway{availability: availableResult()}
	e := newTestExecutor(t, gw, &now)

	out := e.Execute(context.Background(), nil, toolCall(CheckAvailability, map[string]any{
		"fecha": " 2026-10-16 ", "hora": "21:00", "comensales": "4", "inventado": true,
	}))
	require.True(t, out.Succeeded(), out.Result)
	assert.Equal(t, backend.AvailabilityQuery{Date: "2026-10-16", Time: "21:00", PartySize: 4}, gw.lastQuery)
	assert.NotContains(t, out.Arguments, "inventado")
}

func TestExecute_InvalidArgumentType(t *testing.T) {
	now := t0
	gw := &fakeGateway{}
	e := newTestExecutor(t, gw, &now)

	out := e.Execute(context.Background(), nil, toolCall(CheckAvailability, map[string]any{
		"fecha": "2026-10-16", "hora": "21:00", "comensales": "cuatro",
	}))
	assert.False(t, out.Succeeded())
	assert.Contains(t, out.Result, "errores")
	assert.Empty(t, gw.Calls())
}

func TestExecute_MalformedJSON(t *testing.T) {
	now := t0
	e := newTestExecutor(t, &fakeGateway{}, &now)
	call := schema.ToolCall{ID: "x", Function: schema.FunctionCall{Name: GetHours, Arguments: "{fecha:"}}

	out := e.Execute(context.Background(), nil, call)
	assert.False(t, out.Succeeded())
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	now := t0
	gw := &fakeGateway{panicOn: GetMenu}
	e := newTestExecutor(t, gw, &now)

	out := e.Execute(context.Background(), nil, toolCall(GetMenu, map[string]any{}))
	assert.False(t, out.Succeeded())
	assert.NotEmpty(t, out.Result["mensaje"])
}

func TestExecute_AvailabilitySideEffects(t *testing.T) {
	now := t0
	gw := &fakeGateway{availability: availableResult()}
	e := newTestExecutor(t, gw, &now)
	state := model.NewConversationState("c1", 0, t0)
	args := map[string]any{"fecha": "2026-10-16", "hora": "21:00", "comensales": 4}

	out := e.Execute(context.Background(), state, toolCall(CheckAvailability, args))
	assert.Equal(t, []string{"record_availability_check", "mark_ready_to_create"}, model.PatchKinds(out.Patches))
	assert.Equal(t, false, out.Result["repeated_check_warning"])
	model.ApplyPatches(state, out.Patches, now)
	assert.True(t, state.ReadyToCreate)
	assert.Equal(t, 7, state.PendingReservation["mesa_id"])

	now = t0.Add(10 * time.Second)
	out = e.Execute(context.Background(), state, toolCall(CheckAvailability, args))
	assert.Equal(t, true, out.Result["repeated_check_warning"])
	model.ApplyPatches(state, out.Patches, now)
	assert.True(t, state.RepeatedCheckWarning)

	now = t0.Add(10*time.Second + 31*time.Second)
	out = e.Execute(context.Background(), state, toolCall(CheckAvailability, args))
	assert.Equal(t, false, out.Result["repeated_check_warning"])
}

func TestExecute_UnavailableStillRecordsQuery(t *testing.T) {
	now := t0
	gw := &fakeGateway{availability: backend.AvailabilityResult{Payload: backend.Fail("⏳ El sistema de reservas está tardando")}}
	e := newTestExecutor(t, gw, &now)
	state := model.NewConversationState("c1", 0, t0)

	out := e.Execute(context.Background(), state, toolCall(CheckAvailability, map[string]any{"fecha": "2026-10-16", "hora": "21:00", "comensales": 4}))
	assert.False(t, out.Succeeded())
	assert.Equal(t, []string{"record_availability_check", "clear_ready_to_create"}, model.PatchKinds(out.Patches))
	model.ApplyPatches(state, out.Patches, now)
	require.NotNil(t, state.LastAvailabilityCheck)
	assert.False(t, state.ReadyToCreate)
}

func TestExecute_UnavailableCheckDropsEarlierPending(t *testing.T) {
	now := t0
	gw := &fakeGateway{availability: availableResult()}
	e := newTestExecutor(t, gw, &now)
	state := model.NewConversationState("c1", 0, t0)

	out := e.Execute(context.Background(), state, toolCall(CheckAvailability, map[string]any{"fecha": "2026-10-16", "hora": "21:00", "comensales": 4}))
	model.ApplyPatches(state, out.Patches, now)
	require.True(t, state.ReadyToCreate)

	now = t0.Add(time.Minute)
	gw.availability = backend.AvailabilityResult{Payload: backend.Result{"exito": true, "disponible": false, "mensaje": "No hay mesa a las 23:30"}}
	out = e.Execute(context.Background(), state, toolCall(CheckAvailability, map[string]any{"fecha": "2026-10-16", "hora": "23:30", "comensales": 4}))
	model.ApplyPatches(state, out.Patches, now)

	assert.False(t, state.ReadyToCreate)
	assert.Nil(t, state.PendingReservation)
	require.NotNil(t, state.LastAvailabilityCheck)
	assert.Equal(t, "23:30", state.LastAvailabilityCheck.Time)
}

func TestExecute_CreateSideEffectsAndAction(t *testing.T) {
	now := t0
	gw := &fakeGateway{create: backend.Result{
		"exito":          true,
		"mensaje":        "Reserva confirmada",
		"codigo_reserva": "ABC12345",
		"duracion":       120,
		"reserva":        map[string]any{"id": 99, "fecha": "2026-10-16", "hora": "21:00", "personas": float64(4), "mesa_id": 7},
	}}
	e := newTestExecutor(t, gw, &now)
	state := model.NewConversationState("c1", 0, t0)
	state.RecordAvailabilityCheck(model.AvailabilityCheck{Date: "2026-10-16", Time: "21:00", PartySize: 4, CheckedAt: t0}, false, t0)
	state.MarkReadyToCreate(map[string]any{"fecha": "2026-10-16"}, t0)

	out := e.Execute(context.Background(), state, toolCall(CreateReservation, map[string]any{
		"nombre": "Ana", "telefono": "600123123", "fecha": "2026-10-16", "hora": "21:00", "comensales": 4, "zona": "terraza",
	}))
	require.True(t, out.Succeeded())
	assert.Equal(t, "terraza", gw.lastRequest.Zone)

	model.ApplyPatches(state, out.Patches, now)
	assert.Equal(t, "Ana", state.FilledFields["nombre"])
	assert.Nil(t, state.LastAvailabilityCheck)
	assert.Equal(t, "ABC12345", state.LastReservationCode)
	assert.False(t, state.ReadyToCreate)
	assert.Equal(t, 99, state.CurrentReservation["id"])

	action := DeriveAction([]model.ToolOutcome{out})
	require.NotNil(t, action)
	assert.Equal(t, model.ActionCreate, action.Kind)
	assert.Equal(t, "ABC12345", action.Code)
	assert.Equal(t, 99, action.ReservationID)
	assert.Equal(t, 4, action.Details.PartySize)
	assert.Equal(t, 7, action.Details.Table)
	assert.Equal(t, "terraza", action.Details.Zone)
	assert.Equal(t, 120, action.Details.DurationMinutes)
	assert.Equal(t, "Reserva confirmada", action.Summary)
}

func TestExecute_FailedCreateHasNoEffects(t *testing.T) {
	now := t0
	gw := &fakeGateway{create: backend.Fail("Ese horario ya no está disponible")}
	e := newTestExecutor(t, gw, &now)

	out := e.Execute(context.Background(), nil, toolCall(CreateReservation, map[string]any{
		"nombre": "Ana", "telefono": "600123123", "fecha": "2026-10-16", "hora": "21:00", "comensales": 4,
	}))
	assert.False(t, out.Succeeded())
	assert.Empty(t, out.Patches)
	assert.Nil(t, DeriveAction([]model.ToolOutcome{out}))
}

func TestExecute_ModifyAndCancel(t *testing.T) {
	now := t0
	gw := &fakeGateway{
		modify: backend.Result{"exito": true, "mensaje": "Reserva modificada", "reserva": map[string]any{"codigo_reserva": "ABC12345", "personas": float64(6)}},
		cancel: backend.Result{"exito": true, "mensaje": "Reserva cancelada", "codigo_reserva": "ABC12345"},
	}
	e := newTestExecutor(t, gw, &now)
	state := model.NewConversationState("c1", 0, t0)
	state.MarkReadyToCreate(map[string]any{"fecha": "2026-10-16", "hora": "21:00"}, t0)

	mod := e.Execute(context.Background(), state, toolCall(ModifyReservation, map[string]any{
		"codigo_reserva": "abc12345", "cambios": map[string]any{"comensales": "6"},
	}))
	require.True(t, mod.Succeeded())
	require.NotNil(t, gw.lastChanges.PartySize)
	assert.Equal(t, 6, *gw.lastChanges.PartySize)
	assert.Equal(t, []string{"set_current_reservation", "clear_ready_to_create"}, model.PatchKinds(mod.Patches))
	model.ApplyPatches(state, mod.Patches, now)
	assert.Equal(t, "ABC12345", state.CurrentReservation["codigo_reserva"])
	assert.False(t, state.ReadyToCreate)
	assert.Nil(t, state.PendingReservation)

	cancel := e.Execute(context.Background(), state, toolCall(CancelReservation, map[string]any{"codigo_reserva": "ABC12345"}))
	require.True(t, cancel.Succeeded())
	model.ApplyPatches(state, cancel.Patches, now)
	assert.Empty(t, state.CurrentReservation)
	assert.Equal(t, model.IntentNone, state.Intent)

	action := DeriveAction([]model.ToolOutcome{mod, cancel})
	require.NotNil(t, action)
	assert.Equal(t, model.ActionCancel, action.Kind)
	assert.Equal(t, "ABC12345", action.Code)

	action = DeriveAction([]model.ToolOutcome{mod})
	assert.Equal(t, model.ActionModify, action.Kind)
	assert.Equal(t, 6, action.Details.PartySize)
}

func TestDeriveAction_IgnoresQueries(t *testing.T) {
	outcomes := []model.ToolOutcome{
		{Name: GetMenu, Result: map[string]any{"exito": true}},
		{Name: CheckAvailability, Result: map[string]any{"exito": true, "disponible": true}},
	}
	assert.Nil(t, DeriveAction(outcomes))
}
