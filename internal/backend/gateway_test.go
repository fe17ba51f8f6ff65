package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-reservations/server/internal/backend/slots"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialDelay:   time.Millisecond,
		Multiplier:     1.5,
		AttemptTimeout: 2 * time.Second,
		Retryable:      IsTransient,
	}
}

func newTestGateway(t *testing.T, h http.Handler, opts ...Option) *Gateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL, DurationTTL: 30 * time.Second, DefaultDuration: 120, MirrorMaxAge: 30 * time.Second}
	g, err := NewGateway(cfg, append([]Option{WithRetryPolicy(testPolicy())}, opts...)...)
	require.NoError(t, err)
	return g
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func policiesHandler(minutes int, hits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		writeJSON(w, http.StatusOK, map[string]any{"exito": true, "politicas": map[string]any{"duracion_reserva": minutes}})
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func ptr[T any](v T) *T { return &v }

func TestCheckAvailability_Available(t *testing.T) {
	var sent map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /politicas", policiesHandler(90, nil))
	mux.HandleFunc("POST /buscar-mesa", func(w http.ResponseWriter, r *http.Request) {
		sent = decodeBody(t, r)
		writeJSON(w, http.StatusOK, map[string]any{
			"exito":           true,
			"mensaje":         "Mesa encontrada",
			"mesa_disponible": map[string]any{"id": 7, "numero": 12, "capacidad": 4},
		})
	})
	g := newTestGateway(t, mux)

	res := g.CheckAvailability(context.Background(), AvailabilityQuery{Date: "2026-10-16", Time: "21:00", PartySize: 4})
	require.True(t, res.Available)
	assert.Equal(t, 7, res.Table.ID)
	assert.Equal(t, 90, res.DurationMinutes)
	assert.Equal(t, true, res.Payload["disponible"])
	assert.Equal(t, "Mesa encontrada", res.Payload.Message())
	assert.EqualValues(t, 90, sent["duracion"])
	assert.EqualValues(t, 4, sent["personas"])
}

func TestCheckAvailability_AlwaysReadsFreshDuration(t *testing.T) {
	var policyHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /politicas", policiesHandler(120, &policyHits))
	mux.HandleFunc("POST /buscar-mesa", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"exito": true, "mesa_disponible": map[string]any{"id": 1, "numero": 1, "capacidad": 2}})
	})
	g := newTestGateway(t, mux)

	q := AvailabilityQuery{Date: "2026-10-16", Time: "21:00", PartySize: 2}
	g.CheckAvailability(context.Background(), q)
	g.CheckAvailability(context.Background(), q)
	assert.EqualValues(t, 2, policyHits.Load())
}

func TestCheckAvailability_ConflictRanksAlternatives(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /politicas", policiesHandler(120, nil))
	mux.HandleFunc("POST /buscar-mesa", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"exito":           true,
			"mesa_disponible": nil,
			"alternativas": []map[string]any{
				{"fecha": "2026-10-16", "hora": "22:30", "capacidad": 4, "es_liberacion": false, "diferencia_minutos": 90, "mesas_libres": 2},
				{"fecha": "2026-10-16", "hora": "21:45", "capacidad": 1, "es_liberacion": true, "diferencia_minutos": 45},
				{"fecha": "2026-10-16", "hora": "21:15", "capacidad": 2, "es_liberacion": false, "diferencia_minutos": 15},
			},
		})
	})
	g := newTestGateway(t, mux)

	res := g.CheckAvailability(context.Background(), AvailabilityQuery{Date: "2026-10-16", Time: "21:00", PartySize: 2})
	require.False(t, res.Available)
	assert.True(t, res.Payload.OK())
	assert.Equal(t, false, res.Payload["disponible"])
	assert.Equal(t, "Hay mesa disponible 15 minutos más tarde, a las 21:15 para hasta 2 personas.", res.Payload["sugerencia"])

	ranked, ok := res.Payload["alternativas"].([]slots.Slot)
	require.True(t, ok)
	var times []string
	for _, s := range ranked {
		times = append(times, s.Time)
	}
	assert.Equal(t, []string{"21:15", "21:45", "22:30"}, times)
	assert.Equal(t, false, res.Payload["sin_alternativa_mismo_dia"])
}

func TestCheckAvailability_LateRequestOnlySuggestsOfferedTimes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /politicas", policiesHandler(120, nil))
	mux.HandleFunc("POST /buscar-mesa", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"exito": true,
			"alternativas": []map[string]any{
				{"fecha": "2026-10-16", "hora": "22:30", "capacidad": 4, "es_liberacion": false, "diferencia_minutos": -60},
			},
		})
	})
	g := newTestGateway(t, mux)

	res := g.CheckAvailability(context.Background(), AvailabilityQuery{Date: "2026-10-16", Time: "23:30", PartySize: 4})
	require.False(t, res.Available)
	msg := res.Payload.Message()
	assert.Contains(t, msg, "22:30")
	assert.NotContains(t, msg, "22:00")
	assert.NotContains(t, msg, "23:00")
}

func TestCheckAvailability_ConflictTextLeads(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /politicas", policiesHandler(120, nil))
	mux.HandleFunc("POST /buscar-mesa", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"exito":               true,
			"conflicto_detectado": true,
			"detalle_conflicto":   "La mesa 4 está ocupada hasta las 22:00.",
			"alternativas":        []map[string]any{},
		})
	})
	g := newTestGateway(t, mux)

	res := g.CheckAvailability(context.Background(), AvailabilityQuery{Date: "2026-10-16", Time: "21:00", PartySize: 4})
	assert.Equal(t, "La mesa 4 está ocupada hasta las 22:00. No hay alternativas ese mismo día.", res.Payload.Message())
	assert.Equal(t, true, res.Payload["sin_alternativa_mismo_dia"])
	assert.Equal(t, true, res.Payload["conflicto_detectado"])
}

func TestCheckAvailability_OtherDaysKeptApart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /politicas", policiesHandler(120, nil))
	mux.HandleFunc("POST /buscar-mesa", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"exito":        true,
			"alternativas": []map[string]any{{"fecha": "2026-10-17", "hora": "21:00", "capacidad": 4}},
		})
	})
	g := newTestGateway(t, mux)

	res := g.CheckAvailability(context.Background(), AvailabilityQuery{Date: "2026-10-16", Time: "21:00", PartySize: 4})
	assert.Equal(t, true, res.Payload["sin_alternativa_mismo_dia"])
	others, ok := res.Payload["otros_dias"].([]slots.Slot)
	require.True(t, ok)
	assert.Len(t, others, 1)
	assert.NotContains(t, res.Payload, "sugerencia")
}

func TestCheckAvailability_LateRejectionExplainsLastEntry(t *testing.T) {
	var policyHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /politicas", policiesHandler(120, &policyHits))
	mux.HandleFunc("POST /buscar-mesa", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"exito": false, "mensaje": "Es demasiado tarde para esa duración."})
	})
	mux.HandleFunc("GET /consultar-horario", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-10-16", r.URL.Query().Get("fecha"))
		writeJSON(w, http.StatusOK, map[string]any{"exito": true, "horario": map[string]any{"apertura": "13:00", "cierre": "23:30"}})
	})
	g := newTestGateway(t, mux)

	res := g.CheckAvailability(context.Background(), AvailabilityQuery{Date: "2026-10-16", Time: "22:00", PartySize: 2})
	assert.False(t, res.Payload.OK())
	assert.Equal(t, "21:30", res.Payload["ultima_hora_entrada"])
	assert.Contains(t, res.Payload.Message(), "Es demasiado tarde")

	_, fetchedAt, ok := g.Durations().Peek()
	require.True(t, ok)
	assert.True(t, fetchedAt.IsZero(), "rejection mentioning duration invalidates the cache")

	g.Durations().Read(context.Background(), false)
	assert.EqualValues(t, 2, policyHits.Load())
}

func TestCheckAvailability_InvalidQueryNeverCallsBackend(t *testing.T) {
	var hits atomic.Int32
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))

	for _, q := range []AvailabilityQuery{
		{Date: "2026-10-16", Time: "21:00", PartySize: 25},
		{Date: "2026-10-16", Time: "21:00", PartySize: 0},
		{Date: "", Time: "21:00", PartySize: 2},
		{Date: "2026-10-16", Time: "nueve", PartySize: 2},
	} {
		res := g.CheckAvailability(context.Background(), q)
		assert.False(t, res.Payload.OK())
	}
	assert.Zero(t, hits.Load())
}

func TestLastEntry(t *testing.T) {
	last, ok := LastEntry("13:00", "23:30", 120)
	require.True(t, ok)
	assert.Equal(t, "21:30", last)

	last, ok = LastEntry("20:00", "01:00", 90)
	require.True(t, ok)
	assert.Equal(t, "23:30", last)

	_, ok = LastEntry("13:00", "", 120)
	assert.False(t, ok)
}

func TestCreateReservation_RechecksThenWritesOnce(t *testing.T) {
	var searches, creates atomic.Int32
	var sent map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /politicas", policiesHandler(120, nil))
	mux.HandleFunc("POST /buscar-mesa", func(w http.ResponseWriter, r *http.Request) {
		searches.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"exito": true, "mesa_disponible": map[string]any{"id": 7, "numero": 12, "capacidad": 4}})
	})
	mux.HandleFunc("POST /crear-reserva", func(w http.ResponseWriter, r *http.Request) {
		creates.Add(1)
		sent = decodeBody(t, r)
		writeJSON(w, http.StatusOK, map[string]any{
			"exito":          true,
			"mensaje":        "Reserva creada",
			"codigo_reserva": "abc12345",
			"reserva":        map[string]any{"id": 99, "personas": 4, "codigo_reserva": "abc12345"},
		})
	})
	g := newTestGateway(t, mux)

	res := g.CreateReservation(context.Background(), ReservationRequest{
		Name: "Ana", Phone: "+34 600 123 123", Date: "2026-10-16", Time: "21:00", PartySize: 4, Zone: "terraza",
	})
	require.True(t, res.OK(), res.Message())
	assert.Equal(t, "ABC12345", res.String("codigo_reserva"))
	assert.Equal(t, "ABC12345", res.Map("reserva")["codigo_reserva"])
	assert.EqualValues(t, 1, searches.Load())
	assert.EqualValues(t, 1, creates.Load())

	assert.Equal(t, "600123123", sent["telefono"])
	assert.EqualValues(t, 7, sent["mesa_id"])
	assert.EqualValues(t, 120, sent["duracion"])
	assert.Equal(t, "terraza", sent["zona_preferida"])
}

func TestCreateReservation_NoWriteWhenSlotTaken(t *testing.T) {
	var creates atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /politicas", policiesHandler(120, nil))
	mux.HandleFunc("POST /buscar-mesa", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"exito":        true,
			"alternativas": []map[string]any{{"fecha": "2026-10-16", "hora": "21:30", "capacidad": 4, "diferencia_minutos": 30}},
		})
	})
	mux.HandleFunc("POST /crear-reserva", func(w http.ResponseWriter, r *http.Request) { creates.Add(1) })
	g := newTestGateway(t, mux)

	res := g.CreateReservation(context.Background(), ReservationRequest{
		Name: "Ana", Phone: "600123123", Date: "2026-10-16", Time: "21:00", PartySize: 4,
	})
	assert.False(t, res.OK())
	assert.Contains(t, res.Message(), "21:30")
	assert.Zero(t, creates.Load())
}

func TestCreateReservation_LocalValidation(t *testing.T) {
	var hits atomic.Int32
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))

	for _, r := range []ReservationRequest{
		{Phone: "600123123", Date: "2026-10-16", Time: "21:00", PartySize: 4},
		{Name: "Ana", Phone: "6001", Date: "2026-10-16", Time: "21:00", PartySize: 4},
		{Name: "Ana", Phone: "600123123", Date: "2026-10-16", Time: "21:00", PartySize: 21},
	} {
		assert.False(t, g.CreateReservation(context.Background(), r).OK())
	}
	assert.Zero(t, hits.Load())
}

func TestCodeOperations_ShortCircuitWithoutBackend(t *testing.T) {
	var hits atomic.Int32
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	ctx := context.Background()
	changes := ReservationChanges{Time: "22:00"}

	cases := []struct {
		name string
		run  func(code string) Result
	}{
		{"modify", func(code string) Result { return g.ModifyReservation(ctx, code, changes) }},
		{"cancel", func(code string) Result { return g.CancelReservation(ctx, code, "") }},
		{"info", func(code string) Result { return g.GetReservation(ctx, code) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := tc.run("  ")
			assert.False(t, res.OK())
			assert.Equal(t, true, res["requiere_codigo"])

			for _, bad := range []string{"ABC123", "ABC-1234", "ABCDEFGHI"} {
				res = tc.run(bad)
				assert.False(t, res.OK())
				assert.Equal(t, true, res["codigo_invalido"], bad)
			}
		})
	}
	assert.Zero(t, hits.Load())
}

func TestModifyReservation_SendsChanges(t *testing.T) {
	var sent map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /modificar-reserva", func(w http.ResponseWriter, r *http.Request) {
		sent = decodeBody(t, r)
		writeJSON(w, http.StatusOK, map[string]any{"exito": true, "reserva": map[string]any{"id": 5, "personas": 6, "codigo_reserva": "ABC12345"}})
	})
	g := newTestGateway(t, mux)

	res := g.ModifyReservation(context.Background(), "abc12345", ReservationChanges{PartySize: ptr(6)})
	require.True(t, res.OK())
	assert.Equal(t, "ABC12345", sent["codigo_reserva"])
	assert.EqualValues(t, 6, sent["personas"])
	assert.NotContains(t, sent, "fecha")
}

func TestModifyReservation_EmptyChangesNeverCallBackend(t *testing.T) {
	var hits atomic.Int32
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))

	res := g.ModifyReservation(context.Background(), "ABC12345", ReservationChanges{})
	assert.False(t, res.OK())
	assert.Contains(t, res.Message(), "No se especificaron cambios")
	assert.Zero(t, hits.Load())
}

func TestCancelReservation_NotFoundIsFlagged(t *testing.T) {
	var sent map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /cancelar-reserva", func(w http.ResponseWriter, r *http.Request) {
		sent = decodeBody(t, r)
		writeJSON(w, http.StatusNotFound, map[string]any{"exito": false, "mensaje": "Reserva no encontrada"})
	})
	g := newTestGateway(t, mux)

	res := g.CancelReservation(context.Background(), "ZZZ99999", "")
	assert.False(t, res.OK())
	assert.Equal(t, true, res["codigo_no_encontrado"])
	assert.Equal(t, defaultCancelReason, sent["motivo"])
}

func TestGetPolicies_RefreshesDurationFromSameAnswer(t *testing.T) {
	var policyHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /politicas", policiesHandler(150, &policyHits))
	g := newTestGateway(t, mux)

	res := g.GetPolicies(context.Background())
	require.True(t, res.OK())
	assert.Equal(t, 150, res["duracion_min"])
	g.GetPolicies(context.Background())
	assert.EqualValues(t, 2, policyHits.Load())

	v, err := g.Durations().Read(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 150, v)
	assert.EqualValues(t, 2, policyHits.Load())
}

func TestGetRestaurantInfo_StaleMirrorWarns(t *testing.T) {
	now := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /espejo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"exito":                true,
			"ultima_actualizacion": now.Add(-2 * time.Minute).Format(time.RFC3339),
			"politicas":            map[string]any{"cancelacion": "Gratis hasta 2 horas antes"},
			"redes_sociales":       map[string]any{"instagram": "@gastrobot"},
		})
	})
	g := newTestGateway(t, mux, WithClock(func() time.Time { return now }))

	res := g.GetRestaurantInfo(context.Background(), "politicas", "cancelacion")
	require.True(t, res.OK())
	assert.Equal(t, "Gratis hasta 2 horas antes", res["informacion"])
	assert.Contains(t, res["advertencia"], "120 segundos")

	social := g.GetSocialMedia(context.Background())
	require.True(t, social.OK())
	assert.Contains(t, social, "advertencia")
}

func TestGetMenu_FindsDishAndStripsImages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ver-menu", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"exito": true,
			"categorias": []any{
				map[string]any{"nombre": "Entrantes", "platos": []any{
					map[string]any{"nombre": "Croquetas de jamón", "precio": 8.5, "imagen": "http://img/croq.jpg"},
				}},
			},
		})
	})
	g := newTestGateway(t, mux)

	res := g.GetMenu(context.Background(), MenuQuery{DishName: "croquetas"})
	require.True(t, res.OK())
	dish := res.Map("plato")
	assert.Equal(t, "Croquetas de jamón", dish["nombre"])
	assert.NotContains(t, dish, "imagen")

	missing := g.GetMenu(context.Background(), MenuQuery{DishName: "paella"})
	assert.False(t, missing.OK())
}
