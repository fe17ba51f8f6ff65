package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)

func assertDisjoint(t *testing.T, s *ConversationState) {
	t.Helper()
	for _, f := range s.MissingFields {
		_, filled := s.FilledFields[f]
		assert.False(t, filled, "field %q is both filled and missing", f)
	}
	for _, f := range RequiredFields(s.Intent) {
		_, filled := s.FilledFields[f]
		assert.True(t, filled || contains(s.MissingFields, f), "required field %q neither filled nor missing", f)
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func TestConversationState_FilledAndMissingStayDisjoint(t *testing.T) {
	s := NewConversationState("c1", 0, t0)
	s.SetIntent(IntentCreate, t0)
	assert.Equal(t, []string{FieldName, FieldPhone, FieldDate, FieldTime, FieldPartySize}, s.MissingFields)

	updates := []map[string]any{
		{FieldDate: "2026-10-16"},
		{FieldTime: "21:00", FieldZone: "terraza"},
		{FieldName: ""},
		{FieldName: "Ana", FieldPartySize: 4},
		{FieldPhone: "600123123"},
	}
	for i, u := range updates {
		s.MergeFields(u, t0.Add(time.Duration(i+1)*time.Second))
		assertDisjoint(t, s)
	}
	assert.Empty(t, s.MissingFields)

	s.SetIntent(IntentCancel, t0.Add(time.Minute))
	assertDisjoint(t, s)
	assert.Equal(t, []string{FieldCode}, s.MissingFields)
}

func TestConversationState_EmptyValuesDoNotFill(t *testing.T) {
	s := NewConversationState("c1", 0, t0)
	s.SetIntent(IntentCreate, t0)
	s.MergeFields(map[string]any{FieldName: "   ", FieldPhone: nil}, t0)
	assert.Contains(t, s.MissingFields, FieldName)
	assert.Contains(t, s.MissingFields, FieldPhone)
	assert.Equal(t, t0, s.UpdatedAt)
}

func TestConversationState_IntentNeverSilentlyReset(t *testing.T) {
	s := NewConversationState("c1", 0, t0)
	s.SetIntent(IntentModify, t0)
	s.SetIntent(IntentNone, t0.Add(time.Second))
	assert.Equal(t, IntentModify, s.Intent)

	s.ResetRecord(t0.Add(2 * time.Second))
	assert.Equal(t, IntentNone, s.Intent)
	assert.Empty(t, s.FilledFields)
	assert.Empty(t, s.MissingFields)
}

func TestConversationState_HistoryIsBounded(t *testing.T) {
	s := NewConversationState("c1", 5, t0)
	for i := 0; i < 23; i++ {
		s.AppendHistory(RoleUser, fmt.Sprintf("m%d", i), t0.Add(time.Duration(i)*time.Second))
		require.LessOrEqual(t, len(s.History), 5)
	}
	assert.Equal(t, "m18", s.History[0].Content)
	assert.Equal(t, "m22", s.History[4].Content)
}

func TestConversationState_UpdatedAtAdvances(t *testing.T) {
	s := NewConversationState("c1", 0, t0)
	s.AppendHistory(RoleUser, "hola", t0.Add(time.Second))
	assert.Equal(t, t0.Add(time.Second), s.UpdatedAt)
	s.SetIntent(IntentQueryMenu, t0.Add(2*time.Second))
	assert.Equal(t, t0.Add(2*time.Second), s.UpdatedAt)
	s.MergeFields(map[string]any{FieldDate: "2026-10-16"}, t0.Add(3*time.Second))
	assert.Equal(t, t0.Add(3*time.Second), s.UpdatedAt)
	assert.Equal(t, t0, s.CreatedAt)
}

func TestConversationState_RepeatedCheckWindow(t *testing.T) {
	window := 30 * time.Second
	first := AvailabilityCheck{Date: "2026-10-16", Time: "21:00", PartySize: 4, CheckedAt: t0}

	s := NewConversationState("c1", 0, t0)
	assert.False(t, s.IsRepeatedCheck(first, window))
	s.RecordAvailabilityCheck(first, false, t0)

	again := first
	again.CheckedAt = t0.Add(10 * time.Second)
	assert.True(t, s.IsRepeatedCheck(again, window))

	late := first
	late.CheckedAt = t0.Add(31 * time.Second)
	assert.False(t, s.IsRepeatedCheck(late, window))

	other := again
	other.PartySize = 2
	assert.False(t, s.IsRepeatedCheck(other, window))
}

func TestConversationState_ReadyToCreate(t *testing.T) {
	s := NewConversationState("c1", 0, t0)
	s.MarkReadyToCreate(map[string]any{FieldDate: "2026-10-16"}, t0)
	assert.True(t, s.ReadyToCreate)
	assert.Equal(t, "2026-10-16", s.PendingReservation[FieldDate])

	s.ClearReadyToCreate(t0.Add(time.Second))
	assert.False(t, s.ReadyToCreate)
	assert.Nil(t, s.PendingReservation)
}

func TestConversationState_CloneIsDeep(t *testing.T) {
	s := NewConversationState("c1", 0, t0)
	s.MergeFields(map[string]any{FieldName: "Ana"}, t0)
	s.SetCurrentReservation(map[string]any{"id": 7}, t0)

	c := s.Clone()
	c.MergeFields(map[string]any{FieldName: "Luis"}, t0)
	c.ClearCurrentReservation(t0)

	assert.Equal(t, "Ana", s.FilledFields[FieldName])
	assert.NotEmpty(t, s.CurrentReservation)
}

func TestApplyPatches(t *testing.T) {
	s := NewConversationState("c1", 0, t0)
	check := AvailabilityCheck{Date: "2026-10-16", Time: "21:00", PartySize: 4, CheckedAt: t0}
	patches := []StatePatch{
		SetIntentPatch{Intent: IntentCreate},
		RecordAvailabilityCheckPatch{Check: check},
		MarkReadyToCreatePatch{Pending: map[string]any{FieldDate: "2026-10-16"}},
		MergeFieldsPatch{Fields: map[string]any{FieldName: "Ana", FieldPhone: "600123123", FieldDate: "2026-10-16", FieldTime: "21:00", FieldPartySize: 4}},
		SetCurrentReservationPatch{Reservation: map[string]any{"codigo_reserva": "ABC12345"}},
		ClearAvailabilityCheckPatch{},
		SetReservationCodePatch{Code: "ABC12345"},
		ClearReadyToCreatePatch{},
	}
	ApplyPatches(s, patches, t0.Add(time.Second))

	assert.Equal(t, IntentCreate, s.Intent)
	assert.Empty(t, s.MissingFields)
	assert.Nil(t, s.LastAvailabilityCheck)
	assert.False(t, s.ReadyToCreate)
	assert.Equal(t, "ABC12345", s.LastReservationCode)
	assert.Equal(t, []string{
		"set_intent", "record_availability_check", "mark_ready_to_create", "merge_fields",
		"set_current_reservation", "clear_availability_check", "set_reservation_code", "clear_ready_to_create",
	}, PatchKinds(patches))

	ApplyPatches(s, []StatePatch{ClearCurrentReservationPatch{}, ResetRecordPatch{}}, t0.Add(2*time.Second))
	assert.Empty(t, s.CurrentReservation)
	assert.Equal(t, IntentNone, s.Intent)
}
