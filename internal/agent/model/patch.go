package model

import "time"

// StatePatch is one state mutation produced by a tool execution or by message analysis.
// Patches are collected during a turn and applied together once the turn commits.
type StatePatch interface {
	Apply(s *ConversationState, now time.Time)
	Kind() string
}

type SetIntentPatch struct{ Intent Intent }

func (p SetIntentPatch) Apply(s *ConversationState, now time.Time) { s.SetIntent(p.Intent, now) }
func (p SetIntentPatch) Kind() string                              { return "set_intent" }

type MergeFieldsPatch struct{ Fields map[string]any }

func (p MergeFieldsPatch) Apply(s *ConversationState, now time.Time) { s.MergeFields(p.Fields, now) }
func (p MergeFieldsPatch) Kind() string                              { return "merge_fields" }

type SetCurrentReservationPatch struct{ Reservation map[string]any }

func (p SetCurrentReservationPatch) Apply(s *ConversationState, now time.Time) {
	s.SetCurrentReservation(p.Reservation, now)
}
func (p SetCurrentReservationPatch) Kind() string { return "set_current_reservation" }

type ClearCurrentReservationPatch struct{}

func (ClearCurrentReservationPatch) Apply(s *ConversationState, now time.Time) {
	s.ClearCurrentReservation(now)
}
func (ClearCurrentReservationPatch) Kind() string { return "clear_current_reservation" }

type RecordAvailabilityCheckPatch struct {
	Check    AvailabilityCheck
	Repeated bool
}

func (p RecordAvailabilityCheckPatch) Apply(s *ConversationState, now time.Time) {
	s.RecordAvailabilityCheck(p.Check, p.Repeated, now)
}
func (p RecordAvailabilityCheckPatch) Kind() string { return "record_availability_check" }

type ClearAvailabilityCheckPatch struct{}

func (ClearAvailabilityCheckPatch) Apply(s *ConversationState, now time.Time) {
	s.ClearAvailabilityCheck(now)
}
func (ClearAvailabilityCheckPatch) Kind() string { return "clear_availability_check" }

type MarkReadyToCreatePatch struct{ Pending map[string]any }

func (p MarkReadyToCreatePatch) Apply(s *ConversationState, now time.Time) {
	s.MarkReadyToCreate(p.Pending, now)
}
func (p MarkReadyToCreatePatch) Kind() string { return "mark_ready_to_create" }

type ClearReadyToCreatePatch struct{}

func (ClearReadyToCreatePatch) Apply(s *ConversationState, now time.Time) { s.ClearReadyToCreate(now) }
func (ClearReadyToCreatePatch) Kind() string                              { return "clear_ready_to_create" }

type SetReservationCodePatch struct{ Code string }

func (p SetReservationCodePatch) Apply(s *ConversationState, now time.Time) {
	s.SetReservationCode(p.Code, now)
}
func (p SetReservationCodePatch) Kind() string { return "set_reservation_code" }

type ResetRecordPatch struct{}

func (ResetRecordPatch) Apply(s *ConversationState, now time.Time) { s.ResetRecord(now) }
func (ResetRecordPatch) Kind() string                              { return "reset_record" }

// ApplyPatches applies patches in order.
func ApplyPatches(s *ConversationState, patches []StatePatch, now time.Time) {
	for _, p := range patches {
		if p != nil {
			p.Apply(s, now)
		}
	}
}

// PatchKinds lists patch kinds for audit logging.
func PatchKinds(patches []StatePatch) []string {
	kinds := make([]string, 0, len(patches))
	for _, p := range patches {
		if p != nil {
			kinds = append(kinds, p.Kind())
		}
	}
	return kinds
}
