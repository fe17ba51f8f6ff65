package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Intent is the detected high-level goal of a conversation.
type Intent string

const (
	IntentNone       Intent = "none"
	IntentCreate     Intent = "create"
	IntentModify     Intent = "modify"
	IntentCancel     Intent = "cancel"
	IntentQueryMenu  Intent = "query_menu"
	IntentQueryHours Intent = "query_hours"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentNone, IntentCreate, IntentModify, IntentCancel, IntentQueryMenu, IntentQueryHours:
		return true
	}
	return false
}

// Field names accumulated in FilledFields. They match the tool argument names.
const (
	FieldName      = "nombre"
	FieldPhone     = "telefono"
	FieldDate      = "fecha"
	FieldTime      = "hora"
	FieldPartySize = "comensales"
	FieldZone      = "zona"
	FieldAllergies = "alergias"
	FieldComments  = "comentarios"
	FieldCode      = "codigo_reserva"
)

var requiredFields = map[Intent][]string{
	IntentCreate: {FieldName, FieldPhone, FieldDate, FieldTime, FieldPartySize},
	IntentModify: {FieldCode},
	IntentCancel: {FieldCode},
}

// RequiredFields returns the ordered field set an intent needs before it can complete.
func RequiredFields(intent Intent) []string {
	fields := requiredFields[intent]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is one recorded dialog turn.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AvailabilityCheck is the last availability query issued in a conversation.
type AvailabilityCheck struct {
	Date      string    `json:"fecha"`
	Time      string    `json:"hora"`
	PartySize int       `json:"comensales"`
	CheckedAt time.Time `json:"checked_at"`
}

// SameQuery reports whether both checks asked for the same date, time and party size.
func (c AvailabilityCheck) SameQuery(o AvailabilityCheck) bool {
	return c.Date == o.Date && c.Time == o.Time && c.PartySize == o.PartySize
}

const DefaultHistoryLimit = 50

// ConversationState is the mutable record of one caller's dialog.
// Mutation methods perform no I/O; persisting is up to the caller.
type ConversationState struct {
	ID                    string             `json:"id"`
	Intent                Intent             `json:"intent"`
	FilledFields          map[string]any     `json:"filled_fields"`
	MissingFields         []string           `json:"missing_fields"`
	CurrentReservation    map[string]any     `json:"current_reservation"`
	History               []HistoryEntry     `json:"history"`
	HistoryLimit          int                `json:"history_limit"`
	LastAvailabilityCheck *AvailabilityCheck `json:"last_availability_check,omitempty"`
	PendingReservation    map[string]any     `json:"pending_reservation,omitempty"`
	ReadyToCreate         bool               `json:"ready_to_create"`
	RepeatedCheckWarning  bool               `json:"repeated_check_warning"`
	LastReservationCode   string             `json:"last_reservation_code,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// NewConversationState creates an empty state for id. historyLimit <= 0 uses DefaultHistoryLimit.
func NewConversationState(id string, historyLimit int, now time.Time) *ConversationState {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &ConversationState{
		ID:                 id,
		Intent:             IntentNone,
		FilledFields:       map[string]any{},
		MissingFields:      []string{},
		CurrentReservation: map[string]any{},
		History:            []HistoryEntry{},
		HistoryLimit:       historyLimit,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s *ConversationState) touch(now time.Time) {
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}

// SetIntent records a detected intent. IntentNone is ignored; use ResetRecord to clear.
func (s *ConversationState) SetIntent(intent Intent, now time.Time) {
	if intent == IntentNone || !intent.Valid() || intent == s.Intent {
		return
	}
	s.Intent = intent
	s.recomputeMissing()
	s.touch(now)
}

// MergeFields adds non-empty values to FilledFields. Existing fields are overwritten, never removed.
func (s *ConversationState) MergeFields(fields map[string]any, now time.Time) {
	changed := false
	for k, v := range fields {
		if isEmptyValue(v) {
			continue
		}
		if s.FilledFields == nil {
			s.FilledFields = map[string]any{}
		}
		s.FilledFields[k] = v
		changed = true
	}
	if changed {
		s.recomputeMissing()
		s.touch(now)
	}
}

// ResetRecord drops accumulated fields and the intent, as after a cancellation or an explicit clear.
func (s *ConversationState) ResetRecord(now time.Time) {
	s.FilledFields = map[string]any{}
	s.Intent = IntentNone
	s.PendingReservation = nil
	s.ReadyToCreate = false
	s.recomputeMissing()
	s.touch(now)
}

func (s *ConversationState) SetCurrentReservation(reservation map[string]any, now time.Time) {
	s.CurrentReservation = cloneMap(reservation)
	if s.CurrentReservation == nil {
		s.CurrentReservation = map[string]any{}
	}
	s.touch(now)
}

func (s *ConversationState) ClearCurrentReservation(now time.Time) {
	s.CurrentReservation = map[string]any{}
	s.touch(now)
}

// AppendHistory adds a turn and discards the oldest entries beyond HistoryLimit.
func (s *ConversationState) AppendHistory(role, content string, now time.Time) {
	s.History = append(s.History, HistoryEntry{Role: role, Content: content, Timestamp: now})
	limit := s.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if over := len(s.History) - limit; over > 0 {
		trimmed := make([]HistoryEntry, limit)
		copy(trimmed, s.History[over:])
		s.History = trimmed
	}
	s.touch(now)
}

// IsRepeatedCheck reports whether check repeats the last recorded query inside window.
func (s *ConversationState) IsRepeatedCheck(check AvailabilityCheck, window time.Duration) bool {
	last := s.LastAvailabilityCheck
	if last == nil || !last.SameQuery(check) {
		return false
	}
	return check.CheckedAt.Sub(last.CheckedAt) < window
}

// RecordAvailabilityCheck stores check as the last query and sets or clears the repeated flag.
func (s *ConversationState) RecordAvailabilityCheck(check AvailabilityCheck, repeated bool, now time.Time) {
	c := check
	s.LastAvailabilityCheck = &c
	s.RepeatedCheckWarning = repeated
	s.touch(now)
}

func (s *ConversationState) ClearAvailabilityCheck(now time.Time) {
	s.LastAvailabilityCheck = nil
	s.RepeatedCheckWarning = false
	s.touch(now)
}

// MarkReadyToCreate is set only right after a successful availability check; pending holds its arguments.
func (s *ConversationState) MarkReadyToCreate(pending map[string]any, now time.Time) {
	s.ReadyToCreate = true
	s.PendingReservation = cloneMap(pending)
	s.touch(now)
}

func (s *ConversationState) ClearReadyToCreate(now time.Time) {
	if !s.ReadyToCreate && s.PendingReservation == nil {
		return
	}
	s.ReadyToCreate = false
	s.PendingReservation = nil
	s.touch(now)
}

func (s *ConversationState) SetReservationCode(code string, now time.Time) {
	s.LastReservationCode = code
	s.touch(now)
}

func (s *ConversationState) recomputeMissing() {
	required := requiredFields[s.Intent]
	missing := make([]string, 0, len(required))
	for _, f := range required {
		if v, ok := s.FilledFields[f]; ok && !isEmptyValue(v) {
			continue
		}
		missing = append(missing, f)
	}
	s.MissingFields = missing
}

// Clone returns a deep copy; the orchestrator works on a clone while a turn is in flight.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("clone conversation state: %v", err))
	}
	var out ConversationState
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("clone conversation state: %v", err))
	}
	return &out
}

func isEmptyValue(v any) bool {
	switch vv := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(vv) == ""
	}
	return false
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
