// Package slots ranks and explains alternative time slots for a rejected table request.
package slots

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

var clockLayouts = []string{"15:04", "15:04:05"}

// Slot is one alternative the backend offered.
type Slot struct {
	Date           string `json:"fecha"`
	Time           string `json:"hora"`
	Capacity       int    `json:"capacidad"`
	IsReleaseEvent bool   `json:"es_liberacion"`
	MinutesOffset  int    `json:"diferencia_minutos"`
	// HasOffset is false when neither the backend nor the requested time gave a distance.
	HasOffset  bool `json:"-"`
	FreeTables int  `json:"mesas_libres,omitempty"`
}

// Ranking is the ordered, explained set of alternatives.
type Ranking struct {
	Headline             *Slot
	HeadlineText         string
	Others               []Slot
	OtherTexts           []string
	OtherDays            []Slot
	NoSameDayAlternative bool
}

// Slots returns the headline followed by the other same-day alternatives.
func (r Ranking) Slots() []Slot {
	if r.Headline == nil {
		return nil
	}
	return append([]Slot{*r.Headline}, r.Others...)
}

// Resolver ranks alternatives. The zero value is not usable; use NewResolver.
type Resolver struct {
	maxOthers  int
	nearWindow int
}

type Option func(*Resolver)

// WithMaxOthers caps how many alternatives are listed after the headline.
func WithMaxOthers(n int) Option {
	return func(r *Resolver) { r.maxOthers = n }
}

// WithNearWindow sets the distance in minutes under which a slot is phrased as "near".
func WithNearWindow(minutes int) Option {
	return func(r *Resolver) { r.nearWindow = minutes }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{maxOthers: 3, nearWindow: 30}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank orders the same-day slots by absolute offset from the requested time, keeping
// backend order for ties and for slots without an offset, and phrases the closest one.
func (r *Resolver) Rank(requestedDate, requestedTime string, alternatives []Slot) Ranking {
	var sameDay, otherDays []Slot
	for _, s := range alternatives {
		if requestedDate != "" && s.Date != "" && s.Date != requestedDate {
			otherDays = append(otherDays, s)
			continue
		}
		if !s.HasOffset {
			if off, ok := offsetMinutes(requestedTime, s.Time); ok {
				s.MinutesOffset = off
				s.HasOffset = true
			}
		}
		sameDay = append(sameDay, s)
	}

	sort.SliceStable(sameDay, func(i, j int) bool {
		a, b := sameDay[i], sameDay[j]
		if a.HasOffset != b.HasOffset {
			return a.HasOffset
		}
		if !a.HasOffset {
			return false
		}
		return abs(a.MinutesOffset) < abs(b.MinutesOffset)
	})

	rk := Ranking{OtherDays: otherDays}
	if len(sameDay) == 0 {
		rk.NoSameDayAlternative = true
		return rk
	}

	head := sameDay[0]
	rk.Headline = &head
	rk.HeadlineText = r.phraseHeadline(head)

	rest := sameDay[1:]
	if len(rest) > r.maxOthers {
		rest = rest[:r.maxOthers]
	}
	rk.Others = rest
	for _, s := range rest {
		rk.OtherTexts = append(rk.OtherTexts, phraseShort(s))
	}
	return rk
}

func (r *Resolver) phraseHeadline(s Slot) string {
	near := s.HasOffset && abs(s.MinutesOffset) <= r.nearWindow
	switch {
	case s.IsReleaseEvent && near:
		return fmt.Sprintf("A las %s se libera una mesa%s justo cuando termina la reserva anterior.", s.Time, capacitySuffix(s.Capacity))
	case s.IsReleaseEvent:
		return fmt.Sprintf("La siguiente mesa disponible se libera a las %s%s.", s.Time, capacitySuffix(s.Capacity))
	case near && s.MinutesOffset > 0:
		return fmt.Sprintf("Hay mesa disponible %d minutos más tarde, a las %s%s.", s.MinutesOffset, s.Time, capacitySuffix(s.Capacity))
	case near && s.MinutesOffset < 0:
		return fmt.Sprintf("Hay mesa disponible %d minutos antes, a las %s%s.", -s.MinutesOffset, s.Time, capacitySuffix(s.Capacity))
	case near:
		return fmt.Sprintf("Hay mesa disponible a las %s%s.", s.Time, capacitySuffix(s.Capacity))
	default:
		free := s.FreeTables
		if free <= 0 {
			free = 1
		}
		if free == 1 {
			return fmt.Sprintf("A las %s hay 1 mesa libre%s.", s.Time, capacitySuffix(s.Capacity))
		}
		return fmt.Sprintf("A las %s hay %d mesas libres%s.", s.Time, free, capacitySuffix(s.Capacity))
	}
}

func phraseShort(s Slot) string {
	if s.IsReleaseEvent {
		return fmt.Sprintf("%s (se libera)", s.Time)
	}
	if s.Capacity > 0 {
		return fmt.Sprintf("%s (hasta %d personas)", s.Time, s.Capacity)
	}
	return s.Time
}

func capacitySuffix(capacity int) string {
	if capacity <= 0 {
		return ""
	}
	return fmt.Sprintf(" para hasta %d personas", capacity)
}

// Explain builds the user-facing explanation of an unavailable slot. A backend conflict
// text, when present, always leads and is never replaced by the generic message.
func (r *Resolver) Explain(rk Ranking, conflictDetected bool, conflictDetails, backendMessage string) string {
	var parts []string
	switch {
	case conflictDetected && strings.TrimSpace(conflictDetails) != "":
		parts = append(parts, strings.TrimSpace(conflictDetails))
	case strings.TrimSpace(backendMessage) != "":
		parts = append(parts, strings.TrimSpace(backendMessage))
	default:
		parts = append(parts, "No hay mesas disponibles a esa hora.")
	}

	if rk.NoSameDayAlternative {
		parts = append(parts, "No hay alternativas ese mismo día.")
	} else {
		parts = append(parts, rk.HeadlineText)
		if len(rk.OtherTexts) > 0 {
			parts = append(parts, "Otras opciones: "+strings.Join(rk.OtherTexts, ", ")+".")
		}
	}
	return strings.Join(parts, " ")
}

func offsetMinutes(requested, candidate string) (int, bool) {
	if requested == "" || candidate == "" {
		return 0, false
	}
	a, ok := ParseClock(requested)
	if !ok {
		return 0, false
	}
	b, ok := ParseClock(candidate)
	if !ok {
		return 0, false
	}
	return int(b.Sub(a) / time.Minute), true
}

// ParseClock parses a wall-clock time written as HH:MM or HH:MM:SS.
func ParseClock(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
