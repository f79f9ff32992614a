package models

import "math"

// Range is a closed numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Valid reports whether the range is finite and non-empty.
func (r Range) Valid() bool {
	return !math.IsNaN(r.Min) && !math.IsNaN(r.Max) &&
		!math.IsInf(r.Min, 0) && !math.IsInf(r.Max, 0) && r.Max > r.Min
}

func (r Range) Span() float64 { return r.Max - r.Min }

func (r Range) Mid() float64 { return (r.Min + r.Max) / 2 }

// Signal is a registered, plottable decoded bus signal.
type Signal struct {
	ID          string   `json:"id"`
	MessageName string   `json:"message_name"`
	MessageID   string   `json:"message_id,omitempty"` // hex arbitration id, e.g. "0x1A0"
	SignalName  string   `json:"signal_name"`
	DisplayName string   `json:"display_name"`
	Unit        string   `json:"unit,omitempty"`
	Color       string   `json:"color,omitempty"`
	Range       *Range   `json:"range,omitempty"`
	Enabled     bool     `json:"enabled"`
	Aliases     []string `json:"aliases,omitempty"`
}

// QualifiedName returns "message.signal", or the bare signal name when no message is known.
func (s *Signal) QualifiedName() string {
	return QualifiedKey(s.MessageName, s.SignalName)
}

// Label is the text shown in legends and panel headers.
func (s *Signal) Label() string {
	name := s.DisplayName
	if name == "" {
		name = s.QualifiedName()
	}
	if s.Unit != "" {
		return name + " [" + s.Unit + "]"
	}
	return name
}

// Keys lists every ingestion key that resolves to this signal.
func (s *Signal) Keys() []string {
	keys := []string{s.ID}
	if q := s.QualifiedName(); q != s.ID {
		keys = append(keys, q)
	}
	if s.SignalName != "" && s.SignalName != s.ID {
		keys = append(keys, s.SignalName)
	}
	if s.MessageID != "" && s.SignalName != "" {
		keys = append(keys, QualifiedKey(NormalizeMessageID(s.MessageID), s.SignalName))
	}
	for _, a := range s.Aliases {
		if a != "" {
			keys = append(keys, a)
		}
	}
	return keys
}

// QualifiedKey joins a message and signal name the way ingestion keys are written.
func QualifiedKey(message, signal string) string {
	if message == "" {
		return signal
	}
	return message + "." + signal
}

// SignalView is the externally visible state of a registered signal.
type SignalView struct {
	Signal
	VerticalZoom   float64 `json:"vertical_zoom"`
	VerticalOffset float64 `json:"vertical_offset"`
	Buffered       int     `json:"buffered"`
}
