package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sample is one timestamped value of a signal. Timestamps are unix seconds.
type Sample struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

// TraceEntry is one captured bus frame as emitted by the trace source.
type TraceEntry struct {
	TS         float64                `json:"ts"`
	ID         string                 `json:"id"`
	DLC        int                    `json:"dlc"`
	Data       string                 `json:"data"`
	IsExtended bool                   `json:"is_extended"`
	IsFD       bool                   `json:"is_fd"`
	Message    string                 `json:"message,omitempty"`
	Decoded    map[string]interface{} `json:"decoded"`
}

// SignalUpdate is a single decoded value ready for the sample store.
type SignalUpdate struct {
	Message   string  `json:"message,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
	Signal    string  `json:"signal"`
	Timestamp float64 `json:"ts"`
	Value     float64 `json:"value"`
}

// Keys returns the lookup keys for the update, most specific first.
func (u *SignalUpdate) Keys() []string {
	keys := make([]string, 0, 3)
	if u.Message != "" {
		keys = append(keys, QualifiedKey(u.Message, u.Signal))
	}
	if u.MessageID != "" {
		keys = append(keys, QualifiedKey(NormalizeMessageID(u.MessageID), u.Signal))
	}
	return append(keys, u.Signal)
}

// Updates fans the decoded signals of a trace entry out into individual updates.
// Values that cannot be read as numbers are skipped.
func (e *TraceEntry) Updates() []*SignalUpdate {
	out := make([]*SignalUpdate, 0, len(e.Decoded))
	for name, raw := range e.Decoded {
		v, ok := CoerceNumber(raw)
		if !ok {
			continue
		}
		out = append(out, &SignalUpdate{
			Message:   e.Message,
			MessageID: e.ID,
			Signal:    name,
			Timestamp: e.TS,
			Value:     v,
		})
	}
	return out
}

// NormalizeMessageID renders an arbitration id as upper-case hex with a 0x prefix.
// Unparseable ids are returned trimmed and upper-cased.
func NormalizeMessageID(id string) string {
	s := strings.TrimSpace(id)
	lower := strings.ToLower(s)
	if n, err := strconv.ParseUint(strings.TrimPrefix(lower, "0x"), 16, 32); err == nil {
		return fmt.Sprintf("0x%X", n)
	}
	return strings.ToUpper(s)
}

// CoerceNumber converts decoded JSON values to a finite float.
func CoerceNumber(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if n {
			f = 1
		}
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		if strings.HasPrefix(strings.ToLower(s), "0x") {
			parsed, err := strconv.ParseInt(s[2:], 16, 64)
			if err != nil {
				return 0, false
			}
			f = float64(parsed)
		} else {
			parsed, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, false
			}
			f = parsed
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
