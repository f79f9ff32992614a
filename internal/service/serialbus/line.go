package serialbus

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"BusScope/internal/domain/models"
)

// ParseLine decodes one gateway line. Lines are either a JSON trace entry or
// whitespace separated tokens:
//
//	[ts] [0xID] [Message] Signal=value ...
//
// The timestamp defaults to now. Blank lines and lines starting with '#' yield nil.
func ParseLine(line []byte, now float64) (*models.TraceEntry, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == '#' {
		return nil, nil
	}
	if line[0] == '{' {
		var e models.TraceEntry
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&e); err != nil {
			return nil, err
		}
		if e.TS <= 0 {
			e.TS = now
		}
		return &e, nil
	}

	e := &models.TraceEntry{Decoded: make(map[string]interface{})}
	for _, tok := range strings.Fields(string(line)) {
		if k, v, ok := strings.Cut(tok, "="); ok {
			if k != "" {
				e.Decoded[k] = v
			}
			continue
		}
		switch {
		case strings.HasPrefix(strings.ToLower(tok), "0x") && e.ID == "":
			e.ID = models.NormalizeMessageID(tok)
		case e.TS == 0 && isNumber(tok):
			e.TS, _ = strconv.ParseFloat(tok, 64)
		case e.Message == "":
			e.Message = tok
		}
	}
	if len(e.Decoded) == 0 {
		return nil, nil
	}
	if e.TS <= 0 {
		e.TS = now
	}
	return e, nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
