package http

import (
	xutil "BusScope/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseSeconds parses an RFC3339 or unix timestamp into unix seconds.
func ParseSeconds(s string) (float64, bool) { return xutil.ParseSeconds(s) }
