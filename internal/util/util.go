// Package util provides helpers for parsing host command arguments.
package util

import (
	"strconv"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// UnquoteArg strips the outer quotes of a host string argument and unescapes inner ones.
func UnquoteArg(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return FixEscapeQuotes(s)
}

// ParseBool reads a host boolean argument. Empty or unparsable input yields def.
func ParseBool(s string, def bool) bool {
	s = strings.ToLower(strings.TrimSpace(TrimQuotes(s)))
	switch s {
	case "":
		return def
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
