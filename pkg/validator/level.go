package validator

import (
	"fmt"
	"strings"
)

// Level is the strictness policy. Higher levels reject a superset of what
// lower levels reject for the same input.
type Level int

// Validation levels, ordered from least to most strict.
const (
	Permissive Level = iota
	Moderate
	Strict
)

// Levels lists every level from least to most strict.
var Levels = []Level{Permissive, Moderate, Strict}

// String returns the config name of the level.
func (l Level) String() string {
	switch l {
	case Permissive:
		return "permissive"
	case Moderate:
		return "moderate"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseLevel converts a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permissive":
		return Permissive, nil
	case "moderate":
		return Moderate, nil
	case "strict":
		return Strict, nil
	default:
		return Strict, fmt.Errorf("unknown validation level %q (expected strict, moderate or permissive)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// LevelForRole returns the default level for a caller role: permissive for
// elevated roles, strict for everyone else.
func LevelForRole(role string, elevated []string) Level {
	role = strings.TrimSpace(role)
	for _, r := range elevated {
		if role != "" && strings.EqualFold(r, role) {
			return Permissive
		}
	}
	return Strict
}
