package appext

import (
	"strconv"
	"strings"
)

type safeModeKind uint8

const (
	safeModeUnset safeModeKind = iota
	safeModeBool
	safeModeProfile
)

// SafeMode is the sandboxing setting an extension runs with: unset (leave the
// host's value alone), a boolean, or a named security profile.
//
// The zero value is unset.
type SafeMode struct {
	kind    safeModeKind
	enabled bool
	profile string
}

// SafeModeUnset leaves the host's safe mode untouched.
var SafeModeUnset = SafeMode{}

// SafeModeEnabled returns a boolean safe mode.
func SafeModeEnabled(enabled bool) SafeMode {
	return SafeMode{kind: safeModeBool, enabled: enabled}
}

// SafeModeProfile returns a safe mode bound to a named security profile.
// An empty name is unset.
func SafeModeProfile(name string) SafeMode {
	if name == "" {
		return SafeModeUnset
	}
	return SafeMode{kind: safeModeProfile, profile: name}
}

// ParseSafeMode reads "", "true"/"false" (any form strconv.ParseBool
// accepts) or a profile name.
func ParseSafeMode(s string) SafeMode {
	s = strings.TrimSpace(s)
	if s == "" {
		return SafeModeUnset
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return SafeModeEnabled(b)
	}
	return SafeModeProfile(s)
}

// IsSet reports whether s carries a value.
func (s SafeMode) IsSet() bool {
	return s.kind != safeModeUnset
}

// Bool returns the boolean value and whether s is boolean.
func (s SafeMode) Bool() (enabled, ok bool) {
	return s.enabled, s.kind == safeModeBool
}

// Profile returns the profile name and whether s is a profile.
func (s SafeMode) Profile() (name string, ok bool) {
	return s.profile, s.kind == safeModeProfile
}

// Value returns nil, a bool or a string.
func (s SafeMode) Value() any {
	switch s.kind {
	case safeModeBool:
		return s.enabled
	case safeModeProfile:
		return s.profile
	default:
		return nil
	}
}

// String is the inverse of ParseSafeMode.
func (s SafeMode) String() string {
	switch s.kind {
	case safeModeBool:
		return strconv.FormatBool(s.enabled)
	case safeModeProfile:
		return s.profile
	default:
		return ""
	}
}
