package appext

import "testing"

func TestParseSafeMode(t *testing.T) {
	tests := []struct {
		in    string
		want  SafeMode
		value any
	}{
		{"", SafeModeUnset, nil},
		{"  ", SafeModeUnset, nil},
		{"true", SafeModeEnabled(true), true},
		{"0", SafeModeEnabled(false), false},
		{"FALSE", SafeModeEnabled(false), false},
		{"restricted", SafeModeProfile("restricted"), "restricted"},
	}

	for _, tt := range tests {
		got := ParseSafeMode(tt.in)
		if got != tt.want {
			t.Errorf("ParseSafeMode(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
		if got.Value() != tt.value {
			t.Errorf("ParseSafeMode(%q).Value() = %v, want %v", tt.in, got.Value(), tt.value)
		}
		if tt.in != "" && ParseSafeMode(got.String()) != got {
			t.Errorf("String() of %q does not parse back", tt.in)
		}
	}
}

func TestSafeMode_Accessors(t *testing.T) {
	var zero SafeMode
	if zero.IsSet() || zero != SafeModeUnset {
		t.Error("zero SafeMode should be unset")
	}

	if enabled, ok := SafeModeEnabled(true).Bool(); !ok || !enabled {
		t.Error("SafeModeEnabled(true).Bool() should be true, true")
	}
	if _, ok := SafeModeEnabled(true).Profile(); ok {
		t.Error("boolean safe mode is not a profile")
	}
	if name, ok := SafeModeProfile("p").Profile(); !ok || name != "p" {
		t.Errorf("Profile() = %q, %v", name, ok)
	}
	if SafeModeProfile("").IsSet() {
		t.Error("empty profile should be unset")
	}
}
