package comconnector

import (
	"strings"
)

// compatibility mode names meaning "no compatibility mode".
var compatNotUsed = map[string]bool{
	"":               true,
	"DontUse":        true,
	"НеИспользовать": true,
}

// ParseCompatibilityMode converts a host compatibility mode name such as
// "Version8_3_10" or "Версия8_3_10" to "8.3.10". It returns false when the
// mode is not used or not recognized.
func ParseCompatibilityMode(mode string) (string, bool) {
	mode = strings.TrimSpace(mode)
	if compatNotUsed[mode] {
		return "", false
	}

	for _, prefix := range []string{"Version", "Версия"} {
		if rest, ok := strings.CutPrefix(mode, prefix); ok {
			parts := strings.Split(rest, "_")
			for _, p := range parts {
				if p == "" || strings.Trim(p, "0123456789") != "" {
					return "", false
				}
			}
			return strings.Join(parts, "."), true
		}
	}
	return "", false
}
