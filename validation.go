package appext

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxNameLen is the maximum length of an extension name.
	MaxNameLen = 80

	// MaxVersionLen is the maximum length of a version string.
	MaxVersionLen = 64

	// MaxSuffixLen is the maximum length of a stored data file suffix.
	MaxSuffixLen = 16
)

var (
	// validNamePattern matches host metadata identifiers.
	// Must start with a letter or underscore, then letters, digits or underscores
	// (any script: extension names are often Cyrillic).
	validNamePattern = regexp.MustCompile(`^[\p{L}_][\p{L}\p{Nd}_]*$`)

	// validVersionPattern matches dotted numeric versions with any number of
	// segments and an optional pre-release tag.
	// Examples: "1.0", "1.0.0.12", "2.1.3-beta"
	validVersionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*(-[a-zA-Z0-9.-]+)?$`)

	validSuffixPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// ValidateName validates an extension name.
// Returns an error if:
// - Empty or too long
// - Contains characters that are not valid in a host identifier
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: extension name cannot be empty", ErrInvalidArgument)
	}

	if len([]rune(name)) > MaxNameLen {
		return fmt.Errorf("%w: extension name too long: %d characters (max: %d)",
			ErrInvalidArgument, len([]rune(name)), MaxNameLen)
	}

	if !validNamePattern.MatchString(name) {
		return fmt.Errorf("%w: extension name %q contains invalid characters", ErrInvalidArgument, name)
	}

	return nil
}

// ValidateVersion validates an extension version string.
func ValidateVersion(version string) error {
	if version == "" {
		return fmt.Errorf("%w: version cannot be empty", ErrInvalidArgument)
	}

	if len(version) > MaxVersionLen {
		return fmt.Errorf("%w: version too long: %d bytes (max: %d)", ErrInvalidArgument, len(version), MaxVersionLen)
	}

	if !validVersionPattern.MatchString(version) {
		return fmt.Errorf("%w: version %q must be dotted numeric (e.g., 1.0.0.1, 2.1.3-beta)", ErrInvalidArgument, version)
	}

	return nil
}

// ValidateSuffix validates the file suffix used for stored extension data.
// The suffix is given without the leading dot ("cfe", not ".cfe").
func ValidateSuffix(suffix string) error {
	if suffix == "" {
		return fmt.Errorf("%w: stored data suffix cannot be empty", ErrInvalidArgument)
	}

	if strings.HasPrefix(suffix, ".") {
		return fmt.Errorf("%w: stored data suffix %q must not start with a dot", ErrInvalidArgument, suffix)
	}

	if len(suffix) > MaxSuffixLen {
		return fmt.Errorf("%w: stored data suffix too long: %d bytes (max: %d)", ErrInvalidArgument, len(suffix), MaxSuffixLen)
	}

	if !validSuffixPattern.MatchString(suffix) {
		return fmt.Errorf("%w: stored data suffix %q contains invalid characters", ErrInvalidArgument, suffix)
	}

	return nil
}
