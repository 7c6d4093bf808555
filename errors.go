package appext

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by appext operations.
var (
	// ErrAmbiguousMatch is returned when more than one host handle matches an extension name.
	ErrAmbiguousMatch = errors.New("ambiguous extension match")

	// ErrIncompatible is returned when the host platform or application does not satisfy a requirement.
	ErrIncompatible = errors.New("incompatible extension")

	// ErrApply is returned when the host reports critical apply problems for a payload.
	ErrApply = errors.New("extension can't be applied")

	// ErrInvalidArgument is returned for malformed input (paths, names, versions).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotConnected is returned when using a PlugContext that has no open binding.
	ErrNotConnected = errors.New("plug context not connected")

	// ErrClosed is returned when using a closed PlugContext or binding.
	ErrClosed = errors.New("binding is closed")

	// ErrUnsupportedCapability is returned when setting a property the handle does not support.
	ErrUnsupportedCapability = errors.New("unsupported handle capability")

	// ErrHandleNotFound is returned when a handle no longer refers to a host record.
	ErrHandleNotFound = errors.New("handle not found")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// AmbiguousMatchError reports that several host handles share one extension name.
type AmbiguousMatchError struct {
	Name  string
	Count int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("too many (%d) extensions %q found", e.Count, e.Name)
}

// Is makes errors.Is(err, ErrAmbiguousMatch) true.
func (e *AmbiguousMatchError) Is(target error) bool {
	return target == ErrAmbiguousMatch
}

// IncompatibleError describes a failed platform or application check.
// Supported is filled only when the host application is not listed at all.
type IncompatibleError struct {
	// Subject is what was checked: "platform", "application" or "application version".
	Subject   string
	Required  string
	Actual    string
	Supported []string
}

func (e *IncompatibleError) Error() string {
	switch e.Subject {
	case subjectApplication:
		return fmt.Sprintf("unsupported application %q, supported:\n - %s",
			e.Actual, strings.Join(e.Supported, "\n - "))
	case subjectAppVersion:
		return fmt.Sprintf("unsupported application version %q, require version %q",
			e.Actual, e.Required)
	default:
		return fmt.Sprintf("require application compatibility %q, got application compatibility version %q",
			e.Required, e.Actual)
	}
}

// Is makes errors.Is(err, ErrIncompatible) true.
func (e *IncompatibleError) Is(target error) bool {
	return target == ErrIncompatible
}

const (
	subjectPlatform    = "platform"
	subjectApplication = "application"
	subjectAppVersion  = "application version"
)

// ApplyError lists the critical problems that keep an extension from being applied.
type ApplyError struct {
	Extension string
	Problems  []ApplyProblem
}

func (e *ApplyError) Error() string {
	descs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		descs[i] = p.Description
	}
	return fmt.Sprintf("extension %q can't be applied:\n - %s", e.Extension, strings.Join(descs, "\n - "))
}

// Is makes errors.Is(err, ErrApply) true.
func (e *ApplyError) Is(target error) bool {
	return target == ErrApply
}
