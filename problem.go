package appext

import (
	"fmt"
	"regexp"
)

// DefaultSeverityPattern matches the critical severity marker the host
// reports, in Russian and in English. The match is case-sensitive, so the
// Russian non-critical marker "Некритичная" does not match.
const DefaultSeverityPattern = `Критичная|Critical`

// ApplyProblem is one finding of a dry-run apply check.
type ApplyProblem struct {
	// Description is the host's human readable text.
	Description string `json:"description"`

	// Severity is the raw severity text as reported by the host. It is not an
	// enum: classify it with a SeverityMatcher.
	Severity string `json:"severity"`
}

func (p ApplyProblem) String() string {
	return fmt.Sprintf("[%s] %s", p.Severity, p.Description)
}

// SeverityMatcher classifies apply problems by a pattern over their raw
// severity text.
type SeverityMatcher struct {
	critical *regexp.Regexp
}

// DefaultSeverityMatcher returns a matcher for DefaultSeverityPattern.
func DefaultSeverityMatcher() SeverityMatcher {
	return SeverityMatcher{critical: regexp.MustCompile(DefaultSeverityPattern)}
}

// NewSeverityMatcher compiles a critical severity pattern.
func NewSeverityMatcher(pattern string) (SeverityMatcher, error) {
	if pattern == "" {
		return DefaultSeverityMatcher(), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return SeverityMatcher{}, fmt.Errorf("%w: severity pattern %q: %v", ErrInvalidArgument, pattern, err)
	}
	return SeverityMatcher{critical: re}, nil
}

// IsCritical reports whether p keeps an extension from being applied.
func (m SeverityMatcher) IsCritical(p ApplyProblem) bool {
	if m.critical == nil {
		m = DefaultSeverityMatcher()
	}
	return m.critical.MatchString(p.Severity)
}

// Split partitions problems into critical errors and warnings. Both results
// keep the input order; together they hold every input problem exactly once.
func (m SeverityMatcher) Split(problems []ApplyProblem) (errs, warnings []ApplyProblem) {
	for _, p := range problems {
		if m.IsCritical(p) {
			errs = append(errs, p)
		} else {
			warnings = append(warnings, p)
		}
	}
	return errs, warnings
}

// Pattern returns the critical severity pattern.
func (m SeverityMatcher) Pattern() string {
	if m.critical == nil {
		return DefaultSeverityPattern
	}
	return m.critical.String()
}
