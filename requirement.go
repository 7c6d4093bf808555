package appext

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
)

// anyVersion is the constraint every version satisfies.
const anyVersion = ">= 0"

// Requirement is a version-range constraint such as "~> 8.3.10" or
// ">= 3.0.56, < 3.1". Versions may carry any number of numeric segments,
// so "8.3.10.1" satisfies "~> 8.3.10".
//
// The zero Requirement is satisfied by any version.
type Requirement struct {
	raw         string
	constraints version.Constraints
}

// ParseRequirement parses a comma separated list of constraints.
func ParseRequirement(s string) (Requirement, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Requirement{}, fmt.Errorf("%w: empty version requirement", ErrInvalidArgument)
	}
	c, err := version.NewConstraint(s)
	if err != nil {
		return Requirement{}, fmt.Errorf("%w: version requirement %q: %v", ErrInvalidArgument, s, err)
	}
	return Requirement{raw: s, constraints: c}, nil
}

// MustRequirement is like ParseRequirement but panics on error.
// Use it for requirements hard-coded in a Descriptor.
func MustRequirement(s string) Requirement {
	r, err := ParseRequirement(s)
	if err != nil {
		panic(fmt.Sprintf("MustRequirement failed: %v", err))
	}
	return r
}

// AnyVersion returns a requirement satisfied by every version.
func AnyVersion() Requirement {
	return MustRequirement(anyVersion)
}

// IsZero reports whether r was never parsed.
func (r Requirement) IsZero() bool {
	return r.constraints == nil
}

// String returns the requirement as written.
func (r Requirement) String() string {
	if r.IsZero() {
		return anyVersion
	}
	return r.raw
}

// SatisfiedBy reports whether version v meets the requirement.
// An unparsable v is an error, not a mismatch.
func (r Requirement) SatisfiedBy(v string) (bool, error) {
	ver, err := parseVersion(v)
	if err != nil {
		return false, err
	}
	if r.IsZero() {
		return true, nil
	}
	return r.constraints.Check(ver), nil
}

// MarshalText implements encoding.TextMarshaler.
func (r Requirement) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so requirements can be
// read straight from manifests and config files.
func (r *Requirement) UnmarshalText(text []byte) error {
	parsed, err := ParseRequirement(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// AppRequirements maps a host application name to the version range the
// extension supports for it. A nil map marks an independent extension.
type AppRequirements map[string]Requirement

// Names returns the supported application names in sorted order.
func (ar AppRequirements) Names() []string {
	names := make([]string, 0, len(ar))
	for k := range ar {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ParseAppRequirements builds AppRequirements from plain strings.
func ParseAppRequirements(m map[string]string) (AppRequirements, error) {
	if m == nil {
		return nil, nil
	}
	ar := make(AppRequirements, len(m))
	for app, req := range m {
		r, err := ParseRequirement(req)
		if err != nil {
			return nil, fmt.Errorf("application %q: %w", app, err)
		}
		ar[app] = r
	}
	return ar, nil
}

// CompareVersions returns -1, 0 or 1 as a is lower than, equal to or higher than b.
// Missing trailing segments count as zero: "8.3" equals "8.3.0.0".
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

func parseVersion(v string) (*version.Version, error) {
	ver, err := version.NewVersion(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %v", ErrInvalidArgument, v, err)
	}
	return ver, nil
}
