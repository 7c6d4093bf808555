package appext

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Descriptor is the contract every extension implementer provides.
// It declares what the extension is and which hosts it supports; it has no
// default behavior.
//
// Example:
//
//	type FooExtension struct{ Path string }
//
//	func (FooExtension) Name() string    { return "FooExtension" }
//	func (FooExtension) Version() string { return "1.1.1" }
//
//	func (FooExtension) PlatformRequire() appext.Requirement {
//	    return appext.MustRequirement("~> 8.3.10")
//	}
//
//	func (FooExtension) AppRequirements() appext.AppRequirements {
//	    return appext.AppRequirements{
//	        "Accounting":     appext.MustRequirement("~> 3.0.56"),
//	        "AccountingCorp": appext.MustRequirement("~> 3.0.56"),
//	    }
//	}
//
//	func (f FooExtension) Data(ctx context.Context) ([]byte, error) {
//	    return os.ReadFile(f.Path)
//	}
type Descriptor interface {
	// Name must match the extension's metadata name (case-insensitively).
	Name() string

	// Version must match the extension's metadata version.
	Version() string

	// PlatformRequire is checked against the host's compatibility version.
	PlatformRequire() Requirement

	// AppRequirements maps supported application names to version ranges.
	// Return nil for an extension independent of the host application.
	AppRequirements() AppRequirements

	// Data returns the extension's binary payload. It is called once per
	// write, once per apply check and once per apply-error check, so a
	// single Plug may call it several times.
	Data(ctx context.Context) ([]byte, error)
}

// DescriptorSet is a set of descriptors keyed by extension name.
type DescriptorSet map[string]Descriptor

// NewDescriptorSet builds a set from descriptors, keyed by their names.
func NewDescriptorSet(descs ...Descriptor) DescriptorSet {
	ds := make(DescriptorSet, len(descs))
	for _, d := range descs {
		ds[d.Name()] = d
	}
	return ds
}

// Get returns the descriptor whose name matches name case-insensitively.
func (ds DescriptorSet) Get(name string) (Descriptor, bool) {
	if d, ok := ds[name]; ok {
		return d, true
	}
	for k, d := range ds {
		if NameMatches(k, name) {
			return d, true
		}
	}
	return nil, false
}

// Keys returns all extension names in sorted order.
func (ds DescriptorSet) Keys() []string {
	keys := make([]string, 0, len(ds))
	for k := range ds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that the set is usable against one host instance.
// Names must be valid, unique case-insensitively and match their keys.
func (ds DescriptorSet) Validate() error {
	seen := make(map[string]string, len(ds))
	for _, key := range ds.Keys() {
		d := ds[key]
		name := d.Name()

		if name != key {
			return fmt.Errorf("descriptor name mismatch: map key is %q but Descriptor.Name() is %q", key, name)
		}
		if err := ValidateName(name); err != nil {
			return err
		}
		if err := ValidateVersion(d.Version()); err != nil {
			return fmt.Errorf("extension %q: %w", name, err)
		}

		folded := strings.ToLower(name)
		if existing, ok := seen[folded]; ok {
			return fmt.Errorf("name conflict: extensions %q and %q differ only in case", existing, name)
		}
		seen[folded] = name
	}
	return nil
}
