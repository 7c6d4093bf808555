// Package manifest loads extension descriptors from YAML files.
//
// A manifest sits next to the extension binary:
//
//	name: TestExt8_3_10
//	version: 1.0.0.1
//	platform_require: "~> 8.3.10"
//	app_requirements:
//	  Accounting: "~> 3.0.56"
//	  AccountingCorp: "~> 3.0.56"
//	data: TestExt8_3_10.cfe
//
// Omitting app_requirements makes the extension independent of the host
// application. The data path is relative to the manifest's directory.
package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	appext "github.com/masegraye/appext-go"
)

// File is the YAML document of a manifest.
type File struct {
	Name            string             `yaml:"name"`
	Version         string             `yaml:"version"`
	PlatformRequire appext.Requirement `yaml:"platform_require"`
	AppRequirements map[string]string  `yaml:"app_requirements,omitempty"`
	Data            string             `yaml:"data"`
}

// Descriptor is an appext.Descriptor read from a manifest file.
type Descriptor struct {
	file     File
	apps     appext.AppRequirements
	dataPath string
}

var _ appext.Descriptor = (*Descriptor)(nil)

// Load reads and validates the manifest at path.
func Load(path string) (*Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	d, err := Parse(raw, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes a manifest. Relative data paths are resolved against baseDir.
func Parse(raw []byte, baseDir string) (*Descriptor, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", appext.ErrInvalidArgument, err)
	}

	if err := appext.ValidateName(f.Name); err != nil {
		return nil, err
	}
	if err := appext.ValidateVersion(f.Version); err != nil {
		return nil, err
	}
	if f.PlatformRequire.IsZero() {
		return nil, fmt.Errorf("%w: platform_require is required", appext.ErrInvalidArgument)
	}
	if f.Data == "" {
		return nil, fmt.Errorf("%w: data is required", appext.ErrInvalidArgument)
	}

	apps, err := appext.ParseAppRequirements(f.AppRequirements)
	if err != nil {
		return nil, err
	}

	dataPath := f.Data
	if !filepath.IsAbs(dataPath) {
		dataPath = filepath.Join(baseDir, dataPath)
	}
	return &Descriptor{file: f, apps: apps, dataPath: dataPath}, nil
}

// Name returns the extension name.
func (d *Descriptor) Name() string { return d.file.Name }

// Version returns the extension version.
func (d *Descriptor) Version() string { return d.file.Version }

// PlatformRequire returns the platform requirement.
func (d *Descriptor) PlatformRequire() appext.Requirement { return d.file.PlatformRequire }

// AppRequirements returns the supported applications, nil when independent.
func (d *Descriptor) AppRequirements() appext.AppRequirements { return d.apps }

// DataPath returns the resolved path of the extension binary.
func (d *Descriptor) DataPath() string { return d.dataPath }

// Data reads the extension binary. The file is read on every call so a
// rebuilt binary is picked up without reloading the manifest.
func (d *Descriptor) Data(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(d.dataPath)
}

// LoadSet loads every manifest path into a validated DescriptorSet.
func LoadSet(paths ...string) (appext.DescriptorSet, error) {
	descs := make([]appext.Descriptor, 0, len(paths))
	for _, p := range paths {
		d, err := Load(p)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	set := appext.NewDescriptorSet(descs...)
	if len(set) != len(descs) {
		return nil, fmt.Errorf("%w: duplicate extension names", appext.ErrInvalidArgument)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}
