package memhost

import (
	"fmt"

	"gopkg.in/yaml.v3"

	appext "github.com/masegraye/appext-go"
)

// Payload is the extension package format understood by the in-memory host.
// Real hosts take opaque binaries; memhost reads this YAML document instead
// so tests can describe conflicts declaratively.
type Payload struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Prefix is the name prefix of objects the extension adds. Two
	// extensions with the same prefix cannot both be applied.
	Prefix string `yaml:"prefix,omitempty"`

	// Compatibility is the compatibility mode the extension was built for.
	// It must equal the host compatibility version when set.
	Compatibility string `yaml:"compatibility,omitempty"`

	// Objects are host objects adopted by the extension. Sharing one with
	// another extension is reported as a warning.
	Objects []string `yaml:"objects,omitempty"`

	// Warnings are reported verbatim as non-critical problems.
	Warnings []string `yaml:"warnings,omitempty"`
}

// Encode serializes p.
func (p Payload) Encode() []byte {
	out, err := yaml.Marshal(p)
	if err != nil {
		// Payload only holds strings.
		panic(fmt.Sprintf("memhost: encode payload: %v", err))
	}
	return out
}

// DecodePayload parses data written by Encode.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: invalid extension data: %v", appext.ErrInvalidArgument, err)
	}
	if p.Name == "" {
		return Payload{}, fmt.Errorf("%w: invalid extension data: name is missing", appext.ErrInvalidArgument)
	}
	return p, nil
}
