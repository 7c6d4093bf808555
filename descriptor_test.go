package appext

import (
	"context"
	"strings"
	"testing"
)

type stubDescriptor struct {
	name, version string
}

func (d stubDescriptor) Name() string                       { return d.name }
func (d stubDescriptor) Version() string                    { return d.version }
func (stubDescriptor) PlatformRequire() Requirement         { return AnyVersion() }
func (stubDescriptor) AppRequirements() AppRequirements     { return nil }
func (stubDescriptor) Data(context.Context) ([]byte, error) { return nil, nil }

func TestDescriptorSet_Get(t *testing.T) {
	ds := NewDescriptorSet(stubDescriptor{"Foo", "1.0"}, stubDescriptor{"Bar", "2.0"})

	if d, ok := ds.Get("foo"); !ok || d.Name() != "Foo" {
		t.Errorf("Get(foo) = %v, %v", d, ok)
	}
	if _, ok := ds.Get("Baz"); ok {
		t.Error("Get(Baz) should miss")
	}
	if keys := ds.Keys(); len(keys) != 2 || keys[0] != "Bar" {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestDescriptorSet_Validate(t *testing.T) {
	tests := []struct {
		name      string
		set       DescriptorSet
		wantError string
	}{
		{
			name: "valid",
			set:  NewDescriptorSet(stubDescriptor{"Foo", "1.0"}, stubDescriptor{"Bar", "2.0.1.3"}),
		},
		{
			name:      "key mismatch",
			set:       DescriptorSet{"Foo": stubDescriptor{"Bar", "1.0"}},
			wantError: "name mismatch",
		},
		{
			name:      "bad name",
			set:       NewDescriptorSet(stubDescriptor{"my-ext", "1.0"}),
			wantError: "invalid characters",
		},
		{
			name:      "bad version",
			set:       NewDescriptorSet(stubDescriptor{"Foo", "latest"}),
			wantError: "dotted numeric",
		},
		{
			name:      "case conflict",
			set:       NewDescriptorSet(stubDescriptor{"Foo", "1.0"}, stubDescriptor{"FOO", "1.0"}),
			wantError: "differ only in case",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.wantError == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantError)
			}
		})
	}
}
