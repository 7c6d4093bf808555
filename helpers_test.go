package appext_test

import (
	"context"
	"testing"

	appext "github.com/masegraye/appext-go"
	"github.com/masegraye/appext-go/memhost"
)

// testDescriptor is a Descriptor backed by a memhost payload.
type testDescriptor struct {
	payload   memhost.Payload
	platform  appext.Requirement
	apps      appext.AppRequirements
	dataErr   error
	dataCalls int
}

func (d *testDescriptor) Name() string                            { return d.payload.Name }
func (d *testDescriptor) Version() string                         { return d.payload.Version }
func (d *testDescriptor) PlatformRequire() appext.Requirement     { return d.platform }
func (d *testDescriptor) AppRequirements() appext.AppRequirements { return d.apps }

func (d *testDescriptor) Data(context.Context) ([]byte, error) {
	d.dataCalls++
	if d.dataErr != nil {
		return nil, d.dataErr
	}
	return d.payload.Encode(), nil
}

// newDescriptor returns an independent extension for platform "~> 8.3.10".
func newDescriptor(name, prefix string) *testDescriptor {
	return &testDescriptor{
		payload: memhost.Payload{
			Name:          name,
			Version:       "1.0.0.1",
			Prefix:        prefix,
			Compatibility: "8.3.10",
		},
		platform: appext.MustRequirement("~> 8.3.10"),
	}
}

func defaultInfo() appext.ApplicationInfo {
	return appext.ApplicationInfo{
		Name:                 "Accounting",
		Version:              "3.0.56.12",
		CompatibilityVersion: "8.3.10",
	}
}

func newHost(opts ...memhost.Option) *memhost.Host {
	return memhost.New(defaultInfo(), opts...)
}

// openContext opens a PlugContext against host and closes it on cleanup.
func openContext(t *testing.T, host *memhost.Host, opts ...appext.Option) *appext.PlugContext {
	t.Helper()

	pc, err := appext.Open(context.Background(), host, appext.Target{Name: "test-ib"}, opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return pc
}

func newExtension(t *testing.T, pc *appext.PlugContext, d appext.Descriptor, mode appext.SafeMode) *appext.Extension {
	t.Helper()

	ext, err := pc.NewExtension(d, mode)
	if err != nil {
		t.Fatalf("NewExtension failed: %v", err)
	}
	return ext
}

func mustExist(t *testing.T, ext interface {
	Exist(context.Context) (bool, error)
}, want bool) {
	t.Helper()

	got, err := ext.Exist(context.Background())
	if err != nil {
		t.Fatalf("Exist failed: %v", err)
	}
	if got != want {
		t.Errorf("Exist() = %v, want %v", got, want)
	}
}

func mustPlugged(t *testing.T, ext interface {
	Plugged(context.Context) (bool, error)
}, want bool) {
	t.Helper()

	got, err := ext.Plugged(context.Background())
	if err != nil {
		t.Fatalf("Plugged failed: %v", err)
	}
	if got != want {
		t.Errorf("Plugged() = %v, want %v", got, want)
	}
}
