package extensionfx

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appext "github.com/masegraye/appext-go"
	"github.com/masegraye/appext-go/memhost"
)

type testDescriptor struct {
	payload  memhost.Payload
	platform string
}

func (d testDescriptor) Name() string    { return d.payload.Name }
func (d testDescriptor) Version() string { return d.payload.Version }
func (d testDescriptor) PlatformRequire() appext.Requirement {
	return appext.MustRequirement(d.platform)
}
func (d testDescriptor) AppRequirements() appext.AppRequirements { return nil }
func (d testDescriptor) Data(context.Context) ([]byte, error)    { return d.payload.Encode(), nil }

func newHost() *memhost.Host {
	return memhost.New(appext.ApplicationInfo{Name: "Accounting", Version: "3.0.56.12", CompatibilityVersion: "8.3.10"})
}

func TestModule(t *testing.T) {
	host := newHost()
	var pc *appext.PlugContext

	app := fxtest.New(t,
		fx.NopLogger,
		Module(host, appext.Target{Name: "test"}),
		fx.Populate(&pc),
	)
	if _, err := pc.Binding(); !errors.Is(err, appext.ErrNotConnected) {
		t.Errorf("before start: expected ErrNotConnected, got %v", err)
	}

	app.RequireStart()
	if _, err := pc.Binding(); err != nil {
		t.Errorf("after start: %v", err)
	}
	if host.Opens() != 1 {
		t.Errorf("Opens() = %d, want 1", host.Opens())
	}

	app.RequireStop()
	if _, err := pc.Binding(); !errors.Is(err, appext.ErrClosed) {
		t.Errorf("after stop: expected ErrClosed, got %v", err)
	}
}

func TestPlug(t *testing.T) {
	host := newHost()
	core, logs := observer.New(zap.InfoLevel)
	desc := testDescriptor{
		payload:  memhost.Payload{Name: "Foo", Version: "1.0.0.1", Prefix: "foo", Compatibility: "8.3.10"},
		platform: "~> 8.3.10",
	}

	app := fxtest.New(t,
		fx.NopLogger,
		fx.Supply(zap.New(core)),
		Module(host, appext.Target{Name: "test"}),
		Plug(desc, appext.SafeModeEnabled(true)),
	)
	app.RequireStart()
	defer app.RequireStop()

	recs := host.Records()
	if len(recs) != 1 || recs[0].Name != "Foo" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if recs[0].SafeMode != appext.SafeModeEnabled(true) {
		t.Errorf("SafeMode = %v, want on", recs[0].SafeMode)
	}
	if logs.FilterMessage("extension written").Len() != 1 {
		t.Error("the graph logger should receive extension logs")
	}
}

func TestPlug_StartFails(t *testing.T) {
	host := newHost()
	desc := testDescriptor{
		payload:  memhost.Payload{Name: "Foo", Version: "1.0.0.1", Prefix: "foo", Compatibility: "8.3.10"},
		platform: "~> 8.3.12",
	}

	app := fx.New(
		fx.NopLogger,
		Module(host, appext.Target{Name: "test"}),
		Plug(desc, appext.SafeModeUnset),
	)
	err := app.Start(context.Background())
	if !errors.Is(err, appext.ErrIncompatible) {
		t.Fatalf("expected ErrIncompatible, got %v", err)
	}
	if host.Writes() != 0 {
		t.Error("nothing should be written")
	}
}

func TestPlugForced(t *testing.T) {
	host := newHost()
	desc := testDescriptor{
		payload:  memhost.Payload{Name: "Foo", Version: "1.0.0.1", Prefix: "foo", Compatibility: "8.3.8"},
		platform: "~> 8.3.12",
	}

	app := fxtest.New(t,
		fx.NopLogger,
		Module(host, appext.Target{Name: "test"}),
		PlugForced(desc, appext.SafeModeUnset),
	)
	app.RequireStart()
	defer app.RequireStop()

	if host.Writes() != 1 {
		t.Errorf("Writes() = %d, want 1", host.Writes())
	}
}
