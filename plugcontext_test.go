package appext_test

import (
	"context"
	"errors"
	"testing"

	appext "github.com/masegraye/appext-go"
	"github.com/masegraye/appext-go/memhost"
)

func TestPlugContext_SharesOneBinding(t *testing.T) {
	host := newHost()
	pc := openContext(t, host)
	ctx := context.Background()

	for _, name := range []string{"Foo", "Bar", "Baz"} {
		if _, err := pc.Exec(ctx, newDescriptor(name, name), appext.SafeModeUnset); err != nil {
			t.Fatalf("Exec(%s) failed: %v", name, err)
		}
	}
	if _, err := pc.Explore(ctx); err != nil {
		t.Fatalf("Explore failed: %v", err)
	}

	if host.Opens() != 1 {
		t.Errorf("expected 1 open, got %d", host.Opens())
	}
	if n := len(host.Records()); n != 3 {
		t.Errorf("expected 3 records, got %d", n)
	}
}

func TestPlugContext_ConnectIsIdempotent(t *testing.T) {
	host := newHost()
	pc := appext.NewPlugContext(host, appext.Target{Name: "ib"})
	ctx := context.Background()

	if _, err := pc.Binding(); !errors.Is(err, appext.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := pc.NewExtension(newDescriptor("Foo", "foo"), appext.SafeModeUnset); !errors.Is(err, appext.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := pc.Connect(ctx); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	}
	if host.Opens() != 1 {
		t.Errorf("expected 1 open, got %d", host.Opens())
	}
	if pc.Target().Name != "ib" {
		t.Errorf("Target() = %v", pc.Target())
	}
}

func TestPlugContext_Close(t *testing.T) {
	host := newHost()
	pc := openContext(t, host)
	ctx := context.Background()

	ext := newExtension(t, pc, newDescriptor("Foo", "foo"), appext.SafeModeUnset)

	if err := pc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := pc.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if _, err := pc.Binding(); !errors.Is(err, appext.ErrClosed) {
		t.Errorf("Binding: expected ErrClosed, got %v", err)
	}
	if err := pc.Connect(ctx); !errors.Is(err, appext.ErrClosed) {
		t.Errorf("Connect: expected ErrClosed, got %v", err)
	}
	if _, err := ext.Exist(ctx); !errors.Is(err, appext.ErrClosed) {
		t.Errorf("Exist after Close: expected ErrClosed, got %v", err)
	}
}

func TestPlugContext_NoConnector(t *testing.T) {
	_, err := appext.Open(context.Background(), nil, appext.Target{Name: "ib"})
	if !errors.Is(err, appext.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestPlugContext_OpenFailure(t *testing.T) {
	boom := errors.New("no license")
	connector := appext.ConnectorFunc(func(context.Context, appext.Target) (appext.HostBinding, error) {
		return nil, boom
	})

	_, err := appext.Open(context.Background(), connector, appext.Target{Connection: `File="C:\ib"`})
	if !errors.Is(err, boom) {
		t.Errorf("expected connector error, got %v", err)
	}
}

func TestPlug_DefaultsToSafeMode(t *testing.T) {
	host := newHost()
	ctx := context.Background()

	ext, err := appext.Plug(ctx, host, appext.Target{Name: "ib"}, newDescriptor("Foo", "foo"), appext.SafeModeUnset)
	if err != nil {
		t.Fatalf("Plug failed: %v", err)
	}
	mustPlugged(t, ext, true)

	if got := ext.SafeMode(); got != appext.SafeModeEnabled(true) {
		t.Errorf("SafeMode() = %v, want true", got)
	}
	if got := host.Records()[0].SafeMode; got != appext.SafeModeEnabled(true) {
		t.Errorf("stored SafeMode = %v, want true", got)
	}
}

func TestPlug_ExplicitSafeModeOff(t *testing.T) {
	host := newHost()

	_, err := appext.Plug(context.Background(), host, appext.Target{Name: "ib"}, newDescriptor("Foo", "foo"), appext.SafeModeEnabled(false))
	if err != nil {
		t.Fatalf("Plug failed: %v", err)
	}
	if got := host.Records()[0].SafeMode; got != appext.SafeModeEnabled(false) {
		t.Errorf("stored SafeMode = %v, want false", got)
	}
}

func TestPlug_ClosesOnFailure(t *testing.T) {
	host := newHost()
	d := newDescriptor("Foo", "foo")
	d.platform = appext.MustRequirement("~> 8.5")

	_, err := appext.Plug(context.Background(), host, appext.Target{Name: "ib"}, d, appext.SafeModeUnset)
	if !errors.Is(err, appext.ErrIncompatible) {
		t.Fatalf("expected ErrIncompatible, got %v", err)
	}
	if host.Writes() != 0 {
		t.Error("expected no writes")
	}
}

func TestExplore_Release(t *testing.T) {
	host := newHost()
	for _, name := range []string{"Foo", "Bar"} {
		if err := host.Install(memhost.Payload{Name: name, Version: "1.0"}.Encode()); err != nil {
			t.Fatalf("Install failed: %v", err)
		}
	}
	ctx := context.Background()

	spies, release, err := appext.Explore(ctx, host, appext.Target{Name: "ib"})
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	if len(spies) != 2 {
		t.Fatalf("expected 2 spies, got %d", len(spies))
	}
	if spies[0].Name() != "Foo" || spies[1].Name() != "Bar" {
		t.Errorf("unexpected spies %q, %q", spies[0].Name(), spies[1].Name())
	}

	if err := release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := spies[0].Exist(ctx); !errors.Is(err, appext.ErrClosed) {
		t.Errorf("expected ErrClosed after release, got %v", err)
	}
}

func TestExplore_EmptyInstance(t *testing.T) {
	spies, release, err := appext.Explore(context.Background(), newHost(), appext.Target{Name: "ib"})
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	defer release()

	if len(spies) != 0 {
		t.Errorf("expected no spies, got %d", len(spies))
	}
}
