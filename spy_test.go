package appext_test

import (
	"context"
	"os"
	"testing"

	appext "github.com/masegraye/appext-go"
	"github.com/masegraye/appext-go/memhost"
)

func TestSpy_ReflectsStoredRecord(t *testing.T) {
	host := newHost()
	pc := openContext(t, host)
	ctx := context.Background()

	d := newDescriptor("Foo", "foo")
	d.payload.Warnings = []string{"role missing"}
	if _, err := pc.Exec(ctx, d, appext.SafeModeUnset); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	spies, err := pc.Explore(ctx)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	if len(spies) != 1 {
		t.Fatalf("expected 1 spy, got %d", len(spies))
	}
	spy := spies[0]

	if spy.Name() != "Foo" || spy.Version() != "1.0.0.1" {
		t.Errorf("spy = %s %s", spy.Name(), spy.Version())
	}
	mustExist(t, spy, true)
	mustPlugged(t, spy, true)

	warnings, err := spy.ApplyWarnings(ctx)
	if err != nil {
		t.Fatalf("ApplyWarnings failed: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Description != "role missing" {
		t.Errorf("ApplyWarnings() = %v", warnings)
	}

	data, err := spy.Data(ctx)
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if string(data) != string(host.Records()[0].Data) {
		t.Error("spy data should be the stored data")
	}
}

func TestSpy_MutationsAreNoops(t *testing.T) {
	host := newHost()
	if err := host.Install(memhost.Payload{Name: "Foo", Version: "1.0"}.Encode()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	pc := openContext(t, host)
	ctx := context.Background()

	spies, err := pc.Explore(ctx)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	spy := spies[0]

	if s, err := spy.Unplug(ctx); err != nil || s != spy {
		t.Errorf("Unplug() = %v, %v", s, err)
	}
	if s, err := spy.Plug(ctx); err != nil || s != spy {
		t.Errorf("Plug() = %v, %v", s, err)
	}
	if s, err := spy.PlugForced(ctx); err != nil || s != spy {
		t.Errorf("PlugForced() = %v, %v", s, err)
	}
	if err := spy.Verify(ctx); err != nil {
		t.Errorf("Verify() = %v", err)
	}

	mustExist(t, spy, true)
	if host.Writes() != 0 || len(host.Records()) != 1 {
		t.Error("spy must not change host state")
	}
}

func TestSpy_IsDescriptor(t *testing.T) {
	host := newHost()
	if err := host.Install(memhost.Payload{Name: "Foo", Version: "2.1"}.Encode()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	pc := openContext(t, host)
	ctx := context.Background()

	spies, err := pc.Explore(ctx)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}

	var desc appext.Descriptor = spies[0]
	if desc.AppRequirements() != nil {
		t.Error("spy should be independent")
	}
	if ok, err := desc.PlatformRequire().SatisfiedBy("8.1.0"); err != nil || !ok {
		t.Errorf("spy platform requirement should accept any version: %v, %v", ok, err)
	}

	// A spy can be copied into another instance as a descriptor.
	other := newHost()
	otherPC := openContext(t, other)
	if _, err := otherPC.Exec(ctx, desc, appext.SafeModeUnset); err != nil {
		t.Fatalf("Exec with spy descriptor failed: %v", err)
	}
	if recs := other.Records(); len(recs) != 1 || recs[0].Version != "2.1" {
		t.Errorf("copied records = %v", recs)
	}
}

func TestSpy_SaveStoredData(t *testing.T) {
	host := newHost()
	if err := host.Install(memhost.Payload{Name: "Foo", Version: "2.1"}.Encode()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	pc := openContext(t, host, appext.WithStoredDataSuffix("cfu"))
	ctx := context.Background()

	spies, err := pc.Explore(ctx)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	path, err := spies[0].SaveStoredData(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("SaveStoredData failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("saved file missing: %v", err)
	}
}
