// Package appext manages configuration extensions installed into a running
// business-application host instance.
//
// # Overview
//
// An extension is a named, versioned bundle of customizations. Callers
// describe one by implementing Descriptor, open a PlugContext against a host
// instance through a Connector, and then plug, verify, inspect or remove the
// extension through an Extension:
//
//	pc, err := appext.Open(ctx, connector, appext.Target{Name: "accounting", Connection: `File="C:\ib"`})
//	if err != nil {
//	    return err
//	}
//	defer pc.Close()
//
//	ext, err := pc.Exec(ctx, &FooExtension{}, appext.SafeModeProfile("restricted"))
//	if err != nil {
//	    return err // *appext.IncompatibleError or *appext.ApplyError
//	}
//
// Plug verifies platform and application compatibility, dry-runs the payload
// against the host and writes it only when no critical apply problem was
// reported. PlugForced skips every check.
//
// # Exploring installed extensions
//
// Explore lists extensions installed by a third party without any caller
// metadata. Each Spy observes one host record; its mutating methods do
// nothing:
//
//	spies, release, err := appext.Explore(ctx, connector, target)
//	if err != nil {
//	    return err
//	}
//	defer release()
//
//	for _, spy := range spies {
//	    ok, _ := spy.Plugged(ctx)
//	    fmt.Println(spy.Name(), spy.Version(), ok)
//	}
//
// # Host bindings
//
// The core never talks to a host directly. Connector implementations live in
// sub-packages: comconnector (local COM automation), gateway (remote
// automation over Connect RPC) and memhost (in-memory host for tests).
//
// A HostBinding is not safe for concurrent writers addressing the same
// extension name. Callers that plug from several goroutines must serialize
// per (instance, extension name) themselves.
package appext
