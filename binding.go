package appext

import (
	"context"
	"strings"
)

// Target identifies the host instance a Connector opens a binding to.
type Target struct {
	// Name is a human readable instance name used in logs.
	Name string

	// Connection is the host-specific connection string
	// (e.g. `File="C:\bases\acc"` or `Srvr="app01";Ref="acc"`).
	Connection string
}

func (t Target) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Connection
}

// Connector opens automation sessions against host instances.
type Connector interface {
	// Open blocks until the session against target is ready.
	Open(ctx context.Context, target Target) (HostBinding, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, target Target) (HostBinding, error)

// Open calls f(ctx, target).
func (f ConnectorFunc) Open(ctx context.Context, target Target) (HostBinding, error) {
	return f(ctx, target)
}

// HostBinding is an open automation session against one host instance.
type HostBinding interface {
	// Handles lists every extension record persisted in the instance.
	Handles(ctx context.Context) ([]Handle, error)

	// CreateHandle returns a new, not yet persisted handle.
	// The record appears in Handles only after a successful Write.
	CreateHandle(ctx context.Context) (Handle, error)

	// ApplicationInfo describes the business application running in the instance.
	ApplicationInfo(ctx context.Context) (ApplicationInfo, error)

	// Close ends the session.
	Close() error
}

// ApplicationInfo describes the application running inside a host instance.
type ApplicationInfo struct {
	// Name is the application (configuration) name, e.g. "Accounting".
	Name string

	// Version is the application version, e.g. "3.0.56.12".
	Version string

	// CompatibilityVersion is the platform compatibility version the
	// application runs with. Platform requirements are checked against it.
	CompatibilityVersion string
}

// Capability names an optional handle property.
type Capability string

const (
	// CapUnsafeActionProtection is the unsafe-operation warning settings of a handle.
	CapUnsafeActionProtection Capability = "UnsafeActionProtection"

	// CapSafeMode is the explicit safe-mode property of a handle.
	CapSafeMode Capability = "SafeMode"
)

// Handle is a host-side reference to one extension record.
type Handle interface {
	// Name is the extension name stored in the record.
	Name() string

	// Version is the extension version stored in the record.
	Version() string

	// Write stores data into the record, creating it if needed.
	Write(ctx context.Context, data []byte) error

	// Delete removes the record from the instance.
	Delete(ctx context.Context) error

	// CheckCanApply dry-runs merging data into the host.
	CheckCanApply(ctx context.Context, data []byte, strict bool) ([]ApplyProblem, error)

	// StoredData returns the payload currently stored in the record.
	StoredData(ctx context.Context) ([]byte, error)

	// Supports reports whether the handle has the optional property c.
	Supports(c Capability) bool

	// SetUnsafeActionProtection sets whether the host warns about unsafe
	// operations performed by the extension. Returns ErrUnsupportedCapability
	// unless Supports(CapUnsafeActionProtection).
	SetUnsafeActionProtection(ctx context.Context, warnings bool) error

	// SetSafeMode sets the safe mode the extension runs in. Returns
	// ErrUnsupportedCapability unless Supports(CapSafeMode).
	SetSafeMode(ctx context.Context, mode SafeMode) error
}

// NameMatches reports whether a handle name refers to the extension name.
// Extension names are compared case-insensitively.
func NameMatches(handleName, name string) bool {
	return strings.EqualFold(strings.TrimSpace(handleName), strings.TrimSpace(name))
}
