// Package gateway exposes an appext.Connector over Connect RPC.
//
// The server side (Service, Serve) runs next to a host instance and opens
// sessions through a local Connector such as comconnector. The client side
// (Connector) implements appext.Connector against a remote gateway, so an
// Extension can be plugged from a machine that has no host installed.
//
// Messages are plain Go structs carried by a JSON codec:
//
//	svc := gateway.NewService(memhost.New(info))
//	path, handler := svc.Handler()
//	mux.Handle(path, handler)
//
//	conn, _ := gateway.NewConnector(gateway.ClientConfig{Endpoint: "http://host:8090"})
//	pc, _ := appext.Open(ctx, conn, appext.Target{Connection: `File="C:\ib"`})
package gateway

import (
	appext "github.com/masegraye/appext-go"
)

// ServiceName is the fully-qualified name of the host service.
const ServiceName = "appext.gateway.v1.HostService"

// Procedure paths of the host service.
const (
	ServicePath = "/" + ServiceName + "/"

	ProcedureOpen                      = ServicePath + "Open"
	ProcedureClose                     = ServicePath + "Close"
	ProcedureApplicationInfo           = ServicePath + "ApplicationInfo"
	ProcedureListHandles               = ServicePath + "ListHandles"
	ProcedureCreateHandle              = ServicePath + "CreateHandle"
	ProcedureWrite                     = ServicePath + "Write"
	ProcedureDelete                    = ServicePath + "Delete"
	ProcedureCheckCanApply             = ServicePath + "CheckCanApply"
	ProcedureStoredData                = ServicePath + "StoredData"
	ProcedureSetUnsafeActionProtection = ServicePath + "SetUnsafeActionProtection"
	ProcedureSetSafeMode               = ServicePath + "SetSafeMode"
)

// OpenRequest opens a session against a host instance.
type OpenRequest struct {
	Name       string `json:"name,omitempty"`
	Connection string `json:"connection,omitempty"`
}

// OpenResponse carries the id every later call of the session sends.
type OpenResponse struct {
	SessionID string `json:"session_id"`
}

// SessionRequest addresses a session.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// HandleRequest addresses one handle of a session.
type HandleRequest struct {
	SessionID string `json:"session_id"`
	HandleID  string `json:"handle_id"`
}

// Empty is the response of calls that return nothing.
type Empty struct{}

// ApplicationInfoResponse mirrors appext.ApplicationInfo.
type ApplicationInfoResponse struct {
	Name                 string `json:"name"`
	Version              string `json:"version"`
	CompatibilityVersion string `json:"compatibility_version"`
}

// HandleInfo describes a handle. Capabilities lists the optional
// properties the handle supports.
type HandleInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Version      string   `json:"version,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ListHandlesResponse lists the persisted handles of the instance.
type ListHandlesResponse struct {
	Handles []HandleInfo `json:"handles"`
}

// WriteRequest stores data into a handle.
type WriteRequest struct {
	SessionID string `json:"session_id"`
	HandleID  string `json:"handle_id"`
	Data      []byte `json:"data"`
}

// CheckCanApplyRequest dry-runs data against the host.
type CheckCanApplyRequest struct {
	SessionID string `json:"session_id"`
	HandleID  string `json:"handle_id"`
	Data      []byte `json:"data"`
	Strict    bool   `json:"strict,omitempty"`
}

// CheckCanApplyResponse lists the reported problems.
type CheckCanApplyResponse struct {
	Problems []appext.ApplyProblem `json:"problems"`
}

// StoredDataResponse carries a stored payload.
type StoredDataResponse struct {
	Data []byte `json:"data"`
}

// SetUnsafeActionProtectionRequest sets the unsafe-operation warnings of a handle.
type SetUnsafeActionProtectionRequest struct {
	SessionID string `json:"session_id"`
	HandleID  string `json:"handle_id"`
	Warnings  bool   `json:"warnings"`
}

// SetSafeModeRequest sets the safe mode of a handle.
type SetSafeModeRequest struct {
	SessionID string       `json:"session_id"`
	HandleID  string       `json:"handle_id"`
	SafeMode  SafeModeInfo `json:"safe_mode"`
}

// SafeModeInfo is the wire form of appext.SafeMode. At most one field is set.
type SafeModeInfo struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Profile string `json:"profile,omitempty"`
}

func safeModeToInfo(m appext.SafeMode) SafeModeInfo {
	if enabled, ok := m.Bool(); ok {
		return SafeModeInfo{Enabled: &enabled}
	}
	if name, ok := m.Profile(); ok {
		return SafeModeInfo{Profile: name}
	}
	return SafeModeInfo{}
}

func (i SafeModeInfo) safeMode() appext.SafeMode {
	switch {
	case i.Enabled != nil:
		return appext.SafeModeEnabled(*i.Enabled)
	case i.Profile != "":
		return appext.SafeModeProfile(i.Profile)
	default:
		return appext.SafeModeUnset
	}
}

var capabilities = []appext.Capability{
	appext.CapUnsafeActionProtection,
	appext.CapSafeMode,
}
