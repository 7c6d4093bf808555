// Package memhost provides an in-memory host instance that implements
// appext.Connector. It keeps extension records in memory, reports apply
// problems for conflicting payloads and records the safe-mode settings the
// core applies, which makes it the reference binding for tests.
package memhost

import (
	"context"
	"fmt"
	"strings"
	"sync"

	appext "github.com/masegraye/appext-go"
)

// Severity texts reported by the host.
const (
	SeverityCritical    = "Critical"
	SeverityNotCritical = "Noncritical"

	SeverityCriticalRu    = "Критичная"
	SeverityNotCriticalRu = "Некритичная"
)

// Operation names accepted by FailOn.
const (
	OpList   = "list"
	OpCreate = "create"
	OpInfo   = "info"
	OpWrite  = "write"
	OpDelete = "delete"
	OpCheck  = "check"
	OpData   = "data"
)

// Host is an in-memory host instance.
type Host struct {
	mu       sync.Mutex
	info     appext.ApplicationInfo
	records  []*record
	caps     map[appext.Capability]bool
	russian  bool
	failures map[string]error
	opens    int
	writes   int
}

type record struct {
	persisted      bool
	payload        Payload
	data           []byte
	safeMode       appext.SafeMode
	unsafeWarnings *bool
}

// Option configures a Host.
type Option func(*Host)

// WithCapabilities limits the optional handle properties the host exposes.
// By default both CapUnsafeActionProtection and CapSafeMode are supported.
func WithCapabilities(caps ...appext.Capability) Option {
	return func(h *Host) {
		h.caps = make(map[appext.Capability]bool, len(caps))
		for _, c := range caps {
			h.caps[c] = true
		}
	}
}

// WithRussianSeverity makes the host report severities in Russian.
func WithRussianSeverity() Option {
	return func(h *Host) {
		h.russian = true
	}
}

// New creates a host running the application described by info.
func New(info appext.ApplicationInfo, opts ...Option) *Host {
	h := &Host{
		info: info,
		caps: map[appext.Capability]bool{
			appext.CapUnsafeActionProtection: true,
			appext.CapSafeMode:               true,
		},
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open implements appext.Connector. Every call opens a new binding to the
// same in-memory instance; target is ignored.
func (h *Host) Open(ctx context.Context, _ appext.Target) (appext.HostBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opens++
	return &binding{host: h}, nil
}

// Install stores data as a third party would, skipping the name uniqueness
// check. Installing the same name twice yields an ambiguous instance.
func (h *Host) Install(data []byte) error {
	p, err := DecodePayload(data)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, &record{persisted: true, payload: p, data: clone(data)})
	return nil
}

// FailOn makes every later op fail with err. A nil err clears the failure.
func (h *Host) FailOn(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.failures, op)
		return
	}
	h.failures[op] = err
}

// SetApplicationInfo replaces the application description.
func (h *Host) SetApplicationInfo(info appext.ApplicationInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.info = info
}

// Opens returns how many bindings were opened.
func (h *Host) Opens() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}

// Writes returns how many successful writes the host accepted.
func (h *Host) Writes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes
}

// Record is a snapshot of a stored extension.
type Record struct {
	Name     string
	Version  string
	Data     []byte
	SafeMode appext.SafeMode

	// UnsafeWarnings is nil until the property was set.
	UnsafeWarnings *bool
}

// Records returns snapshots of every persisted record in storage order.
func (h *Host) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Record, 0, len(h.records))
	for _, r := range h.records {
		rec := Record{
			Name:     r.payload.Name,
			Version:  r.payload.Version,
			Data:     clone(r.data),
			SafeMode: r.safeMode,
		}
		if r.unsafeWarnings != nil {
			w := *r.unsafeWarnings
			rec.UnsafeWarnings = &w
		}
		out = append(out, rec)
	}
	return out
}

// fail returns the injected failure for op. Must be called with h.mu held.
func (h *Host) fail(op string) error {
	if err, ok := h.failures[op]; ok {
		return fmt.Errorf("memhost %s: %w", op, err)
	}
	return nil
}

func (h *Host) severity(critical bool) string {
	switch {
	case critical && h.russian:
		return SeverityCriticalRu
	case critical:
		return SeverityCritical
	case h.russian:
		return SeverityNotCriticalRu
	default:
		return SeverityNotCritical
	}
}

// check computes apply problems of data for rec. Must be called with h.mu held.
func (h *Host) check(rec *record, data []byte, strict bool) []appext.ApplyProblem {
	p, err := DecodePayload(data)
	if err != nil {
		return []appext.ApplyProblem{{Description: err.Error(), Severity: h.severity(true)}}
	}

	var problems []appext.ApplyProblem
	add := func(critical bool, format string, args ...any) {
		problems = append(problems, appext.ApplyProblem{
			Description: fmt.Sprintf(format, args...),
			Severity:    h.severity(critical || strict),
		})
	}

	// Any compatibility mismatch, older or newer, is critical.
	if p.Compatibility != "" {
		cmp, err := appext.CompareVersions(p.Compatibility, h.info.CompatibilityVersion)
		if err != nil || cmp != 0 {
			add(true, "extension compatibility mode %s differs from configuration compatibility mode %s",
				p.Compatibility, h.info.CompatibilityVersion)
		}
	}

	for _, other := range h.records {
		if other == rec || appext.NameMatches(other.payload.Name, p.Name) {
			continue
		}
		if p.Prefix != "" && strings.EqualFold(other.payload.Prefix, p.Prefix) {
			add(true, "name prefix %q is already used by extension %q", p.Prefix, other.payload.Name)
		}
		for _, obj := range p.Objects {
			for _, theirs := range other.payload.Objects {
				if obj == theirs {
					add(false, "object %s is also adopted by extension %q", obj, other.payload.Name)
				}
			}
		}
	}

	for _, w := range p.Warnings {
		add(false, "%s", w)
	}
	return problems
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
