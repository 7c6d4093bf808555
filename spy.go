package appext

import (
	"context"
)

// Spy is a read-only view of an extension already stored in a host
// instance. It needs no caller metadata: name, version and data come from
// the host record. Plug, PlugForced, Unplug and Verify do nothing.
//
// Spy implements Descriptor.
type Spy struct {
	handle Handle
	ext    *Extension
}

var _ Descriptor = (*Spy)(nil)

// NewSpy wraps an existing handle.
func NewSpy(binding HostBinding, h Handle, opts ...Option) *Spy {
	s := &Spy{handle: h}
	s.ext = NewExtension(binding, s, SafeModeUnset, opts...)
	s.ext.handle = h
	return s
}

// Handle returns the wrapped host handle.
func (s *Spy) Handle() Handle {
	return s.handle
}

// Name returns the stored extension name.
func (s *Spy) Name() string {
	return s.handle.Name()
}

// Version returns the stored extension version.
func (s *Spy) Version() string {
	return s.handle.Version()
}

// Data returns the stored payload.
func (s *Spy) Data(ctx context.Context) ([]byte, error) {
	return s.handle.StoredData(ctx)
}

// PlatformRequire is satisfied by every version: a Spy is never checked.
func (s *Spy) PlatformRequire() Requirement {
	return AnyVersion()
}

// AppRequirements is nil: a Spy is independent of the host application.
func (s *Spy) AppRequirements() AppRequirements {
	return nil
}

// Exist reports whether the record is still stored.
func (s *Spy) Exist(ctx context.Context) (bool, error) {
	return s.ext.Exist(ctx)
}

// Plugged reports whether the stored data applies without critical problems.
func (s *Spy) Plugged(ctx context.Context) (bool, error) {
	return s.ext.Plugged(ctx)
}

// ApplyProblems dry-runs the stored payload.
func (s *Spy) ApplyProblems(ctx context.Context) ([]ApplyProblem, error) {
	return s.ext.ApplyProblems(ctx)
}

// ApplyErrors returns the critical problems of the stored payload.
func (s *Spy) ApplyErrors(ctx context.Context) ([]ApplyProblem, error) {
	return s.ext.ApplyErrors(ctx)
}

// ApplyWarnings returns the non-critical problems of the stored payload.
func (s *Spy) ApplyWarnings(ctx context.Context) ([]ApplyProblem, error) {
	return s.ext.ApplyWarnings(ctx)
}

// CanApply returns an *ApplyError when the stored payload has critical problems.
func (s *Spy) CanApply(ctx context.Context) (bool, error) {
	return s.ext.CanApply(ctx)
}

// SaveStoredData writes the stored payload to dir. See Extension.SaveStoredData.
func (s *Spy) SaveStoredData(ctx context.Context, dir string) (string, error) {
	return s.ext.SaveStoredData(ctx, dir)
}

// Plug does nothing.
func (s *Spy) Plug(context.Context) (*Spy, error) {
	return s, nil
}

// PlugForced does nothing.
func (s *Spy) PlugForced(context.Context) (*Spy, error) {
	return s, nil
}

// Unplug does nothing.
func (s *Spy) Unplug(context.Context) (*Spy, error) {
	return s, nil
}

// Verify does nothing.
func (s *Spy) Verify(context.Context) error {
	return nil
}
