package appext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Extension drives one extension's lifecycle against a host binding.
//
// An Extension has no identity of its own beyond the handle it resolves on
// first use and caches for its lifetime. Dropping an Extension does not
// affect host state; a second Extension for the same descriptor resolves its
// handle independently.
type Extension struct {
	desc     Descriptor
	binding  HostBinding
	safeMode SafeMode
	opts     options
	log      *zap.Logger

	mu     sync.Mutex
	handle Handle
}

// NewExtension binds desc to an open host binding. safeMode is applied to
// the host record before every write; SafeModeUnset leaves it alone.
func NewExtension(binding HostBinding, desc Descriptor, safeMode SafeMode, opts ...Option) *Extension {
	o := buildOptions(opts)
	return &Extension{
		desc:     desc,
		binding:  binding,
		safeMode: safeMode,
		opts:     o,
		log:      o.logger.Named("extension").With(zap.String("extension", desc.Name())),
	}
}

// Descriptor returns the descriptor the extension was created with.
func (e *Extension) Descriptor() Descriptor {
	return e.desc
}

// SafeMode returns the configured safe mode.
func (e *Extension) SafeMode() SafeMode {
	return e.safeMode
}

// AllHandles lists every extension record in the host instance.
func (e *Extension) AllHandles(ctx context.Context) ([]Handle, error) {
	return e.binding.Handles(ctx)
}

// Exist reports whether the extension is stored in the host instance.
// More than one matching record is an *AmbiguousMatchError, never false.
func (e *Extension) Exist(ctx context.Context) (bool, error) {
	h, err := e.find(ctx)
	if err != nil {
		return false, err
	}
	return h != nil, nil
}

// Plugged reports whether the extension exists and its currently stored
// data can be applied without critical problems.
func (e *Extension) Plugged(ctx context.Context) (bool, error) {
	h, err := e.find(ctx)
	if err != nil || h == nil {
		return false, err
	}
	e.remember(h)

	stored, err := h.StoredData(ctx)
	if err != nil {
		return false, fmt.Errorf("read stored data of %q: %w", e.desc.Name(), err)
	}
	problems, err := h.CheckCanApply(ctx, stored, false)
	if err != nil {
		return false, fmt.Errorf("check stored data of %q: %w", e.desc.Name(), err)
	}
	errs, _ := e.opts.severity.Split(problems)
	return len(errs) == 0, nil
}

// Verify checks platform compatibility and then application compatibility.
// Failures are *IncompatibleError.
func (e *Extension) Verify(ctx context.Context) error {
	info, err := e.binding.ApplicationInfo(ctx)
	if err != nil {
		return fmt.Errorf("read application info: %w", err)
	}
	return CheckCompatibility(e.desc, info)
}

// ApplyProblems dry-runs the descriptor's current payload against the host
// and returns every reported problem.
func (e *Extension) ApplyProblems(ctx context.Context) ([]ApplyProblem, error) {
	h, err := e.Handle(ctx)
	if err != nil {
		return nil, err
	}
	data, err := e.desc.Data(ctx)
	if err != nil {
		return nil, fmt.Errorf("read data of %q: %w", e.desc.Name(), err)
	}
	problems, err := h.CheckCanApply(ctx, data, false)
	if err != nil {
		return nil, fmt.Errorf("check data of %q: %w", e.desc.Name(), err)
	}
	return problems, nil
}

// ApplyErrors returns the critical apply problems. With any of them the
// host will not activate the extension.
func (e *Extension) ApplyErrors(ctx context.Context) ([]ApplyProblem, error) {
	problems, err := e.ApplyProblems(ctx)
	if err != nil {
		return nil, err
	}
	errs, _ := e.opts.severity.Split(problems)
	return errs, nil
}

// ApplyWarnings returns the non-critical apply problems.
func (e *Extension) ApplyWarnings(ctx context.Context) ([]ApplyProblem, error) {
	problems, err := e.ApplyProblems(ctx)
	if err != nil {
		return nil, err
	}
	_, warnings := e.opts.severity.Split(problems)
	return warnings, nil
}

// CanApply returns true when the payload has no critical apply problems and
// an *ApplyError listing them otherwise.
func (e *Extension) CanApply(ctx context.Context) (bool, error) {
	errs, err := e.ApplyErrors(ctx)
	if err != nil {
		return false, err
	}
	if len(errs) > 0 {
		return false, &ApplyError{Extension: e.desc.Name(), Problems: errs}
	}
	return true, nil
}

// Plug verifies and writes the extension. It does nothing when the extension
// is already plugged, even if the stored version differs from the
// descriptor's. Verify and CanApply both run before the write, so a failed
// Plug never writes.
func (e *Extension) Plug(ctx context.Context) (*Extension, error) {
	plugged, err := e.Plugged(ctx)
	if err != nil {
		return e, err
	}
	if plugged {
		e.log.Debug("extension already plugged")
		return e, nil
	}

	if err := e.Verify(ctx); err != nil {
		return e, err
	}
	if _, err := e.CanApply(ctx); err != nil {
		return e, err
	}
	return e, e.write(ctx)
}

// PlugForced writes the payload without checking Plugged, Verify or CanApply.
// The host may store an incompatible or rejected payload.
func (e *Extension) PlugForced(ctx context.Context) (*Extension, error) {
	return e, e.write(ctx)
}

// Unplug deletes the extension from the host. It does nothing when the
// extension does not exist.
func (e *Extension) Unplug(ctx context.Context) (*Extension, error) {
	h, err := e.find(ctx)
	if err != nil || h == nil {
		return e, err
	}
	if err := h.Delete(ctx); err != nil {
		return e, fmt.Errorf("delete %q: %w", e.desc.Name(), err)
	}

	e.mu.Lock()
	e.handle = nil
	e.mu.Unlock()

	e.log.Info("extension unplugged")
	return e, nil
}

// SaveStoredData writes the payload currently stored in the host to
// dir/<name>.<stored version>.<suffix> and returns the path. It returns ""
// when the extension does not exist.
func (e *Extension) SaveStoredData(ctx context.Context, dir string) (string, error) {
	h, err := e.find(ctx)
	if err != nil || h == nil {
		return "", err
	}
	if err := ValidateSuffix(e.opts.suffix); err != nil {
		return "", err
	}

	data, err := h.StoredData(ctx)
	if err != nil {
		return "", fmt.Errorf("read stored data of %q: %w", e.desc.Name(), err)
	}

	path := filepath.Join(dir, StoredDataFileName(e.desc.Name(), h.Version(), e.opts.suffix))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save stored data of %q: %w", e.desc.Name(), err)
	}
	return path, nil
}

// StoredDataFileName returns "<name>.<version>.<suffix>". An empty version is "0".
func StoredDataFileName(name, version, suffix string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		version = "0"
	}
	return fmt.Sprintf("%s.%s.%s", name, version, suffix)
}

// Handle returns the extension's host handle, resolving it on first use.
// When no record exists a new unpersisted handle is created; the host
// stores it only on Write.
func (e *Extension) Handle(ctx context.Context) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != nil {
		return e.handle, nil
	}

	h, err := e.find(ctx)
	if err != nil {
		return nil, err
	}
	if h == nil {
		e.log.Debug("extension not found, creating handle")
		h, err = e.binding.CreateHandle(ctx)
		if err != nil {
			return nil, fmt.Errorf("create handle for %q: %w", e.desc.Name(), err)
		}
	}
	e.handle = h
	return h, nil
}

func (e *Extension) write(ctx context.Context) error {
	h, err := e.Handle(ctx)
	if err != nil {
		return err
	}
	if err := e.applySafeMode(ctx, h); err != nil {
		return err
	}

	data, err := e.desc.Data(ctx)
	if err != nil {
		return fmt.Errorf("read data of %q: %w", e.desc.Name(), err)
	}
	if err := h.Write(ctx, data); err != nil {
		return fmt.Errorf("write %q: %w", e.desc.Name(), err)
	}

	e.log.Info("extension written",
		zap.String("version", e.desc.Version()),
		zap.Stringer("safe_mode", e.safeMode))
	return nil
}

// applySafeMode disables unsafe-operation warnings and sets the configured
// safe mode, each only when the handle supports the property.
func (e *Extension) applySafeMode(ctx context.Context, h Handle) error {
	if h.Supports(CapUnsafeActionProtection) {
		if err := h.SetUnsafeActionProtection(ctx, false); err != nil {
			return fmt.Errorf("set unsafe action protection of %q: %w", e.desc.Name(), err)
		}
	}
	if h.Supports(CapSafeMode) && e.safeMode.IsSet() {
		if err := h.SetSafeMode(ctx, e.safeMode); err != nil {
			return fmt.Errorf("set safe mode of %q: %w", e.desc.Name(), err)
		}
	}
	return nil
}

// find returns the single persisted handle named like the extension, or nil.
func (e *Extension) find(ctx context.Context) (Handle, error) {
	handles, err := e.binding.Handles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}

	var found []Handle
	for _, h := range handles {
		if NameMatches(h.Name(), e.desc.Name()) {
			found = append(found, h)
		}
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, &AmbiguousMatchError{Name: e.desc.Name(), Count: len(found)}
	}
}

func (e *Extension) remember(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == nil {
		e.handle = h
	}
}

// CheckCompatibility checks desc against the host application info: first
// the platform requirement against info.CompatibilityVersion, then, unless
// desc is independent, the application name and version. A blank host
// version counts as "0"; an unparsable one never satisfies a requirement.
func CheckCompatibility(desc Descriptor, info ApplicationInfo) error {
	platform := desc.PlatformRequire()
	if !hostSatisfies(platform, info.CompatibilityVersion) {
		return &IncompatibleError{
			Subject:  subjectPlatform,
			Required: platform.String(),
			Actual:   info.CompatibilityVersion,
		}
	}

	apps := desc.AppRequirements()
	if apps == nil {
		return nil
	}

	req, found := apps[info.Name]
	if !found {
		return &IncompatibleError{
			Subject:   subjectApplication,
			Actual:    info.Name,
			Supported: apps.Names(),
		}
	}

	if !hostSatisfies(req, info.Version) {
		return &IncompatibleError{
			Subject:  subjectAppVersion,
			Required: req.String(),
			Actual:   info.Version,
		}
	}
	return nil
}

// hostSatisfies reports whether a version reported by the host meets req.
func hostSatisfies(req Requirement, v string) bool {
	if strings.TrimSpace(v) == "" {
		v = "0"
	}
	ok, err := req.SatisfiedBy(v)
	return err == nil && ok
}
