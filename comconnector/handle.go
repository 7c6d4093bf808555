package comconnector

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	appext "github.com/masegraye/appext-go"
)

// handle refers to a host ConfigurationExtension. A persisted extension is
// looked up by name on every call; a created one keeps its object pinned
// until the first successful Write.
type handle struct {
	b *binding

	mu      sync.Mutex
	name    string
	version string
	// created is touched only on the worker thread.
	created *ole.IDispatch
}

// refresh re-reads name and version from ext. Must run on the worker thread.
func (h *handle) refresh(ext *ole.IDispatch) error {
	name, err := h.b.text(oleutil.GetProperty(ext, "Name"))
	if err != nil {
		return err
	}
	version, err := h.b.text(oleutil.GetProperty(ext, "Version"))
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.name, h.version = name, version
	h.mu.Unlock()
	return nil
}

// with runs fn on the worker thread with the handle's host object.
func (h *handle) with(ctx context.Context, fn func(ext *ole.IDispatch) error) error {
	return h.b.run(ctx, func() error {
		if h.created != nil {
			return fn(h.created)
		}
		exts, err := h.b.extensions()
		if err != nil {
			return err
		}
		name := h.Name()
		for _, ext := range exts {
			n, err := h.b.text(oleutil.GetProperty(ext, "Name"))
			if err != nil {
				return err
			}
			if n == name {
				return fn(ext)
			}
		}
		return fmt.Errorf("%w: %q", appext.ErrHandleNotFound, name)
	})
}

func (h *handle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

func (h *handle) Version() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

func (h *handle) Write(ctx context.Context, data []byte) error {
	return h.with(ctx, func(ext *ole.IDispatch) error {
		bd, cleanup, err := h.b.binaryData(data)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := call(ext, "Write", bd); err != nil {
			return err
		}
		if err := h.refresh(ext); err != nil {
			return err
		}
		if h.created != nil {
			h.b.unpin(h.created)
			h.created = nil
		}
		return nil
	})
}

func (h *handle) Delete(ctx context.Context) error {
	return h.with(ctx, func(ext *ole.IDispatch) error {
		return call(ext, "Delete")
	})
}

func (h *handle) CheckCanApply(ctx context.Context, data []byte, strict bool) ([]appext.ApplyProblem, error) {
	var problems []appext.ApplyProblem
	err := h.with(ctx, func(ext *ole.IDispatch) error {
		bd, cleanup, err := h.b.binaryData(data)
		if err != nil {
			return err
		}
		defer cleanup()

		list, err := h.b.dispatch(oleutil.CallMethod(ext, "CheckCanApply", bd, strict))
		if err != nil {
			return err
		}
		issues, err := h.b.items(list)
		if err != nil {
			return err
		}
		for _, issue := range issues {
			desc, err := h.b.text(oleutil.GetProperty(issue, "Description"))
			if err != nil {
				return err
			}
			sev, err := h.b.dispatch(oleutil.GetProperty(issue, "Severity"))
			if err != nil {
				return err
			}
			// Severity is an enum value; the host renders it in its
			// interface language.
			sevText, err := h.b.text(oleutil.CallMethod(h.b.conn, "String", sev))
			if err != nil {
				return err
			}
			problems = append(problems, appext.ApplyProblem{Description: desc, Severity: sevText})
		}
		return nil
	})
	return problems, err
}

func (h *handle) StoredData(ctx context.Context) ([]byte, error) {
	var data []byte
	err := h.with(ctx, func(ext *ole.IDispatch) error {
		bd, err := h.b.dispatch(oleutil.CallMethod(ext, "GetData"))
		if err != nil {
			return fmt.Errorf("%w: %v", appext.ErrHandleNotFound, err)
		}
		data, err = h.b.readBinaryData(bd)
		return err
	})
	return data, err
}

// Supports probes the object's dispatch interface for the property.
func (h *handle) Supports(c appext.Capability) bool {
	var ok bool
	h.with(context.Background(), func(ext *ole.IDispatch) error {
		_, err := ext.GetIDsOfName([]string{string(c)})
		ok = err == nil
		return nil
	})
	return ok
}

func (h *handle) SetUnsafeActionProtection(ctx context.Context, warnings bool) error {
	if !h.Supports(appext.CapUnsafeActionProtection) {
		return fmt.Errorf("%w: %s", appext.ErrUnsupportedCapability, appext.CapUnsafeActionProtection)
	}
	return h.with(ctx, func(ext *ole.IDispatch) error {
		desc, err := h.b.dispatch(oleutil.CallMethod(h.b.conn, "NewObject", "UnsafeOperationProtectionDescription"))
		if err != nil {
			return err
		}
		if err := put(desc, "UnsafeOperationWarnings", warnings); err != nil {
			return err
		}
		return put(ext, string(appext.CapUnsafeActionProtection), desc)
	})
}

func (h *handle) SetSafeMode(ctx context.Context, mode appext.SafeMode) error {
	if !h.Supports(appext.CapSafeMode) {
		return fmt.Errorf("%w: %s", appext.ErrUnsupportedCapability, appext.CapSafeMode)
	}
	if !mode.IsSet() {
		return nil
	}
	return h.with(ctx, func(ext *ole.IDispatch) error {
		return put(ext, string(appext.CapSafeMode), mode.Value())
	})
}
