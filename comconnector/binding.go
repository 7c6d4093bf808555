package comconnector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"go.uber.org/zap"

	appext "github.com/masegraye/appext-go"
)

// releaser is a COM object reference.
type releaser interface {
	Release() int32
}

// binding is one COM session. Every field except log, tempDir and w is
// touched only on the worker thread.
type binding struct {
	w       *worker
	tempDir string
	log     *zap.Logger

	connector *ole.IDispatch
	conn      *ole.IDispatch

	// scratch holds the objects unwrapped during the current call; run
	// releases them when the call returns.
	scratch []releaser
	// pinned holds objects of created handles not yet written.
	pinned map[releaser]struct{}

	closeOnce sync.Once
}

// run calls fn on the worker thread and releases its temporaries.
func (b *binding) run(ctx context.Context, fn func() error) error {
	return b.w.do(ctx, func() error {
		defer b.releaseScratch()
		return fn()
	})
}

func (b *binding) releaseScratch() {
	for i := len(b.scratch) - 1; i >= 0; i-- {
		b.scratch[i].Release()
	}
	b.scratch = b.scratch[:0]
}

// pin keeps d alive past the current call until unpin or Close.
func (b *binding) pin(d *ole.IDispatch) {
	d.AddRef()
	if b.pinned == nil {
		b.pinned = make(map[releaser]struct{})
	}
	b.pinned[d] = struct{}{}
}

func (b *binding) unpin(d *ole.IDispatch) {
	if _, ok := b.pinned[d]; ok {
		delete(b.pinned, d)
		d.Release()
	}
}

// extensions returns the host's ConfigurationExtension objects. Must run
// inside run.
func (b *binding) extensions() ([]*ole.IDispatch, error) {
	exts, err := b.dispatch(oleutil.GetProperty(b.conn, "ConfigurationExtensions"))
	if err != nil {
		return nil, err
	}
	list, err := b.dispatch(oleutil.CallMethod(exts, "Get"))
	if err != nil {
		return nil, err
	}
	return b.items(list)
}

func (b *binding) Handles(ctx context.Context) ([]appext.Handle, error) {
	var out []appext.Handle
	err := b.run(ctx, func() error {
		items, err := b.extensions()
		if err != nil {
			return err
		}
		for _, d := range items {
			h := &handle{b: b}
			if err := h.refresh(d); err != nil {
				return err
			}
			out = append(out, h)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}
	return out, nil
}

func (b *binding) CreateHandle(ctx context.Context) (appext.Handle, error) {
	var h *handle
	err := b.run(ctx, func() error {
		exts, err := b.dispatch(oleutil.GetProperty(b.conn, "ConfigurationExtensions"))
		if err != nil {
			return err
		}
		d, err := b.dispatch(oleutil.CallMethod(exts, "Create"))
		if err != nil {
			return err
		}
		b.pin(d)
		h = &handle{b: b, created: d}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create extension: %w", err)
	}
	return h, nil
}

func (b *binding) ApplicationInfo(ctx context.Context) (appext.ApplicationInfo, error) {
	var info appext.ApplicationInfo
	err := b.run(ctx, func() error {
		md, err := b.dispatch(oleutil.GetProperty(b.conn, "Metadata"))
		if err != nil {
			return err
		}
		if info.Name, err = b.text(oleutil.GetProperty(md, "Name")); err != nil {
			return err
		}
		if info.Version, err = b.text(oleutil.GetProperty(md, "Version")); err != nil {
			return err
		}

		mode, err := b.dispatch(oleutil.GetProperty(md, "CompatibilityMode"))
		if err != nil {
			return err
		}
		modeText, err := b.text(oleutil.CallMethod(b.conn, "String", mode))
		if err != nil {
			return err
		}
		if v, ok := ParseCompatibilityMode(modeText); ok {
			info.CompatibilityVersion = v
			return nil
		}

		// Compatibility mode not used: the application runs with the
		// platform's own version.
		sys, err := b.dispatch(oleutil.CallMethod(b.conn, "NewObject", "SystemInfo"))
		if err != nil {
			return err
		}
		info.CompatibilityVersion, err = b.text(oleutil.GetProperty(sys, "AppVersion"))
		return err
	})
	if err != nil {
		return appext.ApplicationInfo{}, fmt.Errorf("read application info: %w", err)
	}
	return info, nil
}

// Close releases every COM object of the session and stops its worker.
// Release reports no failures, so neither does Close: it always returns nil.
func (b *binding) Close() error {
	b.closeOnce.Do(func() {
		b.w.close(func() {
			b.releaseScratch()
			for d := range b.pinned {
				d.Release()
			}
			b.pinned = nil
			if b.conn != nil {
				b.conn.Release()
			}
			if b.connector != nil {
				b.connector.Release()
			}
		})
		b.log.Info("session closed")
	})
	return nil
}

// dispatch unwraps an object result that lives until the current call
// returns.
func (b *binding) dispatch(v *ole.VARIANT, err error) (*ole.IDispatch, error) {
	d, err := object(v, err)
	if err != nil {
		return nil, err
	}
	b.scratch = append(b.scratch, d)
	return d, nil
}

// object unwraps an object result; the caller releases it.
func object(v *ole.VARIANT, err error) (*ole.IDispatch, error) {
	if err != nil {
		return nil, err
	}
	d := v.ToIDispatch()
	if d == nil {
		v.Clear()
		return nil, errors.New("comconnector: expected an object")
	}
	return d, nil
}

// text unwraps a scalar result as a string.
func (b *binding) text(v *ole.VARIANT, err error) (string, error) {
	if err != nil {
		return "", err
	}
	defer v.Clear()
	if val := v.Value(); val != nil {
		return fmt.Sprint(val), nil
	}
	return "", nil
}

// items returns the elements of a host array.
func (b *binding) items(list *ole.IDispatch) ([]*ole.IDispatch, error) {
	count, err := oleutil.CallMethod(list, "Count")
	if err != nil {
		return nil, err
	}
	n, err := toInt(count.Value())
	count.Clear()
	if err != nil {
		return nil, err
	}

	out := make([]*ole.IDispatch, 0, n)
	for i := 0; i < n; i++ {
		d, err := b.dispatch(oleutil.CallMethod(list, "Get", i))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// binaryData stages data in a temp file and loads it as a host BinaryData
// object. The returned cleanup removes the file.
func (b *binding) binaryData(data []byte) (*ole.IDispatch, func(), error) {
	f, err := os.CreateTemp(b.tempDir, "appext-*.bin")
	if err != nil {
		return nil, nil, err
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return nil, nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return nil, nil, err
	}

	d, err := b.dispatch(oleutil.CallMethod(b.conn, "NewObject", "BinaryData", path))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return d, cleanup, nil
}

// readBinaryData writes a host BinaryData object to a temp file and reads it back.
func (b *binding) readBinaryData(d *ole.IDispatch) ([]byte, error) {
	f, err := os.CreateTemp(b.tempDir, "appext-*.bin")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := call(d, "Write", path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// call invokes a method whose result is not needed.
func call(d *ole.IDispatch, name string, args ...any) error {
	v, err := oleutil.CallMethod(d, name, args...)
	if err != nil {
		return err
	}
	v.Clear()
	return nil
}

// put sets a property.
func put(d *ole.IDispatch, name string, value any) error {
	v, err := oleutil.PutProperty(d, name, value)
	if err != nil {
		return err
	}
	v.Clear()
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("comconnector: expected a number, got %T", v)
	}
}
