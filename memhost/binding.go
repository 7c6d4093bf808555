package memhost

import (
	"context"
	"fmt"

	appext "github.com/masegraye/appext-go"
)

type binding struct {
	host   *Host
	closed bool
}

// begin locks the host and checks the binding and op. On success the caller
// must unlock h.mu.
func (b *binding) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.host.mu.Lock()
	if b.closed {
		b.host.mu.Unlock()
		return appext.ErrClosed
	}
	if err := b.host.fail(op); err != nil {
		b.host.mu.Unlock()
		return err
	}
	return nil
}

func (b *binding) Handles(ctx context.Context) ([]appext.Handle, error) {
	if err := b.begin(ctx, OpList); err != nil {
		return nil, err
	}
	defer b.host.mu.Unlock()

	out := make([]appext.Handle, 0, len(b.host.records))
	for _, r := range b.host.records {
		out = append(out, &handle{b: b, rec: r})
	}
	return out, nil
}

func (b *binding) CreateHandle(ctx context.Context) (appext.Handle, error) {
	if err := b.begin(ctx, OpCreate); err != nil {
		return nil, err
	}
	defer b.host.mu.Unlock()
	return &handle{b: b, rec: &record{}}, nil
}

func (b *binding) ApplicationInfo(ctx context.Context) (appext.ApplicationInfo, error) {
	if err := b.begin(ctx, OpInfo); err != nil {
		return appext.ApplicationInfo{}, err
	}
	defer b.host.mu.Unlock()
	return b.host.info, nil
}

func (b *binding) Close() error {
	b.host.mu.Lock()
	defer b.host.mu.Unlock()
	b.closed = true
	return nil
}

type handle struct {
	b   *binding
	rec *record
}

func (h *handle) Name() string {
	h.b.host.mu.Lock()
	defer h.b.host.mu.Unlock()
	return h.rec.payload.Name
}

func (h *handle) Version() string {
	h.b.host.mu.Lock()
	defer h.b.host.mu.Unlock()
	return h.rec.payload.Version
}

func (h *handle) Write(ctx context.Context, data []byte) error {
	if err := h.b.begin(ctx, OpWrite); err != nil {
		return err
	}
	host := h.b.host
	defer host.mu.Unlock()

	p, err := DecodePayload(data)
	if err != nil {
		return err
	}
	for _, other := range host.records {
		if other != h.rec && appext.NameMatches(other.payload.Name, p.Name) {
			return fmt.Errorf("extension %q already exists", other.payload.Name)
		}
	}

	h.rec.payload = p
	h.rec.data = clone(data)
	if !h.rec.persisted {
		h.rec.persisted = true
		host.records = append(host.records, h.rec)
	}
	host.writes++
	return nil
}

func (h *handle) Delete(ctx context.Context) error {
	if err := h.b.begin(ctx, OpDelete); err != nil {
		return err
	}
	host := h.b.host
	defer host.mu.Unlock()

	for i, r := range host.records {
		if r == h.rec {
			host.records = append(host.records[:i], host.records[i+1:]...)
			h.rec.persisted = false
			return nil
		}
	}
	return appext.ErrHandleNotFound
}

func (h *handle) CheckCanApply(ctx context.Context, data []byte, strict bool) ([]appext.ApplyProblem, error) {
	if err := h.b.begin(ctx, OpCheck); err != nil {
		return nil, err
	}
	defer h.b.host.mu.Unlock()
	return h.b.host.check(h.rec, data, strict), nil
}

func (h *handle) StoredData(ctx context.Context) ([]byte, error) {
	if err := h.b.begin(ctx, OpData); err != nil {
		return nil, err
	}
	defer h.b.host.mu.Unlock()

	if !h.rec.persisted {
		return nil, appext.ErrHandleNotFound
	}
	return clone(h.rec.data), nil
}

func (h *handle) Supports(c appext.Capability) bool {
	h.b.host.mu.Lock()
	defer h.b.host.mu.Unlock()
	return h.b.host.caps[c]
}

func (h *handle) SetUnsafeActionProtection(ctx context.Context, warnings bool) error {
	if err := h.b.begin(ctx, OpWrite); err != nil {
		return err
	}
	defer h.b.host.mu.Unlock()

	if !h.b.host.caps[appext.CapUnsafeActionProtection] {
		return fmt.Errorf("%w: %s", appext.ErrUnsupportedCapability, appext.CapUnsafeActionProtection)
	}
	h.rec.unsafeWarnings = &warnings
	return nil
}

func (h *handle) SetSafeMode(ctx context.Context, mode appext.SafeMode) error {
	if err := h.b.begin(ctx, OpWrite); err != nil {
		return err
	}
	defer h.b.host.mu.Unlock()

	if !h.b.host.caps[appext.CapSafeMode] {
		return fmt.Errorf("%w: %s", appext.ErrUnsupportedCapability, appext.CapSafeMode)
	}
	h.rec.safeMode = mode
	return nil
}
